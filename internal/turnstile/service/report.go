package service

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mlipatov/turnstile-manager/internal/turnstile/types"
)

const eventGetEndpoint = "/cgi/event_get"

// eventReqFormat is the device's event-export query. Only the record count
// varies; the trailing fields select event types and an open-ended date
// range and must be preserved byte-for-byte.
const eventReqFormat = "-1,0,-%d,0,0,1,1,0,23,59,31,12,99,1,/en"

// eventTimeLayout is the device's datetime rendering: day-first with a
// two-digit year.
const eventTimeLayout = "02/01/06 15:04:05"

const (
	notRegisteredMarker = "Card is not registered"
	entryByCardMarker   = "by card"
)

var digitsRe = regexp.MustCompile(`[0-9]+`)

// rawEvent is one usable line of the device event log. The first two
// fields (request number and hash) are protocol bookkeeping and dropped at
// tokenization.
type rawEvent struct {
	timestamp   string
	description string
}

// GenerateReport downloads the last recordsToFetch access events,
// aggregates unique entry days per card, and writes the result as a
// workbook under dir. An empty event log is a valid outcome: no file is
// written and the returned path is empty.
func (m *Manager) GenerateReport(ctx context.Context, recordsToFetch int, fullRoster []types.CardRecord, dir string) (string, error) {
	m.logger.Info().Int("records", recordsToFetch).Msg("downloading access events")

	params := url.Values{"req": {fmt.Sprintf(eventReqFormat, recordsToFetch)}}
	body, err := m.api.Get(ctx, eventGetEndpoint, params)
	if err != nil {
		return "", err
	}

	m.logger.Info().Msg("processing event data for the report")

	raw := tokenizeEvents(string(body))
	if len(raw) == 0 {
		m.logger.Warn().Msg("no event data found, skipping report generation")
		return "", nil
	}

	events, err := extractAccessEvents(raw)
	if err != nil {
		return "", err
	}
	events = dedupeEvents(events)

	rows := aggregateEntryDays(events, fullRoster)

	path, err := m.writeReport(rows, dir)
	if err != nil {
		return "", err
	}
	m.logger.Info().Str("path", path).Int("rows", len(rows)).Msg("report generated")
	return path, nil
}

// tokenizeEvents splits the raw log into usable lines. The device wraps
// the log in headers and footers with other field counts; anything that is
// not exactly four tab-separated fields is protocol noise and dropped.
func tokenizeEvents(text string) []rawEvent {
	var out []rawEvent
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			continue
		}
		out = append(out, rawEvent{timestamp: fields[2], description: fields[3]})
	}
	return out
}

// extractAccessEvents keeps only successful card entries and pulls the RFID
// out of the description. Rows the filters reject are dropped silently; a
// malformed timestamp on a kept row fails the whole build, since a device
// that misrenders time cannot be trusted to have exported a coherent log.
func extractAccessEvents(raw []rawEvent) ([]types.AccessEvent, error) {
	var out []types.AccessEvent
	for _, ev := range raw {
		if strings.Contains(ev.description, notRegisteredMarker) {
			continue
		}
		if !strings.Contains(ev.description, entryByCardMarker) {
			continue
		}

		digits := digitsRe.FindString(ev.description)
		if digits == "" {
			continue
		}
		rfid, err := strconv.ParseUint(digits, 10, 64)
		if err != nil {
			continue
		}

		ts, err := time.Parse(eventTimeLayout, ev.timestamp)
		if err != nil {
			return nil, types.WrapError(types.KindParseFailure, "report: parse event time "+ev.timestamp, err)
		}

		out = append(out, types.AccessEvent{
			RFID: rfid,
			Date: time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location()),
		})
	}
	return out, nil
}

// dedupeEvents collapses exact (rfid, date) duplicates, keeping first-seen
// order. Multiple entries on the same day must count once.
func dedupeEvents(events []types.AccessEvent) []types.AccessEvent {
	seen := make(map[types.AccessEvent]struct{}, len(events))
	out := make([]types.AccessEvent, 0, len(events))
	for _, ev := range events {
		if _, ok := seen[ev]; ok {
			continue
		}
		seen[ev] = struct{}{}
		out = append(out, ev)
	}
	return out
}

// aggregateEntryDays joins events against the roster by RFID and counts
// distinct entry dates per card. Events for cards absent from the roster
// (or present without a username) are excluded from the report. Rows come
// out in roster order so the final descending sort has a stable tie-break.
func aggregateEntryDays(events []types.AccessEvent, fullRoster []types.CardRecord) []types.ReportRow {
	byRFID := make(map[uint64]types.CardRecord, len(fullRoster))
	for _, c := range fullRoster {
		if !c.HasRFID {
			continue
		}
		if _, ok := byRFID[c.RFID]; !ok {
			byRFID[c.RFID] = c
		}
	}

	days := make(map[uint64]map[time.Time]struct{})
	for _, ev := range events {
		c, ok := byRFID[ev.RFID]
		if !ok || c.Username == "" {
			continue
		}
		if days[ev.RFID] == nil {
			days[ev.RFID] = make(map[time.Time]struct{})
		}
		days[ev.RFID][ev.Date] = struct{}{}
	}

	var rows []types.ReportRow
	emitted := make(map[uint64]bool, len(days))
	for _, c := range fullRoster {
		if !c.HasRFID || emitted[c.RFID] {
			continue
		}
		emitted[c.RFID] = true

		d, ok := days[c.RFID]
		if !ok {
			continue
		}
		rows = append(rows, types.ReportRow{
			RFID:            c.RFID,
			CardNumber:      c.CardNumber,
			Username:        c.Username,
			UniqueEntryDays: len(d),
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].UniqueEntryDays > rows[j].UniqueEntryDays
	})
	return rows
}

var reportHeader = []any{"Card RFID", "Card Number", "Username", "UniqueEntryDays"}

func (m *Manager) writeReport(rows []types.ReportRow, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", wrapWrite("report: mkdir "+dir, err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &reportHeader); err != nil {
		return "", wrapWrite("report: write header", err)
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return "", wrapWrite("report: build row", err)
		}
		row := []any{r.RFID, r.CardNumber, r.Username, r.UniqueEntryDays}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return "", wrapWrite("report: write row", err)
		}
	}

	path := filepath.Join(dir, fmt.Sprintf("access_report_%s.xlsx", m.now().Format(timestampFormat)))
	if err := f.SaveAs(path); err != nil {
		return "", wrapWrite("report: save "+path, err)
	}
	return path, nil
}
