// Package roster loads the card roster workbook and derives the two views
// the rest of the tool works from: the full roster (report joins) and the
// active subset (provisioning).
package roster

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mlipatov/turnstile-manager/internal/turnstile/types"
)

const (
	colRFID       = "Card RFID"
	colCardNumber = "Card Number"
	colUsername   = "Username"
	colActive     = "Active"
	colExpiration = "Expiration date"
)

var requiredColumns = []string{colRFID, colCardNumber, colUsername, colActive, colExpiration}

// Load reads every row of the first sheet into CardRecords. Cell-level
// oddities are tolerated (a blank or non-numeric RFID just leaves
// HasRFID=false, an unparseable expiration stays the zero time and the
// card counts as expired); a missing file or missing column is fatal.
func Load(path string) ([]types.CardRecord, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.WrapError(types.KindNotFound, "roster: open "+path, err)
		}
		return nil, types.WrapError(types.KindParseFailure, "roster: stat "+path, err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, types.WrapError(types.KindParseFailure, "roster: open workbook "+path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, types.WrapError(types.KindParseFailure, "roster: read sheet", err)
	}
	if len(rows) == 0 {
		return nil, types.WrapError(types.KindParseFailure, "roster: read sheet", errors.New("workbook has no header row"))
	}

	col := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		col[strings.TrimSpace(h)] = i
	}
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			return nil, types.WrapError(types.KindParseFailure, "roster: read sheet",
				fmt.Errorf("missing column %q", name))
		}
	}

	cards := make([]types.CardRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		cell := func(name string) string {
			if idx := col[name]; idx < len(row) {
				return strings.TrimSpace(row[idx])
			}
			return ""
		}

		rec := types.CardRecord{
			CardNumber: cell(colCardNumber),
			Username:   cell(colUsername),
			Active:     parseBool(cell(colActive)),
		}
		if v := cell(colRFID); v != "" {
			if n, err := strconv.ParseUint(v, 10, 64); err == nil {
				rec.RFID = n
				rec.HasRFID = true
			}
		}
		if t, ok := parseDate(cell(colExpiration)); ok {
			rec.ExpirationDate = t
		}

		cards = append(cards, rec)
	}
	return cards, nil
}

// ActiveView filters to the cards that may be pushed to the device: flagged
// active, carrying an RFID, and not expired as of today. Expiring today
// still counts as active. The input is never mutated.
func ActiveView(cards []types.CardRecord, today time.Time) []types.CardRecord {
	day := dateOnly(today)
	out := make([]types.CardRecord, 0, len(cards))
	for _, c := range cards {
		if !c.Active || !c.HasRFID {
			continue
		}
		if dateOnly(c.ExpirationDate).Before(day) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

// dateLayouts covers the formats the workbook realistically produces:
// ISO dates, European day-first, and excelize's short m-d-yy rendering of
// date-formatted cells.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"02.01.2006",
	"01-02-06",
}

func parseDate(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	// Unformatted date cells come through as an Excel serial number:
	// days since 1899-12-30.
	if serial, err := strconv.ParseFloat(v, 64); err == nil && serial > 0 {
		epoch := time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)
		days := int(math.Floor(serial))
		return epoch.AddDate(0, 0, days), true
	}
	return time.Time{}, false
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
