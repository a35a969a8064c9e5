package service

import (
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mlipatov/turnstile-manager/internal/config"
	"github.com/mlipatov/turnstile-manager/internal/turnstile/types"
)

// fixedNow keeps artifact filenames and the active-view cutoff stable.
var fixedNow = time.Date(2026, time.March, 14, 15, 9, 26, 0, time.UTC)

type deviceCall struct {
	endpoint string
	req      string
}

// fakeDevice plays the turnstile for the manager, recording every call so
// tests can assert on sequencing and request encoding.
type fakeDevice struct {
	backupBlob []byte
	eventLog   string
	failOn     map[string]error // endpoint -> error returned on every call
	failEditAt int              // 1-based add-card call index to fail at; 0 = never
	editCalls  int
	calls      []deviceCall
}

func (f *fakeDevice) Get(_ context.Context, endpoint string, params url.Values) ([]byte, error) {
	call := deviceCall{endpoint: endpoint, req: params.Get("req")}
	f.calls = append(f.calls, call)

	if err := f.failOn[endpoint]; err != nil {
		return nil, err
	}

	switch endpoint {
	case cardListEndpoint:
		return f.backupBlob, nil
	case eventGetEndpoint:
		return []byte(f.eventLog), nil
	case cardEditEndpoint:
		if strings.HasPrefix(call.req, cardEditAddOp) {
			f.editCalls++
			if f.failEditAt != 0 && f.editCalls == f.failEditAt {
				return nil, types.WrapError(types.KindBadStatus, "device: get "+endpoint,
					errors.New("unexpected status 500"))
			}
		}
		return []byte("OK"), nil
	}
	return nil, errors.New("unexpected endpoint " + endpoint)
}

// addReqs returns the req parameters of add-card calls, in order.
func (f *fakeDevice) addReqs() []string {
	var out []string
	for _, c := range f.calls {
		if c.endpoint == cardEditEndpoint && strings.HasPrefix(c.req, cardEditAddOp) {
			out = append(out, c.req)
		}
	}
	return out
}

func (f *fakeDevice) endpoints() []string {
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.endpoint
	}
	return out
}

type fakePinger struct{ reachable bool }

func (p fakePinger) IsReachable(string) bool { return p.reachable }

func testRoster() []types.CardRecord {
	exp := time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC)
	return []types.CardRecord{
		{RFID: 101, HasRFID: true, CardNumber: "C-101", Username: "alice", Active: true, ExpirationDate: exp},
		{RFID: 102, HasRFID: true, CardNumber: "C-102", Username: "bob", Active: true, ExpirationDate: exp},
		{RFID: 103, HasRFID: true, CardNumber: "C-103", Username: "carol", Active: false, ExpirationDate: exp},
	}
}

func newTestManager(t *testing.T, dev *fakeDevice, reachable bool) (*Manager, *config.Config) {
	t.Helper()

	cfg := &config.Config{
		Host:      "192.0.2.10",
		Username:  "admin",
		Password:  "secret",
		BackupDir: filepath.Join(t.TempDir(), "backups"),
		ReportDir: filepath.Join(t.TempDir(), "reports"),
	}
	m := NewManager(Dependencies{
		API:    dev,
		Pinger: fakePinger{reachable: reachable},
		Config: cfg,
		Logger: zerolog.Nop(),
		LoadRoster: func(string) ([]types.CardRecord, error) {
			return testRoster(), nil
		},
		Now: func() time.Time { return fixedNow },
	})
	return m, cfg
}

// ── Run sequencing ───────────────────────────────────────────────────────────

func TestRun_UnreachableHaltsBeforeAnyDeviceCall(t *testing.T) {
	dev := &fakeDevice{}
	m, _ := newTestManager(t, dev, false)

	err := m.Run(context.Background(), RunOptions{RosterPath: "cards.xlsx", RecordsToFetch: 100})
	if err == nil {
		t.Fatal("expected error for unreachable host")
	}
	if types.KindOf(err) != types.KindNetworkFailure {
		t.Errorf("expected network_failure kind, got %s", types.KindOf(err))
	}
	if len(dev.calls) != 0 {
		t.Errorf("expected no device calls, got %d", len(dev.calls))
	}
}

func TestRun_FullSequence(t *testing.T) {
	dev := &fakeDevice{
		backupBlob: []byte{0x01, 0x02},
		eventLog:   "1\th1\t01/02/26 10:00:00\tEntered by card 00101\n",
	}
	m, _ := newTestManager(t, dev, true)

	if err := m.Run(context.Background(), RunOptions{RosterPath: "cards.xlsx", RecordsToFetch: 100}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// backup, wipe, one add per active card (101 and 102; 103 is inactive),
	// then the event fetch.
	want := []string{cardListEndpoint, cardEditEndpoint, cardEditEndpoint, cardEditEndpoint, eventGetEndpoint}
	got := dev.endpoints()
	if len(got) != len(want) {
		t.Fatalf("expected %d calls %v, got %d: %v", len(want), want, len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if dev.calls[1].req != cardEditWipeOp {
		t.Errorf("expected wipe op %q, got %q", cardEditWipeOp, dev.calls[1].req)
	}
	if reqs := dev.addReqs(); len(reqs) != 2 || reqs[0] != "1+1+101" || reqs[1] != "1+1+102" {
		t.Errorf("unexpected add-card requests: %v", reqs)
	}
}

func TestRun_SkipUpdate_NoDeviceMutation(t *testing.T) {
	dev := &fakeDevice{eventLog: ""}
	m, _ := newTestManager(t, dev, true)

	err := m.Run(context.Background(), RunOptions{
		RosterPath:     "cards.xlsx",
		RecordsToFetch: 100,
		SkipUpdate:     true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, c := range dev.calls {
		if c.endpoint == cardListEndpoint || c.endpoint == cardEditEndpoint {
			t.Errorf("unexpected mutation-phase call to %s", c.endpoint)
		}
	}
}

func TestRun_SkipClearAllCards_NoWipeCommand(t *testing.T) {
	dev := &fakeDevice{eventLog: ""}
	m, _ := newTestManager(t, dev, true)

	err := m.Run(context.Background(), RunOptions{
		RosterPath:        "cards.xlsx",
		RecordsToFetch:    100,
		SkipClearAllCards: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, c := range dev.calls {
		if c.req == cardEditWipeOp {
			t.Error("wipe command sent despite skip-clear-all-cards")
		}
	}
	if len(dev.addReqs()) != 2 {
		t.Errorf("expected 2 add-card calls, got %d", len(dev.addReqs()))
	}
}

func TestRun_BackupFailureBlocksClearAndProvision(t *testing.T) {
	dev := &fakeDevice{
		failOn: map[string]error{
			cardListEndpoint: types.WrapError(types.KindBadStatus, "device: get "+cardListEndpoint,
				errors.New("unexpected status 503")),
		},
	}
	m, _ := newTestManager(t, dev, true)

	err := m.Run(context.Background(), RunOptions{RosterPath: "cards.xlsx", RecordsToFetch: 100})
	if err == nil {
		t.Fatal("expected error when backup fails")
	}
	for _, c := range dev.calls {
		if c.endpoint == cardEditEndpoint {
			t.Error("card_edit issued after failed backup")
		}
	}
}

func TestRun_SkipReport_NoEventFetch(t *testing.T) {
	dev := &fakeDevice{backupBlob: []byte{0xff}}
	m, _ := newTestManager(t, dev, true)

	err := m.Run(context.Background(), RunOptions{
		RosterPath:     "cards.xlsx",
		RecordsToFetch: 100,
		SkipReport:     true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, c := range dev.calls {
		if c.endpoint == eventGetEndpoint {
			t.Error("event_get called despite skip-report")
		}
	}
}

func TestRun_RosterLoadFailurePropagates(t *testing.T) {
	dev := &fakeDevice{}
	m, _ := newTestManager(t, dev, true)
	m.loadRoster = func(string) ([]types.CardRecord, error) {
		return nil, types.WrapError(types.KindNotFound, "roster: open cards.xlsx", errors.New("no such file"))
	}

	err := m.Run(context.Background(), RunOptions{RosterPath: "cards.xlsx"})
	if types.KindOf(err) != types.KindNotFound {
		t.Fatalf("expected not_found kind, got %v (%v)", types.KindOf(err), err)
	}
	if len(dev.calls) != 0 {
		t.Errorf("expected no device calls after roster failure, got %d", len(dev.calls))
	}
}
