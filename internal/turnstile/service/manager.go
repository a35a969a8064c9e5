// Package service sequences the stateful operations of one manager run
// against the turnstile: backup, card clearing, provisioning, and report
// generation. Everything is strictly sequential and fail-fast; the device
// handles one session and no step is ever retried.
package service

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/mlipatov/turnstile-manager/internal/config"
	"github.com/mlipatov/turnstile-manager/internal/turnstile/roster"
	"github.com/mlipatov/turnstile-manager/internal/turnstile/types"
)

// DeviceAPI is the seam between the manager and the HTTP client, so tests
// can drive the pipeline with canned device responses.
type DeviceAPI interface {
	Get(ctx context.Context, endpoint string, params url.Values) ([]byte, error)
}

// Reachability is the pre-flight ping gate.
type Reachability interface {
	IsReachable(host string) bool
}

// RosterLoader loads the card roster from disk.
type RosterLoader func(path string) ([]types.CardRecord, error)

type Dependencies struct {
	API    DeviceAPI
	Pinger Reachability
	Config *config.Config
	Logger zerolog.Logger

	// LoadRoster defaults to roster.Load; overridable in tests.
	LoadRoster RosterLoader

	// Now defaults to time.Now; injected so artifact filenames and the
	// active-view cutoff are deterministic in tests.
	Now func() time.Time
}

type Manager struct {
	api        DeviceAPI
	pinger     Reachability
	cfg        *config.Config
	logger     zerolog.Logger
	loadRoster RosterLoader
	now        func() time.Time
}

func NewManager(d Dependencies) *Manager {
	if d.LoadRoster == nil {
		d.LoadRoster = roster.Load
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Manager{
		api:        d.API,
		pinger:     d.Pinger,
		cfg:        d.Config,
		logger:     d.Logger,
		loadRoster: d.LoadRoster,
		now:        d.Now,
	}
}

// RunOptions mirrors the CLI surface: which roster to load, how many event
// records to pull, and which phases to skip.
type RunOptions struct {
	RosterPath        string
	RecordsToFetch    int
	SkipUpdate        bool
	SkipReport        bool
	SkipClearAllCards bool
}

// Run executes one full manager session. Order matters: the ping gate comes
// before any device mutation, and the backup must land before cards are
// cleared. Every failure is fatal to the run; nothing is retried.
func (m *Manager) Run(ctx context.Context, opts RunOptions) error {
	if !m.pinger.IsReachable(m.cfg.Host) {
		return types.WrapError(types.KindNetworkFailure, "run: ping "+m.cfg.Host,
			errors.New("turnstile is not reachable"))
	}

	full, err := m.loadRoster(opts.RosterPath)
	if err != nil {
		return err
	}
	active := roster.ActiveView(full, m.now())
	m.logger.Info().Int("active", len(active)).Int("total", len(full)).Msg("roster loaded")

	if opts.SkipUpdate {
		m.logger.Info().Msg("skipping card update as requested")
	} else {
		if _, err := m.DownloadBackup(ctx, m.cfg.BackupDir); err != nil {
			return err
		}

		if opts.SkipClearAllCards {
			m.logger.Info().Msg("skipping card clearing as requested")
		} else {
			if err := m.ClearAllCards(ctx); err != nil {
				return err
			}
			m.logger.Info().Msg("all cards cleared")
		}

		if err := m.UpdateCards(ctx, active); err != nil {
			return err
		}
	}

	if opts.SkipReport {
		m.logger.Info().Msg("skipping report generation as requested")
	} else {
		if _, err := m.GenerateReport(ctx, opts.RecordsToFetch, full, m.cfg.ReportDir); err != nil {
			return err
		}
	}

	return nil
}

const timestampFormat = "20060102_150405"

func wrapWrite(op string, err error) error {
	return types.WrapError(types.KindWriteFailure, op, err)
}
