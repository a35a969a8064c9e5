package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/mlipatov/turnstile-manager/internal/config"
	"github.com/mlipatov/turnstile-manager/internal/turnstile/device"
	"github.com/mlipatov/turnstile-manager/internal/turnstile/service"
	"github.com/mlipatov/turnstile-manager/internal/turnstile/types"
)

func main() {
	host := flag.String("host", "", "IP address of the turnstile (default: from TURNSTILE_HOST)")
	rosterPath := flag.String("file", "cards.xlsx", "path to the Excel file with the card list")
	recordsToFetch := flag.Int("records-to-fetch", 10000, "number of event records to download")
	skipUpdate := flag.Bool("skip-update", false, "skip updating cards on the turnstile")
	skipReport := flag.Bool("skip-report", false, "skip generating the access report")
	skipClearAllCards := flag.Bool("skip-clear-all-cards", false, "skip clearing all cards from the turnstile")
	verbose := flag.Bool("v", false, "increase output verbosity to debug level")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		logger.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg := config.FromEnv()
	if *host != "" {
		cfg.Host = *host
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("configuration error")
	}

	logger = logger.With().Str("run_id", uuid.NewString()).Logger()

	client := device.NewClient(&cfg, logger)
	pinger := device.NewPinger(logger)
	mgr := service.NewManager(service.Dependencies{
		API:    client,
		Pinger: pinger,
		Config: &cfg,
		Logger: logger,
	})

	err := mgr.Run(context.Background(), service.RunOptions{
		RosterPath:        *rosterPath,
		RecordsToFetch:    *recordsToFetch,
		SkipUpdate:        *skipUpdate,
		SkipReport:        *skipReport,
		SkipClearAllCards: *skipClearAllCards,
	})
	if err != nil {
		logger.Fatal().Err(err).Str("kind", types.KindOf(err).String()).Msg("a fatal error occurred during operations")
	}

	logger.Info().Msg("all operations completed successfully")
}
