package config

import (
	"errors"
	"os"
	"strings"
)

// Config holds everything needed to talk to one turnstile. It is built
// once in main and passed by reference; there is no ambient global state.
type Config struct {
	// Device address and HTTP basic-auth credentials.
	Host     string
	Username string
	Password string

	// Output directories for run artifacts.
	BackupDir string
	ReportDir string
}

func FromEnv() Config {
	return Config{
		Host:     strings.TrimSpace(os.Getenv("TURNSTILE_HOST")),
		Username: strings.TrimSpace(os.Getenv("TURNSTILE_USERNAME")),
		Password: os.Getenv("TURNSTILE_PASSWORD"),

		BackupDir: getenvDefault("BACKUP_DIR", "backups"),
		ReportDir: getenvDefault("REPORT_DIR", "reports"),
	}
}

// Validate reports whether the config is complete enough to start a run.
// Host may arrive from the CLI flag instead of the environment, so this is
// called after flag overrides are applied.
func (c Config) Validate() error {
	if c.Host == "" || c.Username == "" || c.Password == "" {
		return errors.New("TURNSTILE_HOST, TURNSTILE_USERNAME and TURNSTILE_PASSWORD must be set")
	}
	return nil
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
