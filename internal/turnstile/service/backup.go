package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

const cardListEndpoint = "/cgi/card_get_list"

// DownloadBackup fetches the device's raw card-list blob and writes it to a
// timestamped .bin under dir. The payload is opaque; it is never read back
// by this tool, only kept so an operator can restore the device by hand.
func (m *Manager) DownloadBackup(ctx context.Context, dir string) (string, error) {
	m.logger.Info().Msg("downloading card list backup")

	body, err := m.api.Get(ctx, cardListEndpoint, nil)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", wrapWrite("backup: mkdir "+dir, err)
	}

	name := fmt.Sprintf("turnstile_backup_%s.bin", m.now().Format(timestampFormat))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", wrapWrite("backup: write "+path, err)
	}

	m.logger.Info().Str("path", path).Int("bytes", len(body)).Msg("backup file saved")
	return path, nil
}
