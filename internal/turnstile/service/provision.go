package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mlipatov/turnstile-manager/internal/turnstile/types"
)

const cardEditEndpoint = "/cgi/card_edit"

// Device op-codes for the card_edit request micro-syntax. These are opaque
// protocol constants for the controller firmware; do not reinterpret them.
const (
	cardEditAddOp  = "1+1+" // add or edit a single card, followed by its RFID
	cardEditWipeOp = "2+0"  // wipe the entire stored card list
)

// ClearAllCards wipes every card stored on the device in one command.
// A failure here aborts the run: it is not safe to add cards on top of
// unknown existing state.
func (m *Manager) ClearAllCards(ctx context.Context) error {
	m.logger.Info().Msg("clearing all cards on the turnstile")

	params := url.Values{"req": {cardEditWipeOp}}
	if _, err := m.api.Get(ctx, cardEditEndpoint, params); err != nil {
		return fmt.Errorf("clear all cards: %w", err)
	}
	return nil
}

// UpdateCards pushes the active roster onto the device one record at a
// time, in the order given. The first failure aborts immediately: the
// remaining records are never attempted and nothing already sent is rolled
// back, leaving the device partially provisioned for the operator to
// resolve.
func (m *Manager) UpdateCards(ctx context.Context, active []types.CardRecord) error {
	total := len(active)
	m.logger.Info().Int("cards", total).Msg("starting card update on the turnstile")

	for i, card := range active {
		m.logger.Info().
			Int("n", i+1).
			Int("total", total).
			Uint64("rfid", card.RFID).
			Str("card", card.CardNumber).
			Str("user", card.Username).
			Msg("updating card")

		params := url.Values{"req": {cardEditAddOp + strconv.FormatUint(card.RFID, 10)}}
		body, err := m.api.Get(ctx, cardEditEndpoint, params)
		if err != nil {
			return fmt.Errorf("update card %d/%d (rfid %d): %w", i+1, total, card.RFID, err)
		}
		m.logger.Debug().Str("response", strings.TrimSpace(string(body))).Msg("turnstile response")
	}

	m.logger.Info().Msg("card update completed")
	return nil
}
