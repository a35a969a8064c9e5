package device

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/mlipatov/turnstile-manager/internal/config"
	"github.com/mlipatov/turnstile-manager/internal/turnstile/types"
)

// requestTimeout bounds every device call. The controller serializes
// commands internally and can be slow under load, but anything beyond this
// means the run should abort rather than queue up behind a wedged device.
const requestTimeout = 10 * time.Second

// Client is the low-level HTTP wrapper around the turnstile control API.
// All endpoints are plain GETs over HTTP basic auth; the device has no
// other transport. A failed call is never retried: a partially-applied
// card update against physical hardware is worse than a halted run.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewClient(cfg *config.Config, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    "http://" + cfg.Host,
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

// Get performs one GET against the device and returns the raw body.
// Transport-level failures (dial, DNS, timeout) are tagged
// KindNetworkFailure; a non-2xx response is tagged KindBadStatus.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, types.WrapError(types.KindNetworkFailure, "device: build request "+endpoint, err)
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("url", reqURL).Msg("device request failed")
		return nil, types.WrapError(types.KindNetworkFailure, "device: get "+endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.WrapError(types.KindNetworkFailure, "device: read response "+endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error().Int("status", resp.StatusCode).Str("url", reqURL).Msg("device returned error status")
		return nil, types.WrapError(types.KindBadStatus, "device: get "+endpoint,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	c.logger.Debug().Int("status", resp.StatusCode).Str("url", reqURL).Msg("device request ok")
	return body, nil
}
