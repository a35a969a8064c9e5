package device

import (
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"github.com/rs/zerolog"
)

const pingTimeout = 3 * time.Second

// Pinger is the pre-flight reachability gate: a one-packet ICMP echo,
// independent of the authenticated HTTP client. The device may be pingable
// yet API-unreachable or vice versa, so this check is advisory only and
// reports a plain bool, never an error.
type Pinger struct {
	timeout time.Duration
	logger  zerolog.Logger
}

func NewPinger(logger zerolog.Logger) *Pinger {
	return &Pinger{timeout: pingTimeout, logger: logger}
}

func (p *Pinger) IsReachable(host string) bool {
	p.logger.Info().Str("host", host).Msg("pinging turnstile")

	pinger, err := probing.NewPinger(host)
	if err != nil {
		p.logger.Error().Err(err).Str("host", host).Msg("ping setup failed")
		return false
	}
	pinger.Count = 1
	pinger.Timeout = p.timeout
	// Raw ICMP sockets; the binary needs CAP_NET_RAW or root on Linux.
	pinger.SetPrivileged(true)

	if err := pinger.Run(); err != nil {
		p.logger.Error().Err(err).Str("host", host).Msg("ping failed")
		return false
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		p.logger.Error().Str("host", host).Msg("host is unreachable (timeout)")
		return false
	}

	p.logger.Info().Str("host", host).Dur("rtt", stats.AvgRtt).Msg("host is reachable")
	return true
}
