package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/jpillora/backoff"

	"nostr-relaypool/internal/types"
)

// RetryConfig represents the parameters for when to retry to connect
type RetryConfig struct {
	Factor float64
	Jitter bool
	Min    time.Duration
	Max    time.Duration
}

// DefaultRetry returns the backoff used when a relay has to be redialed.
func DefaultRetry() RetryConfig {
	return RetryConfig{
		Factor: 2,
		Min:    1 * time.Second,
		Max:    30 * time.Second,
	}
}

// Redial keeps dialing endpoint until it succeeds or ctx is cancelled.
func Redial(ctx context.Context, dial Dialer, endpoint types.RelayEndpoint, retry RetryConfig) (Handle, error) {
	boff := &backoff.Backoff{
		Min:    retry.Min,
		Max:    retry.Max,
		Factor: retry.Factor,
		Jitter: retry.Jitter,
	}

	for {
		h, err := dial(ctx, endpoint)
		if err == nil {
			return h, nil
		}

		wait := boff.Duration()
		slog.Debug("relay redial failed",
			"relay", endpoint.URL,
			"attempt", boff.Attempt(),
			"retry_in", wait,
			"error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
