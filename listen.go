package main

import (
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"nostr-relaypool/internal/pool"
	"nostr-relaypool/internal/types"
)

// rawLine is how --raw prints one relay message.
type rawLine struct {
	Relay        string `json:"relay"`
	Type         string `json:"type"`
	Subscription string `json:"subscription,omitempty"`
	EventID      string `json:"event_id,omitempty"`
	Message      string `json:"message,omitempty"`
	Error        string `json:"error,omitempty"`
}

func newRawLine(ev types.RelayEvent) rawLine {
	line := rawLine{
		Relay:        ev.Relay,
		Type:         ev.Type.String(),
		Subscription: ev.SubscriptionID,
		EventID:      ev.EventID,
		Message:      ev.Message,
	}
	if ev.Event != nil {
		line.EventID = ev.Event.ID
	}
	if ev.Err != nil {
		line.Type = "LOCAL"
		line.Error = ev.Err.Error()
	}
	return line
}

func firstRelay(evt types.Event) string {
	if len(evt.RelaysSeen) == 0 {
		return ""
	}
	return evt.RelaysSeen[0]
}

func (a *app) listenCmd() *cobra.Command {
	var (
		relays  []string
		subID   string
		kinds   []int
		authors []string
		limit   int
		since   time.Duration
		raw     bool
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Subscribe on every read relay and print unique events as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			endpoints, err := a.endpoints(ctx, relays)
			if err != nil {
				return err
			}

			reg := newMetricsRegistry()
			p := pool.New(endpoints, append(a.cfg.PoolOptions(), pool.WithRegisterer(reg))...)
			defer a.closePool(p)
			if a.cfg.MetricsAddr != "" {
				stopMetrics := serveMetrics(a.cfg.MetricsAddr, reg, p)
				defer stopMetrics()
			}

			filter := types.Filter{Kinds: kinds, Authors: authors, Limit: limit}
			if since > 0 {
				ts := time.Now().Add(-since).Unix()
				filter.Since = &ts
			}

			payloads := p.Payloads()
			var rawEvents <-chan types.RelayEvent
			if raw {
				rawEvents = p.RawEvents()
			}
			id := p.Subscribe(types.Subscription{ID: subID, Filter: filter})
			slog.Info("listening", "subscription", id, "relays", len(endpoints))

			enc := json.NewEncoder(cmd.OutOrStdout())
			for {
				select {
				case <-ctx.Done():
					p.Unsubscribe(id)
					return nil
				case evt, ok := <-payloads:
					if !ok {
						return nil
					}
					// relays are free to ignore parts of a filter
					if !filter.Matches(&evt) {
						slog.Debug("skipping event outside filter", "id", evt.ID, "relay", firstRelay(evt))
						continue
					}
					if err := enc.Encode(evt); err != nil {
						return err
					}
				case ev, ok := <-rawEvents:
					if !ok {
						rawEvents = nil
						continue
					}
					if err := enc.Encode(newRawLine(ev)); err != nil {
						return err
					}
				}
			}
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&relays, "relay", nil, "relay URL to use instead of the configured ones (repeatable)")
	f.StringVar(&subID, "id", "", "subscription id (random when empty)")
	f.IntSliceVar(&kinds, "kind", nil, "event kind to match (repeatable)")
	f.StringSliceVar(&authors, "author", nil, "author pubkey to match (repeatable)")
	f.IntVar(&limit, "limit", 0, "initial number of stored events each relay should send")
	f.DurationVar(&since, "since", 0, "only events newer than this, e.g. 1h")
	f.BoolVar(&raw, "raw", false, "also print every relay message and local notice")
	return cmd
}
