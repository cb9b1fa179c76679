package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nostr-relaypool/internal/nostr"
	"nostr-relaypool/internal/pool"
	"nostr-relaypool/internal/relay"
	"nostr-relaypool/internal/types"
	"nostr-relaypool/internal/util"
)

// publishResult is the outcome reported by one relay.
type publishResult struct {
	Relay    string
	Accepted bool
	Message  string
}

func (a *app) publishCmd() *cobra.Command {
	var (
		relays []string
		secret string
		kind   int
		tags   []string
		wait   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "publish <content>...",
		Short: "Sign a note and publish it to every write relay",
		Long: `Sign a note and publish it to every write relay.

The secret key (hex or nsec) is read from --key or RELAYPOOL_SECRET_KEY.
Without one a throwaway key is generated.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			keys, err := loadKeys(secret)
			if err != nil {
				return err
			}
			parsedTags, err := parseTags(tags)
			if err != nil {
				return err
			}
			evt := keys.NewTextNote(kind, strings.Join(args, " "), parsedTags)
			if err := keys.Sign(&evt); err != nil {
				return fmt.Errorf("sign event: %w", err)
			}

			endpoints, err := a.endpoints(ctx, relays)
			if err != nil {
				return err
			}
			writable := make(map[string]bool)
			for _, ep := range endpoints {
				if ep.Write {
					writable[normalizeURL(ep.URL)] = true
				}
			}
			if len(writable) == 0 {
				return errors.New("no write relays configured")
			}

			p := pool.New(endpoints, a.cfg.PoolOptions()...)
			defer a.closePool(p)

			results, err := publishAndWait(ctx, p, evt, writable, a.cfg.DialTimeout, wait)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "event %s by %s\n", evt.ID, keys.NPub())
			accepted := 0
			for _, r := range results {
				status := "rejected"
				if r.Accepted {
					status = "accepted"
					accepted++
				}
				fmt.Fprintf(out, "%-40s %s %s\n", r.Relay, status, r.Message)
			}
			if accepted == 0 {
				return fmt.Errorf("no relay accepted event %s", nostr.ShortID(evt.ID))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&relays, "relay", nil, "relay URL to use instead of the configured ones (repeatable)")
	f.StringVar(&secret, "key", "", "secret key, hex or nsec")
	f.IntVar(&kind, "kind", 1, "event kind")
	f.StringArrayVar(&tags, "tag", nil, "tag as comma separated values, e.g. t,nostr (repeatable)")
	f.DurationVar(&wait, "wait", 5*time.Second, "how long to wait for relay acknowledgements")
	return cmd
}

func loadKeys(secret string) (*nostr.Keys, error) {
	if secret == "" {
		secret = os.Getenv("RELAYPOOL_SECRET_KEY")
	}
	if secret != "" {
		return nostr.KeysFromString(secret)
	}
	keys, err := nostr.GenerateKeys()
	if err != nil {
		return nil, err
	}
	slog.Warn("no secret key given, using a throwaway key", "npub", keys.NPub())
	return keys, nil
}

func parseTags(raw []string) ([][]string, error) {
	tags := make([][]string, 0, len(raw))
	for _, t := range raw {
		parts := strings.Split(t, ",")
		if len(parts) < 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid tag %q (want name,value[,...])", t)
		}
		tags = append(tags, parts)
	}
	return tags, nil
}

// publishAndWait waits up to dialTimeout until every write relay is
// connected or has failed, publishes evt and collects the OK replies until
// each connected relay has answered or wait has passed.
func publishAndWait(ctx context.Context, p *pool.Pool, evt types.Event, writable map[string]bool, dialTimeout, wait time.Duration) ([]publishResult, error) {
	raw := p.RawEvents()
	connectCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	failed := waitConnected(connectCtx, p, raw, writable)
	cancel()

	targets := connectedWriters(p, writable)
	if len(targets) == 0 {
		return nil, errors.New("no write relay connected")
	}
	p.Publish(evt)

	results := make(map[string]publishResult, len(writable))
	for u, msg := range failed {
		results[u] = publishResult{Relay: u, Message: msg}
	}
	timeout := time.NewTimer(wait)
	defer timeout.Stop()

	for pending := len(targets); pending > 0; {
		var ev types.RelayEvent
		select {
		case <-timeout.C:
			pending = 0
			continue
		case <-ctx.Done():
			pending = 0
			continue
		case e, ok := <-raw:
			if !ok {
				pending = 0
				continue
			}
			ev = e
		}
		if _, done := results[ev.Relay]; done || !writable[ev.Relay] {
			continue
		}
		switch {
		case ev.Type == types.RelayEventOK && ev.EventID == evt.ID:
			results[ev.Relay] = publishResult{Relay: ev.Relay, Accepted: ev.OK, Message: ev.Message}
			pending--
		case ev.Local() && !errors.Is(ev.Err, nostr.ErrDecode):
			results[ev.Relay] = publishResult{Relay: ev.Relay, Message: ev.Err.Error()}
			pending--
		}
	}

	for _, u := range targets {
		if _, ok := results[u]; !ok {
			results[u] = publishResult{Relay: u, Message: "no acknowledgement"}
		}
	}
	out := make([]publishResult, 0, len(results))
	for _, u := range util.SortedKeys(results) {
		out = append(out, results[u])
	}
	return out, nil
}

// waitConnected blocks until each write relay is connected or reported as
// failed, or ctx is done. It returns the failures by relay.
func waitConnected(ctx context.Context, p *pool.Pool, raw <-chan types.RelayEvent, writable map[string]bool) map[string]string {
	failed := make(map[string]string)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for len(connectedWriters(p, writable))+len(failed) < len(writable) {
		select {
		case <-ctx.Done():
			return failed
		case ev, ok := <-raw:
			if !ok {
				return failed
			}
			if ev.Local() && errors.Is(ev.Err, relay.ErrConnection) && writable[ev.Relay] {
				failed[ev.Relay] = ev.Err.Error()
			}
		case <-ticker.C:
		}
	}
	return failed
}

func connectedWriters(p *pool.Pool, writable map[string]bool) []string {
	var out []string
	for _, u := range p.ActiveRelays() {
		if writable[u] {
			out = append(out, u)
		}
	}
	return out
}
