package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"nostr-relaypool/internal/config"
	"nostr-relaypool/internal/nostr"
	"nostr-relaypool/internal/pool"
	"nostr-relaypool/internal/store"
	"nostr-relaypool/internal/types"
)

// app carries the settings shared by every command.
type app struct {
	cfg config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var (
		logLevel     string
		storeKind    string
		storePath    string
		relaysConfig string
	)

	root := &cobra.Command{
		Use:   "relaypool",
		Short: "relaypool talks to many Nostr relays as if they were one",
		Long: `relaypool keeps connections to a set of Nostr relays, merges what they
deliver into one deduplicated stream and fans published events out to
every relay marked for writing.

Settings come from RELAYPOOL_* environment variables; flags override them.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			flags := cmd.Root().PersistentFlags()
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("store") {
				cfg.Store = storeKind
			}
			if flags.Changed("store-path") {
				cfg.StorePath = storePath
			}
			if flags.Changed("relays-config") {
				cfg.RelaysConfig = relaysConfig
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			a.cfg = cfg
			InitLogger(cmd.ErrOrStderr(), cfg.LogLevel)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&storeKind, "store", "", "relay store backend: memory, file or redis")
	pf.StringVar(&storePath, "store-path", "", "path of the file relay store")
	pf.StringVar(&relaysConfig, "relays-config", "", "relays JSON used when the store is empty")

	root.AddCommand(a.listenCmd(), a.publishCmd(), a.relaysCmd())
	return root
}

// openStore opens the configured relay store.
func (a *app) openStore() (store.RelayStore, error) {
	return store.Open(a.cfg.StoreOptions())
}

// endpoints returns the relays to use: the override URLs when given
// (read and write), otherwise the stored endpoints, otherwise the relays
// config file.
func (a *app) endpoints(ctx context.Context, override []string) ([]types.RelayEndpoint, error) {
	if len(override) > 0 {
		eps := make([]types.RelayEndpoint, 0, len(override))
		for _, u := range override {
			n := nostr.NormalizeRelayURL(u)
			if n == "" {
				return nil, fmt.Errorf("invalid relay URL %q", u)
			}
			eps = append(eps, types.RelayEndpoint{URL: n, Read: true, Write: true})
		}
		return eps, nil
	}

	eps, _, err := a.storedEndpoints(ctx)
	return eps, err
}

// storedEndpoints reports where the endpoints came from as well.
func (a *app) storedEndpoints(ctx context.Context) ([]types.RelayEndpoint, string, error) {
	st, err := a.openStore()
	if err != nil {
		return nil, "", err
	}
	defer st.Close()

	eps, err := st.GetAll(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("read relay store: %w", err)
	}
	if len(eps) > 0 {
		return eps, "store", nil
	}
	return config.LoadRelays(a.cfg.RelaysConfig).Endpoints(), a.cfg.RelaysConfig, nil
}

// normalizeURL returns the URL the pool keys a relay by.
func normalizeURL(u string) string {
	if n := nostr.NormalizeRelayURL(u); n != "" {
		return n
	}
	return u
}

// closePool shuts p down, waiting slightly longer than the pool's own
// shutdown timeout.
func (a *app) closePool(p *pool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout+time.Second)
	defer cancel()
	if err := p.Close(ctx); err != nil {
		slog.Warn("relay pool did not stop in time", "error", err)
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
