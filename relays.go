package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nostr-relaypool/internal/nostr"
	"nostr-relaypool/internal/relay"
	"nostr-relaypool/internal/store"
	"nostr-relaypool/internal/types"
)

// maxConcurrentChecks bounds the dials made by "relays list --check".
const maxConcurrentChecks = 8

func (a *app) relaysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relays",
		Short: "Manage the stored relay endpoints",
	}
	cmd.AddCommand(a.relaysListCmd(), a.relaysAddCmd(), a.relaysRemoveCmd())
	return cmd
}

func (a *app) relaysListCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the relays the pool would connect to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eps, source, err := a.storedEndpoints(cmd.Context())
			if err != nil {
				return err
			}

			var status map[string]string
			if check {
				status = a.checkRelays(cmd.Context(), eps)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "# source: %s\n", source)
			if check {
				fmt.Fprintln(w, "URL\tREAD\tWRITE\tSTATUS")
			} else {
				fmt.Fprintln(w, "URL\tREAD\tWRITE")
			}
			for _, ep := range eps {
				if check {
					fmt.Fprintf(w, "%s\t%t\t%t\t%s\n", ep.URL, ep.Read, ep.Write, status[ep.URL])
				} else {
					fmt.Fprintf(w, "%s\t%t\t%t\n", ep.URL, ep.Read, ep.Write)
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "dial every relay and report whether it is reachable")
	return cmd
}

// checkRelays dials each endpoint concurrently and describes the outcome.
func (a *app) checkRelays(ctx context.Context, eps []types.RelayEndpoint) map[string]string {
	opts := a.cfg.RelayOptions()
	var (
		mu     sync.Mutex
		status = make(map[string]string, len(eps))
		g      errgroup.Group
	)
	g.SetLimit(maxConcurrentChecks)

	for _, ep := range eps {
		g.Go(func() error {
			start := time.Now()
			dialCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
			defer cancel()

			result := ""
			conn, err := relay.Dial(dialCtx, ep, opts)
			if err != nil {
				result = "unreachable: " + err.Error()
			} else {
				result = fmt.Sprintf("ok (%s)", time.Since(start).Round(time.Millisecond))
				closeCtx, closeCancel := context.WithTimeout(ctx, time.Second)
				conn.Close(closeCtx)
				closeCancel()
			}

			mu.Lock()
			status[ep.URL] = result
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return status
}

func (a *app) relaysAddCmd() *cobra.Command {
	var read, write bool
	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Store a relay endpoint, replacing any entry for the same URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := nostr.NormalizeRelayURL(args[0])
			if url == "" {
				return fmt.Errorf("invalid relay URL %q", args[0])
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ep := types.RelayEndpoint{URL: url, Read: read, Write: write}
			if err := st.Save(cmd.Context(), ep); err != nil {
				return fmt.Errorf("save relay: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (read=%t write=%t)\n", url, read, write)
			return nil
		},
	}
	cmd.Flags().BoolVar(&read, "read", true, "subscribe on this relay")
	cmd.Flags().BoolVar(&write, "write", true, "publish to this relay")
	return cmd
}

func (a *app) relaysRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <url>",
		Short: "Delete a stored relay endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := normalizeURL(args[0])
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if _, err := st.Get(cmd.Context(), url); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("relay %s is not stored", url)
				}
				return err
			}
			if err := st.Delete(cmd.Context(), url); err != nil {
				return fmt.Errorf("delete relay: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", url)
			return nil
		},
	}
}
