package config

import (
	"encoding/json"
	"log/slog"
	"os"

	"nostr-relaypool/internal/types"
)

// RelaysConfig represents the JSON configuration for relay lists
type RelaysConfig struct {
	DefaultRelays []string `json:"defaultRelays"`
	PublishRelays []string `json:"publishRelays"`
}

// LoadRelays reads the relay lists from path. A missing or invalid file
// falls back to the built-in lists; an empty list in the file falls back
// to its built-in counterpart.
func LoadRelays(path string) *RelaysConfig {
	defaults := DefaultRelaysConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("config file not found, using defaults", "path", path)
		} else {
			slog.Warn("could not read config, using defaults", "path", path, "error", err)
		}
		return defaults
	}

	var config RelaysConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Error("invalid JSON in config, using defaults", "path", path, "error", err)
		return defaults
	}
	if len(config.DefaultRelays) == 0 {
		config.DefaultRelays = defaults.DefaultRelays
	}
	if len(config.PublishRelays) == 0 {
		config.PublishRelays = defaults.PublishRelays
	}

	slog.Info("loaded relays configuration",
		"path", path,
		"default", len(config.DefaultRelays),
		"publish", len(config.PublishRelays))
	return &config
}

// DefaultRelaysConfig returns the embedded default configuration
func DefaultRelaysConfig() *RelaysConfig {
	return &RelaysConfig{
		DefaultRelays: []string{
			"wss://relay.damus.io",
			"wss://relay.nostr.band",
			"wss://relay.primal.net",
			"wss://nos.lol",
			"wss://nostr.mom",
		},
		PublishRelays: []string{
			"wss://relay.damus.io",
			"wss://relay.nostr.band",
			"wss://relay.primal.net",
		},
	}
}

// Endpoints merges the lists into endpoints: default relays are read,
// publish relays are written to. Order follows first appearance.
func (c *RelaysConfig) Endpoints() []types.RelayEndpoint {
	index := make(map[string]int)
	var out []types.RelayEndpoint
	add := func(url string, read, write bool) {
		if i, ok := index[url]; ok {
			out[i].Read = out[i].Read || read
			out[i].Write = out[i].Write || write
			return
		}
		index[url] = len(out)
		out = append(out, types.RelayEndpoint{URL: url, Read: read, Write: write})
	}
	for _, u := range c.DefaultRelays {
		add(u, true, false)
	}
	for _, u := range c.PublishRelays {
		add(u, false, true)
	}
	return out
}
