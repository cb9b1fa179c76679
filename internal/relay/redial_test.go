package relay

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostr-relaypool/internal/types"
)

type stubHandle struct {
	endpoint types.RelayEndpoint
	events   chan types.RelayEvent
}

func (s *stubHandle) Endpoint() types.RelayEndpoint   { return s.endpoint }
func (s *stubHandle) Send(types.NostrMessage) error   { return nil }
func (s *stubHandle) Events() <-chan types.RelayEvent { return s.events }
func (s *stubHandle) Close(context.Context) error     { return nil }
func (s *stubHandle) Err() error                      { return nil }

var fastRetry = RetryConfig{Factor: 2, Min: time.Millisecond, Max: 5 * time.Millisecond}

func TestRedialSucceedsAfterFailures(t *testing.T) {
	var attempts atomic.Int32
	dial := func(ctx context.Context, ep types.RelayEndpoint) (Handle, error) {
		if attempts.Add(1) < 3 {
			return nil, ErrConnection
		}
		return &stubHandle{endpoint: ep}, nil
	}

	ep := types.RelayEndpoint{URL: "wss://relay.example.com", Read: true}
	h, err := Redial(context.Background(), dial, ep, fastRetry)
	require.NoError(t, err)
	assert.Equal(t, ep, h.Endpoint())
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRedialStopsOnCancel(t *testing.T) {
	dial := func(ctx context.Context, ep types.RelayEndpoint) (Handle, error) {
		return nil, ErrConnection
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Redial(ctx, dial, types.RelayEndpoint{URL: "wss://relay.example.com"}, fastRetry)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
