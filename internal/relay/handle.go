// Package relay holds the client side of a single relay connection.
//
// A Handle is owned by exactly one caller (the pool's dispatch loop). Its
// reader and writer run on their own goroutines and only talk to the owner
// through Send and the Events channel.
package relay

import (
	"context"
	"errors"
	"fmt"

	"nostr-relaypool/internal/types"
)

var (
	// ErrConnection means the relay could not be reached or the link dropped.
	ErrConnection = errors.New("relay connection failed")
	// ErrSend means an outbound message could not be handed to the relay.
	ErrSend = errors.New("relay send failed")
	// ErrSendBufferFull is returned instead of blocking when the writer lags.
	ErrSendBufferFull = fmt.Errorf("%w: send buffer full", ErrSend)
	// ErrClosed is returned by Send once Close has been called or the link is gone.
	ErrClosed = errors.New("relay connection closed")
	// ErrCloseTimeout means the relay never acknowledged the close handshake.
	ErrCloseTimeout = errors.New("relay close not acknowledged")
)

// Handle is one open connection to one relay.
type Handle interface {
	// Endpoint returns the endpoint the handle was dialed for.
	Endpoint() types.RelayEndpoint
	// Send queues msg without blocking.
	Send(msg types.NostrMessage) error
	// Events is closed when the connection ends.
	Events() <-chan types.RelayEvent
	// Close performs the close handshake, giving up when ctx is done.
	Close(ctx context.Context) error
	// Err reports why the connection ended, nil after a clean Close.
	Err() error
}

// Dialer opens a Handle for an endpoint.
type Dialer func(ctx context.Context, endpoint types.RelayEndpoint) (Handle, error)
