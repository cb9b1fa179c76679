// Package nostr implements the NIP-01 client side of the relay protocol:
// message framing, event ids and signatures, and relay URL handling.
package nostr

import (
	"encoding/json"
	"errors"
	"fmt"

	"nostr-relaypool/internal/types"
)

// ErrDecode marks an inbound relay message that could not be understood.
var ErrDecode = errors.New("malformed relay message")

// ReqMessage builds ["REQ", <subID>, <filter>].
func ReqMessage(subID string, filter types.Filter) types.NostrMessage {
	return types.NostrMessage{"REQ", subID, filter}
}

// CloseMessage builds ["CLOSE", <subID>].
func CloseMessage(subID string) types.NostrMessage {
	return types.NostrMessage{"CLOSE", subID}
}

// EventMessage builds ["EVENT", <event>].
func EventMessage(evt types.Event) types.NostrMessage {
	return types.NostrMessage{"EVENT", evt}
}

// ParseRelayMessage decodes one websocket frame received from relayURL.
// Unknown message types are returned as RelayEventOther rather than an error.
func ParseRelayMessage(relayURL string, data []byte) (types.RelayEvent, error) {
	var msg types.NostrMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return types.RelayEvent{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(msg) < 2 {
		return types.RelayEvent{}, fmt.Errorf("%w: %d elements", ErrDecode, len(msg))
	}

	msgType, ok := msg[0].(string)
	if !ok {
		return types.RelayEvent{}, fmt.Errorf("%w: message type is not a string", ErrDecode)
	}

	ev := types.RelayEvent{Relay: relayURL}

	switch msgType {
	case "EVENT":
		if len(msg) < 3 {
			return types.RelayEvent{}, fmt.Errorf("%w: EVENT without payload", ErrDecode)
		}
		subID, ok := msg[1].(string)
		if !ok {
			return types.RelayEvent{}, fmt.Errorf("%w: EVENT subscription id", ErrDecode)
		}
		evt, err := DecodeEvent(msg[2])
		if err != nil {
			return types.RelayEvent{}, err
		}
		evt.RelaysSeen = []string{relayURL}
		ev.Type = types.RelayEventEvent
		ev.SubscriptionID = subID
		ev.Event = &evt

	case "EOSE":
		subID, ok := msg[1].(string)
		if !ok {
			return types.RelayEvent{}, fmt.Errorf("%w: EOSE subscription id", ErrDecode)
		}
		ev.Type = types.RelayEventEOSE
		ev.SubscriptionID = subID

	case "NOTICE":
		ev.Type = types.RelayEventNotice
		ev.Message, _ = msg[1].(string)

	case "CLOSED":
		ev.Type = types.RelayEventClosed
		ev.SubscriptionID, _ = msg[1].(string)
		if len(msg) >= 3 {
			ev.Message, _ = msg[2].(string)
		}

	case "OK":
		if len(msg) < 3 {
			return types.RelayEvent{}, fmt.Errorf("%w: OK without status", ErrDecode)
		}
		ev.Type = types.RelayEventOK
		ev.EventID, _ = msg[1].(string)
		ev.OK, _ = msg[2].(bool)
		if len(msg) >= 4 {
			ev.Message, _ = msg[3].(string)
		}

	case "AUTH":
		ev.Type = types.RelayEventAuth
		ev.Message, _ = msg[1].(string)

	default:
		ev.Type = types.RelayEventOther
		ev.Message = msgType
	}

	return ev, nil
}
