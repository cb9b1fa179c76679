package types

// RelayEndpoint is one configured relay and the directions it is used for.
// A relay with neither flag set is still connected but never sent anything
// and its inbound traffic is discarded.
type RelayEndpoint struct {
	URL   string `json:"url"`
	Read  bool   `json:"read"`
	Write bool   `json:"write"`
}

// Inert reports whether the endpoint is disabled in both directions.
func (e RelayEndpoint) Inert() bool {
	return !e.Read && !e.Write
}

// RelayEventType tags the variant carried by a RelayEvent.
type RelayEventType int

const (
	RelayEventOther RelayEventType = iota
	RelayEventEvent
	RelayEventNotice
	RelayEventEOSE
	RelayEventOK
	RelayEventClosed
	RelayEventAuth
)

func (t RelayEventType) String() string {
	switch t {
	case RelayEventEvent:
		return "EVENT"
	case RelayEventNotice:
		return "NOTICE"
	case RelayEventEOSE:
		return "EOSE"
	case RelayEventOK:
		return "OK"
	case RelayEventClosed:
		return "CLOSED"
	case RelayEventAuth:
		return "AUTH"
	default:
		return "OTHER"
	}
}

// RelayEvent is one inbound message from a relay, or a notice generated
// locally about a relay (Err is set in that case).
type RelayEvent struct {
	Relay          string
	Type           RelayEventType
	SubscriptionID string // EVENT, EOSE, CLOSED
	Event          *Event // EVENT
	EventID        string // OK
	OK             bool   // OK
	Message        string // NOTICE, CLOSED reason, OK message, AUTH challenge
	Err            error
}

// Local reports whether the event was produced by this client rather than
// received from the relay.
func (e RelayEvent) Local() bool {
	return e.Err != nil
}
