package nostr

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostr-relaypool/internal/types"
)

const testRelay = "wss://relay.example.com"

func TestParseRelayMessageEvent(t *testing.T) {
	unsigned := types.Event{PubKey: "def", CreatedAt: 1700000000, Kind: 1, Tags: [][]string{{"t", "go"}}, Content: "hi"}
	unsigned.ID = ComputeEventID(&unsigned)
	raw := fmt.Sprintf(`["EVENT","sub-1",{"id":%q,"pubkey":"def","created_at":1700000000,"kind":1,"tags":[["t","go"]],"content":"hi","sig":""}]`, unsigned.ID)

	ev, err := ParseRelayMessage(testRelay, []byte(raw))
	require.NoError(t, err)
	assert.Equal(t, types.RelayEventEvent, ev.Type)
	assert.Equal(t, "sub-1", ev.SubscriptionID)
	require.NotNil(t, ev.Event)
	assert.Equal(t, unsigned.ID, ev.Event.ID)
	assert.Equal(t, int64(1700000000), ev.Event.CreatedAt)
	assert.Equal(t, [][]string{{"t", "go"}}, ev.Event.Tags)
	assert.Equal(t, []string{testRelay}, ev.Event.RelaysSeen)
	assert.False(t, ev.Local())
}

func TestParseRelayMessageVariants(t *testing.T) {
	tests := []struct {
		raw  string
		want types.RelayEvent
	}{
		{`["EOSE","s"]`, types.RelayEvent{Relay: testRelay, Type: types.RelayEventEOSE, SubscriptionID: "s"}},
		{`["NOTICE","slow down"]`, types.RelayEvent{Relay: testRelay, Type: types.RelayEventNotice, Message: "slow down"}},
		{`["CLOSED","s","auth-required: no"]`, types.RelayEvent{Relay: testRelay, Type: types.RelayEventClosed, SubscriptionID: "s", Message: "auth-required: no"}},
		{`["OK","e1",true,""]`, types.RelayEvent{Relay: testRelay, Type: types.RelayEventOK, EventID: "e1", OK: true}},
		{`["OK","e1",false,"blocked"]`, types.RelayEvent{Relay: testRelay, Type: types.RelayEventOK, EventID: "e1", Message: "blocked"}},
		{`["AUTH","challenge"]`, types.RelayEvent{Relay: testRelay, Type: types.RelayEventAuth, Message: "challenge"}},
		{`["COUNT","s",{"count":3}]`, types.RelayEvent{Relay: testRelay, Type: types.RelayEventOther, Message: "COUNT"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseRelayMessage(testRelay, []byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRelayMessageMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"EVENT":1}`,
		`["EVENT"]`,
		`[1,"x"]`,
		`["EVENT","s"]`,
		`["EVENT",5,{"id":"x"}]`,
		`["EVENT","s",{"content":"no id"}]`,
		`["EVENT","s","string"]`,
		`["OK","e1"]`,
	} {
		_, err := ParseRelayMessage(testRelay, []byte(raw))
		assert.ErrorIs(t, err, ErrDecode, raw)
	}
}

func TestOutboundMessagesEncode(t *testing.T) {
	since := int64(100)
	req, err := json.Marshal(ReqMessage("s1", types.Filter{Kinds: []int{1}, Limit: 10, Since: &since, TTags: []string{"go"}}))
	require.NoError(t, err)
	assert.JSONEq(t, `["REQ","s1",{"kinds":[1],"limit":10,"since":100,"#t":["go"]}]`, string(req))

	closeMsg, err := json.Marshal(CloseMessage("s1"))
	require.NoError(t, err)
	assert.JSONEq(t, `["CLOSE","s1"]`, string(closeMsg))

	evtMsg, err := json.Marshal(EventMessage(types.Event{ID: "x", Tags: [][]string{}, RelaysSeen: []string{"a"}}))
	require.NoError(t, err)
	assert.JSONEq(t, `["EVENT",{"id":"x","pubkey":"","created_at":0,"kind":0,"tags":[],"content":"","sig":""}]`, string(evtMsg))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0123456789ab", ShortID("0123456789abcdef"))
	assert.Equal(t, "abc", ShortID("abc"))
}
