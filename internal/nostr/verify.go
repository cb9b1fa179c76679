package nostr

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"nostr-relaypool/internal/types"
)

var (
	errIDMismatch   = errors.New("id does not match content")
	errBadSignature = errors.New("signature does not verify")
)

// DecodeEvent reads the event object of an EVENT frame. Every event must
// hash to its id; a signed one must also carry a valid signature.
func DecodeEvent(raw any) (types.Event, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return types.Event{}, fmt.Errorf("%w: event is not an object", ErrDecode)
	}

	evt := types.Event{
		ID:        stringField(obj, "id"),
		PubKey:    stringField(obj, "pubkey"),
		CreatedAt: int64(numberField(obj, "created_at")),
		Kind:      int(numberField(obj, "kind")),
		Tags:      decodeTags(obj["tags"]),
		Content:   stringField(obj, "content"),
		Sig:       stringField(obj, "sig"),
	}
	if evt.ID == "" {
		return types.Event{}, fmt.Errorf("%w: event has no id", ErrDecode)
	}
	if evt.Sig == "" {
		if ComputeEventID(&evt) != evt.ID {
			return types.Event{}, fmt.Errorf("%w: event %s: %v", ErrDecode, ShortID(evt.ID), errIDMismatch)
		}
		return evt, nil
	}
	if err := VerifyEvent(&evt); err != nil {
		return types.Event{}, fmt.Errorf("%w: event %s: %v", ErrDecode, ShortID(evt.ID), err)
	}
	return evt, nil
}

// VerifyEvent checks that evt.ID is the hash of its content and that
// evt.Sig is a schnorr signature over it by evt.PubKey.
func VerifyEvent(evt *types.Event) error {
	if ComputeEventID(evt) != evt.ID {
		return errIDMismatch
	}

	id, err := hex.DecodeString(evt.ID)
	if err != nil {
		return fmt.Errorf("id: %w", err)
	}
	sigBytes, err := hex.DecodeString(evt.Sig)
	if err != nil {
		return fmt.Errorf("sig: %w", err)
	}
	pubBytes, err := hex.DecodeString(evt.PubKey)
	if err != nil {
		return fmt.Errorf("pubkey: %w", err)
	}

	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return fmt.Errorf("sig: %w", err)
	}
	pub, err := schnorr.ParsePubKey(pubBytes)
	if err != nil {
		return fmt.Errorf("pubkey: %w", err)
	}
	if !sig.Verify(id, pub) {
		return errBadSignature
	}
	return nil
}

// ShortID truncates an id or pubkey for logging.
func ShortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

// json.Unmarshal into any yields float64 for every number.
func numberField(obj map[string]any, key string) float64 {
	n, _ := obj[key].(float64)
	return n
}

// decodeTags keeps the string elements of each tag and skips entries that
// are not arrays.
func decodeTags(raw any) [][]string {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	tags := make([][]string, 0, len(list))
	for _, item := range list {
		elems, ok := item.([]any)
		if !ok {
			continue
		}
		tag := make([]string, 0, len(elems))
		for _, e := range elems {
			if s, ok := e.(string); ok {
				tag = append(tag, s)
			}
		}
		tags = append(tags, tag)
	}
	return tags
}
