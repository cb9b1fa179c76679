package nostr

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"nostr-relaypool/internal/types"
)

// ComputeEventID returns the NIP-01 id: sha256 of
// [0, pubkey, created_at, kind, tags, content] serialised without HTML escaping.
func ComputeEventID(evt *types.Event) string {
	tags := evt.Tags
	if tags == nil {
		tags = [][]string{}
	}
	serialized := []interface{}{
		0,
		evt.PubKey,
		evt.CreatedAt,
		evt.Kind,
		tags,
		evt.Content,
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.Encode(serialized)

	// Encoder.Encode adds a trailing newline
	jsonBytes := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))

	hash := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(hash[:])
}

// Keys is a secp256k1 key pair used to sign events.
type Keys struct {
	private *btcec.PrivateKey
	pubKey  string
}

// GenerateKeys creates a fresh random key pair.
func GenerateKeys() (*Keys, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return newKeys(priv), nil
}

// KeysFromString accepts a 64 char hex secret or an nsec bech32 string.
func KeysFromString(secret string) (*Keys, error) {
	secret = strings.TrimSpace(secret)
	if strings.HasPrefix(secret, "nsec1") {
		hexKey, err := DecodeBech32ID("nsec", secret)
		if err != nil {
			return nil, fmt.Errorf("invalid nsec: %w", err)
		}
		secret = hexKey
	}
	privBytes, err := hex.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}
	if len(privBytes) != 32 {
		return nil, errors.New("private key must be 32 bytes")
	}
	priv, _ := btcec.PrivKeyFromBytes(privBytes)
	return newKeys(priv), nil
}

func newKeys(priv *btcec.PrivateKey) *Keys {
	return &Keys{
		private: priv,
		pubKey:  hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey())),
	}
}

// PubKey returns the x-only public key as hex.
func (k *Keys) PubKey() string {
	return k.pubKey
}

// NPub returns the public key in bech32 npub form.
func (k *Keys) NPub() string {
	npub, _ := EncodeBech32ID("npub", k.pubKey)
	return npub
}

// SecretHex returns the private key as hex.
func (k *Keys) SecretHex() string {
	return hex.EncodeToString(k.private.Serialize())
}

// NewTextNote builds an unsigned event authored by k.
func (k *Keys) NewTextNote(kind int, content string, tags [][]string) types.Event {
	if tags == nil {
		tags = [][]string{}
	}
	return types.Event{
		PubKey:    k.pubKey,
		CreatedAt: time.Now().Unix(),
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
}

// Sign fills in PubKey, ID and Sig.
func (k *Keys) Sign(evt *types.Event) error {
	evt.PubKey = k.pubKey
	if evt.Tags == nil {
		evt.Tags = [][]string{}
	}
	evt.ID = ComputeEventID(evt)
	idBytes, _ := hex.DecodeString(evt.ID)
	sig, err := schnorr.Sign(k.private, idBytes)
	if err != nil {
		return fmt.Errorf("sign event: %w", err)
	}
	evt.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}
