// Package types provides shared type definitions used across internal packages.
package types

import "encoding/json"

// Event represents a Nostr event (NIP-01)
type Event struct {
	ID         string     `json:"id"`
	PubKey     string     `json:"pubkey"`
	CreatedAt  int64      `json:"created_at"`
	Kind       int        `json:"kind"`
	Tags       [][]string `json:"tags"`
	Content    string     `json:"content"`
	Sig        string     `json:"sig"`
	RelaysSeen []string   `json:"-"`
}

// Filter represents a Nostr subscription filter (NIP-01)
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Limit   int
	Since   *int64
	Until   *int64
	ETags   []string // #e tag filter (event references)
	PTags   []string // #p tag filter (mentions)
	ATags   []string // #a tag filter (addressable events)
	DTags   []string // #d tag filter (d-tag for addressable events)
	KTags   []string // #k tag filter (kind references, used for NIP-89)
	TTags   []string // #t tag filter (hashtags/topics)
	Search  string   // NIP-50 search query
}

// MarshalJSON encodes the filter as the object relays expect in a REQ.
// Empty fields are omitted so the relay treats them as wildcards.
func (f Filter) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{})
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	if f.Since != nil {
		m["since"] = *f.Since
	}
	if f.Until != nil {
		m["until"] = *f.Until
	}
	tags := map[string][]string{
		"#e": f.ETags,
		"#p": f.PTags,
		"#a": f.ATags,
		"#d": f.DTags,
		"#k": f.KTags,
		"#t": f.TTags,
	}
	for k, v := range tags {
		if len(v) > 0 {
			m[k] = v
		}
	}
	if f.Search != "" {
		m["search"] = f.Search
	}
	return json.Marshal(m)
}

// Matches reports whether evt satisfies the filter. Search is not evaluated
// locally (relays implement NIP-50 however they like).
func (f Filter) Matches(evt *Event) bool {
	if evt == nil {
		return false
	}
	if len(f.IDs) > 0 && !containsString(f.IDs, evt.ID) {
		return false
	}
	if len(f.Authors) > 0 && !containsString(f.Authors, evt.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if k == evt.Kind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Since != nil && evt.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && evt.CreatedAt > *f.Until {
		return false
	}
	tagFilters := []struct {
		name   string
		values []string
	}{
		{"e", f.ETags}, {"p", f.PTags}, {"a", f.ATags},
		{"d", f.DTags}, {"k", f.KTags}, {"t", f.TTags},
	}
	for _, tf := range tagFilters {
		if len(tf.values) == 0 {
			continue
		}
		if !hasTagValue(evt.Tags, tf.name, tf.values) {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func hasTagValue(tags [][]string, name string, values []string) bool {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == name && containsString(values, tag[1]) {
			return true
		}
	}
	return false
}

// NostrMessage represents a raw Nostr protocol message
type NostrMessage []interface{}
