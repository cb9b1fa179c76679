package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostClassification(t *testing.T) {
	assert.True(t, IsInternalHost("printer.local"))
	assert.True(t, IsInternalHost("abc.onion"))
	assert.False(t, IsInternalHost("relay.damus.io"))

	assert.True(t, IsLoopbackHost("localhost"))
	assert.True(t, IsLoopbackHost("127.0.0.2"))
	assert.False(t, IsLoopbackHost("nos.lol"))
}

func TestSortedKeys(t *testing.T) {
	m := map[string]int{"b": 1, "a": 2, "c": 3}
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(m))
	assert.Empty(t, SortedKeys(map[string]int{}))
}
