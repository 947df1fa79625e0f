package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("should produce prefix, separator and base62 body", func(t *testing.T) {
		got := New("cmd")

		parts := strings.SplitN(got, "_", 2)
		require.Len(t, parts, 2)
		assert.Equal(t, "cmd", parts[0])
		assert.Len(t, parts[1], defaultLength)
		for _, c := range parts[1] {
			assert.True(t, strings.ContainsRune(alphabet, c), "character %q outside alphabet", c)
		}
	})

	t.Run("should not collide over many draws", func(t *testing.T) {
		seen := make(map[string]struct{}, 10000)
		for i := 0; i < 10000; i++ {
			got := New("cmd")
			_, dup := seen[got]
			require.False(t, dup, "duplicate id after %d draws: %s", i, got)
			seen[got] = struct{}{}
		}
	})
}

func TestNewCommandID(t *testing.T) {
	t.Run("should carry the cmd prefix", func(t *testing.T) {
		assert.True(t, strings.HasPrefix(NewCommandID(), PrefixCommand+"_"))
	})
}
