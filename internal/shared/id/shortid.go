package id

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// Queue items carry Stripe-style prefixed identifiers so a receipt id is
// recognizable in logs at a glance.
const (
	alphabet      = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	defaultLength = 12

	PrefixCommand = "cmd"
)

// New returns "<prefix>_<12 base62 chars>". A crypto/rand failure is not a
// recoverable condition, so it panics rather than returning an error.
func New(prefix string) string {
	var sb strings.Builder
	sb.Grow(len(prefix) + 1 + defaultLength)
	sb.WriteString(prefix)
	sb.WriteByte('_')

	size := big.NewInt(int64(len(alphabet)))
	for i := 0; i < defaultLength; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			panic(err)
		}
		sb.WriteByte(alphabet[n.Int64()])
	}
	return sb.String()
}

// NewCommandID returns a fresh queue-item identifier.
func NewCommandID() string {
	return New(PrefixCommand)
}
