// Package device implements the MeshCore port variants: the live serial link
// and the deterministic mock. Both share the contact cache that answers
// destination resolution.
package device

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	domain "meshbridge/internal/domain/device"
	"meshbridge/internal/shared/constants"
	"meshbridge/internal/shared/errors"
	"meshbridge/internal/shared/logger"
	"meshbridge/internal/shared/utils"
)

const (
	// Cache TTL for the device contact book
	contactCacheTTL = 1 * time.Minute

	// Resolved prefix -> full key entries kept per port
	resolveCacheSize = 512
)

// FetchFunc pulls the current contact book from the device link.
type FetchFunc func(ctx context.Context) ([]domain.Contact, error)

// ContactCache holds the device's contact book and answers destination
// resolution. At most one fetch is in flight at a time; concurrent callers
// share its outcome, and CONTACTS events pushed by the device replace the
// cached book directly.
type ContactCache struct {
	fetch FetchFunc

	cacheMu   sync.RWMutex
	contacts  []domain.Contact
	fetchedAt time.Time

	fetchGroup singleflight.Group // prevents stampede on concurrent fetches
	resolved   *lru.Cache[string, string]
	logger     logger.Interface
}

// NewContactCache builds a cache backed by the given fetch function.
func NewContactCache(fetch FetchFunc, log logger.Interface) *ContactCache {
	// lru.New only fails on a non-positive size
	resolved, _ := lru.New[string, string](resolveCacheSize)
	return &ContactCache{
		fetch:    fetch,
		resolved: resolved,
		logger:   log.Named("contacts"),
	}
}

// Replace installs a device-pushed contact book and invalidates every
// previously resolved prefix.
func (c *ContactCache) Replace(contacts []domain.Contact) {
	c.cacheMu.Lock()
	c.contacts = contacts
	c.fetchedAt = time.Now()
	c.cacheMu.Unlock()
	c.resolved.Purge()
}

// Snapshot returns the cached book without fetching. The slice is a copy.
func (c *ContactCache) Snapshot() []domain.Contact {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	out := make([]domain.Contact, len(c.contacts))
	copy(out, c.contacts)
	return out
}

// Size reports how many contacts are cached.
func (c *ContactCache) Size() int {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	return len(c.contacts)
}

// Load returns the contact book, fetching it when the cache is cold or past
// its TTL. Concurrent demand collapses into one device exchange.
func (c *ContactCache) Load(ctx context.Context) ([]domain.Contact, error) {
	c.cacheMu.RLock()
	if !c.fetchedAt.IsZero() && time.Since(c.fetchedAt) < contactCacheTTL {
		out := make([]domain.Contact, len(c.contacts))
		copy(out, c.contacts)
		c.cacheMu.RUnlock()
		return out, nil
	}
	c.cacheMu.RUnlock()

	result, err, _ := c.fetchGroup.Do("contacts", func() (any, error) {
		// Double-check inside the flight; another caller may have landed it.
		c.cacheMu.RLock()
		if !c.fetchedAt.IsZero() && time.Since(c.fetchedAt) < contactCacheTTL {
			out := make([]domain.Contact, len(c.contacts))
			copy(out, c.contacts)
			c.cacheMu.RUnlock()
			return out, nil
		}
		c.cacheMu.RUnlock()

		contacts, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.Replace(contacts)
		c.logger.Debugw("contact book refreshed", "contacts", len(contacts))
		return contacts, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Contact), nil
}

// Invalidate expires the cached book so the next Load fetches.
func (c *ContactCache) Invalidate() {
	c.cacheMu.Lock()
	c.fetchedAt = time.Time{}
	c.cacheMu.Unlock()
	c.resolved.Purge()
}

// Resolve turns a destination into a full lowercase public key. A 64-char hex
// key passes through unchecked against the book; anything else must be a hex
// prefix of at least two characters and resolve to a cached contact. Multiple
// matches pick the lexicographically smallest key and log a warning.
func (c *ContactCache) Resolve(ctx context.Context, destination string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(destination))

	if len(d) == constants.PublicKeyLength {
		if err := utils.ValidatePublicKey(d); err != nil {
			return "", err
		}
		return d, nil
	}
	if len(d) < constants.PrefixMinLength || !utils.IsLowerHex(d) {
		return "", errors.NewValidationError(
			"destination must be a 64-char public key or a hex prefix of at least 2 chars", destination)
	}

	if full, ok := c.resolved.Get(d); ok {
		return full, nil
	}

	contacts, err := c.Load(ctx)
	if err != nil {
		return "", err
	}

	var matches []string
	for _, contact := range contacts {
		if contact.MatchesKeyPrefix(d) {
			matches = append(matches, strings.ToLower(contact.PublicKey))
		}
	}
	if len(matches) == 0 {
		return "", errors.NewNotFoundError("no contact matches destination prefix", d)
	}
	sort.Strings(matches)
	if len(matches) > 1 {
		c.logger.Warnw("ambiguous destination prefix",
			"prefix", d,
			"matches", len(matches),
			"selected", matches[0],
		)
	}

	c.resolved.Add(d, matches[0])
	return matches[0], nil
}
