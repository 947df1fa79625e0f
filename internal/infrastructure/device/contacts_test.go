package device

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "meshbridge/internal/domain/device"
	"meshbridge/internal/shared/errors"
	"meshbridge/internal/shared/logger"
)

func staticFetch(contacts []domain.Contact) FetchFunc {
	return func(ctx context.Context) ([]domain.Contact, error) {
		return contacts, nil
	}
}

func TestContactCache_Resolve(t *testing.T) {
	book := []domain.Contact{
		{PublicKey: strings.Repeat("a1", 32), Name: "Alpha", Type: "chat"},
		{PublicKey: "a1ff" + strings.Repeat("00", 30), Name: "Annex", Type: "chat"},
		{PublicKey: strings.Repeat("b2", 32), Name: "Bravo", Type: "repeater"},
	}
	cache := NewContactCache(staticFetch(book), logger.NewLogger())
	ctx := context.Background()

	t.Run("should pass a full key through without a lookup", func(t *testing.T) {
		upper := strings.ToUpper(strings.Repeat("c3", 32))
		full, err := cache.Resolve(ctx, upper)
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("c3", 32), full)
	})

	t.Run("should reject a 64-char non-hex key", func(t *testing.T) {
		_, err := cache.Resolve(ctx, strings.Repeat("zz", 32))
		assert.True(t, errors.IsValidationError(err))
	})

	t.Run("should resolve a unique prefix", func(t *testing.T) {
		full, err := cache.Resolve(ctx, "b2")
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("b2", 32), full)
	})

	t.Run("should pick the smallest key when the prefix is ambiguous", func(t *testing.T) {
		full, err := cache.Resolve(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("a1", 32), full, "a1a1... sorts before a1ff...")
	})

	t.Run("should report not found for an unmatched prefix", func(t *testing.T) {
		_, err := cache.Resolve(ctx, "ff00")
		assert.True(t, errors.IsNotFoundError(err))
	})

	t.Run("should reject short or non-hex prefixes", func(t *testing.T) {
		_, err := cache.Resolve(ctx, "a")
		assert.True(t, errors.IsValidationError(err))

		_, err = cache.Resolve(ctx, "Alpha Base")
		assert.True(t, errors.IsValidationError(err))
	})
}

func TestContactCache_Load(t *testing.T) {
	t.Run("should collapse concurrent loads into one fetch", func(t *testing.T) {
		var calls atomic.Int32
		fetch := func(ctx context.Context) ([]domain.Contact, error) {
			calls.Add(1)
			time.Sleep(50 * time.Millisecond)
			return mockRoster(), nil
		}
		cache := NewContactCache(fetch, logger.NewLogger())

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				contacts, err := cache.Load(context.Background())
				assert.NoError(t, err)
				assert.Len(t, contacts, 5)
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("should serve cached book until invalidated", func(t *testing.T) {
		var calls atomic.Int32
		fetch := func(ctx context.Context) ([]domain.Contact, error) {
			calls.Add(1)
			return mockRoster(), nil
		}
		cache := NewContactCache(fetch, logger.NewLogger())
		ctx := context.Background()

		_, err := cache.Load(ctx)
		require.NoError(t, err)
		_, err = cache.Load(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, calls.Load())

		cache.Invalidate()
		_, err = cache.Load(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 2, calls.Load())
	})
}

func TestContactCache_Replace(t *testing.T) {
	t.Run("should drop stale resolved prefixes", func(t *testing.T) {
		cache := NewContactCache(staticFetch([]domain.Contact{
			{PublicKey: strings.Repeat("a1", 32), Name: "Alpha", Type: "chat"},
		}), logger.NewLogger())
		ctx := context.Background()

		full, err := cache.Resolve(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("a1", 32), full)

		replacement := "a100" + strings.Repeat("11", 30)
		cache.Replace([]domain.Contact{{PublicKey: replacement, Name: "Alpha II", Type: "chat"}})

		full, err = cache.Resolve(ctx, "a1")
		require.NoError(t, err)
		assert.Equal(t, replacement, full)
		assert.Equal(t, 1, cache.Size())
	})
}
