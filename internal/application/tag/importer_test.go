package tag

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshbridge/internal/domain/node"
	"meshbridge/internal/shared/logger"
)

func TestImporter_Import(t *testing.T) {
	ctx := context.Background()
	k1 := strings.Repeat("11", 32)
	k2 := strings.Repeat("22", 32)

	t.Run("should apply records and infer value types", func(t *testing.T) {
		f := newTagFixture(t)
		imp := NewImporter(f.service, logger.NewLogger())

		doc := `{"nodes": [
			{"public_key": "` + k1 + `", "tags": {
				"site": "roof",
				"height_m": 12,
				"solar": true,
				"lat_lon": {"lat": 51.05, "lon": 4.41}
			}},
			{"public_key": "` + k2 + `", "tags": {"site": "basement"}}
		]}`

		summary, err := imp.Import(ctx, []byte(doc))
		require.NoError(t, err)
		assert.Equal(t, 5, summary.Created)
		assert.Equal(t, 0, summary.Updated)
		assert.Equal(t, 0, summary.Failed)
		assert.Empty(t, summary.Errors)

		count, err := f.nodes.Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 2, count)

		all, err := f.tags.ListByNode(ctx, k1)
		require.NoError(t, err)
		require.Len(t, all, 4)

		byKey := map[string]node.TagValue{}
		for _, tag := range all {
			byKey[tag.Key()] = tag.Value()
		}
		assert.Equal(t, node.TagValueString, byKey["site"].Type())
		assert.Equal(t, node.TagValueNumber, byKey["height_m"].Type())
		assert.Equal(t, 12.0, byKey["height_m"].Number())
		assert.Equal(t, node.TagValueBoolean, byKey["solar"].Type())
		assert.True(t, byKey["solar"].Boolean())
		assert.Equal(t, node.TagValueCoordinate, byKey["lat_lon"].Type())
	})

	t.Run("should count updates for pre-existing tags", func(t *testing.T) {
		f := newTagFixture(t)
		imp := NewImporter(f.service, logger.NewLogger())

		_, _, err := f.service.Set(ctx, k1, "site", "old")
		require.NoError(t, err)

		summary, err := imp.Import(ctx, []byte(`{"nodes": [
			{"public_key": "`+k1+`", "tags": {"site": "roof", "solar": false}}
		]}`))
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Created)
		assert.Equal(t, 1, summary.Updated)

		tag, err := f.tags.GetByNodeAndKey(ctx, k1, "site")
		require.NoError(t, err)
		assert.Equal(t, "roof", tag.Value().String())
	})

	t.Run("should collect per-record errors and keep going", func(t *testing.T) {
		f := newTagFixture(t)
		imp := NewImporter(f.service, logger.NewLogger())

		doc := `{"nodes": [
			{"public_key": "not-a-key", "tags": {"site": "roof"}},
			{"public_key": "` + k1 + `", "tags": {
				"lat_lon": {"lat": 95, "lon": 4.41},
				"site": "roof"
			}}
		]}`

		summary, err := imp.Import(ctx, []byte(doc))
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Created, "the good tag still lands")
		assert.Equal(t, 2, summary.Failed)
		require.Len(t, summary.Errors, 2)

		var recordErr, tagErr ImportError
		for _, e := range summary.Errors {
			if e.TagKey == "" {
				recordErr = e
			} else {
				tagErr = e
			}
		}
		assert.Equal(t, "not-a-key", recordErr.PublicKey)
		assert.Equal(t, "lat_lon", tagErr.TagKey)

		tag, err := f.tags.GetByNodeAndKey(ctx, k1, "site")
		require.NoError(t, err)
		require.NotNil(t, tag)
	})

	t.Run("should reject unparseable or empty documents", func(t *testing.T) {
		f := newTagFixture(t)
		imp := NewImporter(f.service, logger.NewLogger())

		_, err := imp.Import(ctx, []byte(`{"nodes": [`))
		assert.Error(t, err)

		_, err = imp.Import(ctx, []byte(`{"nodes": []}`))
		assert.Error(t, err)
	})
}
