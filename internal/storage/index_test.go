package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmmarcotte/marcotte-dev/pkg/types"
)

func TestVectorIndex_QueryOrder(t *testing.T) {
	for name, idx := range indexBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, idx.Upsert(ctx, []types.Record{
				testRecord("far", []float32{0, 0, 1}),
				testRecord("near", []float32{1, 0, 0}),
				testRecord("mid", []float32{1, 1, 0}),
			}))

			got, err := idx.Query(ctx, []float32{1, 0, 0}, types.Filters{Workspace: "ws"}, 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"near", "mid", "far"}, ids(got))
			assert.InDelta(t, 1.0, got[0].Score, 1e-5)
			assert.Equal(t, "text for near", got[0].Record.Text)
		})
	}
}

func TestVectorIndex_FilterBeforeTruncate(t *testing.T) {
	for name, idx := range indexBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var records []types.Record
			// 60 memories pointing at the query, 3 decisions pointing away.
			for i := 0; i < 60; i++ {
				records = append(records, testRecord(nID("mem", i), []float32{1, 0.01 * float32(i%5), 0}))
			}
			for i := 0; i < 3; i++ {
				records = append(records, testRecord(nID("dec", i), []float32{0, 0.1, 1}, withCategory(types.CategoryDecision)))
			}
			require.NoError(t, idx.Upsert(ctx, records))

			got, err := idx.Query(ctx, []float32{1, 0, 0}, types.Filters{Category: types.CategoryDecision}, 50)
			require.NoError(t, err)
			require.Len(t, got, 3)
			for _, c := range got {
				assert.Equal(t, types.CategoryDecision, c.Record.Category)
			}
		})
	}
}

func TestVectorIndex_TieBreak(t *testing.T) {
	for name, idx := range indexBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			vec := []float32{0.5, 0.5, 0}
			require.NoError(t, idx.Upsert(ctx, []types.Record{
				testRecord("c", vec, withTime(baseTime.Add(1))),
				testRecord("b", vec),
				testRecord("a", vec),
			}))

			for i := 0; i < 5; i++ {
				got, err := idx.Query(ctx, vec, types.Filters{}, 3)
				require.NoError(t, err)
				assert.Equal(t, []string{"a", "b", "c"}, ids(got))
			}
		})
	}
}

func TestVectorIndex_TagsAndTimeFilters(t *testing.T) {
	for name, idx := range indexBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, idx.Upsert(ctx, []types.Record{
				testRecord("both", []float32{1, 0, 0}, withTags("API", "database")),
				testRecord("api", []float32{1, 0, 0}, withTags("api"), withTime(baseTime.AddDate(0, 1, 0))),
				testRecord("none", []float32{1, 0, 0}, withTime(baseTime.AddDate(0, 2, 0))),
			}))

			got, err := idx.Query(ctx, []float32{1, 0, 0}, types.Filters{Tags: []string{"api", "database"}}, 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"both"}, ids(got))
			assert.Equal(t, []string{"api", "database"}, got[0].Record.Tags)

			// Query tags are normalized like stored tags, with and without a
			// time range.
			got, err = idx.Query(ctx, []float32{1, 0, 0}, types.Filters{Tags: []string{" API "}}, 10)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"both", "api"}, ids(got))

			got, err = idx.Query(ctx, []float32{1, 0, 0}, types.Filters{
				Tags:  []string{"API"},
				Since: baseTime.AddDate(0, 0, -1),
			}, 10)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"both", "api"}, ids(got))

			got, err = idx.Query(ctx, []float32{1, 0, 0}, types.Filters{
				Since: baseTime.AddDate(0, 0, 1),
				Until: baseTime.AddDate(0, 1, 1),
			}, 1)
			require.NoError(t, err)
			assert.Equal(t, []string{"api"}, ids(got))

			_, err = idx.Query(ctx, []float32{1, 0, 0}, types.Filters{
				Since: baseTime.AddDate(1, 0, 0),
				Until: baseTime,
			}, 1)
			assert.ErrorIs(t, err, types.ErrMalformedInput)
		})
	}
}

func TestVectorIndex_WorkspaceIsolation(t *testing.T) {
	for name, idx := range indexBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, idx.Upsert(ctx, []types.Record{
				testRecord("w1", []float32{1, 0, 0}, withWorkspace("one")),
				testRecord("w2", []float32{1, 0, 0}, withWorkspace("two")),
			}))

			got, err := idx.Query(ctx, []float32{1, 0, 0}, types.Filters{Workspace: "two"}, 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"w2"}, ids(got))

			n, err := idx.Count(ctx, types.Filters{Workspace: "one"})
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestVectorIndex_ReplaceAndDeleteSource(t *testing.T) {
	for name, idx := range indexBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			path := "pkg/a.go"
			require.NoError(t, idx.ReplaceSource(ctx, "ws", path, []types.Record{
				testRecord("a1", []float32{1, 0, 0}, withSource(path)),
				testRecord("a2", []float32{0, 1, 0}, withSource(path)),
				testRecord("a3", []float32{0, 0, 1}, withSource(path)),
			}))
			require.NoError(t, idx.Upsert(ctx, []types.Record{
				testRecord("other", []float32{1, 0, 0}, withSource("pkg/b.go")),
			}))

			// A shrinking file leaves no orphaned chunks.
			require.NoError(t, idx.ReplaceSource(ctx, "ws", path, []types.Record{
				testRecord("a4", []float32{1, 0, 0}, withSource(path)),
			}))
			n, err := idx.Count(ctx, types.Filters{Workspace: "ws", SourcePath: path})
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			removed, err := idx.DeleteSource(ctx, "ws", path)
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			total, err := idx.Count(ctx, types.Filters{})
			require.NoError(t, err)
			assert.Equal(t, 1, total)
		})
	}
}

func TestVectorIndex_Delete(t *testing.T) {
	for name, idx := range indexBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, idx.Upsert(ctx, []types.Record{
				testRecord("x", []float32{1, 0, 0}),
				testRecord("y", []float32{0, 1, 0}),
			}))

			n, err := idx.Delete(ctx, "x", "missing")
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			n, err = idx.Delete(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestVectorIndex_UpsertKeepsTimestamp(t *testing.T) {
	for name, idx := range indexBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, idx.Upsert(ctx, []types.Record{testRecord("r", []float32{1, 0, 0})}))

			updated := testRecord("r", []float32{0, 1, 0}, withTime(baseTime.AddDate(1, 0, 0)))
			updated.Text = "rewritten"
			require.NoError(t, idx.Upsert(ctx, []types.Record{updated}))

			got, err := idx.Query(ctx, []float32{0, 1, 0}, types.Filters{}, 1)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "rewritten", got[0].Record.Text)
			assert.True(t, got[0].Record.Timestamp.Equal(baseTime))
		})
	}
}

func TestVectorIndex_EdgeCases(t *testing.T) {
	for name, idx := range indexBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			got, err := idx.Query(ctx, []float32{1, 0, 0}, types.Filters{}, 10)
			require.NoError(t, err)
			assert.Empty(t, got)

			require.NoError(t, idx.Upsert(ctx, []types.Record{testRecord("r", []float32{1, 0, 0})}))

			got, err = idx.Query(ctx, []float32{1, 0, 0}, types.Filters{}, 0)
			require.NoError(t, err)
			assert.Empty(t, got)

			_, err = idx.Query(ctx, nil, types.Filters{}, 5)
			assert.ErrorIs(t, err, types.ErrMalformedInput)

			err = idx.Upsert(ctx, []types.Record{testRecord("bad", []float32{1, 0, 0}, withCategory("nope"))})
			assert.ErrorIs(t, err, types.ErrInvalidCategory)
		})
	}
}
