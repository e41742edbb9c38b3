package vectorstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/semindex-mcp/internal/splitter"
	"github.com/dshills/semindex-mcp/pkg/types"
)

const testDim = 4

func setupStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testChunk(relPath, content string, start, end int) types.Chunk {
	return types.Chunk{
		ID:            splitter.ChunkID(relPath, content, start, end),
		Content:       content,
		RelativePath:  relPath,
		StartLine:     start,
		EndLine:       end,
		FileExtension: ".ts",
		Metadata:      map[string]any{types.MetaCodebasePath: "/repo"},
	}
}

func unitVec(axis int) []float32 {
	v := make([]float32, testDim)
	v[axis%testDim] = 1
	return v
}

func TestCreateCollection(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateCollection(ctx, "col", testDim))

	has, err := store.HasCollection(ctx, "col")
	require.NoError(t, err)
	assert.True(t, has)

	info, err := store.CollectionInfo(ctx, "col")
	require.NoError(t, err)
	assert.Equal(t, testDim, info.Dimension)
	assert.False(t, info.IsHybrid)
	assert.Equal(t, 0, info.DocumentCount)

	// Creating again fails.
	err = store.CreateCollection(ctx, "col", testDim)
	assert.ErrorIs(t, err, types.ErrAlreadyExists)
}

func TestCreateHybridCollection(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateHybridCollection(ctx, "hyb", testDim))
	info, err := store.CollectionInfo(ctx, "hyb")
	require.NoError(t, err)
	assert.True(t, info.IsHybrid)

	// Untrained companion model exists and loads.
	model, err := store.loadModel("hyb")
	require.NoError(t, err)
	assert.False(t, model.Trained())
}

func TestDropCollection_Idempotent(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateHybridCollection(ctx, "gone", testDim))
	require.NoError(t, store.DropCollection(ctx, "gone"))

	has, err := store.HasCollection(ctx, "gone")
	require.NoError(t, err)
	assert.False(t, has)

	// Dropping a non-existent collection is fine.
	assert.NoError(t, store.DropCollection(ctx, "gone"))
	assert.NoError(t, store.DropCollection(ctx, "never-existed"))
}

func TestListCollections(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateCollection(ctx, "one", testDim))
	require.NoError(t, store.CreateCollection(ctx, "two", testDim))

	names, err := store.ListCollections(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"one", "two"}, names)
}

func TestInsertQueryDelete_Contract(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "col", testDim))

	chunks := []types.Chunk{
		testChunk("a.ts", "alpha", 1, 1),
		testChunk("a.ts", "beta", 2, 2),
		testChunk("b.ts", "gamma", 1, 1),
	}
	dense := [][]float32{unitVec(0), unitVec(1), unitVec(2)}
	require.NoError(t, store.Insert(ctx, "col", chunks, dense))

	// Every inserted id is queryable.
	rows, err := store.Query(ctx, "col", "", []string{"id"}, 0)
	require.NoError(t, err)
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row["id"].(string))
	}
	assert.ElementsMatch(t, []string{chunks[0].ID, chunks[1].ID, chunks[2].ID}, ids)

	info, err := store.CollectionInfo(ctx, "col")
	require.NoError(t, err)
	assert.Equal(t, 3, info.DocumentCount)

	// Delete removes matching ids; unknown ids are skipped silently.
	require.NoError(t, store.Delete(ctx, "col", []string{chunks[0].ID, "chunk_0000000000000000"}))
	rows, err = store.Query(ctx, "col", "", []string{"id"}, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	for _, row := range rows {
		assert.NotEqual(t, chunks[0].ID, row["id"])
	}
}

func TestInsert_UpsertReplacesOnIDCollision(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "col", testDim))

	chunk := testChunk("a.ts", "original", 1, 1)
	require.NoError(t, store.Insert(ctx, "col", []types.Chunk{chunk}, [][]float32{unitVec(0)}))
	require.NoError(t, store.Insert(ctx, "col", []types.Chunk{chunk}, [][]float32{unitVec(1)}))

	info, err := store.CollectionInfo(ctx, "col")
	require.NoError(t, err)
	assert.Equal(t, 1, info.DocumentCount)
}

func TestInsert_DimensionMismatch(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "col", testDim))

	err := store.Insert(ctx, "col", []types.Chunk{testChunk("a.ts", "x", 1, 1)}, [][]float32{{1, 2}})
	var mismatch *types.DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, testDim, mismatch.Want)
	assert.Equal(t, 2, mismatch.Got)
}

func TestQuery_FilterByRelativePath(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "col", testDim))

	chunks := []types.Chunk{
		testChunk("a.ts", "alpha", 1, 1),
		testChunk("b.ts", "beta", 1, 1),
	}
	require.NoError(t, store.Insert(ctx, "col", chunks, [][]float32{unitVec(0), unitVec(1)}))

	rows, err := store.Query(ctx, "col", `relativePath == 'a.ts'`, []string{"id", "relativePath"}, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a.ts", rows[0]["relativePath"])
}

func TestQuery_FilterIn(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "col", testDim))

	chunks := []types.Chunk{
		testChunk("a.ts", "alpha", 1, 1),
		testChunk("b.ts", "beta", 1, 1),
		testChunk("c.ts", "gamma", 1, 1),
	}
	require.NoError(t, store.Insert(ctx, "col", chunks, [][]float32{unitVec(0), unitVec(1), unitVec(2)}))

	rows, err := store.Query(ctx, "col", `relativePath in ['a.ts', 'c.ts']`, []string{"relativePath"}, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestQuery_UnparseableFilterReturnsUnfiltered(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "col", testDim))

	chunks := []types.Chunk{testChunk("a.ts", "alpha", 1, 1)}
	require.NoError(t, store.Insert(ctx, "col", chunks, [][]float32{unitVec(0)}))

	rows, err := store.Query(ctx, "col", `DROP TABLE documents; --`, []string{"id"}, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSearch_MissingCollection(t *testing.T) {
	store := setupStore(t)
	_, err := store.Search(context.Background(), "nope", unitVec(0), SearchOptions{TopK: 5})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSearch_RanksByCosine(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "col", testDim))

	chunks := []types.Chunk{
		testChunk("a.ts", "exact match", 1, 1),
		testChunk("b.ts", "close", 1, 1),
		testChunk("c.ts", "orthogonal", 1, 1),
	}
	dense := [][]float32{
		{1, 0, 0, 0},
		{0.9, 0.1, 0, 0},
		{0, 0, 1, 0},
	}
	require.NoError(t, store.Insert(ctx, "col", chunks, dense))

	results, err := store.Search(ctx, "col", []float32{1, 0, 0, 0}, SearchOptions{TopK: 3})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, chunks[0].ID, results[0].Chunk.ID)
	assert.Equal(t, chunks[1].ID, results[1].Chunk.ID)
	// Scores are non-increasing.
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestSearch_Threshold(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "col", testDim))

	chunk := testChunk("x.ts", "the only chunk", 1, 1)
	require.NoError(t, store.Insert(ctx, "col", []types.Chunk{chunk}, [][]float32{{1, 0, 0, 0}}))

	// Self-similarity passes a 0.99 threshold.
	results, err := store.Search(ctx, "col", []float32{1, 0, 0, 0}, SearchOptions{TopK: 5, Threshold: 0.99})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, chunk.ID, results[0].Chunk.ID)

	// An unrelated query does not.
	results, err = store.Search(ctx, "col", []float32{0, 1, 0, 0}, SearchOptions{TopK: 5, Threshold: 0.99})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHybridSearch_FusesRankings(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateHybridCollection(ctx, "hyb", testDim))

	contents := []string{"function calculateTotal", "class UserManager", "const fetchData"}
	require.NoError(t, store.TrainBM25(ctx, "hyb", contents))

	chunks := make([]types.Chunk, len(contents))
	dense := make([][]float32, len(contents))
	for i, c := range contents {
		chunks[i] = testChunk(fmt.Sprintf("f%d.ts", i), c, 1, 1)
		dense[i] = unitVec(i)
	}
	require.NoError(t, store.InsertHybrid(ctx, "hyb", chunks, dense))

	results, err := store.HybridSearch(ctx, "hyb", unitVec(1), "calculateTotal", HybridOptions{Limit: 3})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// Both the dense favorite (index 1) and the sparse favorite
	// (index 0, matching "calculateTotal") appear.
	ids := make(map[string]bool)
	for _, r := range results {
		ids[r.Chunk.ID] = true
	}
	assert.True(t, ids[chunks[0].ID])
	assert.True(t, ids[chunks[1].ID])
}

func TestHybridSearch_FallsBackToDense(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateHybridCollection(ctx, "hyb", testDim))

	contents := []string{"function calculateTotal", "class UserManager", "const fetchData"}
	require.NoError(t, store.TrainBM25(ctx, "hyb", contents))

	chunks := make([]types.Chunk, len(contents))
	dense := make([][]float32, len(contents))
	for i, c := range contents {
		chunks[i] = testChunk(fmt.Sprintf("f%d.ts", i), c, 1, 1)
		dense[i] = unitVec(i)
	}
	require.NoError(t, store.InsertHybrid(ctx, "hyb", chunks, dense))

	// Query with no vocabulary overlap: pure dense ranking, no error.
	results, err := store.HybridSearch(ctx, "hyb", unitVec(2), "nonexistent_unknown_term_xyz", HybridOptions{Limit: 3})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, chunks[2].ID, results[0].Chunk.ID)

	denseOnly, err := store.Search(ctx, "hyb", unitVec(2), SearchOptions{TopK: 3})
	require.NoError(t, err)
	for i := range results {
		assert.Equal(t, denseOnly[i].Chunk.ID, results[i].Chunk.ID)
	}
}

func TestInsertHybrid_RequiresTraining(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateHybridCollection(ctx, "hyb", testDim))

	err := store.InsertHybrid(ctx, "hyb", []types.Chunk{testChunk("a.ts", "x", 1, 1)}, [][]float32{unitVec(0)})
	assert.ErrorIs(t, err, types.ErrNotTrained)
}

func TestInsertHybrid_OnDenseCollectionFails(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateCollection(ctx, "dense", testDim))

	err := store.InsertHybrid(ctx, "dense", []types.Chunk{testChunk("a.ts", "x", 1, 1)}, [][]float32{unitVec(0)})
	assert.Error(t, err)
}

func TestDelete_HybridRetrains(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateHybridCollection(ctx, "hyb", testDim))

	contents := []string{"function calculateTotal", "class UserManager"}
	require.NoError(t, store.TrainBM25(ctx, "hyb", contents))

	chunks := []types.Chunk{
		testChunk("a.ts", contents[0], 1, 1),
		testChunk("b.ts", contents[1], 1, 1),
	}
	require.NoError(t, store.InsertHybrid(ctx, "hyb", chunks, [][]float32{unitVec(0), unitVec(1)}))

	require.NoError(t, store.Delete(ctx, "hyb", []string{chunks[0].ID}))

	// The retrained model no longer knows deleted-only vocabulary.
	model, err := store.loadModel("hyb")
	require.NoError(t, err)
	require.True(t, model.Trained())
	vec, err := model.Generate("calculateTotal")
	require.NoError(t, err)
	assert.True(t, vec.IsEmpty())
}

func TestIndexClearIndexCycle_SameChunkIDs(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	build := func() []string {
		require.NoError(t, store.CreateCollection(ctx, "cycle", testDim))
		chunks := []types.Chunk{
			testChunk("a.ts", "alpha", 1, 1),
			testChunk("b.ts", "beta", 1, 1),
		}
		require.NoError(t, store.Insert(ctx, "cycle", chunks, [][]float32{unitVec(0), unitVec(1)}))
		rows, err := store.Query(ctx, "cycle", "", []string{"id"}, 0)
		require.NoError(t, err)
		ids := make([]string, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, r["id"].(string))
		}
		return ids
	}

	first := build()
	require.NoError(t, store.DropCollection(ctx, "cycle"))
	second := build()
	assert.ElementsMatch(t, first, second)
}

func TestCheckCollectionLimit(t *testing.T) {
	store := setupStore(t)
	ok, err := store.CheckCollectionLimit(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}
