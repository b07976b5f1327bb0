package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kortix-ai/kb-fusion/src/go/config"
	"github.com/kortix-ai/kb-fusion/src/go/embedcache"
	"github.com/kortix-ai/kb-fusion/src/go/embedder"
	"github.com/kortix-ai/kb-fusion/src/go/ftsindex"
	"github.com/kortix-ai/kb-fusion/src/go/types"
)

const testDim = 16

func defaultTestTunables() config.Tunables {
	return config.Tunables{
		SpanWords:        220,
		SpanStride:       200,
		SentWords:        60,
		KSQL:             50,
		KFinal:           3,
		TopOAI:           10,
		JaccardThreshold: 0.83,
		RRFK:             60,
		PRFK:             10,
		PRFM:             20,
		KSQL2:            60,
	}
}

func newTestEngine(t *testing.T, embed embedder.Client) (*Engine, *ftsindex.Index) {
	t.Helper()
	return newTestEngineWithTunables(t, embed, defaultTestTunables())
}

func newTestEngineWithTunables(t *testing.T, embed embedder.Client, tun config.Tunables) (*Engine, *ftsindex.Index) {
	t.Helper()
	idx, err := ftsindex.Open("file:" + t.Name() + "-fts?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	store, err := embedcache.Open("file:" + t.Name() + "-cache?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cache := embedcache.NewCache(store, embed.Model(), embed.Dim(), embed.VersionKey())

	cfg := &config.Config{
		DataDir:   t.TempDir(),
		Tunables:  tun,
		Embedding: config.EmbeddingConfig{Provider: "stub", Model: embed.Model(), Dim: embed.Dim()},
	}

	return NewEngine(idx, cache, embed, cfg, nil), idx
}

func newStubClient() embedder.Client {
	return embedder.NewClient(embedder.NewStubProvider(testDim), "stub-model", testDim, "v1", 2*time.Second)
}

func TestSearchNumericOnlyQueryReturnsS1Stage(t *testing.T) {
	ctx := context.Background()
	engine, idx := newTestEngine(t, newStubClient())

	chunks := []types.Chunk{
		{ChunkID: 1, Text: "the act of 1789", ContentHash: embedder.ContentHash("the act of 1789")},
		{ChunkID: 2, Text: "random text", ContentHash: embedder.ContentHash("random text")},
		{ChunkID: 3, Text: "year 1789 ratified", ContentHash: embedder.ContentHash("year 1789 ratified")},
	}
	require.NoError(t, idx.Populate(ctx, "file-a", chunks))

	results, err := engine.Search(ctx, "file-a", []string{"1789"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	hits := results[0]
	require.NotEmpty(t, hits)
	for _, h := range hits {
		assert.Equal(t, types.RankStageS1, h.RankStage)
		assert.Contains(t, []int64{1, 3}, h.ChunkID)
	}
}

func TestSearchFiltersByFileUID(t *testing.T) {
	ctx := context.Background()
	engine, idx := newTestEngine(t, newStubClient())

	require.NoError(t, idx.Populate(ctx, "file-a", []types.Chunk{
		{ChunkID: 1, Text: "the act of 1789", ContentHash: embedder.ContentHash("the act of 1789")},
	}))
	require.NoError(t, idx.Populate(ctx, "file-b", []types.Chunk{
		{ChunkID: 2, Text: "the act of 1789 in another file", ContentHash: embedder.ContentHash("other")},
	}))

	results, err := engine.Search(ctx, "file-a", []string{"1789"})
	require.NoError(t, err)
	for _, h := range results[0] {
		assert.Equal(t, "file-a", h.FileUID)
	}
}

func TestSearchDeduplicatesIdenticalChunks(t *testing.T) {
	ctx := context.Background()
	engine, idx := newTestEngine(t, newStubClient())

	require.NoError(t, idx.Populate(ctx, "file-a", []types.Chunk{
		{ChunkID: 1, Text: "the mitochondria is the powerhouse of the cell and drives metabolism", ContentHash: embedder.ContentHash("t1")},
		{ChunkID: 2, Text: "the mitochondria is the powerhouse of the cell and drives metabolism", ContentHash: embedder.ContentHash("t2")},
		{ChunkID: 3, Text: "completely unrelated passage about gardening tools and soil", ContentHash: embedder.ContentHash("t3")},
	}))

	results, err := engine.Search(ctx, "file-a", []string{"mitochondria metabolism"})
	require.NoError(t, err)

	seenTexts := map[int64]bool{}
	for _, h := range results[0] {
		seenTexts[h.ChunkID] = true
	}
	// chunks 1 and 2 are byte-identical; dedup must keep exactly one.
	assert.False(t, seenTexts[1] && seenTexts[2])
}

func TestSearchEmbeddingFailureDegradesToBM25(t *testing.T) {
	ctx := context.Background()
	failing := embedder.NewClient(failingProvider{}, "stub-model", testDim, "v1", 50*time.Millisecond)
	engine, idx := newTestEngine(t, failing)

	require.NoError(t, idx.Populate(ctx, "file-a", []types.Chunk{
		{ChunkID: 1, Text: "constitutional assembly ratification process explained in depth", ContentHash: embedder.ContentHash("a")},
		{ChunkID: 2, Text: "unrelated gardening content about soil and compost heaps", ContentHash: embedder.ContentHash("b")},
	}))

	results, err := engine.Search(ctx, "file-a", []string{"constitutional assembly ratification process"})
	require.NoError(t, err)
	require.NotEmpty(t, results[0])
	for _, h := range results[0] {
		assert.Equal(t, types.RankStageS1EmbedFail, h.RankStage)
	}
}

type failingProvider struct{}

func (failingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// positiveProvider wraps the stub provider and replaces every component
// with its absolute value, so any two of its vectors have a positive
// cosine.
type positiveProvider struct {
	stub *embedder.StubProvider
}

func (p positiveProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := p.stub.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	for _, v := range vecs {
		for i, x := range v {
			if x < 0 {
				v[i] = -x
			}
		}
	}
	return vecs, nil
}

// recordingClient wraps a Client and records every text passed to Embed.
type recordingClient struct {
	embedder.Client
	inputs []string
}

func (r *recordingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	r.inputs = append(r.inputs, texts...)
	return r.Client.Embed(ctx, texts)
}

func TestSearchCacheWarmsOnSecondRun(t *testing.T) {
	ctx := context.Background()
	rec := &recordingClient{Client: newStubClient()}
	engine, idx := newTestEngine(t, rec)

	docText := "constitutional assembly ratification process explained in depth"
	require.NoError(t, idx.Populate(ctx, "file-a", []types.Chunk{
		{ChunkID: 1, Text: docText, ContentHash: embedder.ContentHash("a")},
		{ChunkID: 2, Text: "unrelated gardening content about soil and compost heaps", ContentHash: embedder.ContentHash("b")},
	}))

	_, err := engine.Search(ctx, "file-a", []string{"constitutional assembly ratification process"})
	require.NoError(t, err)
	assert.Contains(t, rec.inputs, docText)

	rec.inputs = nil
	results, err := engine.Search(ctx, "file-a", []string{"constitutional assembly ratification process"})
	require.NoError(t, err)
	assert.NotEmpty(t, results[0])
	assert.NotContains(t, rec.inputs, docText)
}

func TestSearchCoalescesDuplicateQueries(t *testing.T) {
	ctx := context.Background()
	engine, idx := newTestEngine(t, newStubClient())

	require.NoError(t, idx.Populate(ctx, "file-a", []types.Chunk{
		{ChunkID: 1, Text: "the act of 1789", ContentHash: embedder.ContentHash("a")},
	}))

	results, err := engine.Search(ctx, "file-a", []string{"1789", "1789"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, results[0], results[1])
}

func TestSearchEmptyFTSReturnsEmptyResult(t *testing.T) {
	ctx := context.Background()
	engine, idx := newTestEngine(t, newStubClient())
	require.NoError(t, idx.Populate(ctx, "file-a", nil))

	results, err := engine.Search(ctx, "file-a", []string{"nonexistent query terms"})
	require.NoError(t, err)
	assert.Empty(t, results[0])
}

// TestSearchPRFExpansionSurfacesRowsBeyondKSQL drives spec §8 scenario 2:
// a short, ambiguous query unconditionally passes ShouldExpand's ≤4-token
// gate, and the PRF re-search (issued at the larger KSQL2 limit) surfaces
// rows the original KSQL-limited search never reached. The expanded
// query's SQL match set is identical to the original anchors' match set
// (BuildExpandedQuery's second clause is always a subset of its first),
// so expansion cannot widen which documents match — only the larger
// LIMIT it re-queries with can surface more of them. The drift guard
// still has to accept the swap, which it does here because the top-5
// original rows are necessarily also the top ranked rows within the
// larger expanded set.
func TestSearchPRFExpansionSurfacesRowsBeyondKSQL(t *testing.T) {
	ctx := context.Background()
	tun := defaultTestTunables()
	tun.KSQL = 5
	tun.KSQL2 = 20
	tun.TopOAI = 20
	tun.KFinal = 20
	engine, idx := newTestEngineWithTunables(t, newStubClient(), tun)

	fillers := []string{
		"rivers and mountains scenery",
		"bicycles and gear mechanisms",
		"bread baking and sourdough starters",
		"orchestral string instrument tuning",
		"desert irrigation canal engineering",
		"lighthouse keeper daily routines",
		"glassblowing furnace temperatures",
		"beekeeping hive inspection schedules",
	}
	chunks := make([]types.Chunk, len(fillers))
	for i, f := range fillers {
		text := "amendment discussion covering " + f
		chunks[i] = types.Chunk{ChunkID: int64(i + 1), Text: text, ContentHash: embedder.ContentHash(text)}
	}
	require.NoError(t, idx.Populate(ctx, "file-a", chunks))

	results, err := engine.Search(ctx, "file-a", []string{"amendment"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Greater(t, len(results[0]), tun.KSQL, "PRF expansion should surface rows beyond the original KSQL limit")
}

// TestSearchMMRGateDiversifiesWhenCoverageIsHigh drives spec §8 scenario
// 5: a longer query (more than 4 non-stopword tokens) keeps ShouldExpand
// false (too few scored rows to evaluate the flat-distribution branch),
// so the plain fusion path runs; with KFinal set below the candidate
// count and an embedder whose vectors have only non-negative components
// (so every passage has a positive cosine to the query), vector coverage
// clears the 0.90 gate and Diversify takes over ranking.
func TestSearchMMRGateDiversifiesWhenCoverageIsHigh(t *testing.T) {
	ctx := context.Background()
	tun := defaultTestTunables()
	tun.KFinal = 2
	positive := embedder.NewClient(positiveProvider{stub: embedder.NewStubProvider(testDim)}, "stub-model", testDim, "v1", 2*time.Second)
	engine, idx := newTestEngineWithTunables(t, positive, tun)

	texts := []string{
		"the constitutional assembly opened its ratification proceedings at dawn",
		"delegates debated ratification procedures late into the assembly session",
		"the proceedings explained how each state would ratify the constitutional draft",
		"assembly clerks recorded the ratification vote for the constitutional amendment",
		"historians later explained the constitutional assembly's ratification timeline",
	}
	chunks := make([]types.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = types.Chunk{ChunkID: int64(i + 1), Text: text, ContentHash: embedder.ContentHash(text)}
	}
	require.NoError(t, idx.Populate(ctx, "file-a", chunks))

	results, err := engine.Search(ctx, "file-a", []string{"constitutional assembly ratification proceedings explained"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0], tun.KFinal)
	for _, h := range results[0] {
		assert.Equal(t, types.RankStageS3MMR, h.RankStage)
	}
}
