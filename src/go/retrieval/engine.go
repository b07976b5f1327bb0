// Package retrieval implements the per-query orchestrator (§4.9): the
// state machine that sequences keyword extraction, BM25 retrieval,
// pseudo-relevance feedback, deduplication, adaptive-depth reranking,
// batched embedding, fusion, and MMR diversification into a ranked,
// provenance-tagged result list for one file.
package retrieval

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kortix-ai/kb-fusion/src/go/config"
	"github.com/kortix-ai/kb-fusion/src/go/dedup"
	"github.com/kortix-ai/kb-fusion/src/go/embedcache"
	"github.com/kortix-ai/kb-fusion/src/go/embedder"
	"github.com/kortix-ai/kb-fusion/src/go/engineerr"
	"github.com/kortix-ai/kb-fusion/src/go/fusion"
	"github.com/kortix-ai/kb-fusion/src/go/ftsindex"
	"github.com/kortix-ai/kb-fusion/src/go/ftsquery"
	"github.com/kortix-ai/kb-fusion/src/go/mmr"
	"github.com/kortix-ai/kb-fusion/src/go/obslog"
	"github.com/kortix-ai/kb-fusion/src/go/prf"
	"github.com/kortix-ai/kb-fusion/src/go/snippet"
	"github.com/kortix-ai/kb-fusion/src/go/tokenizer"
	"github.com/kortix-ai/kb-fusion/src/go/types"
)

var threeOrFourDigits = regexp.MustCompile(`^\d{3,4}$`)

// Engine is one configured instance of the hybrid retrieval pipeline. It
// owns no process-wide state: the full-text index, the embedding cache,
// and the embedding client are all passed in explicitly (§9's note on
// replacing global state with explicit dependencies).
type Engine struct {
	index  *ftsindex.Index
	cache  *embedcache.Cache
	embed  embedder.Client
	cfg    *config.Config
	logger *zap.Logger
}

// NewEngine wires the four collaborators an Engine needs. logger may be
// nil, in which case a no-op logger is used.
func NewEngine(index *ftsindex.Index, cache *embedcache.Cache, embed embedder.Client, cfg *config.Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{index: index, cache: cache, embed: embed, cfg: cfg, logger: logger}
}

// Search implements §6's public operation: search(file_path, queries) ->
// list<list<Result>>. Duplicate queries are coalesced (first-occurrence
// order) before execution and the result is expanded back to line up
// with the original query list.
func (e *Engine) Search(ctx context.Context, filePath string, queries []string) ([][]types.Result, error) {
	order, unique := dedupeQueries(queries)

	perUnique := make([][]types.Result, len(unique))
	for i, q := range unique {
		res, err := e.searchOne(ctx, filePath, q)
		if err != nil {
			return nil, err
		}
		perUnique[i] = res
	}

	out := make([][]types.Result, len(queries))
	for i, idx := range order {
		out[i] = perUnique[idx]
	}
	return out, nil
}

func dedupeQueries(queries []string) (order []int, unique []string) {
	seen := make(map[string]int, len(queries))
	order = make([]int, len(queries))
	for i, q := range queries {
		idx, ok := seen[q]
		if !ok {
			idx = len(unique)
			seen[q] = idx
			unique = append(unique, q)
		}
		order[i] = idx
	}
	return order, unique
}

type docRow struct {
	id   int64
	text string
	hash []byte
}

// searchOne runs the full §4.9 pipeline for a single query against the
// file identified by filePath, which also serves as the file_uid passed
// to the full-text index filter (this engine's scope is one file).
func (e *Engine) searchOne(ctx context.Context, filePath, q string) ([]types.Result, error) {
	fileUID := filePath
	tun := e.cfg.Tunables

	keys := tokenizer.Keywords(q)
	mainQuery := ftsquery.Build(keys)

	rows, err := e.index.Search(ctx, fileUID, mainQuery, tun.KSQL)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("fts search", obslog.Stage("S1"), obslog.Query(q), zap.Int("rows", len(rows)))
	if len(rows) == 0 {
		return nil, nil
	}

	initialScores := make([]float64, len(rows))
	for i, r := range rows {
		initialScores[i] = 1.0 / (1.0 + r.RawScore)
	}

	queryTokenSet := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		queryTokenSet[k] = struct{}{}
	}

	if prf.ShouldExpand(q, initialScores) {
		before := len(rows)
		rows = e.tryExpand(ctx, fileUID, q, keys, rows, initialScores, queryTokenSet, tun.KSQL2)
		e.logger.Debug("prf expansion", obslog.Stage("PRF"), obslog.Query(q),
			zap.Int("rows_before", before), zap.Int("rows_after", len(rows)))
	}

	if len(rows) > tun.TopOAI {
		rows = rows[:tun.TopOAI]
	}
	docs := make([]docRow, len(rows))
	braw := make([]float64, len(rows))
	for i, r := range rows {
		docs[i] = docRow{id: r.ChunkID, text: r.Text, hash: r.TextHash}
		braw[i] = 1.0 / (1.0 + r.RawScore)
	}
	bnorm := fusion.MinMax(braw)

	if len(docs) > 1 {
		texts := docTexts(docs)
		keep := dedup.Filter(texts, bnorm, tun.JaccardThreshold)
		docs = reindexDocs(docs, keep)
		bnorm = reindexFloats(bnorm, keep)
		e.logger.Debug("dedup", obslog.Stage("DEDUP"), obslog.Query(q), zap.Int("kept", len(keep)))
	}

	if isNumericOnlyQuery(q) {
		return bm25OnlyResults(fileUID, filePath, q, docs, bnorm, tun.KFinal, types.RankStageS1), nil
	}

	budget := fusion.AdaptiveBudget(initialScores)
	rerankPool := int(budget)
	if rerankPool > len(docs) {
		rerankPool = len(docs)
	}
	docs = docs[:rerankPool]
	bnorm = bnorm[:rerankPool]

	sims, vectors, err := e.resolveEmbeddings(ctx, q, docs)
	if err != nil {
		if errors.Is(err, engineerr.ErrCacheTransient) {
			return nil, err
		}
		e.logger.Warn("embedding unavailable, degrading to bm25-only", obslog.Stage(string(types.RankStageS1EmbedFail)), obslog.Query(q), zap.Error(err))
		return bm25OnlyResults(fileUID, filePath, q, docs, bnorm, tun.KFinal, types.RankStageS1EmbedFail), nil
	}

	finalScores := e.fuse(docs, q, sims)
	e.logger.Debug("fusion", obslog.Stage("FUSION"), obslog.Query(q), zap.Int("candidates", len(docs)))
	return e.rank(fileUID, filePath, q, docs, finalScores, sims, vectors, tun.KFinal), nil
}

// tryExpand implements §4.5's single-shot PRF expansion with drift
// guard: it returns the expanded row set only if re-querying with the
// expanded expression succeeds and the top-10 overlap with the original
// rows is at least OverlapThreshold; otherwise it returns rows unchanged.
func (e *Engine) tryExpand(ctx context.Context, fileUID, q string, keys []string, rows []types.FTSRow, initialScores []float64, queryTokenSet map[string]struct{}, kSQL2 int) []types.FTSRow {
	prfDocs := make([]prf.ScoredDoc, len(rows))
	for i, r := range rows {
		prfDocs[i] = prf.ScoredDoc{ID: strconv.FormatInt(r.ChunkID, 10), Text: r.Text, Score: initialScores[i]}
	}
	expansionTerms := prf.ExtractTerms(prfDocs, queryTokenSet)
	if len(expansionTerms) == 0 {
		return rows
	}
	expandedQuery := prf.BuildExpandedQuery(keys, expansionTerms)
	if expandedQuery == "" {
		return rows
	}
	prfRows, err := e.index.Search(ctx, fileUID, expandedQuery, kSQL2)
	if err != nil || len(prfRows) == 0 {
		return rows
	}
	if prf.PassesDriftGuard(top10IDs(rows), top10IDs(prfRows)) {
		return prfRows
	}
	return rows
}

// resolveEmbeddings implements §4.9 steps 8-9: look up cached vectors for
// every candidate, embed the query (unless its vector is already in the
// query tier) plus whatever documents are missing in a single batched
// call, persist the new document vectors, and return
// the per-document cosine similarity to the query alongside the vector
// map used later by MMR.
func (e *Engine) resolveEmbeddings(ctx context.Context, q string, docs []docRow) ([]float64, map[string][]float32, error) {
	hashes := make([][]byte, len(docs))
	for i, d := range docs {
		hashes[i] = d.hash
	}
	found, _, err := e.cache.LookupDocs(ctx, hashes)
	if err != nil {
		return nil, nil, err
	}

	var missingDocs []docRow
	for _, d := range docs {
		if _, ok := found[string(d.hash)]; !ok {
			missingDocs = append(missingDocs, d)
		}
	}

	cachedQV, haveQV := e.cache.LookupQuery(q)
	needQuery := !haveQV

	embedInput := make([]string, 0, len(missingDocs)+1)
	if needQuery {
		embedInput = append(embedInput, q)
	}
	for _, d := range missingDocs {
		embedInput = append(embedInput, d.text)
	}

	vectors := make(map[string][]float32, len(docs))
	for h, v := range found {
		vectors[h] = v
	}

	qv := cachedQV
	if len(embedInput) > 0 {
		vecs, err := e.embed.Embed(ctx, embedInput)
		if err != nil {
			return nil, nil, err
		}

		start := 0
		if needQuery {
			qv = vecs[0]
			e.cache.PutQuery(q, qv)
			start = 1
		}

		if len(missingDocs) > 0 {
			ts := float64(time.Now().UnixNano()) / 1e9
			newHashes := make([][]byte, len(missingDocs))
			newVectors := make([][]float32, len(missingDocs))
			for i, d := range missingDocs {
				v := vecs[start+i]
				vectors[string(d.hash)] = v
				newHashes[i] = d.hash
				newVectors[i] = v
			}
			if err := e.cache.PutDocs(ctx, newHashes, newVectors, ts); err != nil {
				return nil, nil, err
			}
		}
	}

	sims := make([]float64, len(docs))
	for i, d := range docs {
		if v, ok := vectors[string(d.hash)]; ok && qv != nil {
			sims[i] = dot(v, qv)
		}
	}
	return sims, vectors, nil
}

// fuse implements §4.7: adaptive embedding weight, RRF merge of the
// (already BM25-ordered) lexical ranking against the embedding ranking,
// and the post-fusion co-mention boost.
func (e *Engine) fuse(docs []docRow, q string, sims []float64) []float64 {
	onorm := fusion.MinMax(sims)
	if !anyNonZero(sims) {
		onorm = make([]float64, len(sims))
	}
	embeddingWeight := fusion.EmbeddingWeight(sims)

	weighted := make([]float64, len(docs))
	for i := range docs {
		weighted[i] = onorm[i] * embeddingWeight
	}

	bm25Ranks := make([]int, len(docs))
	for i := range bm25Ranks {
		bm25Ranks[i] = i
	}
	embedRanks := fusion.RanksDescending(weighted)
	rrfScores := fusion.RRF(bm25Ranks, embedRanks)

	boost := fusion.ComputeBoostFeatures(docTexts(docs), q)

	finalScores := make([]float64, len(docs))
	for i := range docs {
		finalScores[i] = fusion.FinalScore(rrfScores[i], boost.Jaccard[i], boost.Phrase[i], boost.Digit[i])
	}
	return finalScores
}

// rank implements §4.9's final steps: sort by fused score, gate and
// apply MMR diversification, truncate to K_FINAL, and build Results.
func (e *Engine) rank(fileUID, filePath, q string, docs []docRow, finalScores, sims []float64, vectors map[string][]float32, kFinal int) []types.Result {
	orderIdx := make([]int, len(docs))
	for i := range orderIdx {
		orderIdx[i] = i
	}
	sort.SliceStable(orderIdx, func(a, b int) bool { return finalScores[orderIdx[a]] > finalScores[orderIdx[b]] })

	cands := make([]mmr.Candidate, len(orderIdx))
	for i, idx := range orderIdx {
		v, ok := vectors[string(docs[idx].hash)]
		cands[i] = mmr.Candidate{Relevance: sims[idx], Vector: v, HasVector: ok}
	}
	vectorCoverage := mmr.Coverage(cands)

	var finalOrder []int
	rankStage := types.RankStageS3
	if len(orderIdx) > kFinal && vectorCoverage >= mmr.CoverageGate {
		selected := mmr.Diversify(cands, kFinal)
		finalOrder = make([]int, len(selected))
		for i, s := range selected {
			finalOrder[i] = orderIdx[s]
		}
		rankStage = types.RankStageS3MMR
		e.logger.Debug("mmr diversify", obslog.Stage(string(types.RankStageS3MMR)), obslog.Query(q),
			zap.Float64("vector_coverage", vectorCoverage), zap.Int("selected", len(selected)))
	} else {
		n := kFinal
		if n > len(orderIdx) {
			n = len(orderIdx)
		}
		finalOrder = orderIdx[:n]
	}

	out := make([]types.Result, len(finalOrder))
	for i, idx := range finalOrder {
		out[i] = types.Result{
			FileUID:   fileUID,
			FilePath:  filePath,
			ChunkID:   docs[idx].id,
			Score:     finalScores[idx],
			Snippet:   snippet.Build(docs[idx].text, q),
			RankStage: rankStage,
		}
	}
	return out
}

func bm25OnlyResults(fileUID, filePath, q string, docs []docRow, bnorm []float64, kFinal int, stage types.RankStage) []types.Result {
	n := kFinal
	if n > len(docs) {
		n = len(docs)
	}
	out := make([]types.Result, n)
	for i := 0; i < n; i++ {
		out[i] = types.Result{
			FileUID:   fileUID,
			FilePath:  filePath,
			ChunkID:   docs[i].id,
			Score:     bnorm[i],
			Snippet:   snippet.Build(docs[i].text, q),
			RankStage: stage,
		}
	}
	return out
}

func docTexts(docs []docRow) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.text
	}
	return out
}

func reindexDocs(docs []docRow, keep []int) []docRow {
	out := make([]docRow, len(keep))
	for i, k := range keep {
		out[i] = docs[k]
	}
	return out
}

func reindexFloats(xs []float64, keep []int) []float64 {
	out := make([]float64, len(keep))
	for i, k := range keep {
		out[i] = xs[k]
	}
	return out
}

func top10IDs(rows []types.FTSRow) []string {
	n := len(rows)
	if n > 10 {
		n = 10
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = strconv.FormatInt(rows[i].ChunkID, 10)
	}
	return out
}

// isNumericOnlyQuery implements §4.9 step 6: the query has at least one
// 3-4 digit numeric token and no non-stopword word token.
func isNumericOnlyQuery(q string) bool {
	tokens := tokenizer.Tokens(q)
	hasNum := false
	for _, t := range tokens {
		if threeOrFourDigits.MatchString(t) {
			hasNum = true
			continue
		}
		if !tokenizer.IsStopword(t) {
			return false
		}
	}
	return hasNum
}

func dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return float64(sum)
}

func anyNonZero(xs []float64) bool {
	for _, x := range xs {
		if x != 0 {
			return true
		}
	}
	return false
}
