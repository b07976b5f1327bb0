// Package embedder wraps an external embedding provider with batching,
// bounded concurrency, time-bounded calls, and L2 normalization (§4.3).
// The provider itself — the network call that turns (model, dim, inputs)
// into vectors — is an external collaborator; this package only adapts it
// to the contract the retrieval engine depends on.
package embedder

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	batchSize          = 32
	maxConcurrentBatch = 4
)

// Client is the contract the orchestrator depends on: given a list of
// texts, return one L2-normalized vector per text, in input order, or a
// failure. ErrUnavailable (or any other error) means the whole call
// failed — the caller degrades to BM25-only.
type Client interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dim() int
	VersionKey() string
}

// ErrUnavailable is returned (or wrapped) when the embedding provider
// could not serve a request within its time bound.
var ErrUnavailable = fmt.Errorf("embedding provider unavailable")

// Provider is the minimal surface a concrete embedding backend must
// implement: a single, unbatched, un-timed call. Client wraps a Provider
// with the batching/concurrency/timeout/normalization policy from §4.3 so
// that backends (HTTP, ONNX, stub) stay simple.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// WrappedClient adapts a Provider to the Client contract.
type WrappedClient struct {
	provider   Provider
	model      string
	dim        int
	versionKey string
	timeout    time.Duration
}

// NewClient builds a Client around a Provider using the §4.3 policy.
// timeout corresponds to OAI_TIMEOUT (default 2s).
func NewClient(provider Provider, model string, dim int, versionKey string, timeout time.Duration) *WrappedClient {
	return &WrappedClient{
		provider:   provider,
		model:      model,
		dim:        dim,
		versionKey: versionKey,
		timeout:    timeout,
	}
}

func (c *WrappedClient) Model() string      { return c.model }
func (c *WrappedClient) Dim() int           { return c.dim }
func (c *WrappedClient) VersionKey() string { return c.versionKey }

// Embed implements §4.3: splits into batches of 32, issues up to 4
// concurrently, bounds each batch by timeout and the overall wait by
// 1.5*timeout, and L2-normalizes every returned row (epsilon 1e-9). Any
// batch failure or timeout fails the whole call.
func (c *WrappedClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if len(texts) <= batchSize {
		vecs, err := c.embedBatchBounded(ctx, texts)
		if err != nil {
			return nil, err
		}
		normalizeAll(vecs)
		return vecs, nil
	}

	var batches [][]string
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
	}

	outerCtx, cancel := context.WithTimeout(ctx, time.Duration(float64(c.timeout)*1.5))
	defer cancel()

	g, gctx := errgroup.WithContext(outerCtx)
	g.SetLimit(maxConcurrentBatch)

	results := make([][][]float32, len(batches))
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			vecs, err := c.embedBatchBounded(gctx, batch)
			if err != nil {
				return err
			}
			results[i] = vecs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var out [][]float32
	for _, r := range results {
		out = append(out, r...)
	}
	normalizeAll(out)
	return out, nil
}

func (c *WrappedClient) embedBatchBounded(ctx context.Context, batch []string) ([][]float32, error) {
	bctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		vecs [][]float32
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		vecs, err := c.provider.EmbedBatch(bctx, batch)
		ch <- result{vecs, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, r.err)
		}
		return r.vecs, nil
	case <-bctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, bctx.Err())
	}
}

func normalizeAll(vecs [][]float32) {
	for _, v := range vecs {
		normalize(v)
	}
}

func normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq) + 1e-9
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

// ContentHash returns the 128-bit-truncated sha256 digest of text used as
// the embedding cache key (§3's content_hash).
func ContentHash(text string) []byte {
	sum := sha256.Sum256([]byte(text))
	return sum[:16]
}
