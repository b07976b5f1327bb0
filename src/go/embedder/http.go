package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HTTPProvider calls an external embedding service over HTTP, per §6's
// embedding service contract: given (model, dim, inputs[]), returns one
// vector per input in the same order. The service's own implementation is
// an external collaborator; this is just the observable client contract.
type HTTPProvider struct {
	endpoint string
	model    string
	dim      int
	apiKey   string
	client   *http.Client
}

// NewHTTPProvider builds a provider posting to endpoint with the given
// model/dim and bearer apiKey.
func NewHTTPProvider(endpoint, model string, dim int, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		endpoint: endpoint,
		model:    model,
		dim:      dim,
		apiKey:   apiKey,
		client:   &http.Client{},
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Dim   int      `json:"dimensions"`
	Input []string `json:"input"`
}

type embedResponseItem struct {
	Embedding []float32 `json:"embedding"`
}

type embedResponse struct {
	Data []embedResponseItem `json:"data"`
}

func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: p.model, Dim: p.dim, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed request status %d", resp.StatusCode)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("embed response length mismatch: got %d want %d", len(out.Data), len(texts))
	}

	vecs := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}
