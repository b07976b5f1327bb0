//go:build onnx
// +build onnx

package embedder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	onnxruntime "github.com/yalue/onnxruntime_go"
)

// ONNXProvider implements Provider using a local sentence-transformer
// ONNX model, for on-box embedding generation without a network round
// trip to the embedding service. It fulfils the same (model, dim,
// inputs[]) -> vectors contract as an HTTP-backed provider (§6).
type ONNXProvider struct {
	mu           sync.Mutex
	session      *onnxruntime.Session
	tokenizer    *simpleTokenizer
	modelPath    string
	maxSeqLength int
	nativeDim    int
	targetDim    int
	warmedUp     bool
}

const (
	onnxModelURL         = "https://huggingface.co/sentence-transformers/all-MiniLM-L6-v2/resolve/main/onnx/model.onnx"
	onnxDefaultSeqLen    = 512
	onnxNativeDimension  = 384
)

// NewONNXProvider constructs a provider backed by all-MiniLM-L6-v2,
// padding its native 384-dim output to targetDim if targetDim > 384.
func NewONNXProvider(modelsDir string, targetDim int) *ONNXProvider {
	if targetDim < onnxNativeDimension {
		targetDim = onnxNativeDimension
	}
	os.MkdirAll(modelsDir, 0o755)
	return &ONNXProvider{
		modelPath:    filepath.Join(modelsDir, "all-MiniLM-L6-v2.onnx"),
		maxSeqLength: onnxDefaultSeqLen,
		nativeDim:    onnxNativeDimension,
		targetDim:    targetDim,
	}
}

func (p *ONNXProvider) warmup(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.warmedUp {
		return nil
	}
	if err := p.ensureModelExists(ctx); err != nil {
		return fmt.Errorf("ensure onnx model: %w", err)
	}
	if err := onnxruntime.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnx runtime: %w", err)
	}
	session, err := onnxruntime.NewSession(p.modelPath, onnxruntime.NewSessionOptions())
	if err != nil {
		return fmt.Errorf("create onnx session: %w", err)
	}
	p.session = session
	p.tokenizer = newSimpleTokenizer(p.maxSeqLength)
	p.warmedUp = true
	return nil
}

func (p *ONNXProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.warmup(ctx); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := p.embedOne(text)
		if err != nil {
			return nil, fmt.Errorf("onnx embed %q: %w", truncate(text, 40), err)
		}
		out[i] = v
	}
	return out, nil
}

func (p *ONNXProvider) embedOne(text string) ([]float32, error) {
	tokens := p.tokenizer.Tokenize(text)
	inputIDs, attentionMask := p.tokenizer.ConvertToTensors(tokens, p.maxSeqLength)

	inputIDsTensor, err := onnxruntime.NewTensor(onnxruntime.NewShape(1, int64(len(inputIDs))), inputIDs)
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer inputIDsTensor.Destroy()

	attentionTensor, err := onnxruntime.NewTensor(onnxruntime.NewShape(1, int64(len(attentionMask))), attentionMask)
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer attentionTensor.Destroy()

	outputs, err := p.session.Run([]onnxruntime.Value{inputIDsTensor, attentionTensor})
	if err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			o.Destroy()
		}
	}()
	if len(outputs) == 0 {
		return nil, fmt.Errorf("no outputs from onnx model")
	}

	data, ok := outputs[0].GetData().([]float32)
	if !ok {
		return nil, fmt.Errorf("unexpected onnx output type %T", outputs[0].GetData())
	}

	pooled := meanPool(data, attentionMask)
	return padToDim(pooled, p.targetDim), nil
}

func (p *ONNXProvider) ensureModelExists(ctx context.Context) error {
	if _, err := os.Stat(p.modelPath); err == nil {
		return nil
	}
	client := &http.Client{Timeout: 5 * time.Minute}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, onnxModelURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download onnx model: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download onnx model: status %d", resp.StatusCode)
	}
	out, err := os.Create(p.modelPath)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, resp.Body)
	return err
}

func meanPool(embeddings []float32, attentionMask []int64) []float32 {
	seqLen := len(attentionMask)
	if seqLen == 0 {
		return nil
	}
	dim := len(embeddings) / seqLen
	pooled := make([]float32, dim)
	valid := 0
	for i := 0; i < seqLen; i++ {
		if attentionMask[i] == 1 {
			for j := 0; j < dim; j++ {
				pooled[j] += embeddings[i*dim+j]
			}
			valid++
		}
	}
	if valid > 0 {
		for j := range pooled {
			pooled[j] /= float32(valid)
		}
	}
	return pooled
}

func padToDim(v []float32, dim int) []float32 {
	if len(v) >= dim {
		return v[:dim]
	}
	out := make([]float32, dim)
	copy(out, v)
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// simpleTokenizer is a minimal BERT-style word tokenizer sufficient to
// drive the ONNX model's input tensors without pulling in a full
// tokenizers implementation.
type simpleTokenizer struct {
	vocab     map[string]int
	wordRegex *regexp.Regexp
	maxLength int
}

func newSimpleTokenizer(maxLength int) *simpleTokenizer {
	vocab := map[string]int{"[PAD]": 0, "[UNK]": 100, "[CLS]": 101, "[SEP]": 102}
	id := 103
	for _, t := range []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for", "from", "has", "he",
		"in", "is", "it", "its", "of", "on", "that", "the", "to", "was", "will", "with",
	} {
		vocab[t] = id
		id++
	}
	return &simpleTokenizer{
		vocab:     vocab,
		wordRegex: regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*|[0-9]+|\S`),
		maxLength: maxLength,
	}
}

func (t *simpleTokenizer) Tokenize(text string) []string {
	return t.wordRegex.FindAllString(text, -1)
}

func (t *simpleTokenizer) ConvertToTensors(tokens []string, maxLength int) ([]int64, []int64) {
	ids := make([]int64, 0, maxLength)
	ids = append(ids, int64(t.vocab["[CLS]"]))
	for _, tok := range tokens {
		if len(ids) >= maxLength-1 {
			break
		}
		id, ok := t.vocab[tok]
		if !ok {
			id = t.vocab["[UNK]"]
		}
		ids = append(ids, int64(id))
	}
	ids = append(ids, int64(t.vocab["[SEP]"]))

	mask := make([]int64, len(ids))
	for i := range mask {
		mask[i] = 1
	}
	for len(ids) < maxLength {
		ids = append(ids, int64(t.vocab["[PAD]"]))
		mask = append(mask, 0)
	}
	return ids, mask
}
