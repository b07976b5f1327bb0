//go:build !onnx
// +build !onnx

package embedder

// NewONNXProvider is unavailable without the onnx build tag; callers that
// request it fall back to the deterministic stub provider so the engine
// still has a usable embedding backend.
func NewONNXProvider(modelsDir string, targetDim int) Provider {
	return NewStubProvider(targetDim)
}
