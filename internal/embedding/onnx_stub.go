//go:build !cgo

package embedding

import (
	"errors"
)

// ONNXEmbedder is unavailable without CGO.
type ONNXEmbedder struct {
	Embedder
}

// NewONNXEmbedder returns an error when built without CGO.
func NewONNXEmbedder(_ ONNXConfig) (*ONNXEmbedder, error) {
	return nil, errors.New("onnx embedder requires CGO; build with CGO_ENABLED=1 and onnxruntime installed")
}
