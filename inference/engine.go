// Package inference - Inference engine interface and implementations.
package inference

import (
	"context"
	"fmt"

	"github.com/visionml/go-detect/preprocess"
)

// Output is the raw tensor an engine returns for one inference call. Shape
// and Data are owned by the caller; engines never retain them.
type Output struct {
	Shape []int64
	Data  []float32
}

// Engine runs a preprocessed input tensor through a detection model. The
// engine is opaque to the rest of the pipeline: it exists to turn one input
// tensor into one raw output tensor.
type Engine interface {
	// Run executes the model on one input. The returned output is a fresh
	// copy and stays valid after the next call.
	Run(ctx context.Context, in *preprocess.Input) (*Output, error)
	// Close releases the engine's native resources. The engine is unusable
	// afterwards.
	Close() error
}

// EngineType is the inference backend used to execute a model.
type EngineType string

const (
	// EngineONNX executes models through the onnxruntime library.
	EngineONNX EngineType = "onnx"
	// EngineDNN executes models through OpenCV's DNN module.
	EngineDNN EngineType = "dnn"
)

// Engines is a list of all supported engines.
var Engines = []EngineType{EngineONNX, EngineDNN}

// EngineError wraps an opaque failure from an inference backend. Callers
// treat it as "this frame produced no detections"; it never poisons the
// pipeline state.
type EngineError struct {
	// Op names the engine operation that failed.
	Op string
	// Err is the underlying backend error, possibly nil for errors the
	// engine detects itself.
	Err error
}

func (e *EngineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("inference: %s failed", e.Op)
	}
	return fmt.Sprintf("inference: %s: %v", e.Op, e.Err)
}

// Unwrap exposes the backend error to errors.Is/As.
func (e *EngineError) Unwrap() error { return e.Err }

// engineErrorf builds an EngineError with a formatted operation name.
func engineErrorf(err error, format string, args ...interface{}) *EngineError {
	return &EngineError{Op: fmt.Sprintf(format, args...), Err: err}
}
