package inference

import (
	"context"
	"sync"

	"gocv.io/x/gocv"

	"github.com/visionml/go-detect/preprocess"
)

// DNNEngine executes ONNX models through OpenCV's DNN module. It is the
// fallback backend for platforms without an onnxruntime shared library.
type DNNEngine struct {
	net        gocv.Net
	outputName string
	mu         sync.Mutex
	closed     bool
}

// DNNConfig configures an OpenCV DNN engine.
type DNNConfig struct {
	// ModelPath is the path to the .onnx model file.
	ModelPath string
	// OutputName is the model's output layer name; empty runs the default
	// output layer.
	OutputName string
	// PreferCUDA routes execution to a CUDA DNN backend when OpenCV was
	// built with it.
	PreferCUDA bool
}

// NewDNNEngine loads the model into an OpenCV DNN network.
func NewDNNEngine(cfg DNNConfig) (*DNNEngine, error) {
	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		return nil, engineErrorf(nil, "read network from %s", cfg.ModelPath)
	}

	if cfg.PreferCUDA {
		if err := net.SetPreferableBackend(gocv.NetBackendCUDA); err != nil {
			return nil, engineErrorf(err, "set CUDA backend")
		}
		if err := net.SetPreferableTarget(gocv.NetTargetCUDA); err != nil {
			return nil, engineErrorf(err, "set CUDA target")
		}
	}

	return &DNNEngine{net: net, outputName: cfg.OutputName}, nil
}

// Run executes one inference call. OpenCV blobs are channel-first float32,
// so the input must be NCHW Float32; other descriptors fail with an
// EngineError before touching the network.
func (e *DNNEngine) Run(ctx context.Context, in *preprocess.Input) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, engineErrorf(err, "run")
	}
	if in.Desc.Layout != preprocess.NCHW || in.Desc.DType != preprocess.Float32 {
		return nil, engineErrorf(nil, "run %s/%s input, DNN backend needs NCHW/float32",
			in.Desc.Layout, in.Desc.DType)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, engineErrorf(nil, "run on closed engine")
	}

	shape := in.Desc.Shape()
	sizes := make([]int, len(shape))
	for i, s := range shape {
		sizes[i] = int(s)
	}

	blob := gocv.NewMatWithSizes(sizes, gocv.MatTypeCV32F)
	defer blob.Close()

	blobData, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, engineErrorf(err, "map blob data")
	}
	copy(blobData, in.Floats)

	e.net.SetInput(blob, "")

	result := e.net.Forward(e.outputName)
	defer result.Close()
	if result.Empty() {
		return nil, engineErrorf(nil, "forward pass produced no output")
	}

	resultData, err := result.DataPtrFloat32()
	if err != nil {
		return nil, engineErrorf(err, "map output data")
	}

	resultSizes := result.Size()
	out := &Output{
		Shape: make([]int64, len(resultSizes)),
		Data:  append([]float32(nil), resultData...),
	}
	for i, s := range resultSizes {
		out.Shape[i] = int64(s)
	}
	return out, nil
}

// Close releases the network. Safe to call more than once.
func (e *DNNEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.net.Close()
}
