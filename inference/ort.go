package inference

import (
	"context"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/visionml/go-detect/preprocess"
)

// ORTBackend selects the onnxruntime execution provider.
type ORTBackend string

const (
	// ORTBackendCPU runs on the default CPU execution provider.
	ORTBackendCPU ORTBackend = "cpu"
	// ORTBackendCUDA runs on NVIDIA GPUs through the CUDA provider.
	ORTBackendCUDA ORTBackend = "cuda"
	// ORTBackendCoreML runs on Apple silicon through the CoreML provider.
	ORTBackendCoreML ORTBackend = "coreml"
	// ORTBackendOpenVINO runs on Intel hardware through OpenVINO.
	ORTBackendOpenVINO ORTBackend = "openvino"
)

// ORTConfig configures an onnxruntime engine.
type ORTConfig struct {
	// ModelPath is the path to the .onnx model file.
	ModelPath string
	// SharedLibraryPath points at the onnxruntime shared library. Empty
	// uses the library's platform default.
	SharedLibraryPath string
	// InputName and OutputName are the model's tensor names. YOLO-family
	// exports use "images" and "output0".
	InputName  string
	OutputName string
	// Backend selects the execution provider; defaults to CPU.
	Backend ORTBackend
	// IntraOpThreads and InterOpThreads bound onnxruntime's thread pools.
	// Zero keeps the runtime default.
	IntraOpThreads int
	InterOpThreads int
}

var ortInitOnce sync.Once
var ortInitErr error

// initializeRuntime sets up the process-wide onnxruntime environment. The
// environment is global in the C runtime, so it is initialized exactly once.
func initializeRuntime(sharedLibraryPath string) error {
	ortInitOnce.Do(func() {
		if sharedLibraryPath != "" {
			ort.SetSharedLibraryPath(sharedLibraryPath)
		}
		if !ort.IsInitialized() {
			ortInitErr = ort.InitializeEnvironment()
		}
	})
	return ortInitErr
}

// ORTEngine executes ONNX models through onnxruntime with a dynamic session,
// so one engine serves models with any input resolution.
type ORTEngine struct {
	session *ort.DynamicAdvancedSession
	mu      sync.Mutex
}

// NewORTEngine initializes the onnxruntime environment (once per process)
// and opens a session for the configured model.
func NewORTEngine(cfg ORTConfig) (*ORTEngine, error) {
	if err := initializeRuntime(cfg.SharedLibraryPath); err != nil {
		return nil, engineErrorf(err, "initialize onnxruntime")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, engineErrorf(err, "create session options")
	}
	defer options.Destroy()

	if cfg.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.IntraOpThreads); err != nil {
			return nil, engineErrorf(err, "set intra-op threads")
		}
	}
	if cfg.InterOpThreads > 0 {
		if err := options.SetInterOpNumThreads(cfg.InterOpThreads); err != nil {
			return nil, engineErrorf(err, "set inter-op threads")
		}
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return nil, engineErrorf(err, "set graph optimization level")
	}

	switch cfg.Backend {
	case ORTBackendCUDA:
		cudaOptions, cudaErr := ort.NewCUDAProviderOptions()
		if cudaErr != nil {
			return nil, engineErrorf(cudaErr, "create CUDA provider options")
		}
		defer cudaOptions.Destroy()
		if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			return nil, engineErrorf(err, "append CUDA provider")
		}
	case ORTBackendCoreML:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			return nil, engineErrorf(err, "append CoreML provider")
		}
	case ORTBackendOpenVINO:
		if err := options.AppendExecutionProviderOpenVINO(map[string]string{}); err != nil {
			return nil, engineErrorf(err, "append OpenVINO provider")
		}
	}

	inputName := cfg.InputName
	if inputName == "" {
		inputName = "images"
	}
	outputName := cfg.OutputName
	if outputName == "" {
		outputName = "output0"
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{inputName},
		[]string{outputName},
		options,
	)
	if err != nil {
		return nil, engineErrorf(err, "open session for %s", cfg.ModelPath)
	}

	return &ORTEngine{session: session}, nil
}

// Run executes one inference call. The session handles one call at a time;
// concurrent callers serialize on the engine's mutex.
func (e *ORTEngine) Run(ctx context.Context, in *preprocess.Input) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, engineErrorf(err, "run")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil, engineErrorf(nil, "run on closed engine")
	}

	shape := ort.NewShape(in.Desc.Shape()...)
	var inputValue ort.Value
	var err error
	if in.Desc.DType == preprocess.Uint8 {
		inputValue, err = ort.NewTensor(shape, in.Bytes)
	} else {
		inputValue, err = ort.NewTensor(shape, in.Floats)
	}
	if err != nil {
		return nil, engineErrorf(err, "create input tensor")
	}
	defer inputValue.Destroy()

	// A nil output slot makes onnxruntime allocate the output tensor.
	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{inputValue}, outputs); err != nil {
		return nil, engineErrorf(err, "run session")
	}
	defer outputs[0].Destroy()

	outputTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, engineErrorf(nil, "model produced a non-float32 output")
	}

	outputShape := outputTensor.GetShape()
	out := &Output{
		Shape: append([]int64(nil), outputShape...),
		Data:  append([]float32(nil), outputTensor.GetData()...),
	}
	return out, nil
}

// Close destroys the underlying session. Safe to call more than once.
func (e *ORTEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	return nil
}
