package detection

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	runtimeOnce sync.Once
	runtimeErr  error
)

// ONNXOptions configures how a CRAFT graph is loaded.
type ONNXOptions struct {
	// LibraryPath points at the onnxruntime shared library. Empty uses the
	// platform default lookup.
	LibraryPath string
	InputName   string
	OutputName  string
	// Threads limits intra-op parallelism; 0 leaves the runtime default.
	Threads int
	CUDA    bool
}

// ONNXModel runs an exported CRAFT network. The graph takes a
// [1, 3, H, W] float tensor and returns [1, H/2, W/2, 2], channel 0 being
// the region score and channel 1 the affinity score.
type ONNXModel struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
}

// initRuntime loads the shared library once per process.
func initRuntime(libraryPath string) error {
	runtimeOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		runtimeErr = ort.InitializeEnvironment()
	})
	return runtimeErr
}

// LoadONNX opens the model at path.
func LoadONNX(path string, opts ONNXOptions) (*ONNXModel, error) {
	if err := initRuntime(opts.LibraryPath); err != nil {
		return nil, errors.Join(errors.New("failed to initialize onnxruntime"), err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Join(errors.New("failed to create session options"), err)
	}
	defer options.Destroy()

	if opts.Threads > 0 {
		if err := options.SetIntraOpNumThreads(opts.Threads); err != nil {
			return nil, errors.Join(errors.New("failed to set thread count"), err)
		}
	}

	if opts.CUDA {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, errors.Join(errors.New("failed to create CUDA options"), err)
		}
		defer cudaOptions.Destroy()
		if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			return nil, errors.Join(errors.New("failed to enable CUDA"), err)
		}
	}

	inputName, outputName := opts.InputName, opts.OutputName
	if inputName == "" {
		inputName = "input"
	}
	if outputName == "" {
		outputName = "output"
	}

	session, err := ort.NewDynamicAdvancedSession(path, []string{inputName}, []string{outputName}, options)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to load model %s", path), err)
	}
	return &ONNXModel{session: session}, nil
}

// Forward runs one inference. Calls are serialized on the session.
func (m *ONNXModel) Forward(ctx context.Context, in *Tensor) (*ScoreMaps, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(in.Data) != 3*in.Width*in.Height {
		return nil, fmt.Errorf("input tensor has %d values, want %d", len(in.Data), 3*in.Width*in.Height)
	}

	input, err := ort.NewTensor(ort.NewShape(1, 3, int64(in.Height), int64(in.Width)), in.Data)
	if err != nil {
		return nil, errors.Join(errors.New("failed to create input tensor"), err)
	}
	defer input.Destroy()

	mw, mh := in.Width/2, in.Height/2
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(mh), int64(mw), 2))
	if err != nil {
		return nil, errors.Join(errors.New("failed to create output tensor"), err)
	}
	defer output.Destroy()

	m.mu.Lock()
	err = m.session.Run([]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output})
	m.mu.Unlock()
	if err != nil {
		return nil, errors.Join(errors.New("inference failed"), err)
	}

	return splitChannels(output.GetData(), mw, mh), nil
}

// Close releases the session.
func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}

// splitChannels de-interleaves an HxWx2 buffer into two maps.
func splitChannels(data []float32, w, h int) *ScoreMaps {
	maps := &ScoreMaps{
		Region:   make([]float32, w*h),
		Affinity: make([]float32, w*h),
		Width:    w,
		Height:   h,
	}
	for i := 0; i < w*h; i++ {
		maps.Region[i] = data[2*i]
		maps.Affinity[i] = data[2*i+1]
	}
	return maps
}

// ONNXLoader returns a Loader that opens checkpoints with onnxruntime.
// CUDA follows the detection parameters.
func ONNXLoader(opts ONNXOptions) Loader {
	return func(checkpoint string, p Params) (Network, error) {
		o := opts
		o.CUDA = o.CUDA || p.CUDA
		m, err := LoadONNX(checkpoint, o)
		if err != nil {
			return nil, err
		}
		return NewDetector(m, p), nil
	}
}
