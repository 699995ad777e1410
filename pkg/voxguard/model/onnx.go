package model

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXConfig locates the model artifact and the runtime library.
type ONNXConfig struct {
	ModelPath string
	// LibraryPath is the onnxruntime shared library. Empty uses the
	// runtime's platform default.
	LibraryPath string
	// InputName and OutputName are discovered from the model when empty.
	InputName  string
	OutputName string
	// Expected input shape; negative entries are dynamic. Empty skips
	// the load-time check.
	ExpectShape []int64
}

var runtimeMu sync.Mutex

// initRuntime starts the process-wide onnxruntime environment once.
func initRuntime(libPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return nil
}

// ShutdownRuntime tears down the onnxruntime environment if it was started.
func ShutdownRuntime() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// ONNXClassifier runs a float32 ONNX model with one input and one output.
// Each Infer call allocates its own tensors, so a single session serves
// concurrent requests.
type ONNXClassifier struct {
	session     *ort.DynamicAdvancedSession
	inputName   string
	outputName  string
	inputShape  []int64
	outputShape []int64
}

func NewONNXClassifier(cfg ONNXConfig) (*ONNXClassifier, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}
	if err := initRuntime(cfg.LibraryPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("reading model signature: %w", err)
	}
	in, err := pickInfo(inputs, cfg.InputName, "input")
	if err != nil {
		return nil, err
	}
	out, err := pickInfo(outputs, cfg.OutputName, "output")
	if err != nil {
		return nil, err
	}
	if in.DataType != ort.TensorElementDataTypeFloat {
		return nil, fmt.Errorf("model input %q is %v, want float32", in.Name, in.DataType)
	}

	inShape := []int64(in.Dimensions)
	if len(cfg.ExpectShape) > 0 {
		want := Tensor{Shape: concrete(cfg.ExpectShape)}
		want.Data = make([]float32, want.Elements())
		if err := CheckShape(want, inShape); err != nil {
			return nil, fmt.Errorf("model %s: %w", cfg.ModelPath, err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{in.Name},
		[]string{out.Name},
		nil)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	return &ONNXClassifier{
		session:     session,
		inputName:   in.Name,
		outputName:  out.Name,
		inputShape:  inShape,
		outputShape: []int64(out.Dimensions),
	}, nil
}

func pickInfo(infos []ort.InputOutputInfo, name, kind string) (ort.InputOutputInfo, error) {
	if name == "" {
		if len(infos) != 1 {
			return ort.InputOutputInfo{}, fmt.Errorf("model has %d %ss, name one explicitly", len(infos), kind)
		}
		return infos[0], nil
	}
	for _, info := range infos {
		if info.Name == name {
			return info, nil
		}
	}
	return ort.InputOutputInfo{}, fmt.Errorf("model has no %s named %q", kind, name)
}

// concrete replaces dynamic dimensions with 1.
func concrete(shape []int64) []int64 {
	out := make([]int64, len(shape))
	for i, d := range shape {
		if d < 0 {
			d = 1
		}
		out[i] = d
	}
	return out
}

func (c *ONNXClassifier) InputShape() []int64 {
	return append([]int64(nil), c.inputShape...)
}

func (c *ONNXClassifier) Infer(ctx context.Context, in Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := CheckShape(in, c.inputShape); err != nil {
		return nil, err
	}

	input, err := ort.NewTensor(ort.NewShape(in.Shape...), in.Data)
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	defer input.Destroy()

	outShape := concrete(c.outputShape)
	if len(outShape) > 0 {
		outShape[0] = in.Shape[0]
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(outShape...))
	if err != nil {
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	defer output.Destroy()

	if err := c.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("running %s: %w", c.inputName, err)
	}

	data := output.GetData()
	if len(data) == 0 {
		return nil, ErrNoOutput
	}
	return append([]float32(nil), data...), nil
}

func (c *ONNXClassifier) Close() error {
	if c.session == nil {
		return nil
	}
	err := c.session.Destroy()
	c.session = nil
	return err
}

// ONNXLoader returns a LoaderFunc for cfg.
func ONNXLoader(cfg ONNXConfig) LoaderFunc {
	return func(ctx context.Context) (Classifier, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := NewONNXClassifier(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
