package providers

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// DefaultInputSize is used when the model declares a dynamic spatial input.
const DefaultInputSize = 640

// Session represents a single-input, single-output model session from the onnxruntime.
type Session struct {
	// Path is the model file the session was created from.
	Path string
	// Backend is the execution provider the session is bound to.
	Backend ProviderBackend
	// Input describes the model input.
	Input ort.InputOutputInfo
	// Output describes the model output.
	Output ort.InputOutputInfo

	session *ort.DynamicAdvancedSession
}

// NewSession creates a session for a single-file ONNX export bound to the given provider.
//
// Order of operations:
//  1. Environment setup: the process-wide runtime must be initialized.
//  2. Model inspection: input/output names and shapes are read from the file.
//  3. Session options: the execution provider is appended.
//  4. Session creation: the model is loaded and bound to the provider.
//
// Arguments:
//   - path: The path to the ONNX model file.
//   - libPath: The shared library path.
//   - options: The execution provider options.
//
// Returns:
//   - *Session: The session.
//   - error: An error if the session creation fails.
func NewSession(path, libPath string, options ProviderOptions) (*Session, error) {
	if err := InitializeEnvironment(libPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("error reading model io info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) == 0 {
		return nil, fmt.Errorf("unexpected model io (in:%d out:%d)", len(inputs), len(outputs))
	}
	if len(inputs[0].Dimensions) != 4 {
		return nil, fmt.Errorf("expected 4D input tensor, got %dD", len(inputs[0].Dimensions))
	}

	opts, err := NewSessionOptions(options)
	if err != nil {
		return nil, err
	}
	defer opts.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		path,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("error creating ORT session: %w", err)
	}

	return &Session{
		Path:    path,
		Backend: options.Backend(),
		Input:   inputs[0],
		Output:  outputs[0],
		session: session,
	}, nil
}

// InputSize returns the square spatial input edge declared by the model.
func (s *Session) InputSize() int {
	dims := s.Input.Dimensions
	if len(dims) == 4 && dims[2] > 0 && dims[2] == dims[3] {
		return int(dims[2])
	}
	return DefaultInputSize
}

// Run executes the model on a prepared CHW input.
//
// Arguments:
//   - data: The input of shape [1, 3, size, size] flattened.
//
// Returns:
//   - []float32: A copy of the output data.
//   - []int64: The output shape.
//   - error: An error if inference fails.
func (s *Session) Run(data []float32) ([]float32, []int64, error) {
	if s.session == nil {
		return nil, nil, fmt.Errorf("session is closed")
	}

	size := int64(s.InputSize())
	input, err := ort.NewTensor(ort.NewShape(1, 3, size, size), data)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, nil, fmt.Errorf("error running ORT session: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	t, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("unexpected output type %T", outputs[0])
	}

	out := make([]float32, len(t.GetData()))
	copy(out, t.GetData())
	shape := make([]int64, len(t.GetShape()))
	copy(shape, t.GetShape())

	return out, shape, nil
}

// Close releases the native session.
func (s *Session) Close() error {
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	if err != nil {
		return fmt.Errorf("error destroying ORT session: %w", err)
	}
	return nil
}

// ReadCustomMetadata returns a custom metadata value stored in the model file.
//
// Arguments:
//   - path: The path to the ONNX model file.
//   - key: The metadata key, e.g. "names".
//
// Returns:
//   - string: The value.
//   - bool: Whether the key was present.
//   - error: An error if the metadata cannot be read.
func ReadCustomMetadata(path, key string) (string, bool, error) {
	meta, err := ort.GetModelMetadata(path)
	if err != nil {
		return "", false, fmt.Errorf("error reading model metadata: %w", err)
	}
	defer meta.Destroy()

	value, ok, err := meta.LookupCustomMetadataMap(key)
	if err != nil {
		return "", false, fmt.Errorf("error reading metadata key %q: %w", key, err)
	}
	return value, ok, nil
}
