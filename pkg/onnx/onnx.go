// Package onnx runs models through onnxruntime.
package onnx

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/pulseapp/companion/pkg/nn"
	ort "github.com/yalue/onnxruntime_go"
)

var initLock sync.Mutex

// Initialize loads the onnxruntime shared library. It is safe to call this more than once.
// If libraryPath is empty, the platform default name is used.
func Initialize(libraryPath string) error {
	initLock.Lock()
	defer initLock.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("Failed to initialize onnxruntime: %w", err)
	}
	return nil
}

// Shutdown releases the onnxruntime environment. All sessions must be closed first.
func Shutdown() {
	initLock.Lock()
	defer initLock.Unlock()
	if ort.IsInitialized() {
		ort.DestroyEnvironment()
	}
}

// Session is an nn.Session backed by an onnxruntime session with one input and one output.
type Session struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
}

// NewSession loads an ONNX model from disk. Initialize must have been called.
func NewSession(modelPath string) (*Session, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("Failed to read model inputs/outputs: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, errors.New("Model has no inputs or outputs")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()
	// Frames are processed one at a time, so let a single inference use all cores
	if err := options.SetIntraOpNumThreads(runtime.NumCPU()); err != nil {
		return nil, err
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, err
	}

	s, err := ort.NewDynamicAdvancedSession(modelPath, []string{inputs[0].Name}, []string{outputs[0].Name}, options)
	if err != nil {
		return nil, err
	}
	return &Session{
		session:    s,
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
	}, nil
}

func (s *Session) Close() {
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
}

// Run executes the model. The output tensor is allocated by onnxruntime, and copied into Go memory.
func (s *Session) Run(input *nn.Tensor) (*nn.Tensor, error) {
	if s.session == nil {
		return nil, errors.New("Session is closed")
	}
	shape := make([]int64, len(input.Shape))
	for i, d := range input.Shape {
		shape[i] = int64(d)
	}
	in, err := ort.NewTensor(ort.NewShape(shape...), input.Data)
	if err != nil {
		return nil, err
	}
	defer in.Destroy()

	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{in}, outputs); err != nil {
		return nil, err
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("Output '%v' is not a float32 tensor", s.outputName)
	}
	result := &nn.Tensor{}
	for _, d := range out.GetShape() {
		result.Shape = append(result.Shape, int(d))
	}
	result.Data = append([]float32(nil), out.GetData()...)
	return result, nil
}
