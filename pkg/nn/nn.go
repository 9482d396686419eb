package nn

import (
	"fmt"
	"image/color"
)

// Package nn is the neural network interface layer shared by the detection pipeline.
// To load a model, use the nnload package.

const DefaultProbabilityThreshold = 0.25
const DefaultNmsIouThreshold = 0.4

// NN object detection parameters
type DetectionParams struct {
	ProbabilityThreshold float32 // Value between 0 and 1. Lower values will find more objects. Zero value will use the default.
	NmsIouThreshold      float32 // Value between 0 and 1. Lower values will merge more objects together into one. Zero value will use the default.
}

// Create a default DetectionParams object
func NewDetectionParams() *DetectionParams {
	return &DetectionParams{
		ProbabilityThreshold: DefaultProbabilityThreshold,
		NmsIouThreshold:      DefaultNmsIouThreshold,
	}
}

// Returns a copy of p, with zero values replaced by defaults. p may be nil.
func (p *DetectionParams) WithDefaults() DetectionParams {
	out := *NewDetectionParams()
	if p != nil {
		if p.ProbabilityThreshold != 0 {
			out.ProbabilityThreshold = p.ProbabilityThreshold
		}
		if p.NmsIouThreshold != 0 {
			out.NmsIouThreshold = p.NmsIouThreshold
		}
	}
	return out
}

// Tensor is a dense float32 array in row-major order.
// The input to our models is always [1, 3, height, width].
type Tensor struct {
	Shape []int
	Data  []float32
}

// Create a zero-filled tensor of the given shape
func NewTensor(shape ...int) *Tensor {
	return &Tensor{
		Shape: append([]int(nil), shape...),
		Data:  make([]float32, ShapeSize(shape)),
	}
}

// Number of elements in a tensor of the given shape
func ShapeSize(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.Shape)
}

// Session is a loaded network, ready to run inference.
type Session interface {
	// Close releases the session (you MUST call this when finished, because it's a C object underneath)
	Close()

	// Run executes the network on the input tensor and returns the first output tensor.
	// The returned tensor is owned by the caller.
	Run(input *Tensor) (*Tensor, error)
}

// Detection is an object that a neural network has found in an image.
// The box is in the coordinate space of the model's input resolution.
type Detection struct {
	Class      int     `json:"class"`
	Confidence float32 `json:"confidence"`
	Box        Box     `json:"box"`
}

// RenderedDetection is a Detection that has been scaled onto a drawing surface
type RenderedDetection struct {
	Detection
	Label string     `json:"label"`
	Color color.RGBA `json:"-"`
}

// ClassIDSet is the distinct set of classes found in one frame.
// Order is first-seen, but callers must not depend on it.
type ClassIDSet []int

// Build the distinct set of classes from a list of detections
func ClassIDs(dets []Detection) ClassIDSet {
	seen := map[int]bool{}
	ids := ClassIDSet{}
	for _, d := range dets {
		if !seen[d.Class] {
			seen[d.Class] = true
			ids = append(ids, d.Class)
		}
	}
	return ids
}

func (s ClassIDSet) Contains(class int) bool {
	for _, c := range s {
		if c == class {
			return true
		}
	}
	return false
}
