package nn

import (
	"fmt"
)

// Family identifies the output tensor layout of a model, which determines how it must be decoded.
type Family int

const (
	FamilyV11 Family = iota // [1, 4+numClasses, numAnchors]. Center/size boxes. Needs NMS.
	FamilyV10               // [1, N, 6] of (x0,y0,x1,y1,score,class), sorted by score. NMS is built in.
	FamilyV7                // [N, 7] of (batch,x0,y0,x1,y1,class,score). NMS is built in.
)

func (f Family) String() string {
	switch f {
	case FamilyV11:
		return "yolov11"
	case FamilyV10:
		return "yolov10"
	case FamilyV7:
		return "yolov7"
	}
	return fmt.Sprintf("Family(%d)", int(f))
}

func (f Family) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Family) UnmarshalText(b []byte) error {
	for _, c := range []Family{FamilyV11, FamilyV10, FamilyV7} {
		if c.String() == string(b) {
			*f = c
			return nil
		}
	}
	return fmt.Errorf("Unknown model family '%v'", string(b))
}

// ModelConfig describes one loadable model artifact.
type ModelConfig struct {
	Width    int    `json:"width"`    // eg 320
	Height   int    `json:"height"`   // eg 320
	FileName string `json:"fileName"` // eg "yolov7-tiny_320x320.onnx"
	Family   Family `json:"family"`
}

func (c ModelConfig) String() string {
	return fmt.Sprintf("%v (%vx%v, %v)", c.FileName, c.Width, c.Height, c.Family)
}

// Registry is the fixed, ordered list of models that the user can cycle through.
type Registry struct {
	models []ModelConfig
}

// DefaultRegistry returns the six models that ship with the app
func DefaultRegistry() *Registry {
	return NewRegistry([]ModelConfig{
		{Width: 256, Height: 256, FileName: "yolov10n.onnx", Family: FamilyV10},
		{Width: 256, Height: 256, FileName: "yolo12n.onnx", Family: FamilyV11},
		{Width: 256, Height: 256, FileName: "yolo11n.onnx", Family: FamilyV11},
		{Width: 256, Height: 256, FileName: "yolov7-tiny_256x256.onnx", Family: FamilyV7},
		{Width: 320, Height: 320, FileName: "yolov7-tiny_320x320.onnx", Family: FamilyV7},
		{Width: 640, Height: 640, FileName: "yolov7-tiny_640x640.onnx", Family: FamilyV7},
	})
}

// NewRegistry panics if models is empty
func NewRegistry(models []ModelConfig) *Registry {
	if len(models) == 0 {
		panic("Registry must contain at least one model")
	}
	return &Registry{
		models: append([]ModelConfig(nil), models...),
	}
}

// List returns a copy of the registry entries, in order
func (r *Registry) List() []ModelConfig {
	return append([]ModelConfig(nil), r.models...)
}

func (r *Registry) Len() int {
	return len(r.models)
}

func (r *Registry) At(i int) ModelConfig {
	return r.models[i]
}

// Index returns the position of cfg in the registry, or -1
func (r *Registry) Index(cfg ModelConfig) int {
	for i, m := range r.models {
		if m == cfg {
			return i
		}
	}
	return -1
}

// Next returns the entry after current, wrapping around after the last one.
// If current is not in the registry, the first entry is returned.
func (r *Registry) Next(current ModelConfig) ModelConfig {
	i := r.Index(current)
	return r.models[(i+1)%len(r.models)]
}

// FindResolution returns the first entry with the given input resolution
func (r *Registry) FindResolution(width, height int) (ModelConfig, bool) {
	for _, m := range r.models {
		if m.Width == width && m.Height == height {
			return m, true
		}
	}
	return ModelConfig{}, false
}

// FindFile returns the entry with the given artifact filename
func (r *Registry) FindFile(fileName string) (ModelConfig, bool) {
	for _, m := range r.models {
		if m.FileName == fileName {
			return m, true
		}
	}
	return ModelConfig{}, false
}
