package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pulseapp/companion/pkg/kibi"
	"github.com/pulseapp/companion/pkg/nn"
	"github.com/pulseapp/companion/pkg/overlay"
)

const DefaultFilename = "companion.json"

// FrameSource is where the monitor gets its camera frames from
type FrameSource struct {
	Type string  `json:"type"` // "dir" or "snapshot". Empty means no frame loop.
	Path string  `json:"path"` // Directory of images, for "dir"
	URL  string  `json:"url"`  // JPEG snapshot URL of a camera, for "snapshot"
	FPS  float64 `json:"fps"`  // Frames per second. Zero uses the default.
}

type Config struct {
	Listen               string      `json:"listen"`               // HTTP listen address, eg ":8080"
	ModelStore           string      `json:"modelStore"`           // Directory, http(s) base URL, or gs://bucket/prefix
	ModelCacheDir        string      `json:"modelCacheDir"`        // Local directory that model files are written into before loading
	OnnxLibrary          string      `json:"onnxLibrary"`          // Path to onnxruntime shared library. Empty uses the platform default.
	SurfaceWidth         int         `json:"surfaceWidth"`         // Overlay width in pixels
	SurfaceHeight        int         `json:"surfaceHeight"`        // Overlay height in pixels
	FrameSource          FrameSource `json:"frameSource"`          // Frame loop input
	InitialModel         string      `json:"initialModel"`         // eg "yolo11n.onnx". Empty uses the first model.
	ProbabilityThreshold float32     `json:"probabilityThreshold"` // Zero uses the default
	NmsIouThreshold      float32     `json:"nmsIouThreshold"`      // Zero uses the default
	MaxUploadSize        string      `json:"maxUploadSize"`        // Largest image accepted by /api/detect, eg "20MB"
}

const DefaultFPS = 10

// Default returns a config that works on the device, without any config file
func Default() *Config {
	return &Config{
		Listen:        ":8080",
		ModelStore:    "/companion/models",
		ModelCacheDir: filepath.Join(os.TempDir(), "companion-models"),
		SurfaceWidth:  overlay.DefaultWidth,
		SurfaceHeight: overlay.DefaultHeight,
		MaxUploadSize: "20MB",
	}
}

// LoadConfig reads a JSON config file. Fields that are absent from the file keep their default values.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		filename = DefaultFilename
	}
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	cfg := Default()
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("Error loading as JSON %v: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Invalid config %v: %w", filename, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.SurfaceWidth < 0 || c.SurfaceHeight < 0 {
		return fmt.Errorf("surfaceWidth and surfaceHeight may not be negative")
	}
	if c.ProbabilityThreshold < 0 || c.ProbabilityThreshold > 1 {
		return fmt.Errorf("probabilityThreshold must be between 0 and 1")
	}
	if c.NmsIouThreshold < 0 || c.NmsIouThreshold > 1 {
		return fmt.Errorf("nmsIouThreshold must be between 0 and 1")
	}
	switch c.FrameSource.Type {
	case "":
	case "dir":
		if c.FrameSource.Path == "" {
			return fmt.Errorf("frameSource.path is required for a 'dir' source")
		}
	case "snapshot":
		if c.FrameSource.URL == "" {
			return fmt.Errorf("frameSource.url is required for a 'snapshot' source")
		}
	default:
		return fmt.Errorf("Unknown frameSource.type '%v'", c.FrameSource.Type)
	}
	if c.FrameSource.FPS < 0 {
		return fmt.Errorf("frameSource.fps may not be negative")
	}
	if _, err := kibi.Parse(c.MaxUploadSize); err != nil {
		return fmt.Errorf("Invalid maxUploadSize '%v': %w", c.MaxUploadSize, err)
	}
	if c.InitialModel != "" {
		if _, ok := nn.DefaultRegistry().FindFile(c.InitialModel); !ok {
			return fmt.Errorf("Unknown initialModel '%v'", c.InitialModel)
		}
	}
	return nil
}

func (c *Config) DetectionParams() *nn.DetectionParams {
	return &nn.DetectionParams{
		ProbabilityThreshold: c.ProbabilityThreshold,
		NmsIouThreshold:      c.NmsIouThreshold,
	}
}

// UploadLimit is MaxUploadSize in bytes. Validate must have succeeded.
func (c *Config) UploadLimit() int64 {
	n, _ := kibi.Parse(c.MaxUploadSize)
	return n
}

func (c *Config) FPS() float64 {
	if c.FrameSource.FPS == 0 {
		return DefaultFPS
	}
	return c.FrameSource.FPS
}
