// Package detector runs camera frames through the currently selected YOLO model,
// draws the results onto an overlay surface, and reports the detected classes.
package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/pulseapp/companion/pkg/event"
	"github.com/pulseapp/companion/pkg/nn"
	"github.com/pulseapp/companion/pkg/nnload"
	"github.com/pulseapp/companion/pkg/overlay"
	"github.com/pulseapp/companion/pkg/perfstats"
	"github.com/pulseapp/companion/pkg/postprocess"
	"github.com/pulseapp/companion/pkg/preprocess"
)

var (
	ErrNotReady          = nnload.ErrNotReady
	ErrUnknownResolution = errors.New("No model has the requested resolution")
	ErrUnknownModel      = errors.New("Unknown model")
)

// Pipeline stages, for Stats()
const (
	StagePreprocess  = "preprocess"
	StageInference   = "inference"
	StagePostprocess = "postprocess"
	StageRender      = "render"
)

type Options struct {
	SurfaceWidth  int // Zero uses the default of 640
	SurfaceHeight int // Zero uses the default of 480

	// Model to load at startup. If empty, the first registry entry is used.
	InitialModel string

	// If nil, nn.DefaultRegistry() is used
	Registry *nn.Registry

	// If nil, the defaults are used
	Params *nn.DetectionParams

	// Called once for every frame that was processed, with the distinct classes that were found.
	// The set may be empty. This is called on the frame's thread, so it must not block for long.
	OnDetections func(classIDs nn.ClassIDSet)
}

// FrameResult is the outcome of one processed frame
type FrameResult struct {
	Model      nn.ModelConfig         `json:"model"`
	ClassIDs   nn.ClassIDSet          `json:"classIDs"`
	Detections []nn.RenderedDetection `json:"detections"`
	Raw        []nn.Detection         `json:"-"` // In model coordinates
	At         time.Time              `json:"at"`
}

type Status struct {
	Model     nn.ModelConfig           `json:"model"`
	Index     int                      `json:"index"` // Position of Model in the registry
	State     nnload.State             `json:"state"`
	Message   string                   `json:"message,omitempty"`
	LoadError string                   `json:"loadError,omitempty"`
	Stats     []perfstats.StageSummary `json:"stats"`
}

// Detector owns one inference session and one overlay surface.
// Frames are processed one at a time.
type Detector struct {
	log      logs.Log
	registry *nn.Registry
	manager  *nnload.Manager
	params   nn.DetectionParams
	onDets   func(nn.ClassIDSet)
	stats    *perfstats.Stages
	results  event.Sender[*FrameResult]

	frameLock sync.Mutex // Held for the duration of ProcessFrame
	surface   *overlay.Surface
	last      *FrameResult

	stateLock sync.Mutex
	current   nn.ModelConfig
}

// New creates a detector, and starts loading the initial model
func New(log logs.Log, loader nnload.Loader, opts Options) (*Detector, error) {
	registry := opts.Registry
	if registry == nil {
		registry = nn.DefaultRegistry()
	}
	initial := registry.At(0)
	if opts.InitialModel != "" {
		cfg, ok := registry.FindFile(opts.InitialModel)
		if !ok {
			return nil, fmt.Errorf("%w '%v'", ErrUnknownModel, opts.InitialModel)
		}
		initial = cfg
	}
	d := &Detector{
		log:      log,
		registry: registry,
		manager:  nnload.NewManager(log, loader),
		params:   opts.Params.WithDefaults(),
		onDets:   opts.OnDetections,
		stats:    perfstats.NewStages(StagePreprocess, StageInference, StagePostprocess, StageRender),
		surface:  overlay.NewSurface(opts.SurfaceWidth, opts.SurfaceHeight),
	}
	d.surface.Clear()
	d.selectModel(initial)
	return d, nil
}

func (d *Detector) Close() {
	d.manager.Close()
}

func (d *Detector) Registry() *nn.Registry {
	return d.registry
}

// Results is fired after every successfully processed frame
func (d *Detector) Results() *event.Sender[*FrameResult] {
	return &d.results
}

// WaitForModel blocks until the most recently selected model has loaded or failed
func (d *Detector) WaitForModel(ctx context.Context) error {
	st, err := d.manager.Wait(ctx)
	if err != nil {
		return err
	}
	if st.State != nnload.StateReady {
		return fmt.Errorf("%w: %v", nnload.ErrModelLoad, st.LoadError)
	}
	return nil
}

// ProcessFrame runs one frame through the pipeline.
// If no model is ready, the surface is cleared, the callback is not invoked, and ErrNotReady is returned.
// If inference or decoding fails, the surface is cleared, and the error is returned.
func (d *Detector) ProcessFrame(ctx context.Context, frame image.Image) (*FrameResult, error) {
	d.frameLock.Lock()
	defer d.frameLock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := d.CurrentModel()

	start := time.Now()
	input := preprocess.ToTensor(frame, cfg.Width, cfg.Height)
	d.stats.Time(StagePreprocess, start)

	start = time.Now()
	output, ranWith, err := d.manager.Run(input)
	if err == nil && ranWith != cfg {
		// The model was switched while we were preparing the input
		err = ErrNotReady
	}
	if err != nil {
		d.surface.Clear()
		if errors.Is(err, ErrNotReady) {
			return nil, err
		}
		return nil, fmt.Errorf("Inference failed on %v: %w", cfg.FileName, err)
	}
	d.stats.Time(StageInference, start)

	start = time.Now()
	raw, err := postprocess.ForFamily(cfg.Family).Decode(output, &d.params)
	if err != nil {
		d.surface.Clear()
		return nil, fmt.Errorf("Decoding output of %v: %w", cfg.FileName, err)
	}
	sw, sh := d.surface.Size()
	// The v10 and v7 exports are drawn on whole pixels
	snap := cfg.Family != nn.FamilyV11
	rendered := overlay.Scale(raw, cfg.Width, cfg.Height, sw, sh, snap)
	classIDs := nn.ClassIDs(raw)
	d.stats.Time(StagePostprocess, start)

	start = time.Now()
	d.surface.Clear()
	d.surface.Draw(rendered)
	d.stats.Time(StageRender, start)

	result := &FrameResult{
		Model:      cfg,
		ClassIDs:   classIDs,
		Detections: rendered,
		Raw:        raw,
		At:         time.Now(),
	}
	d.last = result

	if d.onDets != nil {
		d.onDets(classIDs)
	}
	d.results.SendEvent(result)
	return result, nil
}

// Overlay returns a copy of the overlay surface, as drawn by the most recent frame
func (d *Detector) Overlay() *image.RGBA {
	d.frameLock.Lock()
	defer d.frameLock.Unlock()
	return d.surface.Snapshot()
}

// LastResult returns the most recent successful frame result, or nil
func (d *Detector) LastResult() *FrameResult {
	d.frameLock.Lock()
	defer d.frameLock.Unlock()
	return d.last
}

// CurrentModel returns the selected model, which may still be loading
func (d *Detector) CurrentModel() nn.ModelConfig {
	d.stateLock.Lock()
	defer d.stateLock.Unlock()
	return d.current
}

func (d *Detector) CurrentModelResolution() (width, height int) {
	cfg := d.CurrentModel()
	return cfg.Width, cfg.Height
}

func (d *Detector) ModelName() string {
	return d.CurrentModel().FileName
}

// ChangeModelResolution cycles to the next model in the registry, wrapping around after the last one
func (d *Detector) ChangeModelResolution() {
	d.stateLock.Lock()
	defer d.stateLock.Unlock()
	d.selectModelLocked(d.registry.Next(d.current))
}

// SetModelResolution switches to the first model with the given resolution.
// If the current model already has that resolution, nothing changes.
func (d *Detector) SetModelResolution(width, height int) error {
	cur := d.CurrentModel()
	if cur.Width == width && cur.Height == height {
		return nil
	}
	cfg, ok := d.registry.FindResolution(width, height)
	if !ok {
		return fmt.Errorf("%w: %vx%v", ErrUnknownResolution, width, height)
	}
	d.selectModel(cfg)
	return nil
}

// SelectModel switches to the model with the given file name.
// Selecting the current model again only reloads it if the previous load failed.
func (d *Detector) SelectModel(fileName string) error {
	cfg, ok := d.registry.FindFile(fileName)
	if !ok {
		return fmt.Errorf("%w '%v'", ErrUnknownModel, fileName)
	}
	if cfg == d.CurrentModel() && d.manager.Status().State != nnload.StateFailed {
		return nil
	}
	d.selectModel(cfg)
	return nil
}

func (d *Detector) selectModel(cfg nn.ModelConfig) <-chan error {
	// stateLock is held across manager.Select so that d.current and the manager agree on the order of selections
	d.stateLock.Lock()
	defer d.stateLock.Unlock()
	return d.selectModelLocked(cfg)
}

func (d *Detector) selectModelLocked(cfg nn.ModelConfig) <-chan error {
	d.current = cfg
	return d.manager.Select(cfg)
}

func (d *Detector) Status() Status {
	cfg := d.CurrentModel()
	ms := d.manager.Status()
	st := Status{
		Model:     cfg,
		Index:     d.registry.Index(cfg),
		State:     ms.State,
		LoadError: ms.LoadError,
		Stats:     d.stats.Summary(),
	}
	if ms.State != nnload.StateReady {
		st.Message = "Loading model " + cfg.FileName + "…"
	}
	return st
}

func (d *Detector) Stats() []perfstats.StageSummary {
	return d.stats.Summary()
}
