package monitor

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/pulseapp/companion/pkg/detector"
)

// monitor runs the detector over a stream of camera frames, one frame at a time.
// There is no frame queue. If a frame takes longer than the frame interval, we fall behind
// by skipping frames, not by buffering them.

// FrameProcessor is satisfied by *detector.Detector
type FrameProcessor interface {
	ProcessFrame(ctx context.Context, frame image.Image) (*detector.FrameResult, error)
}

type Stats struct {
	FramesRead      int64 `json:"framesRead"`
	FramesProcessed int64 `json:"framesProcessed"`
	FramesSkipped   int64 `json:"framesSkipped"` // Skipped because no model was ready
	Errors          int64 `json:"errors"`
}

type Monitor struct {
	Log           logs.Log
	source        FrameSource
	processor     FrameProcessor
	interval      time.Duration
	mustStop      atomic.Bool // True if Stop() has been called
	looperStopped chan bool   // When looperStopped channel is closed, then the looper has stopped
	cancel        context.CancelFunc

	framesRead      atomic.Int64
	framesProcessed atomic.Int64
	framesSkipped   atomic.Int64
	errors          atomic.Int64
}

// NewMonitor creates a monitor that reads from source at the given rate, and starts it
func NewMonitor(logger logs.Log, source FrameSource, processor FrameProcessor, fps float64) *Monitor {
	if fps <= 0 {
		fps = 10
	}
	m := &Monitor{
		Log:       logger,
		source:    source,
		processor: processor,
		interval:  time.Duration(float64(time.Second) / fps),
	}
	m.start()
	return m
}

// Close the monitor object.
func (m *Monitor) Close() {
	m.Log.Infof("Monitor shutting down")
	m.stop()
	m.source.Close()
	m.Log.Infof("Monitor is closed")
}

func (m *Monitor) Stats() Stats {
	return Stats{
		FramesRead:      m.framesRead.Load(),
		FramesProcessed: m.framesProcessed.Load(),
		FramesSkipped:   m.framesSkipped.Load(),
		Errors:          m.errors.Load(),
	}
}

// Stop the looper
func (m *Monitor) stop() {
	m.mustStop.Store(true)
	m.cancel()
	<-m.looperStopped
}

// Start/Restart looper
func (m *Monitor) start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.mustStop.Store(false)
	m.looperStopped = make(chan bool)
	m.cancel = cancel
	go m.loop(ctx)
}

// Loop runs until Close()
func (m *Monitor) loop(ctx context.Context) {
	lastErrAt := time.Time{}
	logError := func(format string, args ...any) {
		m.errors.Add(1)
		if time.Since(lastErrAt) > 15*time.Second {
			m.Log.Errorf(format, args...)
			lastErrAt = time.Now()
		}
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for !m.mustStop.Load() {
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
		if m.mustStop.Load() {
			break
		}

		frame, err := m.source.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logError("Error reading frame from %v: %v", m.source, err)
			}
			continue
		}
		m.framesRead.Add(1)

		_, err = m.processor.ProcessFrame(ctx, frame)
		if errors.Is(err, detector.ErrNotReady) {
			m.framesSkipped.Add(1)
		} else if err != nil {
			if ctx.Err() == nil {
				logError("Error detecting objects: %v", err)
			}
		} else {
			m.framesProcessed.Add(1)
		}
	}
	close(m.looperStopped)
}
