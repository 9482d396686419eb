// Package nnload owns the lifecycle of the inference session.
// Model loads are asynchronous, and a new selection always wins over a load that is still in flight.
package nnload

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cyclopcam/logs"
	"github.com/pulseapp/companion/pkg/nn"
)

var (
	ErrModelLoad  = errors.New("Model load failed")
	ErrNotReady   = errors.New("No model is ready")
	ErrSuperseded = errors.New("Model load was superseded by a newer selection")
)

type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for _, c := range []State{StateIdle, StateLoading, StateReady, StateFailed} {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("Unknown model state '%v'", string(b))
}

type Status struct {
	State     State          `json:"state"`
	Model     nn.ModelConfig `json:"model"`
	LoadError string         `json:"loadError,omitempty"`
}

// Manager holds at most one live session.
// Run may be called from many threads. Sessions are only closed while holding the write lock,
// so a session is never closed while it is running.
type Manager struct {
	log    logs.Log
	loader Loader

	lock       sync.RWMutex
	generation int64
	state      State
	config     nn.ModelConfig
	session    nn.Session
	loadErr    error
	cancelLoad context.CancelFunc
	settled    chan struct{} // Closed when the state leaves StateLoading
	wg         sync.WaitGroup
}

func NewManager(log logs.Log, loader Loader) *Manager {
	settled := make(chan struct{})
	close(settled)
	return &Manager{
		log:     log,
		loader:  loader,
		settled: settled,
	}
}

// Select closes the current session and starts loading cfg in the background.
// Until that load completes, Run returns ErrNotReady.
// The returned channel receives the outcome of this particular load: nil when the session was
// installed, or an error wrapping ErrModelLoad or ErrSuperseded.
func (m *Manager) Select(cfg nn.ModelConfig) <-chan error {
	ctx, cancel := context.WithCancel(context.Background())

	m.lock.Lock()
	if m.cancelLoad != nil {
		m.cancelLoad()
	}
	m.generation++
	gen := m.generation
	if m.session != nil {
		m.session.Close()
		m.session = nil
	}
	if m.state != StateLoading {
		m.settled = make(chan struct{})
	}
	m.state = StateLoading
	m.config = cfg
	m.loadErr = nil
	m.cancelLoad = cancel
	m.wg.Add(1)
	m.lock.Unlock()

	m.log.Infof("Loading model %v", cfg)
	done := make(chan error, 1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		done <- m.load(ctx, gen, cfg)
	}()
	return done
}

func (m *Manager) load(ctx context.Context, gen int64, cfg nn.ModelConfig) error {
	session, err := m.loader.Load(ctx, cfg)

	m.lock.Lock()
	defer m.lock.Unlock()

	if gen != m.generation {
		if session != nil {
			session.Close()
		}
		m.log.Infof("Discarding load of %v, because a newer model was selected", cfg.FileName)
		return ErrSuperseded
	}

	defer close(m.settled)

	if err != nil {
		m.state = StateFailed
		m.loadErr = fmt.Errorf("%w: %v: %w", ErrModelLoad, cfg.FileName, err)
		m.log.Warnf("Failed to load model %v: %v", cfg.FileName, err)
		return m.loadErr
	}

	m.session = session
	m.state = StateReady
	m.log.Infof("Model %v is ready", cfg.FileName)
	return nil
}

// Wait blocks until the most recent selection has either loaded or failed
func (m *Manager) Wait(ctx context.Context) (Status, error) {
	m.lock.RLock()
	settled := m.settled
	m.lock.RUnlock()
	select {
	case <-settled:
		return m.Status(), nil
	case <-ctx.Done():
		return m.Status(), ctx.Err()
	}
}

// Run executes the current session, and returns the config of the model that produced the output.
func (m *Manager) Run(input *nn.Tensor) (*nn.Tensor, nn.ModelConfig, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.state != StateReady {
		return nil, m.config, ErrNotReady
	}
	out, err := m.session.Run(input)
	return out, m.config, err
}

func (m *Manager) Status() Status {
	m.lock.RLock()
	defer m.lock.RUnlock()
	s := Status{
		State: m.state,
		Model: m.config,
	}
	if m.loadErr != nil {
		s.LoadError = m.loadErr.Error()
	}
	return s
}

// Close cancels any pending load, waits for it to finish, and closes the session
func (m *Manager) Close() {
	m.lock.Lock()
	if m.cancelLoad != nil {
		m.cancelLoad()
	}
	m.generation++
	if m.state == StateLoading {
		close(m.settled)
	}
	m.state = StateIdle
	m.lock.Unlock()

	m.wg.Wait()

	m.lock.Lock()
	defer m.lock.Unlock()
	if m.session != nil {
		m.session.Close()
		m.session = nil
	}
	m.state = StateIdle
}
