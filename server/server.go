package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/pulseapp/companion/pkg/detector"
	"github.com/pulseapp/companion/pkg/nn"
	"github.com/pulseapp/companion/pkg/nnload"
	"github.com/pulseapp/companion/server/config"
	"github.com/pulseapp/companion/server/monitor"
)

// Server hosts the detector, the frame loop that feeds it, and the HTTP API around it.
type Server struct {
	Log              logs.Log
	ShutdownComplete chan error // Closed when Shutdown has released everything

	config     *config.Config
	detector   *detector.Detector
	monitor    *monitor.Monitor // nil if no frame source is configured
	signalIn   chan os.Signal
	httpServer *http.Server
	httpRouter *httprouter.Router
	wsUpgrader websocket.Upgrader
	lastIDs    nn.ClassIDSet

	shutdownOnce sync.Once
}

// NewServer creates the detector and starts loading the initial model.
// If source is not nil, the frame loop is started.
func NewServer(logger logs.Log, cfg *config.Config, loader nnload.Loader, source monitor.FrameSource) (*Server, error) {
	s := &Server{
		Log:              logger,
		ShutdownComplete: make(chan error),
		config:           cfg,
	}
	det, err := detector.New(logger, loader, detector.Options{
		SurfaceWidth:  cfg.SurfaceWidth,
		SurfaceHeight: cfg.SurfaceHeight,
		InitialModel:  cfg.InitialModel,
		Params:        cfg.DetectionParams(),
		OnDetections:  s.onDetections,
	})
	if err != nil {
		return nil, err
	}
	s.detector = det
	if err := s.setupHttpRoutes(); err != nil {
		det.Close()
		return nil, err
	}
	if source != nil {
		s.Log.Infof("Reading frames from %v at %v FPS", source, cfg.FPS())
		s.monitor = monitor.NewMonitor(logger, source, det, cfg.FPS())
	}
	return s, nil
}

func (s *Server) Detector() *detector.Detector {
	return s.detector
}

// Runs on the frame thread
func (s *Server) onDetections(ids nn.ClassIDSet) {
	if !sameClasses(ids, s.lastIDs) {
		names := make([]string, len(ids))
		for i, id := range ids {
			names[i] = nn.ClassLabel(id)
		}
		s.Log.Debugf("Detected classes changed: %v", names)
	}
	s.lastIDs = ids
}

func sameClasses(a, b nn.ClassIDSet) bool {
	if len(a) != len(b) {
		return false
	}
	for _, c := range a {
		if !b.Contains(c) {
			return false
		}
	}
	return true
}

// port example: ":8080"
func (s *Server) ListenHTTP(port string) error {
	s.Log.Infof("Listening on %v", port)
	s.httpServer = &http.Server{
		Addr:    port,
		Handler: s.httpRouter,
	}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) ListenForKillSignals() {
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'", sig.String())
			s.Shutdown()
		}
	}()
}

// Shutdown stops the frame loop, the HTTP server, and releases the model.
// It is safe to call more than once. ShutdownComplete is closed when it returns.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(s.shutdown)
	<-s.ShutdownComplete
}

func (s *Server) shutdown() {
	s.Log.Infof("Shutdown")
	if s.signalIn != nil {
		signal.Stop(s.signalIn)
		close(s.signalIn)
		s.signalIn = nil
	}
	if s.monitor != nil {
		s.monitor.Close()
	}
	if s.httpServer != nil {
		s.Log.Infof("Closing HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.Log.Warnf("HTTP shutdown error: %v", err)
		}
	}
	s.detector.Close()
	s.Log.Infof("Shutdown complete")
	close(s.ShutdownComplete)
}

func (s *Server) String() string {
	return fmt.Sprintf("Server(%v)", s.config.Listen)
}
