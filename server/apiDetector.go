package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/cyclopcam/www"
	"github.com/disintegration/imaging"
	"github.com/julienschmidt/httprouter"
	"github.com/pulseapp/companion/pkg/detector"
	"github.com/pulseapp/companion/pkg/nn"
	"github.com/pulseapp/companion/server/monitor"
	"github.com/pulseapp/companion/server/streamer"
)

type pingJSON struct {
	Greeting string `json:"greeting"`
	Hostname string `json:"hostname"`
	Time     int64  `json:"time"`
}

type statusJSON struct {
	Detector detector.Status `json:"detector"`
	Monitor  *monitor.Stats  `json:"monitor,omitempty"`
}

type modelsJSON struct {
	Models  []nn.ModelConfig `json:"models"`
	Current int              `json:"current"`
}

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	hostname, _ := os.Hostname()
	www.SendJSON(w, &pingJSON{
		Greeting: "I am Companion",
		Hostname: hostname,
		Time:     time.Now().Unix(),
	})
}

func (s *Server) status() *statusJSON {
	st := &statusJSON{
		Detector: s.detector.Status(),
	}
	if s.monitor != nil {
		ms := s.monitor.Stats()
		st.Monitor = &ms
	}
	return st
}

func (s *Server) httpStatus(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.status())
}

func (s *Server) httpModels(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	reg := s.detector.Registry()
	www.SendJSON(w, &modelsJSON{
		Models:  reg.List(),
		Current: reg.Index(s.detector.CurrentModel()),
	})
}

func (s *Server) httpModelNext(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.detector.ChangeModelResolution()
	www.SendJSON(w, s.status())
}

func (s *Server) httpModelResolution(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	width, err := strconv.Atoi(params.ByName("width"))
	if err != nil {
		www.PanicBadRequestf("Invalid width '%v'", params.ByName("width"))
	}
	height, err := strconv.Atoi(params.ByName("height"))
	if err != nil {
		www.PanicBadRequestf("Invalid height '%v'", params.ByName("height"))
	}
	if err := s.detector.SetModelResolution(width, height); errors.Is(err, detector.ErrUnknownResolution) {
		www.PanicBadRequestf("%v", err)
	} else {
		www.Check(err)
	}
	www.SendJSON(w, s.status())
}

func (s *Server) httpModelSelect(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if err := s.detector.SelectModel(params.ByName("name")); errors.Is(err, detector.ErrUnknownModel) {
		www.PanicBadRequestf("%v", err)
	} else {
		www.Check(err)
	}
	www.SendJSON(w, s.status())
}

func (s *Server) httpOverlay(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	img := s.detector.Overlay()
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	www.Check(imaging.Encode(w, img, imaging.PNG))
}

// Run one uploaded image through the detector.
// The body is the raw image file (JPEG, PNG, etc).
func (s *Server) httpDetect(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	body := http.MaxBytesReader(w, r.Body, s.config.UploadLimit())
	img, err := imaging.Decode(body, imaging.AutoOrientation(true))
	if err != nil {
		www.PanicBadRequestf("Invalid image: %v", err)
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	result, err := s.detector.ProcessFrame(ctx, img)
	if errors.Is(err, detector.ErrNotReady) {
		http.Error(w, s.detector.Status().Message, http.StatusServiceUnavailable)
		return
	}
	www.Check(err)
	www.SendJSON(w, result)
}

func (s *Server) httpDetectionsWebSocket(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Errorf("websocket upgrade failed: %v", err)
		return
	}
	streamer.RunDetectionWebSocketStreamer(s.Log, conn, s.detector.Results())
}
