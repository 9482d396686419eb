package server

import (
	"embed"
	"net/http"
	"time"

	"github.com/cyclopcam/staticfiles"
	"github.com/cyclopcam/www"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
)

//go:embed www
var staticWWW embed.FS

func (s *Server) setupHttpRoutes() error {
	router := httprouter.New()

	handle := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, handle)
	}

	// We create a unique rate limiter for each endpoint, because model switches are expensive
	ratelimited := func(method, route string, handle httprouter.Handle, requestLimit int, windowLength time.Duration) {
		limited := httprate.Limit(requestLimit, windowLength, httprate.WithKeyFuncs(httprate.KeyByIP))
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limited(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handle(w, r, params)
			})).ServeHTTP(w, r)
		})
	}

	handle("GET", "/api/ping", s.httpPing)
	handle("GET", "/api/status", s.httpStatus)
	handle("GET", "/api/models", s.httpModels)
	ratelimited("POST", "/api/model/next", s.httpModelNext, 5, time.Second)
	ratelimited("POST", "/api/model/resolution/:width/:height", s.httpModelResolution, 5, time.Second)
	ratelimited("POST", "/api/model/select/:name", s.httpModelSelect, 5, time.Second)
	handle("GET", "/api/overlay", s.httpOverlay)
	ratelimited("POST", "/api/detect", s.httpDetect, 10, time.Second)
	handle("GET", "/api/ws/detections", s.httpDetectionsWebSocket)

	static, err := staticfiles.NewCachedStaticFileServer(staticWWW, "www", []string{"/api/"}, s.Log, false, nil)
	if err != nil {
		s.Log.Warnf("Error in static files: %v", err)
	} else {
		router.NotFound = static
	}

	s.httpRouter = router
	return nil
}
