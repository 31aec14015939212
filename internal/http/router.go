package httpapi

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Router uses the standard library http.ServeMux.
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

// ServeHTTP logs every request after it completes.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	r.mux.ServeHTTP(rec, req)
	r.logger.Debug("HTTP request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", rec.status),
		zap.Duration("duration", time.Since(start)),
	)
}

func (r *Router) RegisterAlertRoutes(h *AlertsHandler) {
	r.HandleHandler(alertsPrefix, h)
	r.HandleHandler(alertsPrefix+"/", h)
}

func (r *Router) RegisterCrosswalkRoutes(h *CrosswalksHandler) {
	r.HandleHandler(crosswalksPrefix, h)
	r.HandleHandler(crosswalksPrefix+"/", h)
}

func (r *Router) RegisterDeviceRoutes(cameras *CamerasHandler, leds *LEDsHandler) {
	r.HandleHandler(camerasPrefix, cameras)
	r.HandleHandler(camerasPrefix+"/", cameras)
	r.HandleHandler(ledsPrefix, leds)
	r.HandleHandler(ledsPrefix+"/", leds)
}

// RegisterLiveRoutes mounts the websocket alert feed.
func (r *Router) RegisterLiveRoutes(feed http.Handler) {
	r.HandleHandler("/ws/alerts", feed)
}

func (r *Router) RegisterHealthRoutes(h *HealthHandler) {
	r.HandleHandler("/health", h)
}

// statusRecorder must stay hijackable for the websocket upgrade.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}
