package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router wraps http.ServeMux.
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

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterEventRoutes mounts the event API. Device endpoints go through
// deviceAuth, everything else through bearerAuth.
func (r *Router) RegisterEventRoutes(h *FallEventHandler, bearerAuth, deviceAuth Middleware) {
	r.HandleHandler("/api/events/ingest", deviceAuth(http.HandlerFunc(h.Ingest)))
	r.HandleHandler("/api/events/samples", deviceAuth(http.HandlerFunc(h.UploadSamples)))

	r.HandleHandler("/api/events", bearerAuth(h))
	r.HandleHandler("/api/events/", bearerAuth(h))
	r.HandleHandler("/api/devices/podium", bearerAuth(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Podium(w, req)
	})))
}

func (r *Router) RegisterHealthRoutes(h *HealthHandler) {
	r.Handle("/api/health", h.ServeHTTP)
}

func (r *Router) RegisterMetrics(h http.Handler) {
	r.HandleHandler("/metrics", h)
}
