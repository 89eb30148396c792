package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/apperrors"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/auth"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/metrics"
	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/repository"
)

type Middleware func(http.Handler) http.Handler

// Chain applies mws so that the first one is the outermost.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

// BearerAuth requires "Authorization: Bearer <jwt>" and stores the identity
// in the request context.
func BearerAuth(tokens *auth.TokenManager, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				writeError(w, r, logger, apperrors.Unauthorized(apperrors.CodeTokenMissing, "bearer token required"))
				return
			}
			id, err := tokens.Parse(strings.TrimSpace(token))
			if err != nil {
				writeError(w, r, logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

// DeviceAuth authenticates hardware with X-Device-Id and X-Device-Key. The key
// is checked against the stored bcrypt hash.
func DeviceAuth(devices repository.DevicesRepository, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID := strings.TrimSpace(r.Header.Get("X-Device-Id"))
			key := r.Header.Get("X-Device-Key")
			if deviceID == "" || key == "" {
				writeError(w, r, logger, apperrors.Unauthorized(apperrors.CodeDeviceUnauthorized, "device credentials required"))
				return
			}

			device, err := devices.GetDevice(r.Context(), deviceID)
			if err != nil {
				switch {
				case errors.Is(err, repository.ErrDeviceNotFound):
					writeError(w, r, logger, apperrors.Unauthorized(apperrors.CodeDeviceUnauthorized, "invalid device credentials"))
				case repository.IsUnavailable(err):
					writeError(w, r, logger, apperrors.Unavailable(err))
				default:
					writeError(w, r, logger, apperrors.Internal(err))
				}
				return
			}
			if device.DeviceKeyHash == nil || *device.DeviceKeyHash == "" {
				writeError(w, r, logger, apperrors.Unauthorized(apperrors.CodeDeviceKeyMissing, "device has no key configured"))
				return
			}
			if !auth.VerifyDeviceKey(device.DeviceKeyHash, key) {
				logger.Info("Device key rejected", zap.String("device_id", deviceID))
				writeError(w, r, logger, apperrors.Unauthorized(apperrors.CodeDeviceUnauthorized, "invalid device credentials"))
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithDevice(r.Context(), device.DeviceID)))
		})
	}
}

// RequestLogger logs one line per request.
func RequestLogger(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.code()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// Instrument records request counts and latency per route template.
func Instrument(m *metrics.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			route := routeLabel(r.URL.Path)
			m.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.code())).Inc()
			m.HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}

// routeLabel collapses ids so label cardinality stays bounded.
func routeLabel(path string) string {
	switch path {
	case "/api/events", "/api/events/ingest", "/api/events/samples", "/api/events/update",
		"/api/events/export.xlsx", "/api/devices/podium", "/api/health", "/metrics":
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/api/events/"); ok && rest != "" {
		if strings.HasSuffix(rest, "/samples") {
			return "/api/events/{id}/samples"
		}
		return "/api/events/{id}"
	}
	return "other"
}

// Timeout bounds the request context. Store calls observe it and surface 503.
func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CORS allows a single configured origin, or any origin with "*".
func CORS(origin string) Middleware {
	return func(next http.Handler) http.Handler {
		if origin == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Device-Id, X-Device-Key")
			if origin != "*" {
				h.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Recover turns a handler panic into a 500 response.
func Recover(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rv := recover(); rv != nil {
					if rv == http.ErrAbortHandler {
						panic(rv)
					}
					logger.Error("Handler panic", zap.Any("panic", rv), zap.String("path", r.URL.Path), zap.Stack("stack"))
					writeError(w, r, logger, apperrors.Internal(errors.New("handler panic")))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
