package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"memwatchd/internal/guard"
	"memwatchd/pkg/types"
)

// Service defines the watchdog methods required by the HTTP API layer.
type Service interface {
	Active() bool
	Status() types.StatusResponse
	CurrentMemory() types.SystemMemoryInfo
	ModelMemory() types.ModelMemoryStatus
	RegisterModel(info types.ModelMemoryInfo) error
	UnregisterModel(id string) bool
	TouchModel(id string) bool
	ActiveAlerts() []types.MemoryAlert
	AcknowledgeAlert(id string) bool
	DismissAlert(id string) bool
	CreateCustomAlert(level types.AlertLevel, category, title, message string, autoResolve bool) types.MemoryAlert
	RunAlertAction(ctx context.Context, alertID, actionID string) error
	Subscribe() (<-chan guard.Event, func())
}

// NewMux builds the router for a watchdog service.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/memory", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.CurrentMemory())
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.Status())
	})

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.ModelMemory())
	})

	r.Post("/models", func(w http.ResponseWriter, r *http.Request) {
		var info types.ModelMemoryInfo
		if !decodeJSON(w, r, &info) {
			return
		}
		if err := svc.RegisterModel(info); err != nil {
			writeJSONError(w, http.StatusBadRequest, "INVALID_MODEL", err.Error())
			return
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, info)
	})

	r.Delete("/models/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !svc.UnregisterModel(chi.URLParam(r, "id")) {
			writeJSONError(w, http.StatusNotFound, "MODEL_NOT_FOUND", "model not registered")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/models/{id}/touch", func(w http.ResponseWriter, r *http.Request) {
		if !svc.TouchModel(chi.URLParam(r, "id")) {
			writeJSONError(w, http.StatusNotFound, "MODEL_NOT_FOUND", "model not registered")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/alerts", func(w http.ResponseWriter, r *http.Request) {
		alerts := svc.ActiveAlerts()
		if alerts == nil {
			alerts = []types.MemoryAlert{}
		}
		writeJSON(w, map[string]any{"alerts": alerts})
	})

	r.Post("/alerts", func(w http.ResponseWriter, r *http.Request) {
		var req types.CreateAlertRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := validateAlertRequest(req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "INVALID_ALERT", err.Error())
			return
		}
		alert := svc.CreateCustomAlert(req.Level, req.Category, req.Title, req.Message, req.AutoResolve)
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, alert)
	})

	r.Post("/alerts/{id}/ack", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		writeJSON(w, map[string]any{"acknowledged": svc.AcknowledgeAlert(id)})
	})

	r.Delete("/alerts/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !svc.DismissAlert(chi.URLParam(r, "id")) {
			writeJSONError(w, http.StatusNotFound, "ALERT_NOT_FOUND", "alert not active")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Post("/alerts/{id}/actions/{action}", func(w http.ResponseWriter, r *http.Request) {
		joined, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		err := svc.RunAlertAction(joined, chi.URLParam(r, "id"), chi.URLParam(r, "action"))
		if err != nil {
			// Best-effort by contract: the failure is reported, not a 5xx.
			writeJSON(w, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	})

	r.Get("/events", eventsHandler(svc))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Active() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("stopped"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// writeJSON encodes v with the JSON content type.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		if zlog != nil {
			zlog.Error().Err(err).Msg("encode response")
		}
	}
}

// decodeJSON enforces content type and body size, writing the error response
// itself on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "BAD_CONTENT_TYPE", "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "INVALID_JSON", "invalid JSON body")
		return false
	}
	return true
}
