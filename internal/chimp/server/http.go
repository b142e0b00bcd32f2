package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/docker/go-units"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/chimp/internal/chimp/metrics"
	"github.com/G-Research/chimp/internal/common/chimperrors"
	"github.com/G-Research/chimp/internal/common/health"
	"github.com/G-Research/chimp/internal/common/requestid"
	"github.com/G-Research/chimp/pkg/api"
)

const maxRequestBodyBytes = units.MiB

type httpHandler struct {
	controller ExperimentController
}

// NewHttpHandler returns the REST surface of the agent. checker backs the /health liveness endpoint.
func NewHttpHandler(controller ExperimentController, checker health.Checker) http.Handler {
	h := &httpHandler{controller: controller}

	r := chi.NewRouter()
	r.Use(requestid.HttpMiddleware, logRequests, middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorReason(w, r, http.StatusNotFound, "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorReason(w, r, http.StatusMethodNotAllowed, r.Method+" is not allowed on "+r.URL.Path)
	})

	r.Post("/experiments", h.start)
	r.Post("/experiments/{id}/stop", h.stop)
	r.Get("/experiments/{id}/status", h.status)
	r.Get("/metrics", h.metrics)
	r.Get("/healthz", h.healthz)
	health.SetupHttpMux(r, checker)
	return r
}

func (h *httpHandler) start(w http.ResponseWriter, r *http.Request) {
	var req api.StartRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorReason(w, r, http.StatusRequestEntityTooLarge,
				"request body exceeds "+units.BytesSize(float64(tooLarge.Limit)))
			return
		}
		writeErrorReason(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if _, err := h.controller.Start(&req); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, &api.StartResponse{Status: api.StatusOk})
}

func (h *httpHandler) stop(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Stop(chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, &api.StopResponse{Status: api.StatusOk})
}

func (h *httpHandler) status(w http.ResponseWriter, r *http.Request) {
	state, err := h.controller.Status(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, state.ToApi())
}

func (h *httpHandler) metrics(w http.ResponseWriter, r *http.Request) {
	text, err := h.controller.Metrics()
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", metrics.ContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(text); err != nil {
		requestLogger(r).WithError(err).Warn("Failed to write metrics response")
	}
}

func (h *httpHandler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.controller.Health().ToApi())
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := chimperrors.HttpStatusFromError(err)
	if code >= http.StatusInternalServerError {
		requestLogger(r).WithError(err).Error("Request failed")
	}
	var internal *chimperrors.ErrInternal
	if errors.As(err, &internal) {
		writeErrorReason(w, r, code, internal.Message)
		return
	}
	writeErrorReason(w, r, code, errors.Cause(err).Error())
}

func writeErrorReason(w http.ResponseWriter, r *http.Request, code int, reason string) {
	writeJSON(w, r, code, &api.ErrorResponse{Status: api.StatusError, Reason: reason})
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		requestLogger(r).WithError(err).Warn("Failed to write response")
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		requestLogger(r).WithFields(log.Fields{
			"status":   ww.Status(),
			"duration": time.Since(start),
		}).Debug("Handled request")
	})
}

func requestLogger(r *http.Request) *log.Entry {
	return log.WithFields(log.Fields{
		"requestId": requestid.FromContextOrMissing(r.Context()),
		"method":    r.Method,
		"path":      r.URL.Path,
	})
}
