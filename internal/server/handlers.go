// File: internal/server/handlers.go
package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/barrier-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// userHeader names the caller whose scan requests are created. Authentication happens upstream.
const userHeader = "X-Barrier-User"

// maxBodyBytes bounds request payloads; step lists are the largest legitimate input.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

type runRequest struct {
	IDs    []string `json:"scanRequestIdList"`
	URLs   []string `json:"urls,omitempty"`
	Device string   `json:"device,omitempty"`
}

type scheduleRequest struct {
	IDs           []string `json:"scanRequestIdList"`
	ScheduledTime string   `json:"scheduledTime"`
}

type deleteRequest struct {
	IDs []string `json:"scanRequestIds"`
}

type handler struct {
	api         API
	logger      *zap.Logger
	defaultUser string
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps core errors to HTTP statuses. Internal details are logged, not returned.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, schemas.ErrValidation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, schemas.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	default:
		h.logger.Error("Request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return &badRequest{err}
	}
	return nil
}

type badRequest struct{ err error }

func (e *badRequest) Error() string { return "invalid request body: " + e.err.Error() }
func (e *badRequest) Unwrap() error { return schemas.ErrValidation }

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) createScan(w http.ResponseWriter, r *http.Request) {
	var in schemas.CreateScanInput
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	in.Username = strings.TrimSpace(r.Header.Get(userHeader))
	if in.Username == "" {
		in.Username = h.defaultUser
	}

	req, err := h.api.CreateScan(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"request_id": req.ID,
		"urls":       req.URLs,
	})
}

func (h *handler) listScans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	requests, err := h.api.ListScans(r.Context(), schemas.ScanFilter{
		Username:  q.Get("username"),
		ProjectID: q.Get("projectID"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if requests == nil {
		requests = []schemas.ScanRequest{}
	}
	writeJSON(w, http.StatusOK, requests)
}

func (h *handler) getScan(w http.ResponseWriter, r *http.Request) {
	req, err := h.api.GetScan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *handler) editScan(w http.ResponseWriter, r *http.Request) {
	var in schemas.EditScanInput
	if err := decode(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	in.ID = chi.URLParam(r, "id")

	if err := h.api.EditScan(r.Context(), in); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Scan request updated."})
}

func (h *handler) deleteScan(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, []string{chi.URLParam(r, "id")})
}

func (h *handler) deleteScans(w http.ResponseWriter, r *http.Request) {
	var body deleteRequest
	if err := decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.delete(w, r, body.IDs)
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request, ids []string) {
	deleted, err := h.api.DeleteScans(r.Context(), ids)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if deleted == 0 {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "No records found for the given scanRequestIds."})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deletedCount": deleted})
}

func (h *handler) runScans(w http.ResponseWriter, r *http.Request) {
	var body runRequest
	if err := decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	outcomes, err := h.api.RunScans(r.Context(), body.IDs, body.URLs, body.Device)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"res": outcomes})
}

func (h *handler) scheduleScans(w http.ResponseWriter, r *http.Request) {
	var body scheduleRequest
	if err := decode(w, r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	outcomes, err := h.api.ScheduleScans(r.Context(), body.IDs, body.ScheduledTime)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"res": outcomes})
}

func (h *handler) sweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.api.Sweep(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handler) urls(w http.ResponseWriter, r *http.Request) {
	urls, err := h.api.URLs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if urls == nil {
		urls = []string{}
	}
	writeJSON(w, http.StatusOK, urls)
}

func (h *handler) score(w http.ResponseWriter, r *http.Request) {
	score, err := h.api.Score(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"accessibilityScore": score})
}

func (h *handler) report(w http.ResponseWriter, r *http.Request) {
	report, err := h.api.Report(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handler) devices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.api.Devices(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (h *handler) guidance(w http.ResponseWriter, r *http.Request) {
	levels, err := h.api.Guidance(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, levels)
}
