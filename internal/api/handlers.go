package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dverna/verita/internal/auth"
	"github.com/dverna/verita/pkg/types"
)

type Handler struct {
	Auth    auth.Authenticator
	Service *ReviewService
}

func NewRouter(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/reviews", h.Reviews)
	mux.HandleFunc("/v1/reviews/", h.ReviewByID)
	mux.HandleFunc("/v1/verify/", h.Verify)
	mux.HandleFunc("/v1/pack/", h.Pack)
	mux.HandleFunc("/healthz", h.Health)
	return mux
}

func (h *Handler) Reviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if !h.ensureAuth(w, r) {
		return
	}
	if h.Service == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "review service not configured"})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body: " + err.Error()})
		return
	}

	resp, err := h.Service.Submit(r.Context(), body, time.Now())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type decisionsRequest struct {
	Decisions []types.ReviewDecision `json:"decisions"`
	Reviewer  string                 `json:"reviewer,omitempty"`
}

func (h *Handler) ReviewByID(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if h.Service == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "review service not configured"})
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1/reviews/")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing run_id"})
		return
	}

	if runID, ok := strings.CutSuffix(path, "/decisions"); ok {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		h.decisions(w, r, runID)
		return
	}

	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	resp, err := h.Service.GetRun(path)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) decisions(w http.ResponseWriter, r *http.Request, runID string) {
	var req decisionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	for i := range req.Decisions {
		if req.Decisions[i].Reviewer == "" {
			req.Decisions[i].Reviewer = req.Reviewer
		}
	}

	resp, err := h.Service.ApplyDecisions(r.Context(), runID, req.Decisions, time.Now())
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if h.Service == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "review service not configured"})
		return
	}

	receiptID := strings.TrimPrefix(r.URL.Path, "/v1/verify/")
	if receiptID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing receipt_id"})
		return
	}

	resp, err := h.Service.Verify(receiptID)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Pack(w http.ResponseWriter, r *http.Request) {
	if !h.ensureAuth(w, r) {
		return
	}
	if h.Service == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "review service not configured"})
		return
	}

	runID := strings.TrimPrefix(r.URL.Path, "/v1/pack/")
	if runID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing run_id"})
		return
	}

	baseURL := ""
	if r.Host != "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		baseURL = scheme + "://" + r.Host
	}

	zipBytes, err := h.Service.BuildPack(runID, baseURL)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename=verita-pack.zip")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(zipBytes)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ensureAuth(w http.ResponseWriter, r *http.Request) bool {
	_, err := h.Auth.Authenticate(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

func statusFor(err error) int {
	if errors.Is(err, ErrRunNotFound) || errors.Is(err, ErrReceiptNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
