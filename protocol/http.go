package protocol

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aluiziolira/go-extract-catalog/distributor"
)

type invokeRequest struct {
	Tool   string          `json:"tool"`
	Params json.RawMessage `json:"params"`
}

type invokeResponse struct {
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Class  string `json:"class,omitempty"`
}

// NewServer mounts one tool handler per distributor under
// POST /invoke/<distributor>.
func NewServer(handlers map[string]*Handler) http.Handler {
	mux := http.NewServeMux()
	for identifier, handler := range handlers {
		mux.Handle("/invoke/"+identifier, invokeEndpoint(handler))
	}
	return mux
}

func invokeEndpoint(h *Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req invokeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, invokeResponse{OK: false, Error: "invalid request body"})
			return
		}
		if strings.TrimSpace(req.Tool) == "" {
			writeJSON(w, http.StatusBadRequest, invokeResponse{OK: false, Error: "tool is required"})
			return
		}

		result, err := h.Invoke(r.Context(), req.Tool, req.Params)
		if err != nil {
			// extract_catalog can fail after exporting a partial result;
			// keep the payload so the caller gets both.
			writeJSON(w, statusFor(err), invokeResponse{
				OK:     false,
				Result: result,
				Error:  err.Error(),
				Class:  distributor.ClassLabel(err),
			})
			return
		}
		writeJSON(w, http.StatusOK, invokeResponse{OK: true, Result: result})
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnknownTool):
		return http.StatusNotFound
	case errors.Is(err, ErrNotAuthenticated):
		return http.StatusUnauthorized
	}
	var auth distributor.AuthError
	if errors.As(err, &auth) {
		return http.StatusUnauthorized
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, body invokeResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("write invoke response", slog.Any("error", err))
	}
}
