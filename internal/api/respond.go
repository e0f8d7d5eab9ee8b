package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"larpx402/internal/launch"
	"larpx402/internal/storage"
)

const maxJSONBody = 1 << 20

// envelope mirrors the aggregator's {success, response, error} shape.
type envelope struct {
	Success  bool        `json:"success"`
	Response interface{} `json:"response,omitempty"`
	Error    string      `json:"error,omitempty"`

	Kind           string `json:"kind,omitempty"`
	Field          string `json:"field,omitempty"`
	UpstreamStatus int    `json:"upstreamStatus,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, status int, v interface{}) {
	writeJSON(w, status, envelope{Success: true, Response: v})
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, envelope{Error: msg, Kind: kind})
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

// fail maps err to a status code and writes it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var le *launch.Error
	switch {
	case errors.As(err, &le):
		env := envelope{
			Error: err.Error(),
			Kind:  string(le.Kind),
			Field: le.Field,
		}
		if le.Message != "" {
			env.Error = le.Message
		}
		if le.Kind == launch.KindUpstreamRejected {
			env.UpstreamStatus = le.Status
		}
		writeJSON(w, launchStatus(le.Kind), env)
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, storage.ErrDuplicateKey):
		writeError(w, http.StatusConflict, "duplicate", err.Error())
	case errors.Is(err, storage.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads this
		writeError(w, http.StatusServiceUnavailable, "canceled", err.Error())
	default:
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func launchStatus(k launch.ErrorKind) int {
	switch {
	case k == launch.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case k.IsValidation():
		return http.StatusBadRequest
	case k == launch.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case k == launch.KindUpstreamRejected, k == launch.KindMalformedUpstreamResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, string(launch.KindPayloadTooLarge), "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func parseIntDefault(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
