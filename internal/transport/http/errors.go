package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nicovoni/prenotazioni-scuola-project-sub000/internal/domain"
)

// Request-level codes; rejections from the booking core carry their own
// domain codes.
const (
	codeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	codeNotFound           = "NOT_FOUND"
	codeInvalidRequestBody = "INVALID_REQUEST_BODY"
	codeInvalidQuery       = "INVALID_QUERY"
	codeUnauthorized       = "UNAUTHORIZED"
	codeForbidden          = "FORBIDDEN"
	codeInternalError      = "INTERNAL_ERROR"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Available *int   `json:"available,omitempty"`
}

var statusByCode = map[domain.Code]int{
	domain.CodeNotFound:           http.StatusNotFound,
	domain.CodeForbidden:          http.StatusForbidden,
	domain.CodeInactive:           http.StatusConflict,
	domain.CodeKindMismatch:       http.StatusUnprocessableEntity,
	domain.CodeCapacityExceeded:   http.StatusConflict,
	domain.CodeIntervalInvalid:    http.StatusBadRequest,
	domain.CodePolicyWindow:       http.StatusUnprocessableEntity,
	domain.CodePolicyNotice:       http.StatusUnprocessableEntity,
	domain.CodePolicyDuration:     http.StatusUnprocessableEntity,
	domain.CodeStoreUnavailable:   http.StatusServiceUnavailable,
	domain.CodeTimeout:            http.StatusGatewayTimeout,
	domain.CodeInvalidQuantity:    http.StatusBadRequest,
	domain.CodeAlreadyCancelled:   http.StatusConflict,
	domain.CodeConflict:           http.StatusConflict,
	domain.CodeInvariantViolation: http.StatusInternalServerError,
	domain.CodeInvalidArgument:    http.StatusBadRequest,
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeErrorResponse(w, status, errorResponse{Error: msg, Code: code})
}

func writeErrorResponse(w http.ResponseWriter, status int, resp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(resp)
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"INTERNAL_ERROR"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeServiceError renders an error returned by the booking core. Anything
// that is not a typed rejection is logged and hidden behind a 500.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var e *domain.Error
	if !errors.As(err, &e) {
		logger.Error("unexpected service error", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}

	status, ok := statusByCode[e.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	resp := errorResponse{Error: e.Error(), Code: string(e.Code)}
	if e.Code == domain.CodeCapacityExceeded {
		available := e.Available
		resp.Available = &available
	}
	if status >= http.StatusInternalServerError {
		logger.Error("booking operation failed", "code", e.Code, "error", e.Detail)
	}
	writeErrorResponse(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
