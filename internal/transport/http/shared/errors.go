package shared

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	dErrors "fintech-id/pkg/domain-errors"
)

const (
	internalMessage = "internal server error"
	maxBodyBytes    = 1 << 20
)

// ErrorResponse is the body of every rejected request.
type ErrorResponse struct {
	ErrorMessage string `json:"errorMessage"`
}

// StatusFor maps a domain error code to an HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeTooManyRequests:
		return http.StatusTooManyRequests
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as {"errorMessage": ...}. Internal errors and errors
// without a domain code never expose their message.
func WriteError(w http.ResponseWriter, err error) {
	de, ok := dErrors.From(err)
	if !ok {
		WriteJSON(w, http.StatusInternalServerError, ErrorResponse{ErrorMessage: internalMessage})
		return
	}
	status := StatusFor(de.Code)
	msg := de.Message
	if status == http.StatusInternalServerError && de.Code != dErrors.CodeTokenGeneration {
		msg = internalMessage
	}
	WriteJSON(w, status, ErrorResponse{ErrorMessage: msg})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON reads a single JSON object from the request body. Malformed
// bodies become bad_request errors.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return dErrors.New(dErrors.CodeBadRequest, "request body is required")
		}
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}
