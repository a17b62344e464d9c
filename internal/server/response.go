package server

import (
	"encoding/json"
	"net/http"

	"github.com/roach88/anchor/internal/world"
)

// Error codes the service emits besides the world and schema codes.
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeReadOnly       = "READ_ONLY"
	ErrCodeQueueClosed    = "QUEUE_CLOSED"
	ErrCodeInternal       = "INTERNAL"
)

// Response is the JSON envelope of every endpoint.
type Response struct {
	Status string     `json:"status"`
	Data   any        `json:"data,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a rejected request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Response{Status: "ok", Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Response{
		Status: "error",
		Error:  &ErrorBody{Code: code, Message: message},
	})
}

// diffStatus maps diff protocol errors onto HTTP statuses.
func diffStatus(code world.DiffErrorCode) int {
	switch code {
	case world.ErrCodeMissingParameter, world.ErrCodeParseError:
		return http.StatusBadRequest
	case world.ErrCodeUnknownChecksum:
		return http.StatusNotFound
	case world.ErrCodeChecksumTooOld:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func writeDiffError(w http.ResponseWriter, err error) {
	code := world.ErrorCode(err)
	if code == "" {
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	writeError(w, diffStatus(code), string(code), err.Error())
}
