package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"msgport/internal/store"
)

const maxWebhookBodyBytes int64 = 1 << 20 // 1 MiB

type errorBody struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details"`
	Retryable bool        `json:"retryable"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, errCode, message string, details interface{}, retryable bool) {
	writeJSON(w, code, errorEnvelope{Error: errorBody{
		Code:      errCode,
		Message:   message,
		Details:   details,
		Retryable: retryable,
	}})
}

func handleStoreErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidInput), errors.Is(err, store.ErrInvalidCursor):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil, false)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil, false)
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil, true)
	}
}

func readBodyLimited(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	return io.ReadAll(r.Body)
}
