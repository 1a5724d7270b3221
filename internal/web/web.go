// Package web holds the small HTTP helpers shared by the context handlers.
package web

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"lendhub/internal/apperr"
)

// CallerHeader carries the acting user's id. Authentication happens upstream.
const CallerHeader = "X-User-ID"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as {"error": ..., "kind": ...}. Internal errors are not
// echoed to the client.
func Error(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	JSON(w, status, map[string]string{"error": msg, "kind": apperr.KindOf(err).String()})
}

// Forbidden writes a 403.
func Forbidden(w http.ResponseWriter, msg string) {
	JSON(w, http.StatusForbidden, map[string]string{"error": msg, "kind": "forbidden"})
}

// Decode reads a JSON body into v.
func Decode(r *http.Request, v any) error {
	if r.Body == nil {
		return apperr.Validation("decode body", "request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("decode body", "request body is required")
		}
		return apperr.Validation("decode body", err.Error())
	}
	return nil
}

// UUIDParam parses a chi route parameter.
func UUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Validation("parse "+name, "invalid "+name)
	}
	return id, nil
}

// CallerID reads the acting user from CallerHeader.
func CallerID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.Header.Get(CallerHeader))
	if raw == "" {
		return uuid.Nil, apperr.Validation("caller", "missing "+CallerHeader+" header")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Validation("caller", "invalid "+CallerHeader+" header")
	}
	return id, nil
}
