// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors shared by HTTP adapters.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// ErrorMapping translates errors matching Target into a problem response.
type ErrorMapping struct {
	Target error
	Status int
	Title  string
}

var baseMappings = []ErrorMapping{
	{Target: ErrNotFound, Status: http.StatusNotFound, Title: "Not Found"},
	{Target: ErrValidation, Status: http.StatusBadRequest, Title: "Validation Failed"},
	{Target: ErrForbidden, Status: http.StatusForbidden, Title: "Forbidden"},
	{Target: ErrUnauthorized, Status: http.StatusUnauthorized, Title: "Unauthorized"},
}

// StatusFor returns the status and title for err. Extra mappings are checked
// before the shared sentinels; anything unmatched is a 500.
func StatusFor(err error, mappings ...ErrorMapping) (int, string) {
	for _, set := range [][]ErrorMapping{mappings, baseMappings} {
		for _, m := range set {
			if errors.Is(err, m.Target) {
				return m.Status, m.Title
			}
		}
	}
	return http.StatusInternalServerError, "Internal Error"
}

// RespondError maps errors to HTTP responses using RFC7807. Internal errors
// never leak their message.
func RespondError(w http.ResponseWriter, err error, mappings ...ErrorMapping) {
	status, title := StatusFor(err, mappings...)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = ""
	}
	Problem(w, status, title, detail)
}
