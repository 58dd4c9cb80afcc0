package reporting

import (
	"context"
	"errors"
)

var (
	// ErrScopeViolation indicates a missing, unresolvable or inactive tenant.
	ErrScopeViolation = errors.New("reporting: scope violation")
	// ErrEmptyWindow indicates an invalid date window or missing as-of date.
	ErrEmptyWindow = errors.New("reporting: empty window")
	// ErrUnknownKind indicates a report kind outside the supported set.
	ErrUnknownKind = errors.New("reporting: unknown report kind")
	// ErrInvalidOptions indicates a request option outside its allowed range.
	ErrInvalidOptions = errors.New("reporting: invalid options")
	// ErrUnknownAccount indicates a ledger entry whose account code is not in the chart.
	ErrUnknownAccount = errors.New("reporting: unknown account")
	// ErrTimeout indicates the record store did not answer within the read timeout.
	ErrTimeout = errors.New("reporting: data source timeout")
)

// IsValidation reports whether err is a request validation failure that was
// raised before any data was read.
func IsValidation(err error) bool {
	return errors.Is(err, ErrScopeViolation) ||
		errors.Is(err, ErrEmptyWindow) ||
		errors.Is(err, ErrUnknownKind) ||
		errors.Is(err, ErrInvalidOptions)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
