// Package telephony wraps the external call-placement provider behind a
// narrow gateway plus pure script builders, so the call-flow core never
// imports the provider SDK directly.
package telephony

import (
	"context"
	"errors"
)

var (
	// ErrNotConfigured means telephony credentials are missing. Fatal for
	// call placement, never silently retried.
	ErrNotConfigured = errors.New("telephony: credentials not configured")
	// ErrOutsideCallWindow means placement was refused by the call-window
	// policy and the override flag was not set.
	ErrOutsideCallWindow = errors.New("telephony: outside call window")
	// ErrUnknownAppointment means the appointment ID did not resolve.
	ErrUnknownAppointment = errors.New("telephony: appointment not found")
	// ErrNotCallable means the appointment's status excludes it from
	// further calls (already confirmed, cancelled, opted out, or a call
	// is in flight).
	ErrNotCallable = errors.New("telephony: appointment not callable")
)

// Gateway places outbound calls. PlaceCall either returns the provider's
// call SID synchronously or fails fast; call completion arrives later via
// webhook events.
type Gateway interface {
	PlaceCall(ctx context.Context, appointmentID string, overrideWindow bool) (string, error)
}
