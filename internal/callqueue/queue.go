// Package callqueue serializes a batch of confirmation calls so that at
// most one call is outstanding at a time, isolating per-appointment
// failures from the rest of the batch.
package callqueue

import (
	"context"
	"sync"

	"github.com/confirmline/confirmline/internal/appointment"
	"github.com/confirmline/confirmline/internal/telephony"
	"github.com/confirmline/confirmline/pkg/logging"
)

// Snapshot is the queue status wire shape returned by every operation.
type Snapshot struct {
	Active               bool              `json:"active"`
	Cancelled            bool              `json:"cancelled"`
	CurrentAppointmentID *string           `json:"current_appointment_id"`
	QueuedCount          int               `json:"queued_count"`
	DoneCount            int               `json:"done_count"`
	ErrorCount           int               `json:"error_count"`
	Errors               map[string]string `json:"errors"`
}

// Queue drives one batch of appointments through calls sequentially.
// All mutating operations share one mutex: a finished-call webhook can
// race a fresh start request, and both touch the backlog and the
// in-flight pair. Queue state never persists across batches; each Start
// is a full reset.
type Queue struct {
	mu       sync.Mutex
	registry *appointment.Registry
	gateway  telephony.Gateway
	logger   *logging.Logger

	backlog              []string
	override             bool
	currentCallSID       string
	currentAppointmentID string
	active               bool
	cancelled            bool
	done                 []string
	errors               map[string]string
}

func New(registry *appointment.Registry, gateway telephony.Gateway, logger *logging.Logger) *Queue {
	if logger == nil {
		logger = logging.Default()
	}
	return &Queue{
		registry: registry,
		gateway:  gateway,
		logger:   logger.With("component", "callqueue"),
		errors:   make(map[string]string),
	}
}

// Start resets the queue and begins a new batch. Identifiers that don't
// resolve, or whose status makes them ineligible for calling, are
// filtered out up front. When the filtered backlog is non-empty the first
// call is placed immediately.
func (q *Queue) Start(ctx context.Context, appointmentIDs []string, overrideWindow bool) Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	valid := make([]string, 0, len(appointmentIDs))
	for _, id := range appointmentIDs {
		apt, ok := q.registry.Get(id)
		if !ok {
			continue
		}
		if !apt.Status.Callable() {
			continue
		}
		valid = append(valid, id)
	}

	q.backlog = valid
	q.override = overrideWindow
	q.done = nil
	q.errors = make(map[string]string)
	q.cancelled = false
	q.active = len(q.backlog) > 0
	q.currentCallSID = ""
	q.currentAppointmentID = ""

	q.logger.Info("starting batch", "queued", len(q.backlog), "override", overrideWindow)
	if q.active {
		q.advanceLocked(ctx)
	}

	return q.snapshotLocked()
}

// Status returns the current snapshot. Reads take the same lock so a
// concurrent advance can never expose a torn intermediate state.
func (q *Queue) Status() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// Cancel empties the backlog and stops further placements. The in-flight
// call, if any, is allowed to complete naturally.
func (q *Queue) Cancel() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = true
	q.backlog = nil
	q.logger.Info("batch cancelled")
	return q.snapshotLocked()
}

// OnCallFinished is invoked by the call-flow status handler when a call
// reaches a terminal state. Stale or duplicate signals (inactive queue,
// unknown call SID) are no-ops, which makes the operation idempotent.
func (q *Queue) OnCallFinished(callSID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.active {
		return
	}
	if q.currentCallSID != callSID {
		return
	}

	if q.currentAppointmentID != "" {
		q.done = append(q.done, q.currentAppointmentID)
	}
	q.currentCallSID = ""
	q.currentAppointmentID = ""
	q.advanceLocked(context.Background())
}

// advanceLocked pops backlog entries until one call is successfully
// placed or the backlog drains. An explicit loop rather than recursion:
// a backlog of all-invalid identifiers is skipped in bounded iterations.
// Callers must hold q.mu.
func (q *Queue) advanceLocked(ctx context.Context) {
	if q.cancelled {
		q.active = false
		return
	}

	for len(q.backlog) > 0 {
		next := q.backlog[0]
		q.backlog = q.backlog[1:]

		apt, ok := q.registry.Get(next)
		if !ok {
			q.errors[next] = "Appointment not found"
			continue
		}

		q.logger.Info("calling appointment", "appointment_id", next, "patient", apt.PatientName)
		callSID, err := q.gateway.PlaceCall(ctx, next, q.override)
		if err != nil {
			q.errors[next] = err.Error()
			q.logger.Warn("call placement failed", "appointment_id", next, "error", err)
			continue
		}
		if callSID == "" {
			q.errors[next] = "Failed to initiate call"
			continue
		}

		q.currentCallSID = callSID
		q.currentAppointmentID = next
		return
	}

	q.logger.Info("batch complete", "done", len(q.done), "errors", len(q.errors))
	q.active = false
}

func (q *Queue) snapshotLocked() Snapshot {
	var current *string
	if q.currentAppointmentID != "" {
		id := q.currentAppointmentID
		current = &id
	}
	errs := make(map[string]string, len(q.errors))
	for k, v := range q.errors {
		errs[k] = v
	}
	return Snapshot{
		Active:               q.active,
		Cancelled:            q.cancelled,
		CurrentAppointmentID: current,
		QueuedCount:          len(q.backlog),
		DoneCount:            len(q.done),
		ErrorCount:           len(errs),
		Errors:               errs,
	}
}
