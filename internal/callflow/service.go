// Package callflow interprets inbound telephony events and decides the
// next voice script plus any appointment-status transition. State is read
// from and written to the appointment registry directly, keyed by call
// SID; the package holds no per-call state of its own.
package callflow

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/confirmline/confirmline/internal/appointment"
	"github.com/confirmline/confirmline/internal/calllog"
	"github.com/confirmline/confirmline/internal/observability/metrics"
	"github.com/confirmline/confirmline/internal/store"
	"github.com/confirmline/confirmline/internal/telephony"
	"github.com/confirmline/confirmline/pkg/logging"
)

// maxMenuAttempts is how many times the voice menu replays before the
// call gives up with a "we'll try again later".
const maxMenuAttempts = 3

// CallFinisher receives the terminal-call signal so the queue can
// advance. The queue implements it; the interface breaks what would
// otherwise be a dependency cycle between the two packages.
type CallFinisher interface {
	OnCallFinished(callSID string)
}

// VoiceEntryEvent is the provider's request for the next voice script
// when a call connects or re-enters the menu.
type VoiceEntryEvent struct {
	CallSID    string
	AnsweredBy appointment.AnsweredBy
	Attempt    int
}

// GatherEvent carries the touch-tone digit the patient pressed and the
// menu attempt the gather action URL was built with.
type GatherEvent struct {
	CallSID string
	Digits  string
	Attempt int
}

// DialStatusEvent reports the outcome of the bridged office transfer.
type DialStatusEvent struct {
	CallSID        string
	DialCallStatus string
}

// StatusEvent is the asynchronous call-status callback; the authoritative
// place where outcomes the live menu did not resolve get finalized.
type StatusEvent struct {
	CallSID    string
	CallStatus string
	AnsweredBy appointment.AnsweredBy
}

// Service is the call-flow state machine.
type Service struct {
	registry   *appointment.Registry
	scripts    *telephony.ScriptBuilder
	fromNumber string
	queue      CallFinisher
	events     *calllog.Store
	audit      *store.Store
	metrics    *metrics.CallMetrics
	logger     *logging.Logger
	tracer     trace.Tracer
}

func NewService(
	registry *appointment.Registry,
	scripts *telephony.ScriptBuilder,
	fromNumber string,
	queue CallFinisher,
	events *calllog.Store,
	audit *store.Store,
	callMetrics *metrics.CallMetrics,
	logger *logging.Logger,
) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		registry:   registry,
		scripts:    scripts,
		fromNumber: fromNumber,
		queue:      queue,
		events:     events,
		audit:      audit,
		metrics:    callMetrics,
		logger:     logger.With("component", "callflow"),
		tracer:     otel.Tracer("confirmline.internal.callflow"),
	}
}

// VoiceEntry decides the script for a connecting or re-entering call.
// Machine/fax pickups get the one-shot voicemail message with no status
// change here; the later status callback finalizes the outcome. Exhausted
// attempts end the call politely.
func (s *Service) VoiceEntry(ctx context.Context, ev VoiceEntryEvent) (doc string) {
	defer s.recoverToFallback(&doc, "voice", ev.CallSID)

	ctx, span := s.tracer.Start(ctx, "callflow.voice_entry")
	defer span.End()
	span.SetAttributes(
		attribute.String("confirmline.call_sid", ev.CallSID),
		attribute.String("confirmline.answered_by", string(ev.AnsweredBy)),
		attribute.Int("confirmline.attempt", ev.Attempt),
	)

	attempt := ev.Attempt
	if attempt < 1 {
		attempt = 1
	}

	var apt *appointment.Appointment
	if found, ok := s.registry.ByCallSID(ev.CallSID); ok {
		apt = &found
	}

	s.appendEvent(ctx, ev.CallSID, calllog.Event{
		Kind:       "voice",
		AnsweredBy: string(ev.AnsweredBy),
		Attempt:    attempt,
	})

	var err error
	switch {
	case ev.AnsweredBy.IsMachine():
		doc, err = s.scripts.Voicemail(apt)
	case attempt > maxMenuAttempts:
		doc, err = s.scripts.RetryLater()
	default:
		doc, err = s.scripts.InitialMenu(apt, attempt)
	}
	if err != nil {
		s.logger.Error("failed to build voice script", "call_sid", ev.CallSID, "error", err)
		return s.scripts.TechnicalDifficulty()
	}
	return doc
}

// Gather applies the patient's menu selection. Unknown call SIDs get a
// goodbye with no mutation; the provider may deliver stale callbacks.
func (s *Service) Gather(ctx context.Context, ev GatherEvent) (doc string) {
	defer s.recoverToFallback(&doc, "gather", ev.CallSID)

	ctx, span := s.tracer.Start(ctx, "callflow.gather")
	defer span.End()
	span.SetAttributes(
		attribute.String("confirmline.call_sid", ev.CallSID),
		attribute.String("confirmline.digits", ev.Digits),
		attribute.Int("confirmline.attempt", ev.Attempt),
	)

	attempt := ev.Attempt
	if attempt < 1 {
		attempt = 1
	}

	s.appendEvent(ctx, ev.CallSID, calllog.Event{Kind: "gather", Digits: ev.Digits, Attempt: attempt})

	if _, ok := s.registry.ByCallSID(ev.CallSID); !ok {
		s.logger.Warn("gather for unknown call", "call_sid", ev.CallSID)
		return s.build(s.scripts.Goodbye())
	}

	s.metrics.ObserveMenuSelection(ev.Digits)

	switch ev.Digits {
	case "1":
		s.setStatus(ctx, ev.CallSID, appointment.StatusConfirmed)
		return s.build(s.scripts.Confirmation())
	case "2":
		s.setStatus(ctx, ev.CallSID, appointment.StatusRescheduling)
		return s.build(s.scripts.HoldAndTransfer(s.fromNumber))
	case "3":
		s.setStatus(ctx, ev.CallSID, appointment.StatusCancelled)
		return s.build(s.scripts.Cancellation())
	case "5":
		return s.build(s.scripts.Repeat())
	case "9":
		s.setStatus(ctx, ev.CallSID, appointment.StatusDoNotCall)
		return s.build(s.scripts.OptOut())
	default:
		// Wrong key; re-enter the menu without consuming an attempt.
		return s.build(s.scripts.InvalidSelection(attempt))
	}
}

// EmptyGather re-enters the voice menu as attempt 2 when the gather
// posted no digits at all.
func (s *Service) EmptyGather(ctx context.Context, callSID string) (doc string) {
	defer s.recoverToFallback(&doc, "gather", callSID)

	s.appendEvent(ctx, callSID, calllog.Event{Kind: "gather", Note: "no digits received"})
	return s.build(s.scripts.EmptyInputRedirect())
}

// DialStatus handles the bridged transfer outcome. The appointment was
// already marked Rescheduling when the transfer started, so there is no
// mutation here; a failed bridge gets an apology and the call ends.
func (s *Service) DialStatus(ctx context.Context, ev DialStatusEvent) (doc string) {
	defer s.recoverToFallback(&doc, "dial-status", ev.CallSID)

	ctx, span := s.tracer.Start(ctx, "callflow.dial_status")
	defer span.End()
	span.SetAttributes(
		attribute.String("confirmline.call_sid", ev.CallSID),
		attribute.String("confirmline.dial_status", ev.DialCallStatus),
	)

	s.appendEvent(ctx, ev.CallSID, calllog.Event{Kind: "dial-status", CallStatus: ev.DialCallStatus})

	return s.build(s.scripts.TransferFallback(ev.DialCallStatus == "completed"))
}

// StatusCallback finalizes call outcomes the live menu did not resolve.
// The answered-by signal is recorded verbatim regardless of outcome;
// status and notes change only while the appointment is still Calling,
// so a patient who already pressed 1 keeps Confirmed when the delayed
// completion event arrives. Terminal statuses always signal the queue,
// even when the menu path already resolved the appointment.
func (s *Service) StatusCallback(ctx context.Context, ev StatusEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("status handler panicked", "call_sid", ev.CallSID, "panic", r)
		}
	}()

	ctx, span := s.tracer.Start(ctx, "callflow.status_callback")
	defer span.End()
	span.SetAttributes(
		attribute.String("confirmline.call_sid", ev.CallSID),
		attribute.String("confirmline.call_status", ev.CallStatus),
		attribute.String("confirmline.answered_by", string(ev.AnsweredBy)),
	)

	s.appendEvent(ctx, ev.CallSID, calllog.Event{
		Kind:       "status",
		CallStatus: ev.CallStatus,
		AnsweredBy: string(ev.AnsweredBy),
	})

	found := s.registry.UpdateByCallSID(ev.CallSID, func(apt *appointment.Appointment) {
		apt.LastAnsweredBy = ev.AnsweredBy
		if apt.Status != appointment.StatusCalling {
			return
		}

		switch ev.CallStatus {
		case "completed":
			switch {
			case ev.AnsweredBy.IsMachine():
				apt.Status = appointment.StatusVoicemail
				apt.Notes = "Left voicemail"
				apt.NeedsCallback = false
			case ev.AnsweredBy.IsHuman():
				apt.Status = appointment.StatusNotConfirmed
				apt.Notes = "Answered by human - no selection"
				apt.NeedsCallback = true
			default:
				apt.Status = appointment.StatusNotConfirmed
				apt.Notes = "Call completed - no response"
				apt.NeedsCallback = false
			}
		case "no-answer", "busy":
			apt.Status = appointment.StatusNotConfirmed
			apt.Notes = fmt.Sprintf("Call %s", ev.CallStatus)
			apt.NeedsCallback = false
		case "failed", "cancelled", "canceled":
			apt.Status = appointment.StatusNotConfirmed
			apt.Notes = fmt.Sprintf("Call failed: %s", ev.CallStatus)
			apt.NeedsCallback = false
		}
	})
	if !found {
		// Providers deliver duplicate and late callbacks; never an error.
		s.logger.Warn("status callback for unknown call", "call_sid", ev.CallSID, "call_status", ev.CallStatus)
	} else if isTerminalCallStatus(ev.CallStatus) {
		s.persistOutcome(ctx, ev.CallSID)
	}

	if isTerminalCallStatus(ev.CallStatus) && s.queue != nil {
		s.queue.OnCallFinished(ev.CallSID)
	}
}

// isTerminalCallStatus accepts both provider spellings of cancelled.
func isTerminalCallStatus(status string) bool {
	switch status {
	case "completed", "no-answer", "busy", "failed", "canceled", "cancelled":
		return true
	}
	return false
}

func (s *Service) setStatus(ctx context.Context, callSID string, status appointment.Status) {
	if !s.registry.UpdateByCallSID(callSID, func(apt *appointment.Appointment) {
		apt.Status = status
	}) {
		s.logger.Warn("status change for unknown call", "call_sid", callSID, "status", string(status))
		return
	}
	s.persistOutcome(ctx, callSID)
}

// persistOutcome writes the appointment's current status and notes
// through to the audit store. The registry stays authoritative; a write
// failure is logged and forgotten.
func (s *Service) persistOutcome(ctx context.Context, callSID string) {
	apt, ok := s.registry.ByCallSID(callSID)
	if !ok {
		return
	}
	if err := s.audit.UpdateStatus(ctx, apt.ID, apt.Status, apt.Notes); err != nil {
		s.logger.Error("failed to persist call outcome", "appointment_id", apt.ID, "error", err)
	}
}

// build unwraps a script-builder result, degrading to the
// technical-difficulty script so the provider always gets valid TwiML.
func (s *Service) build(doc string, err error) string {
	if err != nil {
		s.logger.Error("failed to build script", "error", err)
		return s.scripts.TechnicalDifficulty()
	}
	return doc
}

func (s *Service) recoverToFallback(doc *string, kind, callSID string) {
	if r := recover(); r != nil {
		s.logger.Error("call event handler panicked", "kind", kind, "call_sid", callSID, "panic", r)
		*doc = s.scripts.TechnicalDifficulty()
	}
}

// appendEvent records the webhook event in the short-lived event log and
// the durable call history. Both sinks are optional and best effort.
func (s *Service) appendEvent(ctx context.Context, callSID string, event calllog.Event) {
	if err := s.events.Append(ctx, callSID, event); err != nil {
		s.logger.Debug("call event not recorded", "call_sid", callSID, "error", err)
	}

	apt, ok := s.registry.ByCallSID(callSID)
	if !ok {
		return
	}
	err := s.audit.LogCall(ctx, store.CallRecord{
		AppointmentID: apt.ID,
		CallSID:       callSID,
		Event:         event.Kind,
		CallStatus:    event.CallStatus,
		AnsweredBy:    event.AnsweredBy,
		Digits:        event.Digits,
	})
	if err != nil {
		s.logger.Error("failed to log call event", "call_sid", callSID, "error", err)
	}
}
