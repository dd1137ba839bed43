// Package appointment holds the in-memory appointment registry that every
// call-flow component reads and mutates during a run. Records live for the
// lifetime of one uploaded schedule and are replaced wholesale on the next
// upload.
package appointment

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status tracks where an appointment sits in the confirmation-call lifecycle.
type Status string

const (
	StatusNotConfirmed Status = "Not Confirmed"
	StatusConfirmed    Status = "Confirmed"
	StatusCancelled    Status = "Cancelled"
	StatusDoNotCall    Status = "Do Not Call"
	StatusCalling      Status = "Calling"
	StatusVoicemail    Status = "Voicemail/No Answer"
	StatusRescheduling Status = "Rescheduling"
)

// Callable reports whether an appointment in this status may be enqueued
// for a new call. Confirmed, Cancelled and DoNotCall are sticky terminal
// states; Calling means a call is already in flight.
func (s Status) Callable() bool {
	switch s {
	case StatusConfirmed, StatusCancelled, StatusDoNotCall, StatusCalling:
		return false
	}
	return true
}

// AnsweredBy is the provider-reported classification of what picked up.
// The vocabulary is open (providers add values), so this is a string type
// with helpers rather than a closed enum.
type AnsweredBy string

const AnsweredByHuman AnsweredBy = "human"

// IsMachine reports whether the signal indicates voicemail or a fax line.
func (a AnsweredBy) IsMachine() bool {
	switch a {
	case "machine_start", "machine_end_beep", "machine_end_silence", "machine_end_other", "fax":
		return true
	}
	return false
}

// IsHuman reports whether a person picked up.
func (a AnsweredBy) IsHuman() bool { return a == AnsweredByHuman }

// Appointment is a single scheduled patient visit tracked for
// confirmation-call purposes.
type Appointment struct {
	ID                   string     `json:"id"`
	PatientName          string     `json:"patient_name"`
	Phone                string     `json:"phone"`
	AppointmentTime      string     `json:"appointment_time"`
	AppointmentDate      string     `json:"appointment_date,omitempty"`
	Provider             string     `json:"provider"`
	Type                 string     `json:"appointment_type"`
	Status               Status     `json:"status"`
	OriginalConfirmation string     `json:"original_confirmation"`
	CallSID              string     `json:"call_sid,omitempty"`
	LastCalled           *time.Time `json:"last_called,omitempty"`
	CallAttempts         int        `json:"call_attempts"`
	Notes                string     `json:"notes"`
	LastAnsweredBy       AnsweredBy `json:"last_answered_by,omitempty"`
	NeedsCallback        bool       `json:"needs_callback"`
}

// New builds an appointment with a generated ID, a normalized phone number
// and status NotConfirmed.
func New(patientName, phone, apptTime, provider, apptType, confirmation string) *Appointment {
	return &Appointment{
		ID:                   uuid.NewString(),
		PatientName:          patientName,
		Phone:                NormalizePhone(phone),
		AppointmentTime:      apptTime,
		Provider:             provider,
		Type:                 apptType,
		Status:               StatusNotConfirmed,
		OriginalConfirmation: confirmation,
	}
}

// FirstName returns the patient's first name for use in spoken greetings.
func (a *Appointment) FirstName() string {
	fields := strings.Fields(a.PatientName)
	if len(fields) == 0 {
		return "patient"
	}
	return fields[0]
}

// NormalizePhone strips a raw phone string down to digits and returns an
// E.164-style value. Ten-digit numbers are assumed US and get a leading 1.
func NormalizePhone(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	cleaned := digits.String()
	if cleaned == "" {
		return ""
	}
	if len(cleaned) == 10 {
		cleaned = "1" + cleaned
	}
	return "+" + cleaned
}
