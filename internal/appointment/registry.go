package appointment

import (
	"sort"
	"sync"
	"time"
)

// Registry is the single source of truth for appointment state during a
// run. It also owns the call-SID to appointment-ID index used to resolve
// inbound telephony events, which carry only the call SID.
//
// Reads hand out copies; mutation happens under the lock through Update
// closures so handlers never share a bare pointer.
type Registry struct {
	mu           sync.RWMutex
	appointments map[string]*Appointment
	callIndex    map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		appointments: make(map[string]*Appointment),
		callIndex:    make(map[string]string),
	}
}

// Add registers an appointment, replacing any record with the same ID.
func (r *Registry) Add(apt *Appointment) {
	if apt == nil || apt.ID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *apt
	r.appointments[apt.ID] = &cp
}

// Get returns a copy of the appointment with the given ID.
func (r *Registry) Get(id string) (Appointment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	apt, ok := r.appointments[id]
	if !ok {
		return Appointment{}, false
	}
	return *apt, true
}

// ByCallSID resolves a provider call SID to a copy of its appointment.
func (r *Registry) ByCallSID(callSID string) (Appointment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.callIndex[callSID]
	if !ok {
		return Appointment{}, false
	}
	apt, ok := r.appointments[id]
	if !ok {
		return Appointment{}, false
	}
	return *apt, true
}

// Update applies fn to the appointment with the given ID under the lock.
// It returns false when the ID is unknown.
func (r *Registry) Update(id string, fn func(*Appointment)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	apt, ok := r.appointments[id]
	if !ok {
		return false
	}
	fn(apt)
	return true
}

// UpdateByCallSID applies fn to the appointment mapped to callSID.
func (r *Registry) UpdateByCallSID(callSID string, fn func(*Appointment)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.callIndex[callSID]
	if !ok {
		return false
	}
	apt, ok := r.appointments[id]
	if !ok {
		return false
	}
	fn(apt)
	return true
}

// RecordCallPlaced writes the call index entry and marks the appointment
// as Calling. The attempt counter increments exactly once per placed call;
// menu retries within the same call never come through here.
func (r *Registry) RecordCallPlaced(callSID, appointmentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	apt, ok := r.appointments[appointmentID]
	if !ok {
		return false
	}
	r.callIndex[callSID] = appointmentID
	now := time.Now().UTC()
	apt.CallSID = callSID
	apt.CallAttempts++
	apt.Status = StatusCalling
	apt.LastCalled = &now
	return true
}

// All returns copies of every appointment, ordered by appointment time
// then patient name for stable listings.
func (r *Registry) All() []Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Appointment, 0, len(r.appointments))
	for _, apt := range r.appointments {
		out = append(out, *apt)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AppointmentTime != out[j].AppointmentTime {
			return out[i].AppointmentTime < out[j].AppointmentTime
		}
		return out[i].PatientName < out[j].PatientName
	})
	return out
}

// Len returns the number of registered appointments.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.appointments)
}

// Clear drops every appointment and call index entry. Called when a new
// schedule upload replaces the working set.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointments = make(map[string]*Appointment)
	r.callIndex = make(map[string]string)
}
