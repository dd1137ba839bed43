// Package store persists the confirmation-run audit trail in Postgres.
// The registry stays authoritative for live call-flow state; this store
// is write-behind history so outcomes survive restarts. Every method is
// safe on a nil *Store, which is how deployments without a database run.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/confirmline/confirmline/internal/appointment"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

// EnsureSchema creates the audit tables when they do not exist yet.
// Single-tenant deployment, so plain DDL beats a migration framework.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil {
		return nil
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS appointments (
			id TEXT PRIMARY KEY,
			patient_name TEXT NOT NULL,
			phone TEXT NOT NULL,
			appointment_time TEXT NOT NULL,
			appointment_date TEXT NOT NULL DEFAULT '',
			provider TEXT NOT NULL DEFAULT '',
			appointment_type TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			original_confirmation TEXT NOT NULL DEFAULT '',
			call_attempts INT NOT NULL DEFAULT 0,
			notes TEXT NOT NULL DEFAULT '',
			needs_callback BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS call_history (
			id BIGSERIAL PRIMARY KEY,
			appointment_id TEXT NOT NULL,
			call_sid TEXT NOT NULL,
			event TEXT NOT NULL,
			call_status TEXT NOT NULL DEFAULT '',
			answered_by TEXT NOT NULL DEFAULT '',
			digits TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS upload_history (
			id BIGSERIAL PRIMARY KEY,
			filename TEXT NOT NULL,
			size_bytes BIGINT NOT NULL,
			appointment_count INT NOT NULL,
			uploaded_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: ensure schema: %w", err)
		}
	}
	return nil
}

// SaveAppointment upserts the appointment's current state keyed by ID.
func (s *Store) SaveAppointment(ctx context.Context, apt appointment.Appointment) error {
	if s == nil {
		return nil
	}
	query := `
		INSERT INTO appointments (
			id, patient_name, phone, appointment_time, appointment_date,
			provider, appointment_type, status, original_confirmation,
			call_attempts, notes, needs_callback, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now())
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
			call_attempts = EXCLUDED.call_attempts,
			notes = EXCLUDED.notes,
			needs_callback = EXCLUDED.needs_callback,
			updated_at = now()
	`
	_, err := s.pool.Exec(ctx, query,
		apt.ID, apt.PatientName, apt.Phone, apt.AppointmentTime, apt.AppointmentDate,
		apt.Provider, apt.Type, string(apt.Status), apt.OriginalConfirmation,
		apt.CallAttempts, apt.Notes, apt.NeedsCallback)
	if err != nil {
		return fmt.Errorf("store: save appointment: %w", err)
	}
	return nil
}

// UpdateStatus records a status transition without rewriting the row.
func (s *Store) UpdateStatus(ctx context.Context, appointmentID string, status appointment.Status, notes string) error {
	if s == nil {
		return nil
	}
	query := `
		UPDATE appointments
		SET status = $2, notes = $3, updated_at = now()
		WHERE id = $1
	`
	_, err := s.pool.Exec(ctx, query, appointmentID, string(status), notes)
	if err != nil {
		return fmt.Errorf("store: update status: %w", err)
	}
	return nil
}

// CallRecord is one row of per-call history.
type CallRecord struct {
	AppointmentID string
	CallSID       string
	Event         string
	CallStatus    string
	AnsweredBy    string
	Digits        string
}

// LogCall appends a call-history row.
func (s *Store) LogCall(ctx context.Context, rec CallRecord) error {
	if s == nil {
		return nil
	}
	query := `
		INSERT INTO call_history (appointment_id, call_sid, event, call_status, answered_by, digits)
		VALUES ($1,$2,$3,$4,$5,$6)
	`
	_, err := s.pool.Exec(ctx, query,
		rec.AppointmentID, rec.CallSID, rec.Event, rec.CallStatus, rec.AnsweredBy, rec.Digits)
	if err != nil {
		return fmt.Errorf("store: log call: %w", err)
	}
	return nil
}

// CallHistoryRecord is one call-history row read back for an appointment.
type CallHistoryRecord struct {
	ID            int64     `json:"id"`
	AppointmentID string    `json:"appointment_id"`
	CallSID       string    `json:"call_sid"`
	Event         string    `json:"event"`
	CallStatus    string    `json:"call_status"`
	AnsweredBy    string    `json:"answered_by"`
	Digits        string    `json:"digits"`
	CreatedAt     time.Time `json:"created_at"`
}

// CallHistory lists the recorded call events for one appointment, oldest
// first. History outlives the in-memory registry across restarts.
func (s *Store) CallHistory(ctx context.Context, appointmentID string, limit int) ([]CallHistoryRecord, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, appointment_id, call_sid, event, call_status, answered_by, digits, created_at
		FROM call_history
		WHERE appointment_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, appointmentID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: call history: %w", err)
	}
	defer rows.Close()

	var records []CallHistoryRecord
	for rows.Next() {
		var rec CallHistoryRecord
		if err := rows.Scan(&rec.ID, &rec.AppointmentID, &rec.CallSID, &rec.Event,
			&rec.CallStatus, &rec.AnsweredBy, &rec.Digits, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan call history row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: call history: %w", err)
	}
	return records, nil
}

// RecordUpload notes a processed schedule upload.
func (s *Store) RecordUpload(ctx context.Context, filename string, sizeBytes int64, appointmentCount int) error {
	if s == nil {
		return nil
	}
	query := `
		INSERT INTO upload_history (filename, size_bytes, appointment_count)
		VALUES ($1,$2,$3)
	`
	_, err := s.pool.Exec(ctx, query, filename, sizeBytes, appointmentCount)
	if err != nil {
		return fmt.Errorf("store: record upload: %w", err)
	}
	return nil
}

// UploadRecord is one row of upload history.
type UploadRecord struct {
	ID               int64     `json:"id"`
	Filename         string    `json:"filename"`
	SizeBytes        int64     `json:"size_bytes"`
	AppointmentCount int       `json:"appointment_count"`
	UploadedAt       time.Time `json:"uploaded_at"`
}

// RecentUploads lists the most recent schedule uploads, newest first.
func (s *Store) RecentUploads(ctx context.Context, limit int) ([]UploadRecord, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, filename, size_bytes, appointment_count, uploaded_at
		FROM upload_history
		ORDER BY uploaded_at DESC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent uploads: %w", err)
	}
	defer rows.Close()

	var records []UploadRecord
	for rows.Next() {
		var rec UploadRecord
		if err := rows.Scan(&rec.ID, &rec.Filename, &rec.SizeBytes, &rec.AppointmentCount, &rec.UploadedAt); err != nil {
			return nil, fmt.Errorf("store: scan upload row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent uploads: %w", err)
	}
	return records, nil
}
