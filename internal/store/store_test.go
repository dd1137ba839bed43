package store

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"

	"github.com/confirmline/confirmline/internal/appointment"
)

func TestNilStoreIsSafe(t *testing.T) {
	var s *Store
	ctx := context.Background()

	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema on nil store: %v", err)
	}
	if err := s.SaveAppointment(ctx, appointment.Appointment{}); err != nil {
		t.Fatalf("save on nil store: %v", err)
	}
	if err := s.LogCall(ctx, CallRecord{}); err != nil {
		t.Fatalf("log call on nil store: %v", err)
	}
	if recs, err := s.RecentUploads(ctx, 5); err != nil || recs != nil {
		t.Fatalf("recent uploads on nil store: %v %v", recs, err)
	}
	if NewStore(nil) != nil {
		t.Fatal("NewStore(nil) should return nil")
	}
}

func TestSaveAppointment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	s := &Store{pool: mock}
	apt := appointment.New("Jane Doe", "4125550100", "9:30 AM", "Victor Prisk", "Follow-Up Visit", "Not confirmed")
	apt.Notes = "Left voicemail"

	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(apt.ID, "Jane Doe", "+14125550100", "9:30 AM", "",
			"Victor Prisk", "Follow-Up Visit", "Not Confirmed", "Not confirmed",
			0, "Left voicemail", false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := s.SaveAppointment(context.Background(), *apt); err != nil {
		t.Fatalf("save appointment: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	s := &Store{pool: mock}
	mock.ExpectExec("UPDATE appointments").
		WithArgs("apt-1", "Confirmed", "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := s.UpdateStatus(context.Background(), "apt-1", appointment.StatusConfirmed, ""); err != nil {
		t.Fatalf("update status: %v", err)
	}
}

func TestLogCall(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	s := &Store{pool: mock}
	mock.ExpectExec("INSERT INTO call_history").
		WithArgs("apt-1", "CA123", "status", "completed", "human", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = s.LogCall(context.Background(), CallRecord{
		AppointmentID: "apt-1",
		CallSID:       "CA123",
		Event:         "status",
		CallStatus:    "completed",
		AnsweredBy:    "human",
	})
	if err != nil {
		t.Fatalf("log call: %v", err)
	}
}

func TestCallHistory(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	s := &Store{pool: mock}
	createdAt := time.Now()
	mock.ExpectQuery("SELECT id, appointment_id, call_sid, event, call_status, answered_by, digits, created_at").
		WithArgs("apt-1", 100).
		WillReturnRows(pgxmock.NewRows([]string{"id", "appointment_id", "call_sid", "event", "call_status", "answered_by", "digits", "created_at"}).
			AddRow(int64(1), "apt-1", "CA123", "voice", "", "human", "", createdAt).
			AddRow(int64(2), "apt-1", "CA123", "gather", "", "", "1", createdAt))

	records, err := s.CallHistory(context.Background(), "apt-1", 0)
	if err != nil {
		t.Fatalf("call history: %v", err)
	}
	if len(records) != 2 || records[0].Event != "voice" || records[1].Digits != "1" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestCallHistoryOnNilStore(t *testing.T) {
	var s *Store
	records, err := s.CallHistory(context.Background(), "apt-1", 10)
	if err != nil || records != nil {
		t.Fatalf("expected no history without a database: %v %v", records, err)
	}
}

func TestRecordUpload(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	s := &Store{pool: mock}
	mock.ExpectExec("INSERT INTO upload_history").
		WithArgs("schedule.pdf", int64(2048), 7).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := s.RecordUpload(context.Background(), "schedule.pdf", 2048, 7); err != nil {
		t.Fatalf("record upload: %v", err)
	}
}

func TestRecentUploads(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	s := &Store{pool: mock}
	uploadedAt := time.Now()
	mock.ExpectQuery("SELECT id, filename, size_bytes, appointment_count, uploaded_at").
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{"id", "filename", "size_bytes", "appointment_count", "uploaded_at"}).
			AddRow(int64(1), "schedule.pdf", int64(2048), 7, uploadedAt))

	records, err := s.RecentUploads(context.Background(), 5)
	if err != nil {
		t.Fatalf("recent uploads: %v", err)
	}
	if len(records) != 1 || records[0].Filename != "schedule.pdf" || records[0].AppointmentCount != 7 {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestEnsureSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	s := &Store{pool: mock}
	for i := 0; i < 3; i++ {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").
			WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}

	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
