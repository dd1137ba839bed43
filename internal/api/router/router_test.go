package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/confirmline/confirmline/internal/appointment"
	"github.com/confirmline/confirmline/internal/http/handlers"
	"github.com/confirmline/confirmline/internal/schedule"
	"github.com/confirmline/confirmline/pkg/logging"
)

func testRouter(adminSecret string) http.Handler {
	reg := appointment.NewRegistry()
	uploads := handlers.NewUploadHandler(handlers.UploadHandlerConfig{
		Registry: reg,
		Parser:   schedule.NewParser(logging.New("error")),
		Logger:   logging.New("error"),
	})
	return New(&Config{
		Uploads:         uploads,
		Health:          handlers.NewHealthHandler(false, nil, nil),
		AdminAuthSecret: adminSecret,
	})
}

func TestHealthzRoute(t *testing.T) {
	r := testRouter("")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAPIOpenWithoutAdminSecret(t *testing.T) {
	r := testRouter("")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/appointments", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAPIProtectedWithAdminSecret(t *testing.T) {
	r := testRouter("secret")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/appointments", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	r := testRouter("")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
