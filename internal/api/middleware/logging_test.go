package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

// logRecords разбирает JSON-строки журнала.
func logRecords(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		rec := map[string]any{}
		if err := dec.Decode(&rec); err != nil {
			t.Fatalf("разбор журнала: %v", err)
		}
		records = append(records, rec)
	}
	return records
}

func newLoggedRouter(buf *bytes.Buffer, level slog.Level) chi.Router {
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level}))
	r := chi.NewRouter()
	r.Use(RequestID())
	r.Use(RequestLogger(logger))
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				noteActor(r.Context(), &AuthClaims{Subject: "uuid-1", PreferredUsername: "ops1", Role: "operator"})
				next.ServeHTTP(w, r)
			})
		})
		r.Get("/api/v1/tapes/{vid}", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "нет", http.StatusNotFound)
		})
		r.Delete("/api/v1/archive-files/{id}/copies/{copy_nb}", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})
	r.Get("/api/v1/archive-files/{id}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	return r
}

func TestRequestLogger_CatalogueAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := newLoggedRouter(&buf, slog.LevelInfo)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/tapes/V00001", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/v1/archive-files/42/copies/2", nil))

	records := logRecords(t, &buf)
	if len(records) != 2 {
		t.Fatalf("записей = %d, ожидалось 2", len(records))
	}

	tape := records[0]
	want := map[string]any{
		"level":  "WARN",
		"route":  "/api/v1/tapes/{vid}",
		"vid":    "V00001",
		"status": float64(http.StatusNotFound),
		"user":   "ops1",
		"role":   "operator",
	}
	for k, v := range want {
		if tape[k] != v {
			t.Errorf("%s = %v, ожидалось %v", k, tape[k], v)
		}
	}
	if tape["request_id"] == "" || tape["request_id"] == nil {
		t.Error("request_id не записан")
	}

	copyRec := records[1]
	if copyRec["archive_file_id"] != "42" || copyRec["copy_nb"] != "2" {
		t.Errorf("archive_file_id = %v, copy_nb = %v", copyRec["archive_file_id"], copyRec["copy_nb"])
	}
	if copyRec["level"] != "INFO" {
		t.Errorf("level = %v, ожидался INFO", copyRec["level"])
	}
}

func TestRequestLogger_Anonymous(t *testing.T) {
	var buf bytes.Buffer
	h := newLoggedRouter(&buf, slog.LevelInfo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/archive-files/7", nil)
	req.RemoteAddr = "10.0.0.5:4242"
	h.ServeHTTP(httptest.NewRecorder(), req)

	records := logRecords(t, &buf)
	if len(records) != 1 {
		t.Fatalf("записей = %d, ожидалась 1", len(records))
	}
	rec := records[0]
	if _, ok := rec["user"]; ok {
		t.Errorf("анонимный запрос записан с пользователем %v", rec["user"])
	}
	if rec["remote_addr"] != "10.0.0.5:4242" {
		t.Errorf("remote_addr = %v", rec["remote_addr"])
	}
	if rec["archive_file_id"] != "7" || rec["bytes"] != float64(2) {
		t.Errorf("archive_file_id = %v, bytes = %v", rec["archive_file_id"], rec["bytes"])
	}
}

func TestRequestLogger_QuietServicePaths(t *testing.T) {
	var buf bytes.Buffer
	h := newLoggedRouter(&buf, slog.LevelInfo)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if buf.Len() != 0 {
		t.Errorf("успешный запрос к /health/live записан на INFO: %s", buf.String())
	}

	buf.Reset()
	h = newLoggedRouter(&buf, slog.LevelDebug)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))
	records := logRecords(t, &buf)
	if len(records) != 1 || records[0]["level"] != "DEBUG" {
		t.Errorf("записи = %v, ожидалась одна на DEBUG", records)
	}
}

func TestRequestLevel(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/api/v1/tapes", http.StatusOK, slog.LevelInfo},
		{"/api/v1/tapes", http.StatusConflict, slog.LevelWarn},
		{"/api/v1/tapes", http.StatusServiceUnavailable, slog.LevelError},
		{"/health/ready", http.StatusOK, slog.LevelDebug},
		{"/health/ready", http.StatusServiceUnavailable, slog.LevelError},
		{"/metrics", http.StatusOK, slog.LevelDebug},
	}
	for _, tt := range tests {
		if got := requestLevel(tt.path, tt.status); got != tt.want {
			t.Errorf("requestLevel(%s, %d) = %v, ожидался %v", tt.path, tt.status, got, tt.want)
		}
	}
}
