package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRequestIDMiddleware(t *testing.T) {
	var ctxID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	RequestIDMiddleware(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if ctxID == "" {
		t.Fatal("expected request ID in context")
	}
	if _, err := uuid.Parse(ctxID); err != nil {
		t.Errorf("request ID %q is not a UUID", ctxID)
	}
	if got := rec.Header().Get(RequestIDHeader); got != ctxID {
		t.Errorf("header %s = %q, want %q", RequestIDHeader, got, ctxID)
	}
}

func TestRequestIDMiddleware_IncomingHeader(t *testing.T) {
	incoming := uuid.NewString()

	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"uuid is kept", incoming, true},
		{"garbage is replaced", "not-a-uuid", false},
		{"empty is replaced", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ctxID string
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctxID = GetRequestID(r.Context())
			})
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			RequestIDMiddleware(handler).ServeHTTP(httptest.NewRecorder(), req)

			if tt.keep && ctxID != tt.header {
				t.Errorf("request ID = %q, want %q", ctxID, tt.header)
			}
			if !tt.keep && ctxID == tt.header {
				t.Errorf("request ID %q should have been replaced", ctxID)
			}
		})
	}
}

func TestRequestIDMiddleware_UniqueIDs(t *testing.T) {
	ids := make(map[string]bool)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids[GetRequestID(r.Context())] = true
	})
	wrapped := RequestIDMiddleware(handler)

	for i := 0; i < 10; i++ {
		wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	}
	if len(ids) != 10 {
		t.Errorf("expected 10 unique IDs, got %d", len(ids))
	}
}

func TestGetRequestID_NotSet(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("expected empty request ID, got %q", id)
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	var hasDeadline bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	})

	TimeoutMiddleware(time.Second)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if !hasDeadline {
		t.Error("expected context deadline")
	}
}

func TestTimeoutMiddleware_ContextCancelled(t *testing.T) {
	var ctxErr, ctxCause error
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		ctxErr = r.Context().Err()
		ctxCause = context.Cause(r.Context())
	})

	TimeoutMiddleware(10*time.Millisecond)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if !errors.Is(ctxErr, context.DeadlineExceeded) {
		t.Errorf("ctx.Err() = %v, want DeadlineExceeded", ctxErr)
	}
	if !errors.Is(ctxCause, ErrRequestTimeout) {
		t.Errorf("context.Cause = %v, want ErrRequestTimeout", ctxCause)
	}
}

func TestTimeoutMiddleware_Disabled(t *testing.T) {
	var hasDeadline bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	})

	TimeoutMiddleware(0)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if hasDeadline {
		t.Error("zero timeout should not set a deadline")
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	wrapped := RequestIDMiddleware(LoggingMiddleware(logger)(testHandler))
	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/test-path", nil))

	output := buf.String()
	for _, want := range []string{"request started", "request completed", "/test-path", "status=200", "bytes=2"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in log output:\n%s", want, output)
		}
	}
}

func TestLoggingMiddleware_ServerErrorLevel(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	LoggingMiddleware(logger)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	output := buf.String()
	if !strings.Contains(output, "level=ERROR") {
		t.Errorf("expected ERROR level for 502:\n%s", output)
	}
	if strings.Contains(output, "request started") {
		t.Errorf("start log should be debug only:\n%s", output)
	}
}

func TestAddLogField(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddLogField(r.Context(), "custom_field", "custom_value")
		AddLogField(r.Context(), "empty_field", "")
	})
	LoggingMiddleware(logger)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	output := buf.String()
	if !strings.Contains(output, "custom_field=custom_value") {
		t.Errorf("expected custom field in log output:\n%s", output)
	}
	if strings.Contains(output, "empty_field") {
		t.Errorf("empty values should not be logged:\n%s", output)
	}
}

func TestAddLogField_NoContext(t *testing.T) {
	// Must not panic without the middleware.
	AddLogField(context.Background(), "key", "value")
	AddError(context.Background(), errors.New("boom"))
}

func TestAddError(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddError(r.Context(), nil)
		AddError(r.Context(), errors.New("upstream unavailable"))
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	LoggingMiddleware(logger)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if !strings.Contains(buf.String(), `error="upstream unavailable"`) {
		t.Errorf("expected error field in log output:\n%s", buf.String())
	}
}
