package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testTraceparent = "00-3d23d071b5bfd6579171efce907685cb-08f067aa0ba902b7-01"

// withProjectID pins the cached project ID for the duration of a test.
func withProjectID(t *testing.T, id string) {
	t.Helper()
	orig := cachedProjectID
	cachedProjectID = id
	projectIDOnce = sync.Once{}
	projectIDOnce.Do(func() {})
	t.Cleanup(func() { cachedProjectID = orig })
}

func fieldMap(fields []zap.Field) map[string]zap.Field {
	out := make(map[string]zap.Field, len(fields))
	for _, f := range fields {
		out[f.Key] = f
	}
	return out
}

func TestTraceFields(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		project string
		want    int
		sampled int64
	}{
		{name: "sampled", header: testTraceparent, project: "p", want: 3, sampled: 1},
		{name: "not sampled", header: "00-3d23d071b5bfd6579171efce907685cb-08f067aa0ba902b7-00", project: "p", want: 3},
		{name: "invalid header", header: "invalid", project: "p"},
		{name: "empty header", header: "", project: "p"},
		{name: "no project", header: testTraceparent, project: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := traceFields(tt.header, tt.project)
			if len(fields) != tt.want {
				t.Fatalf("expected %d fields, got %d", tt.want, len(fields))
			}
			if tt.want == 0 {
				return
			}
			got := fieldMap(fields)
			if f := got["logging.googleapis.com/trace"]; f.String != "projects/p/traces/3d23d071b5bfd6579171efce907685cb" {
				t.Fatalf("unexpected trace field: %+v", f)
			}
			if f := got["logging.googleapis.com/spanId"]; f.String != "08f067aa0ba902b7" {
				t.Fatalf("unexpected span field: %+v", f)
			}
			if f := got["logging.googleapis.com/trace_sampled"]; f.Type != zapcore.BoolType || f.Integer != tt.sampled {
				t.Fatalf("unexpected sampled field: %+v", f)
			}
		})
	}
}

func TestTraceResource(t *testing.T) {
	if got := traceResource(testTraceparent, "p"); got != "projects/p/traces/3d23d071b5bfd6579171efce907685cb" {
		t.Fatalf("unexpected resource %q", got)
	}
	if got := traceResource(testTraceparent, ""); got != "" {
		t.Fatalf("expected empty resource without project, got %q", got)
	}
	if got := traceResource("nope", "p"); got != "" {
		t.Fatalf("expected empty resource for invalid header, got %q", got)
	}
}

func TestLoggerWithTrace(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)

	loggerWithTrace(zap.New(core), testTraceparent, "p", "req-123").Info("hello")
	loggerWithTrace(zap.New(core), "", "", "").Info("bare")

	entries := recorded.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	fields := fieldMap(entries[0].Context)
	if f, ok := fields["requestId"]; !ok || f.String != "req-123" {
		t.Fatalf("requestId field mismatch: %+v", fields)
	}
	if _, ok := fields["logging.googleapis.com/trace"]; !ok {
		t.Fatalf("expected trace field: %+v", fields)
	}
	if len(entries[1].Context) != 0 {
		t.Fatalf("expected no context fields, got %+v", entries[1].Context)
	}

	if loggerWithTrace(nil, "", "p", "req") == nil {
		t.Fatal("expected non-nil logger for nil base")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "", "value", "other"); got != "value" {
		t.Fatalf("expected 'value', got %q", got)
	}
	if got := firstNonEmpty(); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestRequestLoggerUsesTraceResource(t *testing.T) {
	withProjectID(t, "test-project")

	var traceID *string
	h := RequestLogger()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = TraceIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(traceparentHeader, testTraceparent)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if traceID == nil || *traceID != "projects/test-project/traces/3d23d071b5bfd6579171efce907685cb" {
		t.Fatalf("unexpected trace ID: %v", traceID)
	}
}

func TestRequestLoggerFallsBackToRequestID(t *testing.T) {
	withProjectID(t, "")

	var traceID *string
	h := RequestID()(RequestLogger()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = TraceIDFromContext(r.Context())
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "test-request-id")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if traceID == nil || *traceID != "test-request-id" {
		t.Fatalf("expected request ID as trace ID, got %v", traceID)
	}
}

func TestAccessLoggerRecordsProbe(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)

	h := AccessLogger()(Health()(http.NotFoundHandler()))
	req := httptest.NewRequest(http.MethodHead, HealthPath, nil)
	req = req.WithContext(contextWithLogger(req.Context(), zap.New(core)))
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].Message != "request completed" {
		t.Fatalf("unexpected log message: %s", entries[0].Message)
	}
	fields := fieldMap(entries[0].Context)
	if f := fields["status"]; f.Integer != http.StatusOK {
		t.Fatalf("expected status 200, got %+v", f)
	}
	if f := fields["method"]; f.String != http.MethodHead {
		t.Fatalf("expected method HEAD, got %+v", f)
	}
	if f := fields["bytes"]; f.Integer != 0 {
		t.Fatalf("expected 0 bytes, got %+v", f)
	}
	if _, ok := fields["duration"]; !ok {
		t.Fatalf("expected duration field, got %+v", fields)
	}
}

func TestLogHelpers(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	ctx := contextWithLogger(context.Background(), zap.New(core))

	LogInfo(ctx, "info", zap.String("k", "v"))
	LogWarn(ctx, "warn")
	LogError(ctx, "error", errors.New("boom"))
	LogError(ctx, "error without cause", nil)

	entries := recorded.All()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	wantLevels := []zapcore.Level{zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel, zapcore.ErrorLevel}
	for i, lvl := range wantLevels {
		if entries[i].Level != lvl {
			t.Fatalf("entry %d: expected level %s, got %s", i, lvl, entries[i].Level)
		}
	}
	if f, ok := fieldMap(entries[2].Context)["error"]; !ok || f.Type != zapcore.ErrorType {
		t.Fatalf("expected error field, got %+v", entries[2].Context)
	}
	if _, ok := fieldMap(entries[3].Context)["error"]; ok {
		t.Fatal("did not expect error field when err is nil")
	}
}

func TestLogFatalAppendsErrorField(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	logger := zap.New(core, zap.WithFatalHook(zapcore.WriteThenPanic))
	ctx := contextWithLogger(context.Background(), logger)

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic triggered by fatal hook")
		}
		entries := recorded.All()
		if len(entries) != 1 || entries[0].Level != zapcore.FatalLevel {
			t.Fatalf("expected one fatal entry, got %+v", entries)
		}
		if _, ok := fieldMap(entries[0].Context)["error"]; !ok {
			t.Fatalf("expected error field, got %+v", entries[0].Context)
		}
	}()

	LogFatal(ctx, "fatal failure", errors.New("boom"))
}

func TestLoggerFromContextFallbacks(t *testing.T) {
	if LoggerFromContext(nil) == nil { //nolint:staticcheck // nil context handling
		t.Fatal("expected non-nil logger for nil context")
	}
	ctx := context.WithValue(context.Background(), ctxLoggerKey{}, (*zap.Logger)(nil))
	if LoggerFromContext(ctx) == nil {
		t.Fatal("expected non-nil logger when context holds a nil logger")
	}
	if TraceIDFromContext(nil) != nil { //nolint:staticcheck // nil context handling
		t.Fatal("expected nil trace ID for nil context")
	}
	original := context.Background()
	if contextWithTraceID(original, "") != original {
		t.Fatal("expected same context for empty trace ID")
	}
}
