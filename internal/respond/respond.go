package respond

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apiinternal "github.com/janisto/spa-server/internal/api"
	appmiddleware "github.com/janisto/spa-server/internal/middleware"
)

const (
	codeNotFound          = "NOT_FOUND"
	msgNotFound           = "resource not found"
	codeMethodNotAllowed  = "METHOD_NOT_ALLOWED"
	msgMethodNotAllowed   = "method not allowed"
	codeInternalServerErr = "INTERNAL_SERVER_ERROR"
	msgInternalServerErr  = "internal server error"
)

var installOnce sync.Once

// Install routes every Huma error through the shared envelope and logging.
func Install() {
	installOnce.Do(func() {
		huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
			return statusError(context.Background(), status, statusCodeName(status), messageOrDefault(status, msg), issuesFromErrors(errs), errs...)
		}
		huma.NewErrorWithContext = func(hctx huma.Context, status int, msg string, errs ...error) huma.StatusError {
			ctx := context.Background()
			if hctx != nil {
				ctx = hctx.Context()
			}
			return statusError(ctx, status, statusCodeName(status), messageOrDefault(status, msg), issuesFromErrors(errs), errs...)
		}
	})
}

// Body is the Huma output wrapper for enveloped payloads.
type Body[T any] struct {
	Body apiinternal.Envelope[T] `json:"body"`
}

// Success wraps data in a success envelope carrying the request's trace ID.
func Success[T any](ctx context.Context, data T) Body[T] {
	return Body[T]{Body: apiinternal.NewSuccessEnvelope(appmiddleware.TraceIDFromContext(ctx), data)}
}

// Error logs the failure and returns it as an enveloped huma.StatusError.
// Empty code and msg are derived from status.
func Error(ctx context.Context, status int, code, msg string, issues []apiinternal.FieldIssue, errs ...error) huma.StatusError {
	if code == "" {
		code = statusCodeName(status)
	}
	return statusError(ctx, status, code, messageOrDefault(status, msg), issues, errs...)
}

// Write serializes an envelope directly to the ResponseWriter.
func Write[T any](w http.ResponseWriter, status int, env apiinternal.Envelope[T]) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(env)
}

// WriteError renders an error envelope, logging at a severity matching status.
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, msg string, issues []apiinternal.FieldIssue, errs ...error) error {
	se := Error(ctx, status, code, msg, issues, errs...)
	env, ok := se.(*statusEnvelopeError)
	if !ok {
		return se
	}
	return Write(w, se.GetStatus(), env.Envelope)
}

// NotFoundHandler emits an enveloped 404.
func NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := WriteError(w, r.Context(), http.StatusNotFound, codeNotFound, msgNotFound, nil); err != nil {
			appmiddleware.LogError(r.Context(), "failed to render not found", err)
		}
	}
}

// MethodNotAllowedHandler emits an enveloped 405 with an Allow header.
// The header lists allow when given, otherwise the methods chi can route for the path.
func MethodNotAllowedHandler(allow ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		methods := allow
		if len(methods) == 0 {
			methods = allowedMethods(r)
		}
		if len(methods) > 0 {
			w.Header().Set("Allow", strings.Join(methods, ", "))
		}
		if err := WriteError(w, r.Context(), http.StatusMethodNotAllowed, codeMethodNotAllowed, msgMethodNotAllowed, nil); err != nil {
			appmiddleware.LogError(r.Context(), "failed to render method not allowed", err)
		}
	}
}

// Recoverer converts panics into enveloped 500 responses.
// http.ErrAbortHandler is re-panicked so net/http can abort the connection.
func Recoverer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel compared by identity
					panic(rec)
				}
				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("%v", rec)
				}
				err = fmt.Errorf("%w\n%s", err, debug.Stack())
				if writeErr := WriteError(w, r.Context(), http.StatusInternalServerError, codeInternalServerErr, msgInternalServerErr, nil, err); writeErr != nil {
					appmiddleware.LogError(r.Context(), "failed to render internal error", writeErr)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// allowedMethods asks chi which methods match the request path.
func allowedMethods(r *http.Request) []string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || rctx.Routes == nil {
		return nil
	}

	routePath := rctx.RoutePath
	if routePath == "" {
		routePath = r.URL.RawPath
		if routePath == "" {
			routePath = r.URL.Path
		}
		if routePath == "" {
			routePath = "/"
		}
	}

	var allowed []string
	for _, method := range []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
		http.MethodOptions,
	} {
		if rctx.Routes.Match(chi.NewRouteContext(), method, routePath) {
			allowed = append(allowed, method)
		}
	}
	return allowed
}

type statusEnvelopeError struct {
	apiinternal.Envelope[struct{}]
	status int
}

func (e *statusEnvelopeError) Error() string {
	if e.Envelope.Error != nil && e.Envelope.Error.Message != "" {
		return e.Envelope.Error.Message
	}
	return http.StatusText(e.status)
}

func (e *statusEnvelopeError) GetStatus() int {
	return e.status
}

func statusError(ctx context.Context, status int, code, msg string, issues []apiinternal.FieldIssue, errs ...error) huma.StatusError {
	fields := []zap.Field{
		zap.Int("status", status),
		zap.String("code", code),
		zap.String("message", msg),
	}
	if len(issues) > 0 {
		fields = append(fields, zap.Any("details", issues))
	}
	logWithStatus(ctx, status, msg, errors.Join(errs...), fields...)
	env := apiinternal.NewErrorEnvelope[struct{}](appmiddleware.TraceIDFromContext(ctx), code, msg, issues)
	return &statusEnvelopeError{Envelope: env, status: status}
}

func issuesFromErrors(errs []error) []apiinternal.FieldIssue {
	var issues []apiinternal.FieldIssue
	for _, err := range errs {
		if err == nil {
			continue
		}
		issue := apiinternal.FieldIssue{Issue: err.Error()}
		var detailer huma.ErrorDetailer
		if errors.As(err, &detailer) {
			if detail := detailer.ErrorDetail(); detail != nil {
				issue.Issue = detail.Message
				issue.Field = detail.Location
			}
		}
		issues = append(issues, issue)
	}
	return issues
}

func statusCodeName(status int) string {
	name := strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	name = strings.ReplaceAll(name, "-", "_")
	if strings.TrimSpace(name) == "" {
		return fmt.Sprintf("HTTP_%d", status)
	}
	return name
}

func messageOrDefault(status int, msg string) string {
	if strings.TrimSpace(msg) != "" {
		return msg
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", status)
}

func logWithStatus(ctx context.Context, status int, msg string, err error, fields ...zap.Field) {
	if ctx == nil {
		ctx = context.Background()
	}
	if msg == "" {
		msg = "request failed"
	}
	if status >= 500 {
		appmiddleware.LogError(ctx, msg, err, fields...)
		return
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if status >= 400 {
		appmiddleware.LogWarn(ctx, msg, fields...)
		return
	}
	appmiddleware.LogInfo(ctx, msg, fields...)
}
