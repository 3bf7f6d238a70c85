package server

import (
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	platformerrors "github.com/ravenmoor/deepspire/internal/platform/errors"
	"github.com/ravenmoor/deepspire/internal/platform/id"
	"github.com/ravenmoor/deepspire/internal/platform/requestctx"
	"github.com/ravenmoor/deepspire/internal/server/httpx"
)

// anonymousUser is the identity substituted in debug mode when the header is
// missing.
const anonymousUser = "anonymous"

// middleware wraps the mux with recovery, request ids, tracing, identity
// extraction and access logging, outermost first.
func (s *Server) middleware(next http.Handler) http.Handler {
	return withRecover(withRequestID(withTracing(s.withUser(withLogging(next)))))
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("panic recovered method=%s path=%s err=%v", r.Method, r.URL.Path, rec)
				httpx.WriteError(w, platformerrors.New(platformerrors.CodeInternal, "internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = id.New()
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(requestctx.WithRequestID(r.Context(), requestID)))
	})
}

// withTracing opens a server span per request. With no provider registered
// the global tracer is a no-op, so untraced deployments pay nothing.
func withTracing(next http.Handler) http.Handler {
	tracer := otel.Tracer("deepspire/server")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
				attribute.String("request.id", w.Header().Get("X-Request-ID")),
			),
		)
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withUser resolves the caller's identity from the X-User-ID header. Health
// and metrics stay open; everything else requires an identity unless debug
// mode substitutes the anonymous user.
func (s *Server) withUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz", "/metrics":
			next.ServeHTTP(w, r)
			return
		}
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			if !s.debug {
				httpx.WriteError(w, platformerrors.New(platformerrors.CodeInvalidArgument, "X-User-ID header is required"))
				return
			}
			userID = anonymousUser
		}
		next.ServeHTTP(w, r.WithContext(requestctx.WithUserID(r.Context(), userID)))
	})
}

// statusRecorder captures the response status for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("request method=%s path=%s status=%d duration=%s request_id=%s",
			r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond),
			requestctx.RequestIDFromContext(r.Context()))
	})
}
