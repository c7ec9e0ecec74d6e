package http

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/example/campus-voting/internal/application"
)

// IdentityResolver turns a session token into a principal.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, token string) (application.Principal, error)
}

// resolvePrincipal tries every presented token and returns the first that
// resolves. When none do, the error of the first attempt is returned.
func resolvePrincipal(ctx context.Context, resolver IdentityResolver, r *http.Request) (application.Principal, error) {
	tokens := tokenCandidates(r)
	if len(tokens) == 0 {
		return application.Principal{}, application.ErrUnauthorized
	}
	var firstErr error
	for _, token := range tokens {
		principal, err := resolver.ResolveIdentity(ctx, token)
		if err == nil {
			return principal, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return application.Principal{}, firstErr
}

// RequireSession rejects requests without a resolvable session.
func RequireSession(resolver IdentityResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if resolver == nil {
				responder.writeError(r.Context(), w, http.StatusInternalServerError, errServiceUnavailable)
				return
			}
			principal, err := resolvePrincipal(r.Context(), resolver, r)
			if err != nil {
				if len(tokenCandidates(r)) == 0 {
					responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingSessionToken)
					return
				}
				responder.handleServiceError(r.Context(), w, err)
				return
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalSession attaches a principal when a valid session is presented and
// otherwise passes the request through anonymously.
func OptionalSession(resolver IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if resolver != nil && len(tokenCandidates(r)) > 0 {
				if principal, err := resolvePrincipal(r.Context(), resolver, r); err == nil {
					r = r.WithContext(ContextWithPrincipal(r.Context(), principal))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin rejects principals that are not administrators. It must run after RequireSession.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return requireRole(logger, application.Principal.IsAdmin)
}

// RequireSuperAdmin rejects principals that are not SUPER_ADMIN administrators.
func RequireSuperAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return requireRole(logger, application.Principal.IsSuperAdmin)
}

// RequireStudent rejects principals that are not students.
func RequireStudent(logger *slog.Logger) func(http.Handler) http.Handler {
	return requireRole(logger, application.Principal.IsStudent)
}

func requireRole(logger *slog.Logger, allowed func(application.Principal) bool) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				responder.handleServiceError(r.Context(), w, application.ErrUnauthorized)
				return
			}
			if !allowed(principal) {
				responder.handleServiceError(r.Context(), w, application.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger attaches a request scoped logger and logs start and completion.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithLogger(r.Context(), logger)
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			logger.DebugContext(ctx, "request started")
			next.ServeHTTP(rec, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "status", rec.status, "duration", time.Since(start))
		})
	}
}

// Recoverer converts handler panics into 500 responses.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					responder.loggerFor(r.Context()).ErrorContext(r.Context(), "handler panicked", "panic", rec)
					responder.writeError(r.Context(), w, http.StatusInternalServerError, errors.New("internal error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder remembers the status code written by the wrapped handler.
// Hijack and Unwrap keep websocket upgrades working through the wrapper.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}
