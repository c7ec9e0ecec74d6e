package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/campus-voting/internal/application"
)

type stubResolver struct {
	principals map[string]application.Principal
	errs       map[string]error
	calls      []string
}

func (s *stubResolver) ResolveIdentity(_ context.Context, token string) (application.Principal, error) {
	s.calls = append(s.calls, token)
	if err, ok := s.errs[token]; ok {
		return application.Principal{}, err
	}
	if p, ok := s.principals[token]; ok {
		return p, nil
	}
	return application.Principal{}, application.ErrUnauthorized
}

var (
	studentPrincipal = application.Principal{Kind: application.PrincipalStudent, AccountID: "acct-1"}
	adminPrincipal   = application.Principal{Kind: application.PrincipalAdmin, Username: "ops", Role: application.RoleAdmin}
	superPrincipal   = application.Principal{Kind: application.PrincipalAdmin, Username: "root", Role: application.RoleSuperAdmin}
)

func newStubResolver() *stubResolver {
	return &stubResolver{
		principals: map[string]application.Principal{
			"student-token": studentPrincipal,
			"admin-token":   adminPrincipal,
			"super-token":   superPrincipal,
		},
		errs: map[string]error{
			"stale-token": application.ErrSessionExpired,
		},
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	if body.Success {
		t.Fatalf("error body reported success: %s", rec.Body.String())
	}
	return body
}

func TestRequireSession(t *testing.T) {
	t.Parallel()

	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			t.Errorf("principal missing from context")
		}
		_, _ = w.Write([]byte(p.Subject()))
	})

	cases := []struct {
		name    string
		prepare func(r *http.Request)
		status  int
		code    string
		subject string
	}{
		{
			name:    "missing token",
			prepare: func(*http.Request) {},
			status:  http.StatusUnauthorized,
			code:    "AUTH_UNAUTHORIZED",
		},
		{
			name: "bearer header",
			prepare: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer student-token")
			},
			status:  http.StatusOK,
			subject: "acct-1",
		},
		{
			name: "admin cookie",
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: adminCookieName, Value: "admin-token"})
			},
			status:  http.StatusOK,
			subject: "ops",
		},
		{
			name: "stale student cookie falls back to admin cookie",
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: studentCookieName, Value: "stale-token"})
				r.AddCookie(&http.Cookie{Name: adminCookieName, Value: "super-token"})
			},
			status:  http.StatusOK,
			subject: "root",
		},
		{
			name: "superseded session",
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: studentCookieName, Value: "stale-token"})
			},
			status: http.StatusUnauthorized,
			code:   "AUTH_SESSION_EXPIRED",
		},
		{
			name: "unknown token",
			prepare: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer nope")
			},
			status: http.StatusUnauthorized,
			code:   "AUTH_UNAUTHORIZED",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			handler := RequireSession(newStubResolver(), nil)(echo)
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			tc.prepare(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.status, rec.Body.String())
			}
			if tc.code != "" {
				if got := decodeError(t, rec).ErrorCode; got != tc.code {
					t.Fatalf("error_code = %q, want %q", got, tc.code)
				}
				return
			}
			if rec.Body.String() != tc.subject {
				t.Fatalf("subject = %q, want %q", rec.Body.String(), tc.subject)
			}
		})
	}
}

func TestOptionalSession(t *testing.T) {
	t.Parallel()

	var seen *application.Principal
	handler := OptionalSession(newStubResolver())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = nil
		if p, ok := PrincipalFromContext(r.Context()); ok {
			seen = &p
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/voting/config", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || seen != nil {
		t.Fatalf("invalid token should pass anonymously, got status %d principal %+v", rec.Code, seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/voting/config", nil)
	req.AddCookie(&http.Cookie{Name: studentCookieName, Value: "student-token"})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen == nil || seen.AccountID != "acct-1" {
		t.Fatalf("valid cookie should attach the principal, got %+v", seen)
	}
}

func TestRoleGuards(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	cases := []struct {
		name      string
		guard     func(http.Handler) http.Handler
		principal *application.Principal
		status    int
	}{
		{"admin guard rejects student", RequireAdmin(nil), &studentPrincipal, http.StatusForbidden},
		{"admin guard accepts admin", RequireAdmin(nil), &adminPrincipal, http.StatusNoContent},
		{"super guard rejects admin", RequireSuperAdmin(nil), &adminPrincipal, http.StatusForbidden},
		{"super guard accepts super", RequireSuperAdmin(nil), &superPrincipal, http.StatusNoContent},
		{"student guard rejects admin", RequireStudent(nil), &superPrincipal, http.StatusForbidden},
		{"guard without principal", RequireAdmin(nil), nil, http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.principal != nil {
				req = req.WithContext(ContextWithPrincipal(req.Context(), *tc.principal))
			}
			rec := httptest.NewRecorder()
			tc.guard(ok).ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
		})
	}
}

func TestRequestLoggerAttachesLogger(t *testing.T) {
	t.Parallel()

	handler := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if LoggerFromContext(r.Context()) == nil {
			t.Errorf("logger missing from context")
		}
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("X-Request-ID = %q, want the inbound id", got)
	}
}

func TestRecovererReturnsInternalError(t *testing.T) {
	t.Parallel()

	handler := Recoverer(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(errors.New("boom"))
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := decodeError(t, rec).ErrorCode; code != "INTERNAL" {
		t.Fatalf("error_code = %q", code)
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:5123"
	if got := clientIP(req); got != "10.0.0.9" {
		t.Fatalf("clientIP = %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Fatalf("clientIP with forwarded header = %q", got)
	}
}
