package http

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/example/campus-voting/internal/application"
)

const (
	studentCookieName = "session_token"
	adminCookieName   = "admin_session_token"
)

// cookieJar writes the session cookies. Secure is off only for local development.
type cookieJar struct {
	secure bool
}

func (c cookieJar) cookieName(kind application.PrincipalKind) string {
	if kind == application.PrincipalAdmin {
		return adminCookieName
	}
	return studentCookieName
}

func (c cookieJar) set(w http.ResponseWriter, kind application.PrincipalKind, token string, expires time.Time) {
	cookie := &http.Cookie{
		Name:     c.cookieName(kind),
		Value:    token,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	}
	if !expires.IsZero() {
		cookie.Expires = expires.UTC()
	}
	http.SetCookie(w, cookie)
}

func (c cookieJar) clear(w http.ResponseWriter, kind application.PrincipalKind) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.cookieName(kind),
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// tokenCandidates lists the tokens presented by a request: the bearer header
// first, then the student cookie, then the admin cookie.
func tokenCandidates(r *http.Request) []string {
	if r == nil {
		return nil
	}
	var tokens []string
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		const prefix = "Bearer "
		if strings.HasPrefix(header, prefix) {
			if token := strings.TrimSpace(strings.TrimPrefix(header, prefix)); token != "" {
				tokens = append(tokens, token)
			}
		}
	}
	for _, name := range []string{studentCookieName, adminCookieName} {
		if cookie, err := r.Cookie(name); err == nil && cookie.Value != "" {
			tokens = append(tokens, cookie.Value)
		}
	}
	return tokens
}

// requestMeta captures the client address and user agent for audit entries.
func requestMeta(r *http.Request) application.RequestMeta {
	return application.RequestMeta{IP: clientIP(r), UserAgent: r.UserAgent()}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
