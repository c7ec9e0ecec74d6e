package http

import (
	"log/slog"
	"net/http"
)

// RouterConfig collects the handlers and middleware served by NewRouter.
// Nil handlers leave their routes unregistered.
type RouterConfig struct {
	Auth        *AuthHandler
	Voting      *VotingHandler
	Teams       *TeamHandler
	Leaderboard *LeaderboardHandler
	Admin       *AdminHandler
	Whitelist   *AccessListHandler
	Blacklist   *AccessListHandler
	Socket      *SocketHandler
	Health      *HealthHandler
	// Resolver authenticates session tokens for protected routes.
	Resolver   IdentityResolver
	Middleware []func(http.Handler) http.Handler
	Logger     *slog.Logger
}

type access int

const (
	public access = iota
	optional
	anySession
	studentOnly
	adminOnly
	superAdminOnly
)

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	logger := defaultLogger(cfg.Logger)

	guard := func(level access, h http.HandlerFunc) http.Handler {
		var handler http.Handler = h
		switch level {
		case optional:
			return OptionalSession(cfg.Resolver)(handler)
		case studentOnly:
			handler = RequireStudent(logger)(handler)
		case adminOnly:
			handler = RequireAdmin(logger)(handler)
		case superAdminOnly:
			handler = RequireSuperAdmin(logger)(handler)
		case public:
			return handler
		}
		return RequireSession(cfg.Resolver, logger)(handler)
	}
	route := func(pattern string, level access, h http.HandlerFunc) {
		mux.Handle(pattern, guard(level, h))
	}

	if cfg.Health != nil {
		route("GET /healthz", public, cfg.Health.Serve)
	}

	if cfg.Auth != nil {
		route("POST /auth/register", public, cfg.Auth.Register)
		route("POST /auth/login", public, cfg.Auth.Login)
		route("POST /auth/admin-login", public, cfg.Auth.AdminLogin)
		route("GET /auth/me", anySession, cfg.Auth.Me)
		route("POST /auth/logout", anySession, cfg.Auth.Logout)
	}

	if cfg.Voting != nil {
		route("GET /voting/config", optional, cfg.Voting.Status)
		route("POST /voting/cast", studentOnly, cfg.Voting.Cast)
	}

	if cfg.Teams != nil {
		route("GET /teams", public, cfg.Teams.List)
		route("POST /teams", adminOnly, cfg.Teams.Create)
		route("PUT /teams/{id}", adminOnly, cfg.Teams.Update)
		route("DELETE /teams/{id}", adminOnly, cfg.Teams.Delete)
	}

	if cfg.Leaderboard != nil {
		route("GET /leaderboard", public, cfg.Leaderboard.Overall)
		route("GET /leaderboard/range", public, cfg.Leaderboard.Range)
		route("GET /leaderboard/daily", public, cfg.Leaderboard.Daily)
		route("GET /leaderboard/scores", public, cfg.Leaderboard.ListScores)
		route("POST /leaderboard/scores", adminOnly, cfg.Leaderboard.UpsertScore)
		route("DELETE /leaderboard/scores/{id}", superAdminOnly, cfg.Leaderboard.DeleteScore)
	}

	if cfg.Admin != nil {
		a := cfg.Admin
		route("GET /admin/dashboard", adminOnly, a.Dashboard)
		route("GET /admin/presence", adminOnly, a.Presence)
		route("GET /admin/events", adminOnly, a.Events)
		route("GET /admin/config", adminOnly, a.GetConfig)
		route("POST /admin/config", adminOnly, a.UpdateConfig)
		route("POST /admin/revoke-device", adminOnly, a.RevokeDevice)
		route("POST /admin/logout-user", adminOnly, a.LogoutUser)
		route("GET /admin/users", adminOnly, a.ListUsers)
		route("POST /admin/users/{id}/approve", adminOnly, a.ApproveUser)
		route("DELETE /admin/users/{id}", superAdminOnly, a.DeleteUser)
		route("DELETE /admin/users/{id}/votes", superAdminOnly, a.DeleteUserVotes)
		route("DELETE /admin/users/{id}/votes/{teamId}", superAdminOnly, a.DeleteUserVotes)
		route("GET /admin/transactions", superAdminOnly, a.Transactions)
		route("GET /admin/audit-logs", superAdminOnly, a.AuditLogs)
		route("POST /admin/reset-password", superAdminOnly, a.ResetPassword)
		route("GET /admin/admins", superAdminOnly, a.ListAdmins)
		route("POST /admin/admins", superAdminOnly, a.CreateAdmin)
		route("DELETE /admin/admins/{username}", superAdminOnly, a.DeleteAdmin)
	}

	for prefix, h := range map[string]*AccessListHandler{"/admin/whitelist": cfg.Whitelist, "/admin/blacklist": cfg.Blacklist} {
		if h == nil {
			continue
		}
		route("GET "+prefix, adminOnly, h.List)
		route("POST "+prefix, adminOnly, h.Add)
		route("DELETE "+prefix+"/{email}", adminOnly, h.Remove)
	}

	if cfg.Socket != nil {
		route("GET /ws", anySession, cfg.Socket.Serve)
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}
