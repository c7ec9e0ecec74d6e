// Package wiring assembles the services, storage adapters and HTTP handlers
// into a runnable application.
package wiring

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/campus-voting/internal/application"
	"github.com/example/campus-voting/internal/config"
	httptransport "github.com/example/campus-voting/internal/http"
	"github.com/example/campus-voting/internal/persistence/sqlite"
	"github.com/example/campus-voting/internal/ratelimit"
	"github.com/example/campus-voting/internal/realtime"
	"github.com/example/campus-voting/internal/seed"
	"github.com/example/campus-voting/internal/session"
)

// Options override clocks and generators, mainly for tests.
type Options struct {
	Now            func() time.Time
	IDGenerator    func() string
	TokenGenerator func() string
	Hash           application.PasswordHasher
	Logger         *slog.Logger
}

// App is the assembled application.
type App struct {
	Handler     http.Handler
	Hub         *realtime.Hub
	Auth        *application.AuthService
	Voting      *application.VotingService
	Config      *application.ConfigService
	Teams       *application.TeamService
	Leaderboard *application.LeaderboardService
	Scores      *application.ScoreService
	Admin       *application.AdminService
	AccessLists *application.AccessListService

	storage *sqlite.Storage
	hash    application.PasswordHasher
	now     func() time.Time
	logger  *slog.Logger
	closers []func() error
}

// Build wires every service on top of storage. The caller owns storage and
// must call App.Close when done.
func Build(ctx context.Context, cfg config.Config, storage *sqlite.Storage, opts Options) (*App, error) {
	if storage == nil {
		return nil, errors.New("storage is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	idGenerator := opts.IDGenerator
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	tokenGenerator := opts.TokenGenerator
	if tokenGenerator == nil {
		tokenGenerator = func() string { return randomHex(32) }
	}
	hash := opts.Hash
	if hash == nil {
		hash = application.HashPassword
	}

	codec, err := session.NewCodec(cfg.SessionSecret, session.WithClock(now))
	if err != nil {
		return nil, fmt.Errorf("session codec: %w", err)
	}
	limiter, closeLimiter, err := ratelimit.Open(ctx, cfg.RedisURL, ratelimit.Policy{Limit: cfg.LoginLimit, Window: cfg.LoginWindow})
	if err != nil {
		return nil, fmt.Errorf("login limiter: %w", err)
	}

	accounts := newAccountStoreAdapter(storage.Accounts)
	admins := newAdminStoreAdapter(storage.Admins)
	teams := newTeamStoreAdapter(storage.Teams)
	ledger := newVoteLedgerAdapter(storage.Votes)
	configStore := newConfigStoreAdapter(storage.Config)
	scores := newScoreStoreAdapter(storage.Scores)
	audits := newAuditStoreAdapter(storage.Audit)
	whitelist := newAccessListAdapter(storage.Whitelist)
	blacklist := newAccessListAdapter(storage.Blacklist)

	hub := realtime.NewHub(storage.Events, realtime.Options{
		CheckOrigin: originChecker(cfg.AllowedOrigins),
		Now:         now,
		Logger:      logger.With("component", "hub"),
	})
	recorder := application.NewAuditRecorder(audits, idGenerator, now, logger)

	leaderboard := application.NewLeaderboardService(application.LeaderboardServiceDeps{
		Teams:    teams,
		Ledger:   ledger,
		Scores:   scores,
		CacheTTL: cfg.LeaderboardCacheTTL,
		Now:      now,
		Logger:   logger,
	})
	configService := application.NewConfigServiceWithLogger(configStore, cfg.DefaultDailyQuota, recorder, hub, now, logger)

	app := &App{
		Hub:         hub,
		Leaderboard: leaderboard,
		Config:      configService,
		storage:     storage,
		hash:        hash,
		now:         now,
		logger:      logger,
		closers:     []func() error{closeLimiter},
	}
	app.Auth = application.NewAuthService(application.AuthServiceDeps{
		Accounts:        accounts,
		Admins:          admins,
		Teams:           teams,
		Ledger:          ledger,
		Whitelist:       whitelist,
		Blacklist:       blacklist,
		Codec:           codec,
		Limiter:         limiter,
		Audit:           recorder,
		Notifier:        hub,
		Verify:          application.VerifyPassword,
		Hash:            hash,
		IDGenerator:     idGenerator,
		TokenGenerator:  tokenGenerator,
		Now:             now,
		SessionTTL:      cfg.SessionTTL,
		RequireApproval: cfg.RequireApproval,
		Logger:          logger,
	})
	app.Voting = application.NewVotingService(application.VotingServiceDeps{
		Config:      configService,
		Teams:       teams,
		Ledger:      ledger,
		Leaderboard: leaderboard,
		Notifier:    hub,
		Audit:       recorder,
		PerTeamCap:  cfg.PerTeamCap,
		IDGenerator: idGenerator,
		Now:         now,
		Logger:      logger,
	})
	app.Teams = application.NewTeamService(application.TeamServiceDeps{
		Teams:       teams,
		Leaderboard: leaderboard,
		Notifier:    hub,
		Audit:       recorder,
		IDGenerator: idGenerator,
		Now:         now,
		Logger:      logger,
	})
	app.Scores = application.NewScoreService(application.ScoreServiceDeps{
		Scores:      scores,
		Teams:       teams,
		Leaderboard: leaderboard,
		Notifier:    hub,
		Audit:       recorder,
		IDGenerator: idGenerator,
		Now:         now,
		Logger:      logger,
	})
	app.Admin = application.NewAdminService(application.AdminServiceDeps{
		Accounts:    accounts,
		Admins:      admins,
		Teams:       teams,
		Ledger:      ledger,
		Config:      configService,
		Whitelist:   whitelist,
		Audits:      audits,
		Presence:    hub,
		Standings:   leaderboard,
		Leaderboard: leaderboard,
		Notifier:    hub,
		Audit:       recorder,
		Hash:        hash,
		Now:         now,
		Logger:      logger,
	})
	app.AccessLists = application.NewAccessListService(application.AccessListServiceDeps{
		Whitelist: whitelist,
		Blacklist: blacklist,
		Accounts:  accounts,
		Audit:     recorder,
		Notifier:  hub,
		Now:       now,
		Logger:    logger,
	})

	app.Handler = httptransport.NewRouter(httptransport.RouterConfig{
		Auth:        httptransport.NewAuthHandler(app.Auth, cfg.CookieSecure, logger),
		Voting:      httptransport.NewVotingHandler(app.Voting, logger),
		Teams:       httptransport.NewTeamHandler(app.Teams, logger),
		Leaderboard: httptransport.NewLeaderboardHandler(leaderboard, app.Scores, logger),
		Admin: httptransport.NewAdminHandler(httptransport.AdminDeps{
			Admin:    app.Admin,
			Sessions: app.Auth,
			Config:   configService,
			Events:   hub,
			Logger:   logger,
		}),
		Whitelist: httptransport.NewAccessListHandler(app.AccessLists, application.Whitelist, logger),
		Blacklist: httptransport.NewAccessListHandler(app.AccessLists, application.Blacklist, logger),
		Socket:    httptransport.NewSocketHandler(hub, logger),
		Health:    httptransport.NewHealthHandler(storage, logger),
		Resolver:  app.Auth,
		Logger:    logger,
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.Recoverer(logger),
		},
	})
	return app, nil
}

// Seed applies a seed file through the same stores the services use.
func (a *App) Seed(ctx context.Context, file seed.File) (seed.Result, error) {
	return seed.Apply(ctx, seed.Deps{
		Admins:    newAdminStoreAdapter(a.storage.Admins),
		Teams:     newTeamStoreAdapter(a.storage.Teams),
		Whitelist: newAccessListAdapter(a.storage.Whitelist),
		Config:    a.Config,
		Hash:      a.hash,
		Now:       a.now,
		Logger:    a.logger,
	}, file)
}

// Close stops the hub and releases the limiter. Storage is left open.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	a.Hub.Close()
	var errs []error
	for _, closer := range a.closers {
		if closer == nil {
			continue
		}
		if err := closer(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// originChecker allows same-origin upgrades plus the configured origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.TrimRight(strings.ToLower(origin), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set[strings.ToLower(origin)]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

func randomHex(bytes int) string {
	if bytes <= 0 {
		bytes = 16
	}
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("failed to read random bytes: %v", err))
	}
	return hex.EncodeToString(buf)
}
