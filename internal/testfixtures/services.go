package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/campus-voting/internal/application"
	"github.com/example/campus-voting/internal/config"
	"github.com/example/campus-voting/internal/wiring"
)

// ServiceFactory assists tests with constructing the wired application using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// TestConfig returns a configuration suitable for in-process tests. Cookies
// are not marked secure and the login limiter runs in memory.
func TestConfig() config.Config {
	return config.Config{
		SQLiteDSN:           ":memory:",
		SessionSecret:       "test-session-secret-0123456789",
		SessionTTL:          time.Hour,
		PerTeamCap:          15,
		DefaultDailyQuota:   100,
		LoginLimit:          100,
		LoginWindow:         time.Minute,
		LeaderboardCacheTTL: time.Minute,
		EventRetention:      24 * time.Hour,
		LogFormat:           "json",
		LogLevel:            "error",
	}
}

// TestApp bundles a wired application with the storage it runs on.
type TestApp struct {
	*wiring.App
	Harness *SQLiteHarness
}

// NewApp wires the full application over a fresh migrated database. mutate
// may adjust the configuration before wiring.
func (f *ServiceFactory) NewApp(tb testing.TB, mutate func(*config.Config)) *TestApp {
	tb.Helper()

	cfg := TestConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	harness := NewSQLiteHarness(tb)
	app, err := wiring.Build(context.Background(), cfg, harness.Storage, wiring.Options{
		Now:            f.Clock.NowFunc(),
		IDGenerator:    f.IDGenerator.NextFunc(),
		TokenGenerator: NewIDGenerator("sid").NextFunc(),
		Hash:           application.NewPasswordHasher(application.FastArgon2idParams),
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		tb.Fatalf("failed to wire application: %v", err)
	}
	tb.Cleanup(func() { _ = app.Close() })
	return &TestApp{App: app, Harness: harness}
}
