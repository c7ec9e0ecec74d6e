package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures environment driven configuration values for the voting service.
type Config struct {
	HTTPPort            int
	SQLiteDSN           string
	SessionSecret       string
	SessionTTL          time.Duration
	CookieSecure        bool
	PerTeamCap          int
	DefaultDailyQuota   int
	RequireApproval     bool
	LoginLimit          int
	LoginWindow         time.Duration
	RedisURL            string
	LeaderboardCacheTTL time.Duration
	EventRetention      time.Duration
	AllowedOrigins      []string
	SeedFile            string
	LogFormat           string
	LogLevel            string
}

// LoadEnvFile copies variables from a dotenv file into the process
// environment without overriding values that are already set. A missing
// file is not an error.
func LoadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load parses configuration values from the current process environment.
//
// The loader applies defaults for optional fields, validates required values
// and reports every missing or malformed variable at once.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:            8080,
		SQLiteDSN:           "voting.db",
		SessionTTL:          time.Hour,
		CookieSecure:        true,
		PerTeamCap:          15,
		DefaultDailyQuota:   100,
		LoginLimit:          20,
		LoginWindow:         5 * time.Minute,
		LeaderboardCacheTTL: 30 * time.Second,
		EventRetention:      7 * 24 * time.Hour,
		LogFormat:           "json",
		LogLevel:            "info",
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 4)

	if portValue := env("VOTING_HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "VOTING_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := env("VOTING_SQLITE_DSN"); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if secret := env("VOTING_SESSION_SECRET"); secret == "" {
		missing = append(missing, "VOTING_SESSION_SECRET")
	} else if len(secret) < 16 {
		invalid = append(invalid, "VOTING_SESSION_SECRET")
	} else {
		cfg.SessionSecret = secret
	}

	parseDuration("VOTING_SESSION_TTL", &cfg.SessionTTL, &invalid)
	parseBool("VOTING_COOKIE_SECURE", &cfg.CookieSecure, &invalid)
	parsePositiveInt("VOTING_PER_TEAM_CAP", &cfg.PerTeamCap, &invalid)
	parsePositiveInt("VOTING_DEFAULT_DAILY_QUOTA", &cfg.DefaultDailyQuota, &invalid)
	parseBool("VOTING_REQUIRE_APPROVAL", &cfg.RequireApproval, &invalid)
	parsePositiveInt("VOTING_LOGIN_LIMIT", &cfg.LoginLimit, &invalid)
	parseDuration("VOTING_LOGIN_WINDOW", &cfg.LoginWindow, &invalid)
	parseDuration("VOTING_LEADERBOARD_CACHE_TTL", &cfg.LeaderboardCacheTTL, &invalid)
	parseDuration("VOTING_EVENT_RETENTION", &cfg.EventRetention, &invalid)

	cfg.RedisURL = env("VOTING_REDIS_URL")
	cfg.SeedFile = env("VOTING_SEED_FILE")

	if origins := env("VOTING_ALLOWED_ORIGINS"); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}

	if format := strings.ToLower(env("VOTING_LOG_FORMAT")); format != "" {
		if format != "json" && format != "console" {
			invalid = append(invalid, "VOTING_LOG_FORMAT")
		} else {
			cfg.LogFormat = format
		}
	}
	if level := strings.ToLower(env("VOTING_LOG_LEVEL")); level != "" {
		switch level {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = level
		default:
			invalid = append(invalid, "VOTING_LOG_LEVEL")
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func parseDuration(key string, target *time.Duration, invalid *[]string) {
	value := env(key)
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		*invalid = append(*invalid, key)
		return
	}
	*target = d
}

func parsePositiveInt(key string, target *int, invalid *[]string) {
	value := env(key)
	if value == "" {
		return
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		*invalid = append(*invalid, key)
		return
	}
	*target = n
}

func parseBool(key string, target *bool, invalid *[]string) {
	value := env(key)
	if value == "" {
		return
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		*invalid = append(*invalid, key)
		return
	}
	*target = b
}
