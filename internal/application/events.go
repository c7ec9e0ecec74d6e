package application

import (
	"context"
	"log/slog"
)

// Event types published to the outbox and push hub.
const (
	EventDataChanged        = "data-changed"
	EventLeaderboardChanged = "leaderboard-changed"
	EventConfigChanged      = "config-changed"
	EventForceLogout        = "force-logout"
	EventVoteCast           = "vote-cast"
)

// Notification is one event handed to the Notifier. An empty Target broadcasts.
type Notification struct {
	Type    string
	Target  string
	Payload any
}

// Notifier publishes notifications. Implementations persist before fan-out.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotificationTarget addresses a single student or admin connection set.
func NotificationTarget(kind PrincipalKind, subject string) string {
	if subject == "" {
		return ""
	}
	return string(kind) + ":" + subject
}

// publish sends notifications best-effort; failures are logged only.
func publish(ctx context.Context, notifier Notifier, logger *slog.Logger, notifications ...Notification) {
	if notifier == nil {
		return
	}
	for _, n := range notifications {
		if err := notifier.Notify(ctx, n); err != nil {
			logger.WarnContext(ctx, "event publication failed", "event_type", n.Type, "error", err, "error_kind", ErrorKind(err))
		}
	}
}

func changedEvents(scope string, extra ...Notification) []Notification {
	out := []Notification{
		{Type: EventDataChanged, Payload: map[string]string{"scope": scope}},
		{Type: EventLeaderboardChanged, Payload: map[string]string{"scope": scope}},
	}
	return append(out, extra...)
}
