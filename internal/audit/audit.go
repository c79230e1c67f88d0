package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Kind names a session lifecycle step.
type Kind string

const (
	KindRestore                Kind = "restore"
	KindLogin                  Kind = "login"
	KindRegister               Kind = "register"
	KindSessionSuperseded      Kind = "session_superseded"
	KindLogout                 Kind = "logout"
	KindForcedLogout           Kind = "forced_logout"
	KindForcedLogoutSuppressed Kind = "forced_logout_suppressed"
)

// Suppression causes carried in Event.Cause.
const (
	CauseInProgress = "in_progress"
	CauseCooldown   = "cooldown"
)

// Event is one lifecycle record. It never carries tokens or passwords.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	Success   bool      `json:"success"`

	// Signed-in user, when one is known.
	UserID      string `json:"user_id,omitempty"`
	Role        string `json:"role,omitempty"`
	AccountType string `json:"account_type,omitempty"`

	// LogoutID is the forced-logout request ID.
	LogoutID string `json:"logout_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Cause    string `json:"cause,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Sink receives events on the dispatcher goroutine, one at a time.
type Sink interface {
	Deliver(Event)
}

// DiscardSink drops every event.
type DiscardSink struct{}

func (DiscardSink) Deliver(Event) {}

// ChannelSink hands events to a reader, mostly tests.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Deliver(ev Event) {
	s.events <- ev
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONLinesSink writes one JSON object per line.
type JSONLinesSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONLinesSink(w io.Writer) *JSONLinesSink {
	return &JSONLinesSink{enc: json.NewEncoder(w)}
}

func (s *JSONLinesSink) Deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(ev)
}

// LogSink writes events as structured log records.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(ev Event) {
	level := slog.LevelInfo
	if !ev.Success {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("kind", string(ev.Kind)),
		slog.Bool("success", ev.Success),
	}
	for _, kv := range [][2]string{
		{"user_id", ev.UserID},
		{"role", ev.Role},
		{"account_type", ev.AccountType},
		{"logout_id", ev.LogoutID},
		{"reason", ev.Reason},
		{"cause", ev.Cause},
		{"error", ev.Error},
	} {
		if kv[1] != "" {
			attrs = append(attrs, slog.String(kv[0], kv[1]))
		}
	}
	s.logger.LogAttrs(context.Background(), level, "audit: "+string(ev.Kind), attrs...)
}
