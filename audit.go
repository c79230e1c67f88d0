package fitAuth

import (
	"github.com/MrEthical07/fitAuth/internal/audit"
	"github.com/MrEthical07/fitAuth/session"
)

// AuditEvent is one session lifecycle record.
type AuditEvent = audit.Event

// AuditKind names the lifecycle step an AuditEvent records.
type AuditKind = audit.Kind

// AuditSink receives lifecycle events from the background dispatcher.
type AuditSink = audit.Sink

type (
	DiscardSink   = audit.DiscardSink
	ChannelSink   = audit.ChannelSink
	JSONLinesSink = audit.JSONLinesSink
	LogSink       = audit.LogSink
)

var (
	NewChannelSink   = audit.NewChannelSink
	NewJSONLinesSink = audit.NewJSONLinesSink
	NewLogSink       = audit.NewLogSink
)

const (
	AuditRestore                = audit.KindRestore
	AuditLogin                  = audit.KindLogin
	AuditRegister               = audit.KindRegister
	AuditSessionSuperseded      = audit.KindSessionSuperseded
	AuditLogout                 = audit.KindLogout
	AuditForcedLogout           = audit.KindForcedLogout
	AuditForcedLogoutSuppressed = audit.KindForcedLogoutSuppressed
)

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *audit.Dispatcher {
	return audit.New(audit.Config{
		Enabled:    cfg.Enabled,
		BufferSize: cfg.BufferSize,
		DropIfFull: cfg.DropIfFull,
	}, sink)
}

// sessionEvent fills the user fields from sess, which may be nil.
func sessionEvent(kind AuditKind, sess *session.Session) AuditEvent {
	ev := AuditEvent{Kind: kind, Success: sess != nil}
	if sess == nil {
		return ev
	}
	ev.UserID = sess.Profile.ID
	ev.Role = sess.Role.String()
	if t, err := session.AccountTypeFromRole(sess.Role); err == nil {
		ev.AccountType = string(t)
	}
	return ev
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
