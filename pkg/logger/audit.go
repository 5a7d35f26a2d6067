package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent records a security-relevant moment in the login protocol.
// IPAddress and UserAgent are free-form attributes of the attempt; they are
// never used for matching, only for the audit trail.
type AuditEvent struct {
	EventType     string // e.g. "login_failed", "code_verified", "logout"
	UserID        string
	IPAddress     string
	UserAgent     string
	Device        string // parsed browser/OS summary, may be empty
	Success       bool
	FailureReason string
}

// AuditLogger provides structured audit logging for authentication events
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// LogAuthAttempt logs an authentication protocol event. Failures log at Warn
// so lockout investigations can filter on level alone.
func (al *AuditLogger) LogAuthAttempt(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.Device != "" {
		attrs = append(attrs, slog.String("device", event.Device))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(context.Background(), level, "audit", attrs...)
}

// LogSessionEvent logs session lifecycle changes (issued, destroyed).
func (al *AuditLogger) LogSessionEvent(eventType, userID, ipAddress string) {
	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit",
		slog.String("audit_type", "session"),
		slog.String("event_type", eventType),
		slog.String("user_id", userID),
		slog.String("ip_address", ipAddress),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	)
}
