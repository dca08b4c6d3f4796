// Package audit records security-relevant events: failed logins, session
// revocations, token reuse. Writes are best-effort and never fail the
// request that triggered them.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"medianest/backend/internal/audit/domain"
	auditrepo "medianest/backend/internal/audit/repository"
)

// Actions recorded by the auth and session flows.
const (
	ActionLoginSuccess     = "login_success"
	ActionLoginFailure     = "login_failure"
	ActionLogout           = "logout"
	ActionRegister         = "register"
	ActionLinkConsumed     = "link_consumed"
	ActionConsumeConflict  = "consume_conflict"
	ActionRememberRedeemed = "remember_redeemed"
	ActionRememberReuse    = "remember_reuse"
	ActionSessionRevoked   = "session_revoked"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, identityID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional
// IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
}

// NewLogger returns an AuditLogger that persists to repo and uses
// ipExtractor for the client IP. ipExtractor may be nil; then IP is recorded
// as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and
// not returned.
func (l *Logger) LogEvent(ctx context.Context, identityID, action, resource, metadata string) {
	if l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	entry := &domain.AuditLog{
		ID:         uuid.New().String(),
		IdentityID: identityID,
		Action:     action,
		Resource:   resource,
		IP:         ip,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
	}
}

// Nop is an AuditLogger that discards everything. Used in tests and when
// auditing is disabled.
type Nop struct{}

func (Nop) LogEvent(context.Context, string, string, string, string) {}

// Multi fans each event out to every logger, in order.
type Multi []AuditLogger

func (m Multi) LogEvent(ctx context.Context, identityID, action, resource, metadata string) {
	for _, l := range m {
		if l != nil {
			l.LogEvent(ctx, identityID, action, resource, metadata)
		}
	}
}
