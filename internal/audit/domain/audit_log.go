package domain

import "time"

// AuditLog is one security-relevant event: who did what to which resource,
// from where.
type AuditLog struct {
	ID         string
	IdentityID string
	Action     string
	Resource   string
	IP         string
	Metadata   string
	CreatedAt  time.Time
}
