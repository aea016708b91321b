package models

import "time"

// Audit event types.
const (
	AuditApproved     = "APPROVED"
	AuditRejected     = "REJECTED"
	AuditConfirmed    = "CONFIRMED"
	AuditReset        = "RESET"
	AuditConfigChange = "CONFIG_CHANGE"
	AuditHistoryClear = "HISTORY_CLEAR"
)

// AuditEvent is a single operator-action log entry.
type AuditEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Metadata    any       `json:"metadata,omitempty"`
}
