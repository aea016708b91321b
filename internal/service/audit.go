package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"labelguard/internal/models"
	"labelguard/internal/repository"
)

// AuditTypes lists every event the station writes, in cycle order.
var AuditTypes = []string{
	models.AuditApproved,
	models.AuditRejected,
	models.AuditConfirmed,
	models.AuditReset,
	models.AuditConfigChange,
	models.AuditHistoryClear,
}

// LogFilter narrows an audit trail listing.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	// Types keeps only these event types; empty keeps all. Case-insensitive.
	Types []string
	// ResultID keeps only events about one ledger entry: its APPROVED or
	// REJECTED record and the CONFIRMED/RESET that closed the cycle.
	ResultID string
}

type AuditLogService struct {
	eventRepo repository.EventRepo
}

func NewAuditLogService(eventRepo repository.EventRepo) *AuditLogService {
	return &AuditLogService{eventRepo: eventRepo}
}

var (
	errInvalidTimeRange = errors.New("invalid time range: From must be <= To")

	ErrUnknownAuditType = errors.New("unknown audit event type")
)

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// auditQuery is a validated LogFilter.
type auditQuery struct {
	from, to time.Time
	types    map[string]bool
	resultID string
}

func newAuditQuery(f LogFilter) (auditQuery, error) {
	q := auditQuery{
		from:     normalizeToUTC(f.From),
		to:       normalizeToUTC(f.To),
		resultID: strings.TrimSpace(f.ResultID),
	}
	if !q.from.IsZero() && !q.to.IsZero() && q.from.After(q.to) {
		return auditQuery{}, errInvalidTimeRange
	}
	for _, t := range f.Types {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if !isAuditType(t) {
			return auditQuery{}, fmt.Errorf("%w: %q", ErrUnknownAuditType, t)
		}
		if q.types == nil {
			q.types = make(map[string]bool)
		}
		q.types[t] = true
	}
	return q, nil
}

func isAuditType(t string) bool {
	for _, known := range AuditTypes {
		if t == known {
			return true
		}
	}
	return false
}

// repoType is the type the repository can filter on by itself; with more
// than one type the rest is filtered here.
func (q auditQuery) repoType() string {
	if len(q.types) != 1 {
		return ""
	}
	for t := range q.types {
		return t
	}
	return ""
}

func (q auditQuery) keep(e models.AuditEvent) bool {
	if len(q.types) > 1 && !q.types[e.Type] {
		return false
	}
	if q.resultID != "" && metaString(e.Metadata, "result_id") != q.resultID {
		return false
	}
	return true
}

// metaString reads a string field from event metadata as written by the
// machine (map[string]any) or decoded back from JSON.
func metaString(meta any, key string) string {
	m, ok := meta.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// List returns matching events, oldest first.
func (s *AuditLogService) List(ctx context.Context, f LogFilter) ([]models.AuditEvent, error) {
	if s.eventRepo == nil {
		return nil, ErrUnavailable
	}
	q, err := newAuditQuery(f)
	if err != nil {
		return nil, err
	}
	events, err := s.eventRepo.List(ctx, q.from, q.to, q.repoType())
	if err != nil {
		return nil, err
	}
	out := make([]models.AuditEvent, 0, len(events))
	for _, e := range events {
		if q.keep(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// IsInvalidRange reports whether err came from a bad From/To pair.
func IsInvalidRange(err error) bool { return errors.Is(err, errInvalidTimeRange) }
