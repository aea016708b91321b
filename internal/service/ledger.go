package service

import (
	"labelguard/internal/models"
	"labelguard/internal/repository"
	"labelguard/internal/scan"
)

// HistorySaver receives the full ledger after every change.
type HistorySaver interface {
	SaveHistory(history []models.ValidationResult)
}

// Ledger is the bounded validation history, most recent first. It is owned
// by the Machine and only touched from its loop.
type Ledger struct {
	entries []models.ValidationResult
	saver   HistorySaver
}

func NewLedger(saver HistorySaver) *Ledger {
	return &Ledger{saver: saver}
}

// Load replaces the in-memory entries without signalling the saver.
func (l *Ledger) Load(entries []models.ValidationResult) {
	if len(entries) > repository.MaxHistory {
		entries = entries[:repository.MaxHistory]
	}
	l.entries = append([]models.ValidationResult(nil), entries...)
}

// Append inserts res at the front, evicting the oldest entry past the bound.
func (l *Ledger) Append(res models.ValidationResult) {
	next := make([]models.ValidationResult, 0, min(len(l.entries)+1, repository.MaxHistory))
	next = append(next, res)
	for _, e := range l.entries {
		if len(next) == repository.MaxHistory {
			break
		}
		next = append(next, e)
	}
	l.entries = next
	l.save()
}

// WasCodeUsed reports whether code matches the normalized serial of any entry.
func (l *Ledger) WasCodeUsed(code string) bool {
	for _, e := range l.entries {
		if scan.Normalize(e.Serial1) == code || scan.Normalize(e.Serial2) == code {
			return true
		}
	}
	return false
}

func (l *Ledger) Clear() {
	l.entries = nil
	l.save()
}

func (l *Ledger) Len() int { return len(l.entries) }

// Entries returns a copy.
func (l *Ledger) Entries() []models.ValidationResult {
	return append([]models.ValidationResult(nil), l.entries...)
}

func (l *Ledger) save() {
	if l.saver != nil {
		l.saver.SaveHistory(l.Entries())
	}
}
