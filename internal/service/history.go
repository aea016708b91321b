package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"labelguard/internal/models"

	"gopkg.in/yaml.v3"
)

// Export formats.
const (
	ExportCSV  = "csv"
	ExportJSON = "json"
	ExportYAML = "yaml"
)

// HistoryFilter narrows a ledger listing. Zero values mean no bound.
type HistoryFilter struct {
	From  time.Time
	To    time.Time
	State string // "", "approved", "rejected", "error"
}

type HistoryStats struct {
	Total        int     `json:"total"`
	Approved     int     `json:"approved"`
	Rejected     int     `json:"rejected"`
	Errors       int     `json:"errors"`
	ApprovalRate float64 `json:"approval_rate"`
}

type historyMachine interface {
	History(ctx context.Context) ([]models.ValidationResult, error)
	ClearHistory(ctx context.Context) error
}

type HistoryService struct {
	machine historyMachine
}

func NewHistoryService(m historyMachine) *HistoryService {
	return &HistoryService{machine: m}
}

// List returns matching ledger entries, most recent first.
func (s *HistoryService) List(ctx context.Context, f HistoryFilter) ([]models.ValidationResult, error) {
	from, to := normalizeToUTC(f.From), normalizeToUTC(f.To)
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return nil, errInvalidTimeRange
	}
	state := strings.ToLower(strings.TrimSpace(f.State))

	all, err := s.machine.History(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.ValidationResult, 0, len(all))
	for _, r := range all {
		if !from.IsZero() && r.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && r.Timestamp.After(to) {
			continue
		}
		if state != "" && string(r.State) != state {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *HistoryService) Stats(ctx context.Context) (HistoryStats, error) {
	all, err := s.machine.History(ctx)
	if err != nil {
		return HistoryStats{}, err
	}
	var st HistoryStats
	st.Total = len(all)
	for _, r := range all {
		switch r.State {
		case models.OutcomeApproved:
			st.Approved++
		case models.OutcomeRejected:
			st.Rejected++
		case models.OutcomeError:
			st.Errors++
		}
	}
	if st.Total > 0 {
		st.ApprovalRate = float64(st.Approved) / float64(st.Total)
	}
	return st, nil
}

func (s *HistoryService) Clear(ctx context.Context) error {
	return s.machine.ClearHistory(ctx)
}

// Export writes the full ledger to w in the given format.
func (s *HistoryService) Export(ctx context.Context, format string, w io.Writer) error {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case ExportCSV, ExportJSON, ExportYAML:
	default:
		return ErrUnknownExportFormat
	}

	all, err := s.machine.History(ctx)
	if err != nil {
		return err
	}

	switch format {
	case ExportJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(all)
	case ExportYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(all); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return writeHistoryCSV(w, all)
	}
}

var historyCSVHeader = []string{
	"id", "timestamp", "state", "serial1", "serial2", "message",
	"station_id", "line_id", "production_line", "product_model", "voltage",
}

func writeHistoryCSV(w io.Writer, rows []models.ValidationResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(historyCSVHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.ID,
			r.Timestamp.UTC().Format(time.RFC3339),
			string(r.State),
			csvCell(r.Serial1),
			csvCell(r.Serial2),
			csvCell(r.Message),
			csvCell(deref(r.StationID)),
			csvCell(deref(r.LineID)),
			csvCell(deref(r.ProductionLine)),
			csvCell(deref(r.ProductModel)),
			csvCell(deref(r.Voltage)),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// csvCell quotes text that a spreadsheet would evaluate as a formula.
func csvCell(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// ExportFilename is the suggested download name for a ledger export.
func ExportFilename(format string, now time.Time) string {
	return "validation-history-" + strconv.FormatInt(now.UTC().Unix(), 10) + "." + strings.ToLower(format)
}
