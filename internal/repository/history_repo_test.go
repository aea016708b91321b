package repository

import (
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"labelguard/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
)

var historyColumns = []string{"id", "serial1", "serial2", "state", "message", "occurred_at", "production_line", "product_model", "voltage", "station_id", "line_id"}

func TestHistorySQLite_Save(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	ts := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	history := []models.ValidationResult{
		{ID: "b", Serial1: "AB12CD34", Serial2: "AB12CD34", State: models.OutcomeApproved, Message: "codes match", Timestamp: ts, StationID: strPtr("ST-1")},
		{Serial1: "AAAA1111", Serial2: "BBBB2222", State: models.OutcomeRejected, Message: "codes differ", Timestamp: ts.Add(-time.Minute)},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(deleteHistorySQL)).WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(regexp.QuoteMeta(insertHistorySQL)).
		WithArgs("b", 0, "AB12CD34", "AB12CD34", "approved", "codes match", ts, nil, nil, nil, "ST-1", nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertHistorySQL)).
		WithArgs(sqlmock.AnyArg(), 1, "AAAA1111", "BBBB2222", "rejected", "codes differ", ts.Add(-time.Minute), nil, nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	if err := NewHistorySQLite(db).Save(ctx(t), history); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestHistorySQLite_SaveRollsBackOnInsertError(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(deleteHistorySQL)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(insertHistorySQL)).WillReturnError(errors.New("constraint"))
	mock.ExpectRollback()

	err = NewHistorySQLite(db).Save(ctx(t), []models.ValidationResult{{ID: "x", State: models.OutcomeApproved}})
	if err == nil || !strings.Contains(err.Error(), "insert history entry 0") {
		t.Fatalf("expected insert error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestHistorySQLite_SaveEmptyClears(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(deleteHistorySQL)).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	if err := NewHistorySQLite(db).Save(ctx(t), nil); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestHistorySQLite_Load(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	ts := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(historyColumns).
		AddRow("b", "AB12CD34", "AB12CD34", "approved", "codes match", ts, "L1", nil, nil, nil, nil).
		AddRow("a", "AAAA1111", "BBBB2222", "rejected", "codes differ", ts.Add(-time.Minute), nil, nil, nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta(selectHistorySQL)).WithArgs(MaxHistory).WillReturnRows(rows)

	got, err := NewHistorySQLite(db).Load(ctx(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ID != "b" || got[0].State != models.OutcomeApproved {
		t.Fatalf("unexpected first entry: %+v", got[0])
	}
	if got[0].ProductionLine == nil || *got[0].ProductionLine != "L1" {
		t.Fatalf("production line not mapped: %v", got[0].ProductionLine)
	}
	if got[1].State != models.OutcomeRejected || got[1].ProductionLine != nil {
		t.Fatalf("unexpected second entry: %+v", got[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}
