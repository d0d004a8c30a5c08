package keys

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGStoreLoad(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT api_key, calls_used, window_start FROM key_usage").
		WillReturnRows(sqlmock.NewRows([]string{"api_key", "calls_used", "window_start"}).
			AddRow("key-a", 7, start).
			AddRow("key-b", 0, start))

	store := NewPGStore(db)
	ledger, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(ledger) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(ledger))
	}
	if got := ledger["key-a"]; got.CallsUsed != 7 || !got.WindowStart.Equal(start) {
		t.Fatalf("unexpected key-a record %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreSaveUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO key_usage").
		WithArgs("key-a", 3, start).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewPGStore(db)
	err = store.Save(context.Background(), Ledger{
		"key-a": {CallsUsed: 3, WindowStart: start},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
