package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nreshetnikov/image-recognition-service/internal/core/domain"
)

func TestCacheRepositoryLookupMissReturnsNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewCacheRepository(db)
	mock.ExpectQuery("FROM recognition_cache").
		WithArgs("fp-1").
		WillReturnRows(sqlmock.NewRows([]string{"fingerprint"}))

	entry, err := repo.Lookup(context.Background(), "fp-1")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if entry != nil {
		t.Fatalf("expected nil entry, got %+v", entry)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCacheRepositoryLookupExpiredSuccessIsAbsent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewCacheRepository(db)
	frozen := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return frozen }

	expired := frozen.Add(-time.Minute)
	rows := sqlmock.NewRows([]string{"fingerprint", "kind", "labels", "failure", "recorded_at", "expires_at"}).
		AddRow("fp-1", string(domain.OutcomeSuccess), []byte(`[{"Name":"Cat"}]`), "", frozen.Add(-25*time.Hour), expired)

	mock.ExpectQuery("FROM recognition_cache").
		WithArgs("fp-1").
		WillReturnRows(rows)

	entry, err := repo.Lookup(context.Background(), "fp-1")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if entry != nil {
		t.Fatalf("expired success entry must read as absent, got %+v", entry)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCacheRepositoryLookupOldPermanentFailureStillHits(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewCacheRepository(db)
	frozen := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return frozen }

	rows := sqlmock.NewRows([]string{"fingerprint", "kind", "labels", "failure", "recorded_at", "expires_at"}).
		AddRow("fp-1", string(domain.OutcomePermanentFailure), nil, "415 Invalid image format", frozen.AddDate(-1, 0, 0), nil)

	mock.ExpectQuery("FROM recognition_cache").
		WithArgs("fp-1").
		WillReturnRows(rows)

	entry, err := repo.Lookup(context.Background(), "fp-1")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if entry == nil {
		t.Fatal("permanent failure must hit regardless of age")
	}
	if entry.Failure != "415 Invalid image format" {
		t.Fatalf("failure = %q", entry.Failure)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCacheRepositoryStoreUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	repo := NewCacheRepository(db)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	entry := domain.NewSuccessEntry("fp-1", []domain.Label{{Name: "Cat", Confidence: 97.5}}, now, time.Hour)

	mock.ExpectExec("INSERT INTO recognition_cache").
		WithArgs("fp-1", string(domain.OutcomeSuccess), sqlmock.AnyArg(), "", now, now.Add(time.Hour)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Store(context.Background(), entry); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
