package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ogurasousui/checkin-ledger/internal/core/principal"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestPrincipalRepository_FindByEmail(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	repo := NewPrincipalRepository(mock)
	now := time.Now().UTC()

	mock.ExpectQuery(`(?s)FROM principals\s+WHERE email = \$1`).
		WithArgs("system@checkin.local").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "name", "kind", "status", "created_at", "updated_at"}).
			AddRow("p-1", "system@checkin.local", "System", "system", "active", now, now))
	mock.ExpectQuery(`(?s)FROM principals\s+WHERE email = \$1`).
		WithArgs("missing@checkin.local").
		WillReturnError(pgx.ErrNoRows)

	found, err := repo.FindByEmail(context.Background(), "system@checkin.local")
	if err != nil {
		t.Fatalf("FindByEmail returned error: %v", err)
	}
	if found.Kind != principal.KindSystem || found.Status != principal.StatusActive {
		t.Fatalf("unexpected principal: %+v", found)
	}

	if _, err := repo.FindByEmail(context.Background(), "missing@checkin.local"); !errors.Is(err, principal.ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTranslatePrincipalPgError(t *testing.T) {
	t.Parallel()

	if !errors.Is(translatePrincipalPgError(&pgconn.PgError{Code: uniqueViolationCode}), principal.ErrEmailAlreadyExists) {
		t.Fatalf("expected unique violation to map to ErrEmailAlreadyExists")
	}
	if translatePrincipalPgError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}
