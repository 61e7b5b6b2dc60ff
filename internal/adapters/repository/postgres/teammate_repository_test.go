package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ogurasousui/checkin-ledger/internal/core/teammate"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var teammateRowColumns = []string{"id", "company_id", "employee_code", "manager_id", "status", "hired_on", "terminated_on", "created_at", "updated_at"}

func TestTeammateRepository_List_WithFilters(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	repo := NewTeammateRepository(mock)
	status := teammate.StatusActive
	now := time.Now().UTC()
	hired := time.Date(2022, 4, 1, 0, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows(teammateRowColumns).
		AddRow("tm-1", "co-1", "e-1", "mgr-1", "active", hired, nil, now, now).
		AddRow("tm-2", "co-1", "e-2", nil, "active", nil, nil, now, now).
		AddRow("tm-3", "co-1", "e-3", nil, "active", nil, nil, now, now)

	mock.ExpectQuery(`(?s)FROM teammates\s+WHERE company_id = \$1 AND status = \$2\s+ORDER BY created_at, id\s+LIMIT \$3\s+OFFSET \$4`).
		WithArgs("co-1", "active", 3, 0).
		WillReturnRows(rows)

	list, next, err := repo.List(context.Background(), teammate.ListFilter{CompanyID: "co-1", Status: &status, Limit: 2})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(list) != 2 || next != "2" {
		t.Fatalf("expected 2 teammates and next token 2, got %d and %q", len(list), next)
	}
	if list[0].ManagerID == nil || *list[0].ManagerID != "mgr-1" {
		t.Fatalf("unexpected manager: %v", list[0].ManagerID)
	}
	if list[0].HiredOn == nil || !list[0].HiredOn.Equal(hired) {
		t.Fatalf("unexpected hired_on: %v", list[0].HiredOn)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTeammateRepository_List_Validation(t *testing.T) {
	t.Parallel()

	repo := NewTeammateRepository(nil)
	if _, _, err := repo.List(context.Background(), teammate.ListFilter{Limit: 1}); !errors.Is(err, teammate.ErrInvalidCompanyID) {
		t.Fatalf("expected ErrInvalidCompanyID, got %v", err)
	}
	if _, _, err := repo.List(context.Background(), teammate.ListFilter{CompanyID: "co-1"}); !errors.Is(err, teammate.ErrInvalidPageSize) {
		t.Fatalf("expected ErrInvalidPageSize, got %v", err)
	}
}

func TestTranslateTeammatePgError(t *testing.T) {
	t.Parallel()

	if !errors.Is(translateTeammatePgError(&pgconn.PgError{Code: uniqueViolationCode}), teammate.ErrEmployeeCodeAlreadyExists) {
		t.Fatalf("expected unique violation to map to ErrEmployeeCodeAlreadyExists")
	}
	if !errors.Is(translateTeammatePgError(&pgconn.PgError{Code: foreignKeyViolationCode}), teammate.ErrCompanyNotFound) {
		t.Fatalf("expected fk violation to map to ErrCompanyNotFound")
	}
}
