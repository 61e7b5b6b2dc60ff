package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ogurasousui/checkin-ledger/internal/core/checkin"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var checkInRowColumns = []string{"id", "kind", "teammate_id", "subject_id", "started_on",
	"employee_rating", "employee_private_notes", "employee_personal_alignment", "employee_actual_energy", "employee_completed_at",
	"manager_rating", "manager_private_notes", "manager_completed_at", "manager_completed_by_id",
	"official_rating", "official_shared_notes", "official_completed_at", "official_finalized_by_id",
	"snapshot_id", "created_at", "updated_at"}

func TestCheckInRepository_FindByIDForUpdate(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	repo := NewCheckInRepository(mock)
	started := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	completed := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM check_ins WHERE id = \$1 FOR UPDATE`).
		WithArgs("ci-1").
		WillReturnRows(pgxmock.NewRows(checkInRowColumns).AddRow(
			"ci-1", "assignment", "tm-1", "asg-1", started,
			"meeting", "", "aligned", int32(45), completed,
			"exceeding", "note", completed, "mgr-1",
			nil, "", nil, nil,
			nil, now, now,
		))

	found, err := repo.FindByIDForUpdate(context.Background(), "ci-1")
	if err != nil {
		t.Fatalf("FindByIDForUpdate returned error: %v", err)
	}
	if found.State() != checkin.StateReadyForFinalization {
		t.Fatalf("expected ready_for_finalization, got %s", found.State())
	}
	if found.Employee.ActualEnergyPercentage == nil || *found.Employee.ActualEnergyPercentage != 45 {
		t.Fatalf("unexpected actual energy: %v", found.Employee.ActualEnergyPercentage)
	}
	if found.Manager.CompletedByID == nil || *found.Manager.CompletedByID != "mgr-1" {
		t.Fatalf("unexpected manager completed_by: %v", found.Manager.CompletedByID)
	}
	if found.SnapshotID != nil {
		t.Fatalf("expected no snapshot link, got %v", *found.SnapshotID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCheckInRepository_UpdateFinalized(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	repo := NewCheckInRepository(mock)
	started := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	mock.ExpectQuery(`(?s)UPDATE check_ins.*WHERE id = \$1 AND official_completed_at IS NULL`).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`FROM check_ins WHERE id = \$1`).
		WithArgs("ci-1").
		WillReturnRows(pgxmock.NewRows(checkInRowColumns).AddRow(
			"ci-1", "position", "tm-1", "pos-1", started,
			nil, "", "", nil, now,
			nil, "", now, "mgr-1",
			"meeting", "shared", now, "mgr-1",
			"snap-1", now, now,
		))

	_, err = repo.Update(context.Background(), &checkin.CheckIn{ID: "ci-1", UpdatedAt: now})
	if !errors.Is(err, checkin.ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCheckInRepository_LinkSnapshot(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	repo := NewCheckInRepository(mock)
	ids := []string{"ci-1", "ci-2"}

	mock.ExpectExec(`(?s)UPDATE check_ins\s+SET snapshot_id = \$2`).
		WithArgs(ids, "snap-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec(`(?s)UPDATE check_ins\s+SET snapshot_id = \$2`).
		WithArgs(ids, "snap-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.LinkSnapshot(context.Background(), ids, "snap-1"); err != nil {
		t.Fatalf("LinkSnapshot returned error: %v", err)
	}
	if err := repo.LinkSnapshot(context.Background(), ids, "snap-2"); !errors.Is(err, checkin.ErrSnapshotLinkFailed) {
		t.Fatalf("expected ErrSnapshotLinkFailed, got %v", err)
	}
	if err := repo.LinkSnapshot(context.Background(), nil, "snap-3"); err != nil {
		t.Fatalf("expected empty link to be a no-op, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTranslateCheckInPgError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "no rows", err: pgx.ErrNoRows, want: checkin.ErrCheckInNotFound},
		{name: "open unique", err: &pgconn.PgError{Code: uniqueViolationCode}, want: checkin.ErrOpenCheckInExists},
		{name: "snapshot fk", err: &pgconn.PgError{Code: foreignKeyViolationCode, ConstraintName: "check_ins_snapshot_id_fkey"}, want: checkin.ErrSnapshotLinkFailed},
		{name: "finalize ready", err: &pgconn.PgError{Code: checkViolationCode, ConstraintName: "check_ins_finalize_ready_check"}, want: checkin.ErrNotReady},
		{name: "snapshot finalized", err: &pgconn.PgError{Code: checkViolationCode, ConstraintName: "check_ins_snapshot_finalized_check"}, want: checkin.ErrNotFinalized},
	}
	for _, tc := range cases {
		if got := translateCheckInPgError(tc.err); !errors.Is(got, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
