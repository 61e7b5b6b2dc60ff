package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ogurasousui/checkin-ledger/internal/core/snapshot"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var snapshotRowColumns = []string{"id", "employee_id", "creator_id", "company_id", "change_type", "reason", "effective_date",
	"request_context", "state_tree", "created_at"}

func TestSnapshotRepository_Create(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	repo := NewSnapshotRepository(mock)
	effective := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()
	energy := 60
	tree := snapshot.StateTree{
		Assignments: []snapshot.AssignmentState{{AssignmentID: "asg-1", AnticipatedEnergyPercentage: &energy}},
	}
	tree.Normalize()
	rc := snapshot.RequestContext{ActorID: "mgr-1", RequestID: "req-1", Timestamp: now}

	rcJSON, err := json.Marshal(rc)
	if err != nil {
		t.Fatalf("marshal request context: %v", err)
	}
	treeJSON, err := json.Marshal(tree)
	if err != nil {
		t.Fatalf("marshal state tree: %v", err)
	}

	mock.ExpectQuery(`(?s)INSERT INTO snapshots .*RETURNING`).
		WithArgs("tm-1", "mgr-1", "co-1", "assignment_management", "energy change", effective, rcJSON, treeJSON, now).
		WillReturnRows(pgxmock.NewRows(snapshotRowColumns).
			AddRow("snap-1", "tm-1", "mgr-1", "co-1", "assignment_management", "energy change", effective, rcJSON, treeJSON, now))

	created, err := repo.Create(context.Background(), &snapshot.Snapshot{
		EmployeeID:     "tm-1",
		CreatorID:      "mgr-1",
		CompanyID:      "co-1",
		ChangeType:     snapshot.ChangeAssignmentManagement,
		Reason:         "energy change",
		EffectiveDate:  effective,
		RequestContext: rc,
		StateTree:      tree,
		CreatedAt:      now,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if created.ID != "snap-1" || created.ChangeType != snapshot.ChangeAssignmentManagement {
		t.Fatalf("unexpected snapshot: %+v", created)
	}
	got, ok := created.StateTree.Assignment("asg-1")
	if !ok || got.AnticipatedEnergyPercentage == nil || *got.AnticipatedEnergyPercentage != 60 {
		t.Fatalf("unexpected state tree: %+v", created.StateTree)
	}
	if created.RequestContext.RequestID != "req-1" {
		t.Fatalf("unexpected request context: %+v", created.RequestContext)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSnapshotRepository_PreviousNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	repo := NewSnapshotRepository(mock)

	mock.ExpectQuery(`(?s)seq < \(SELECT seq FROM snapshots WHERE id = \$2\)`).
		WithArgs("tm-1", "snap-1").
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.Previous(context.Background(), &snapshot.Snapshot{ID: "snap-1", EmployeeID: "tm-1"})
	if !errors.Is(err, snapshot.ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTranslateSnapshotPgError(t *testing.T) {
	t.Parallel()

	immutable := &pgconn.PgError{Code: raiseExceptionCode, ConstraintName: "snapshots_append_only"}
	if !errors.Is(translateSnapshotPgError(immutable), snapshot.ErrImmutable) {
		t.Fatalf("expected trigger rejection to map to ErrImmutable")
	}

	fk := &pgconn.PgError{Code: foreignKeyViolationCode}
	if !errors.Is(translateSnapshotPgError(fk), snapshot.ErrEmployeeNotFound) {
		t.Fatalf("expected fk violation to map to ErrEmployeeNotFound")
	}

	other := &pgconn.PgError{Code: raiseExceptionCode, ConstraintName: "something_else"}
	if translateSnapshotPgError(other) != error(other) {
		t.Fatalf("unexpected translation for unrelated exception")
	}
}
