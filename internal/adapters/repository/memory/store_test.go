package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ogurasousui/checkin-ledger/internal/core/checkin"
	"github.com/ogurasousui/checkin-ledger/internal/core/tenure"
)

func TestWithinReadWriteRollsBack(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	energy := 30

	boom := errors.New("boom")
	err := store.WithinReadWrite(ctx, func(txCtx context.Context) error {
		if _, err := store.Tenures().Create(txCtx, &tenure.Tenure{TeammateID: "tm-1", SubjectKind: tenure.SubjectAssignment, SubjectID: "as-1", StartedOn: day, EnergyPercentage: &energy}); err != nil {
			return err
		}
		if _, err := store.CheckIns().Create(txCtx, &checkin.CheckIn{Kind: checkin.KindAssignment, TeammateID: "tm-1", SubjectID: "as-1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	tenures, _ := store.Tenures().ListByTeammate(ctx, "tm-1")
	checkIns, _ := store.CheckIns().ListByTeammate(ctx, "tm-1")
	if len(tenures) != 0 || len(checkIns) != 0 {
		t.Fatalf("expected rollback, got %d tenures and %d check-ins", len(tenures), len(checkIns))
	}
}

func TestNestedTransactionJoinsOuter(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithinReadWrite(ctx, func(outer context.Context) error {
		if err := store.WithinReadWrite(outer, func(inner context.Context) error {
			_, err := store.CheckIns().Create(inner, &checkin.CheckIn{Kind: checkin.KindAspiration, TeammateID: "tm-1", SubjectID: "asp-1"})
			return err
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := store.CheckIns().FindOpen(ctx, "tm-1", checkin.KindAspiration, "asp-1"); !errors.Is(err, checkin.ErrCheckInNotFound) {
		t.Fatalf("inner write must roll back with the outer transaction, got %v", err)
	}
}

func TestCreateRejectsSecondOpenPosition(t *testing.T) {
	t.Parallel()

	store := NewStore()
	ctx := context.Background()
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	if _, err := store.Tenures().Create(ctx, &tenure.Tenure{TeammateID: "tm-1", SubjectKind: tenure.SubjectPosition, SubjectID: "pos-1", StartedOn: day}); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	_, err := store.Tenures().Create(ctx, &tenure.Tenure{TeammateID: "tm-1", SubjectKind: tenure.SubjectPosition, SubjectID: "pos-2", StartedOn: day})
	if !errors.Is(err, tenure.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
}
