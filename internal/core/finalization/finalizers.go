package finalization

import (
	"context"

	"github.com/ogurasousui/checkin-ledger/internal/core/checkin"
	"github.com/ogurasousui/checkin-ledger/internal/core/tenure"
)

type finalizer interface {
	finalize(ctx context.Context, run *finalizeRun, t target) (*tenure.Transition, error)
}

func (c *Coordinator) finalizerFor(category Category) finalizer {
	switch category {
	case CategoryPosition:
		return positionFinalizer{c}
	case CategoryAssignments:
		return assignmentFinalizer{c}
	default:
		return aspirationFinalizer{c}
	}
}

// applyOfficial は公式評価を設定して保存します。
func (c *Coordinator) applyOfficial(ctx context.Context, run *finalizeRun, t target) error {
	if err := t.checkIn.Finalize(checkin.FinalizeInput{
		Rating:      t.rating,
		SharedNotes: t.notes,
		FinalizedBy: run.req.FinalizedBy,
		At:          run.now,
	}); err != nil {
		return err
	}
	t.checkIn.UpdatedAt = run.now
	_, err := c.checkIns.Update(ctx, t.checkIn)
	return err
}

// positionFinalizer は公式評価を設定し、雇用の保有期間を同じ属性で繰り越します。
type positionFinalizer struct{ c *Coordinator }

func (f positionFinalizer) finalize(ctx context.Context, run *finalizeRun, t target) (*tenure.Transition, error) {
	if err := f.c.applyOfficial(ctx, run, t); err != nil {
		return nil, err
	}
	return f.c.ledger.RollPositionForward(ctx, tenure.RollPositionInput{
		TeammateID:     run.req.TeammateID,
		EffectiveDate:  run.effective,
		OfficialRating: t.rating,
		ActorID:        run.req.FinalizedBy,
	})
}

// assignmentFinalizer は公式評価を設定し、アサインメントの保有期間を想定エネルギー割合で繰り越します。
type assignmentFinalizer struct{ c *Coordinator }

func (f assignmentFinalizer) finalize(ctx context.Context, run *finalizeRun, t target) (*tenure.Transition, error) {
	if err := f.c.applyOfficial(ctx, run, t); err != nil {
		return nil, err
	}
	return f.c.ledger.RollAssignmentForward(ctx, tenure.RollAssignmentInput{
		TeammateID:                  run.req.TeammateID,
		AssignmentID:                t.checkIn.SubjectID,
		AnticipatedEnergyPercentage: t.energy,
		DefaultEnergyPercentage:     f.c.defaultEnergy,
		EffectiveDate:               run.effective,
		OfficialRating:              t.rating,
		ActorID:                     run.req.FinalizedBy,
	})
}

// aspirationFinalizer は公式評価のみを設定します。
type aspirationFinalizer struct{ c *Coordinator }

func (f aspirationFinalizer) finalize(ctx context.Context, run *finalizeRun, t target) (*tenure.Transition, error) {
	return nil, f.c.applyOfficial(ctx, run, t)
}
