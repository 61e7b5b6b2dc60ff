package memory

import (
	"context"

	"github.com/ogurasousui/checkin-ledger/internal/core/snapshot"
)

// Subjects はスナップショット対象・ポジション要件・マイルストーンのインメモリ読み取りです。
type Subjects struct {
	s *Store
}

var (
	_ snapshot.SubjectReader     = (*Subjects)(nil)
	_ snapshot.RequirementReader = (*Subjects)(nil)
	_ snapshot.MilestoneReader   = (*Subjects)(nil)
)

func (r *Subjects) GetSubject(_ context.Context, employeeID string) (*snapshot.Subject, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	subj, ok := r.s.data.subjects[employeeID]
	if !ok {
		return nil, snapshot.ErrEmployeeNotFound
	}
	out := *subj
	return &out, nil
}

func (r *Subjects) RequiredAssignments(_ context.Context, positionID string) ([]snapshot.RequiredAssignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]snapshot.RequiredAssignment(nil), r.s.data.requirements[positionID]...), nil
}

func (r *Subjects) ListMilestones(_ context.Context, teammateID string) ([]snapshot.Milestone, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]snapshot.Milestone(nil), r.s.data.milestones[teammateID]...), nil
}
