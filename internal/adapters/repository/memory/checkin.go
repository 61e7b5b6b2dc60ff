package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/ogurasousui/checkin-ledger/internal/core/checkin"
)

// CheckIns は checkin.Repository のインメモリ実装です。
type CheckIns struct {
	s *Store
}

var _ checkin.Repository = (*CheckIns)(nil)

func (r *CheckIns) Create(_ context.Context, c *checkin.CheckIn) (*checkin.CheckIn, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range r.s.data.checkInOrder {
		existing := r.s.data.checkIns[id]
		if !existing.Finalized() && existing.TeammateID == c.TeammateID && existing.Kind == c.Kind && existing.SubjectID == c.SubjectID {
			return nil, checkin.ErrOpenCheckInExists
		}
	}
	clone := c.Clone()
	clone.ID = uuid.NewString()
	r.s.data.checkIns[clone.ID] = clone
	r.s.data.checkInOrder = append(r.s.data.checkInOrder, clone.ID)
	return clone.Clone(), nil
}

func (r *CheckIns) Update(_ context.Context, c *checkin.CheckIn) (*checkin.CheckIn, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.data.checkIns[c.ID]
	if !ok {
		return nil, checkin.ErrCheckInNotFound
	}
	if existing.Finalized() {
		return nil, checkin.ErrAlreadyFinalized
	}
	r.s.data.checkIns[c.ID] = c.Clone()
	return c.Clone(), nil
}

func (r *CheckIns) FindByID(_ context.Context, id string) (*checkin.CheckIn, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.data.checkIns[id]
	if !ok {
		return nil, checkin.ErrCheckInNotFound
	}
	return c.Clone(), nil
}

func (r *CheckIns) FindByIDForUpdate(ctx context.Context, id string) (*checkin.CheckIn, error) {
	return r.FindByID(ctx, id)
}

func (r *CheckIns) FindOpen(_ context.Context, teammateID string, kind checkin.Kind, subjectID string) (*checkin.CheckIn, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range r.s.data.checkInOrder {
		c := r.s.data.checkIns[id]
		if !c.Finalized() && c.TeammateID == teammateID && c.Kind == kind && c.SubjectID == subjectID {
			return c.Clone(), nil
		}
	}
	return nil, checkin.ErrCheckInNotFound
}

func (r *CheckIns) FindOpenPosition(_ context.Context, teammateID string) (*checkin.CheckIn, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range r.s.data.checkInOrder {
		c := r.s.data.checkIns[id]
		if !c.Finalized() && c.TeammateID == teammateID && c.Kind == checkin.KindPosition {
			return c.Clone(), nil
		}
	}
	return nil, checkin.ErrCheckInNotFound
}

func (r *CheckIns) ListByTeammate(_ context.Context, teammateID string) ([]*checkin.CheckIn, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*checkin.CheckIn
	for _, id := range r.s.data.checkInOrder {
		if c := r.s.data.checkIns[id]; c.TeammateID == teammateID {
			out = append(out, c.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedOn.Before(out[j].StartedOn) })
	return out, nil
}

func (r *CheckIns) LinkSnapshot(_ context.Context, ids []string, snapshotID string) error {
	if r.s.FailLinkSnapshot != nil {
		return r.s.FailLinkSnapshot
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range ids {
		c, ok := r.s.data.checkIns[id]
		if !ok || !c.Finalized() || c.SnapshotID != nil {
			return checkin.ErrSnapshotLinkFailed
		}
	}
	for _, id := range ids {
		updated := r.s.data.checkIns[id].Clone()
		linked := snapshotID
		updated.SnapshotID = &linked
		r.s.data.checkIns[id] = updated
	}
	return nil
}
