package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ogurasousui/checkin-ledger/internal/core/tenure"
)

// Tenures は tenure.Repository のインメモリ実装です。
type Tenures struct {
	s *Store
}

var _ tenure.Repository = (*Tenures)(nil)

func (r *Tenures) LockHolder(_ context.Context, teammateID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.subjects[teammateID]; !ok && len(r.s.data.subjects) > 0 {
		return tenure.ErrTeammateNotFound
	}
	return nil
}

func (r *Tenures) FindOpen(_ context.Context, teammateID string, kind tenure.SubjectKind, subjectID string) (*tenure.Tenure, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range r.s.data.tenureOrder {
		t := r.s.data.tenures[id]
		if t.TeammateID == teammateID && t.SubjectKind == kind && t.SubjectID == subjectID && t.Open() {
			return cloneTenure(t), nil
		}
	}
	return nil, tenure.ErrTenureNotFound
}

func (r *Tenures) FindOpenPosition(_ context.Context, teammateID string) (*tenure.Tenure, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range r.s.data.tenureOrder {
		t := r.s.data.tenures[id]
		if t.TeammateID == teammateID && t.SubjectKind == tenure.SubjectPosition && t.Open() {
			return cloneTenure(t), nil
		}
	}
	return nil, tenure.ErrTenureNotFound
}

func (r *Tenures) FindByID(_ context.Context, id string) (*tenure.Tenure, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.data.tenures[id]
	if !ok {
		return nil, tenure.ErrTenureNotFound
	}
	return cloneTenure(t), nil
}

func (r *Tenures) ListOpen(_ context.Context, teammateID string) ([]*tenure.Tenure, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*tenure.Tenure
	for _, id := range r.s.data.tenureOrder {
		t := r.s.data.tenures[id]
		if t.TeammateID == teammateID && t.Open() {
			out = append(out, cloneTenure(t))
		}
	}
	return out, nil
}

func (r *Tenures) ListByTeammate(_ context.Context, teammateID string) ([]*tenure.Tenure, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*tenure.Tenure
	for _, id := range r.s.data.tenureOrder {
		if t := r.s.data.tenures[id]; t.TeammateID == teammateID {
			out = append(out, cloneTenure(t))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedOn.Before(out[j].StartedOn) })
	return out, nil
}

func (r *Tenures) Create(_ context.Context, t *tenure.Tenure) (*tenure.Tenure, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range r.s.data.tenureOrder {
		existing := r.s.data.tenures[id]
		if !existing.Open() || existing.TeammateID != t.TeammateID || existing.SubjectKind != t.SubjectKind {
			continue
		}
		if existing.SubjectID == t.SubjectID || t.SubjectKind == tenure.SubjectPosition {
			return nil, tenure.ErrConcurrentModification
		}
	}
	clone := cloneTenure(t)
	clone.ID = uuid.NewString()
	r.s.data.tenures[clone.ID] = clone
	r.s.data.tenureOrder = append(r.s.data.tenureOrder, clone.ID)
	return cloneTenure(clone), nil
}

func (r *Tenures) Close(_ context.Context, id string, endedOn time.Time, officialRating *string, updatedAt time.Time) (*tenure.Tenure, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.data.tenures[id]
	if !ok {
		return nil, tenure.ErrTenureNotFound
	}
	if !t.Open() {
		return nil, tenure.ErrAlreadyClosed
	}
	updated := cloneTenure(t)
	ended := endedOn
	updated.EndedOn = &ended
	if officialRating != nil {
		rating := *officialRating
		updated.OfficialRating = &rating
	}
	updated.UpdatedAt = updatedAt
	r.s.data.tenures[id] = updated
	return cloneTenure(updated), nil
}
