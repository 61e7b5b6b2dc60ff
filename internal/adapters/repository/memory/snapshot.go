package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/ogurasousui/checkin-ledger/internal/core/snapshot"
)

// Snapshots は snapshot.Repository のインメモリ実装です。追記のみを行います。
type Snapshots struct {
	s *Store
}

var _ snapshot.Repository = (*Snapshots)(nil)

func (r *Snapshots) LockEmployee(_ context.Context, employeeID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.subjects[employeeID]; !ok && len(r.s.data.subjects) > 0 {
		return snapshot.ErrEmployeeNotFound
	}
	return nil
}

func (r *Snapshots) Create(_ context.Context, snap *snapshot.Snapshot) (*snapshot.Snapshot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailSnapshotCreate != nil {
		return nil, r.s.FailSnapshotCreate
	}
	stored := *snap
	stored.ID = uuid.NewString()
	r.s.data.snapshots = append(r.s.data.snapshots, &stored)
	out := stored
	return &out, nil
}

func (r *Snapshots) FindByID(_ context.Context, id string) (*snapshot.Snapshot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, s := range r.s.data.snapshots {
		if s.ID == id {
			out := *s
			return &out, nil
		}
	}
	return nil, snapshot.ErrSnapshotNotFound
}

func (r *Snapshots) Latest(_ context.Context, employeeID string) (*snapshot.Snapshot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := len(r.s.data.snapshots) - 1; i >= 0; i-- {
		if s := r.s.data.snapshots[i]; s.EmployeeID == employeeID {
			out := *s
			return &out, nil
		}
	}
	return nil, snapshot.ErrSnapshotNotFound
}

func (r *Snapshots) History(_ context.Context, employeeID string) ([]*snapshot.Snapshot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*snapshot.Snapshot
	for i := len(r.s.data.snapshots) - 1; i >= 0; i-- {
		if s := r.s.data.snapshots[i]; s.EmployeeID == employeeID {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *Snapshots) Previous(_ context.Context, snap *snapshot.Snapshot) (*snapshot.Snapshot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var prev *snapshot.Snapshot
	for _, s := range r.s.data.snapshots {
		if s.ID == snap.ID {
			break
		}
		if s.EmployeeID == snap.EmployeeID {
			prev = s
		}
	}
	if prev == nil {
		return nil, snapshot.ErrSnapshotNotFound
	}
	out := *prev
	return &out, nil
}

// Count は保存済みスナップショット数を返します。
func (r *Snapshots) Count() int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.data.snapshots)
}
