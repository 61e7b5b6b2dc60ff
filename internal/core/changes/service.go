package changes

import (
	"context"
	"strings"

	"github.com/ogurasousui/checkin-ledger/internal/core/snapshot"
)

// SnapshotReader はスナップショットの読み取りです。
type SnapshotReader interface {
	Get(ctx context.Context, id string) (*snapshot.Snapshot, error)
	PreviousOf(ctx context.Context, snap *snapshot.Snapshot) (*snapshot.Snapshot, error)
}

// SnapshotDiff はスナップショットと直前のスナップショットの差分です。
type SnapshotDiff struct {
	Snapshot *snapshot.Snapshot
	Previous *snapshot.Snapshot
	Report   *Report
	// Consistent は直前の状態にパッチを適用した結果が現在の状態と一致する場合に true です。
	Consistent bool
}

// Service は保存済みスナップショットの監査用差分を提供します。
type Service struct {
	snapshots SnapshotReader
	detector  *Detector
}

// NewService は Service を生成します。
func NewService(snapshots SnapshotReader, detector *Detector) *Service {
	if detector == nil {
		detector = NewDetector()
	}
	return &Service{snapshots: snapshots, detector: detector}
}

// DiffSnapshot はスナップショットを直前のものと比較します。最初のスナップショットは空の状態と比較します。
func (s *Service) DiffSnapshot(ctx context.Context, id string) (*SnapshotDiff, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, snapshot.ErrInvalidID
	}

	current, err := s.snapshots.Get(ctx, trimmed)
	if err != nil {
		return nil, err
	}
	previous, err := s.snapshots.PreviousOf(ctx, current)
	if err != nil {
		return nil, err
	}

	var prevTree *snapshot.StateTree
	if previous != nil {
		prevTree = &previous.StateTree
	}

	report, err := s.detector.Diff(prevTree, current.StateTree)
	if err != nil {
		return nil, err
	}
	consistent, err := Consistent(prevTree, current.StateTree, report)
	if err != nil {
		return nil, err
	}

	return &SnapshotDiff{Snapshot: current, Previous: previous, Report: report, Consistent: consistent}, nil
}
