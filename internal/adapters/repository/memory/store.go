// Package memory はトランザクションのロールバックを備えたインメモリリポジトリです。
package memory

import (
	"context"
	"sync"

	"github.com/ogurasousui/checkin-ledger/internal/core/aftercommit"
	"github.com/ogurasousui/checkin-ledger/internal/core/checkin"
	"github.com/ogurasousui/checkin-ledger/internal/core/snapshot"
	"github.com/ogurasousui/checkin-ledger/internal/core/tenure"
)

type txKey struct{}

type state struct {
	tenures      map[string]*tenure.Tenure
	tenureOrder  []string
	checkIns     map[string]*checkin.CheckIn
	checkInOrder []string
	snapshots    []*snapshot.Snapshot
	subjects     map[string]*snapshot.Subject
	requirements map[string][]snapshot.RequiredAssignment
	milestones   map[string][]snapshot.Milestone
}

func newState() *state {
	return &state{
		tenures:      make(map[string]*tenure.Tenure),
		checkIns:     make(map[string]*checkin.CheckIn),
		subjects:     make(map[string]*snapshot.Subject),
		requirements: make(map[string][]snapshot.RequiredAssignment),
		milestones:   make(map[string][]snapshot.Milestone),
	}
}

func (s *state) clone() *state {
	out := newState()
	for id, t := range s.tenures {
		out.tenures[id] = cloneTenure(t)
	}
	out.tenureOrder = append([]string(nil), s.tenureOrder...)
	for id, c := range s.checkIns {
		out.checkIns[id] = c.Clone()
	}
	out.checkInOrder = append([]string(nil), s.checkInOrder...)
	out.snapshots = append([]*snapshot.Snapshot(nil), s.snapshots...)
	for id, subj := range s.subjects {
		copied := *subj
		out.subjects[id] = &copied
	}
	for id, reqs := range s.requirements {
		out.requirements[id] = append([]snapshot.RequiredAssignment(nil), reqs...)
	}
	for id, ms := range s.milestones {
		out.milestones[id] = append([]snapshot.Milestone(nil), ms...)
	}
	return out
}

// Store はインメモリのデータと書き込みトランザクションを管理します。
// 書き込みトランザクションは直列に実行され、エラー時は開始時点の状態へ戻ります。
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data *state

	// FailSnapshotCreate が設定されている場合、スナップショット作成はこのエラーを返します。
	FailSnapshotCreate error
	// FailLinkSnapshot が設定されている場合、チェックインとスナップショットの紐付けはこのエラーを返します。
	FailLinkSnapshot error
}

// NewStore は空の Store を生成します。
func NewStore() *Store {
	return &Store{data: newState()}
}

// WithinReadOnly は fn を実行します。
func (s *Store) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// WithinReadWrite は fn をトランザクション内で実行します。既存のトランザクションがあれば参加します。
func (s *Store) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	saved := s.data.clone()
	s.mu.Unlock()

	txCtx, flush := aftercommit.With(context.WithValue(ctx, txKey{}, true))
	if err := fn(txCtx); err != nil {
		s.mu.Lock()
		s.data = saved
		s.mu.Unlock()
		return err
	}
	flush()
	return nil
}

// PutSubject はチームメイトを登録します。
func (s *Store) PutSubject(subject snapshot.Subject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.subjects[subject.ID] = &subject
}

// PutRequirements はポジションの必須アサインメントを登録します。
func (s *Store) PutRequirements(positionID string, reqs []snapshot.RequiredAssignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.requirements[positionID] = append([]snapshot.RequiredAssignment(nil), reqs...)
}

// PutMilestone はマイルストーン到達記録を登録します。
func (s *Store) PutMilestone(teammateID string, m snapshot.Milestone) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.milestones[teammateID] = append(s.data.milestones[teammateID], m)
}

// Tenures は tenure.Repository を返します。
func (s *Store) Tenures() *Tenures {
	return &Tenures{s: s}
}

// CheckIns は checkin.Repository を返します。
func (s *Store) CheckIns() *CheckIns {
	return &CheckIns{s: s}
}

// Snapshots は snapshot.Repository を返します。
func (s *Store) Snapshots() *Snapshots {
	return &Snapshots{s: s}
}

// Subjects はスナップショット対象とポジション要件の読み取りを返します。
func (s *Store) Subjects() *Subjects {
	return &Subjects{s: s}
}

func cloneTenure(t *tenure.Tenure) *tenure.Tenure {
	if t == nil {
		return nil
	}
	out := *t
	if t.EndedOn != nil {
		v := *t.EndedOn
		out.EndedOn = &v
	}
	if t.EnergyPercentage != nil {
		v := *t.EnergyPercentage
		out.EnergyPercentage = &v
	}
	if t.OfficialRating != nil {
		v := *t.OfficialRating
		out.OfficialRating = &v
	}
	if t.ManagerID != nil {
		v := *t.ManagerID
		out.ManagerID = &v
	}
	return &out
}
