package snapshot

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ogurasousui/checkin-ledger/internal/core/aftercommit"
	"github.com/ogurasousui/checkin-ledger/internal/core/tenure"
)

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// TransactionManager はトランザクション制御の抽象化です。
type TransactionManager interface {
	WithinReadOnly(ctx context.Context, fn func(context.Context) error) error
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

type noopTransactionManager struct{}

func (noopTransactionManager) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func (noopTransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// Observer はスナップショット生成を観測します。
type Observer interface {
	SnapshotCreated(changeType ChangeType)
}

type noopObserver struct{}

func (noopObserver) SnapshotCreated(ChangeType) {}

// Store は追記専用のスナップショット保存を提供します。
type Store struct {
	repo     Repository
	clock    Clock
	tx       TransactionManager
	logger   logrus.FieldLogger
	observer Observer
}

// Option は Store の任意設定です。
type Option func(*Store)

// WithLogger はロガーを設定します。
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver はオブザーバーを設定します。
func WithObserver(observer Observer) Option {
	return func(s *Store) {
		if observer != nil {
			s.observer = observer
		}
	}
}

// NewStore は Store を生成します。
func NewStore(repo Repository, clock Clock, tx TransactionManager, opts ...Option) *Store {
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	s := &Store{
		repo:     repo,
		clock:    clock,
		tx:       tx,
		logger:   logrus.StandardLogger(),
		observer: noopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput はスナップショット生成の入力です。
type CreateInput struct {
	EmployeeID     string
	CreatorID      string
	CompanyID      string
	ChangeType     ChangeType
	Reason         string
	EffectiveDate  time.Time
	RequestContext RequestContext
	StateTree      StateTree
}

// Create はスナップショットを追記します。
// 実効日が未指定の場合は当日、リクエスト ID と時刻が未指定の場合は採番します。
func (s *Store) Create(ctx context.Context, in CreateInput) (*Snapshot, error) {
	employeeID := strings.TrimSpace(in.EmployeeID)
	if employeeID == "" {
		return nil, ErrInvalidEmployeeID
	}
	creatorID := strings.TrimSpace(in.CreatorID)
	if creatorID == "" {
		return nil, ErrInvalidCreatorID
	}
	companyID := strings.TrimSpace(in.CompanyID)
	if companyID == "" {
		return nil, ErrInvalidCompanyID
	}
	if !in.ChangeType.Valid() {
		return nil, ErrInvalidChangeType
	}

	now := s.clock.Now()
	effective := in.EffectiveDate
	if effective.IsZero() {
		effective = now
	}

	reqCtx := in.RequestContext
	if strings.TrimSpace(reqCtx.ActorID) == "" {
		reqCtx.ActorID = creatorID
	}
	if strings.TrimSpace(reqCtx.RequestID) == "" {
		reqCtx.RequestID = uuid.NewString()
	}
	if reqCtx.Timestamp.IsZero() {
		reqCtx.Timestamp = now
	}

	tree := in.StateTree
	tree.Normalize()

	var created *Snapshot
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		result, err := s.repo.Create(txCtx, &Snapshot{
			EmployeeID:     employeeID,
			CreatorID:      creatorID,
			CompanyID:      companyID,
			ChangeType:     in.ChangeType,
			Reason:         strings.TrimSpace(in.Reason),
			EffectiveDate:  tenure.NormalizeDate(effective),
			RequestContext: reqCtx,
			StateTree:      tree,
			CreatedAt:      now,
		})
		if err != nil {
			return err
		}
		created = result
		return nil
	}); err != nil {
		return nil, err
	}

	aftercommit.Defer(ctx, func() {
		s.observer.SnapshotCreated(created.ChangeType)
		s.logger.WithFields(logrus.Fields{
			"snapshot_id": created.ID,
			"employee_id": created.EmployeeID,
			"change_type": created.ChangeType,
			"request_id":  created.RequestContext.RequestID,
		}).Info("snapshot created")
	})

	return created, nil
}

// Get はスナップショットを取得します。
func (s *Store) Get(ctx context.Context, id string) (*Snapshot, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, ErrInvalidID
	}

	var result *Snapshot
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.repo.FindByID(txCtx, trimmed)
		if err != nil {
			return err
		}
		result = found
		return nil
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// LatestFor は最新のスナップショットを返します。存在しない場合は nil を返します。
func (s *Store) LatestFor(ctx context.Context, employeeID string) (*Snapshot, error) {
	trimmed := strings.TrimSpace(employeeID)
	if trimmed == "" {
		return nil, ErrInvalidEmployeeID
	}

	var result *Snapshot
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.repo.Latest(txCtx, trimmed)
		if errors.Is(err, ErrSnapshotNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		result = found
		return nil
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// HistoryFor は新しい順に全スナップショットを返します。
func (s *Store) HistoryFor(ctx context.Context, employeeID string) ([]*Snapshot, error) {
	trimmed := strings.TrimSpace(employeeID)
	if trimmed == "" {
		return nil, ErrInvalidEmployeeID
	}

	var result []*Snapshot
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		list, err := s.repo.History(txCtx, trimmed)
		if err != nil {
			return err
		}
		result = list
		return nil
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// PreviousOf は直前のスナップショットを返します。最初のスナップショットの場合は nil を返します。
func (s *Store) PreviousOf(ctx context.Context, snap *Snapshot) (*Snapshot, error) {
	if snap == nil || strings.TrimSpace(snap.ID) == "" {
		return nil, ErrInvalidID
	}

	var result *Snapshot
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.repo.Previous(txCtx, snap)
		if errors.Is(err, ErrSnapshotNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		result = found
		return nil
	}); err != nil {
		return nil, err
	}
	return result, nil
}
