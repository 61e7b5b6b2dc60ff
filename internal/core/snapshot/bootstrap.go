package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ogurasousui/checkin-ledger/internal/core/aftercommit"
)

// BootstrapReason は初期スナップショットの理由です。
const BootstrapReason = "initial state"

// Subject はスナップショット対象の従業員です。
type Subject struct {
	ID        string
	CompanyID string
	Active    bool
}

// SubjectReader は従業員の読み取りです。存在しない場合は ErrEmployeeNotFound を返します。
type SubjectReader interface {
	GetSubject(ctx context.Context, employeeID string) (*Subject, error)
}

// RequiredAssignment はポジションの必須アサインメントとエネルギー範囲です。
type RequiredAssignment struct {
	AssignmentID string
	MinEnergy    *int
	MaxEnergy    *int
}

// RequirementReader はポジションの必須アサインメントを読み取ります。
type RequirementReader interface {
	RequiredAssignments(ctx context.Context, positionID string) ([]RequiredAssignment, error)
}

// SystemActorResolver はシステム操作者の ID を解決します。
type SystemActorResolver interface {
	SystemActorID(ctx context.Context) (string, error)
}

// BootstrapResult は初期スナップショット生成の結果です。
type BootstrapResult struct {
	Snapshot *Snapshot
	Created  bool
}

// Bootstrapper は評価履歴を持たない従業員の初期スナップショットを生成します。
type Bootstrapper struct {
	store        *Store
	repo         Repository
	builder      *Builder
	subjects     SubjectReader
	requirements RequirementReader
	system       SystemActorResolver
	tx           TransactionManager
	logger       logrus.FieldLogger
}

// NewBootstrapper は Bootstrapper を生成します。
func NewBootstrapper(store *Store, repo Repository, builder *Builder, subjects SubjectReader, requirements RequirementReader, system SystemActorResolver, tx TransactionManager, logger logrus.FieldLogger) *Bootstrapper {
	if tx == nil {
		tx = noopTransactionManager{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Bootstrapper{
		store:        store,
		repo:         repo,
		builder:      builder,
		subjects:     subjects,
		requirements: requirements,
		system:       system,
		tx:           tx,
		logger:       logger,
	}
}

// BootstrapInitial は初期スナップショットを生成します。
// 既にスナップショットがあれば生成せずに最新を返します。
// 在籍中で雇用の保有期間を持ち、必須アサインメントすべてにエネルギー範囲が設定されている場合のみ対象です。
func (b *Bootstrapper) BootstrapInitial(ctx context.Context, employeeID string) (*BootstrapResult, error) {
	id := strings.TrimSpace(employeeID)
	if id == "" {
		return nil, ErrInvalidEmployeeID
	}

	var result *BootstrapResult
	if err := b.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		if err := b.repo.LockEmployee(txCtx, id); err != nil {
			return err
		}

		latest, err := b.repo.Latest(txCtx, id)
		switch {
		case err == nil:
			result = &BootstrapResult{Snapshot: latest, Created: false}
			return nil
		case !errors.Is(err, ErrSnapshotNotFound):
			return err
		}

		subject, err := b.subjects.GetSubject(txCtx, id)
		if err != nil {
			return err
		}
		if !subject.Active {
			return fmt.Errorf("%w: employee is not active", ErrNotEligible)
		}

		tree, err := b.builder.Build(txCtx, id)
		if err != nil {
			return err
		}
		if tree.Position == nil || tree.Position.Current == nil {
			return fmt.Errorf("%w: no open position tenure", ErrNotEligible)
		}

		required, err := b.requirements.RequiredAssignments(txCtx, tree.Position.Current.PositionID)
		if err != nil {
			return err
		}
		for _, r := range required {
			if r.MinEnergy == nil || r.MaxEnergy == nil {
				return fmt.Errorf("%w: assignment %s has no energy range", ErrNotEligible, r.AssignmentID)
			}
		}

		actorID, err := b.system.SystemActorID(txCtx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSystemActorMissing, err)
		}

		created, err := b.store.Create(txCtx, CreateInput{
			EmployeeID:     id,
			CreatorID:      actorID,
			CompanyID:      subject.CompanyID,
			ChangeType:     ChangePositionTenure,
			Reason:         BootstrapReason,
			RequestContext: RequestContext{ActorID: actorID},
			StateTree:      tree,
		})
		if err != nil {
			return err
		}
		result = &BootstrapResult{Snapshot: created, Created: true}
		return nil
	}); err != nil {
		return nil, err
	}

	if result.Created {
		aftercommit.Defer(ctx, func() {
			b.logger.WithFields(logrus.Fields{
				"employee_id": id,
				"snapshot_id": result.Snapshot.ID,
			}).Info("initial snapshot bootstrapped")
		})
	}
	return result, nil
}
