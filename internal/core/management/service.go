// Package management は単発の管理操作を適用し、同じトランザクションでスナップショットを追記します。
package management

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ogurasousui/checkin-ledger/internal/core/snapshot"
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
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

type noopTransactionManager struct{}

func (noopTransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// Ledger はエネルギー割合の変更です。
type Ledger interface {
	SetEnergy(ctx context.Context, in tenure.SetEnergyInput) (*tenure.Transition, error)
}

// MilestoneWriter はマイルストーン到達を記録します。
type MilestoneWriter interface {
	RecordMilestone(ctx context.Context, teammateID string, m snapshot.Milestone, createdAt time.Time) error
}

// StateBuilder は現在の StateTree を組み立てます。
type StateBuilder interface {
	Build(ctx context.Context, teammateID string) (snapshot.StateTree, error)
}

// SnapshotCreator はスナップショットを追記します。
type SnapshotCreator interface {
	Create(ctx context.Context, in snapshot.CreateInput) (*snapshot.Snapshot, error)
}

const (
	energyReason    = "assignment energy changed"
	milestoneReason = "milestone attained"
)

// Service は管理操作のユースケースです。
type Service struct {
	subjects   snapshot.SubjectReader
	ledger     Ledger
	milestones MilestoneWriter
	builder    StateBuilder
	snapshots  SnapshotCreator
	clock      Clock
	tx         TransactionManager
	logger     logrus.FieldLogger
}

// NewService は Service を生成します。
func NewService(subjects snapshot.SubjectReader, ledger Ledger, milestones MilestoneWriter, builder StateBuilder, snapshots SnapshotCreator, clock Clock, tx TransactionManager, logger logrus.FieldLogger) *Service {
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		subjects:   subjects,
		ledger:     ledger,
		milestones: milestones,
		builder:    builder,
		snapshots:  snapshots,
		clock:      clock,
		tx:         tx,
		logger:     logger,
	}
}

// SetEnergyInput はアサインメントのエネルギー変更の入力です。
type SetEnergyInput struct {
	TeammateID       string
	AssignmentID     string
	EnergyPercentage int
	EffectiveDate    time.Time
	ActorID          string
	Reason           string
	RequestContext   snapshot.RequestContext
}

// SetEnergyResult はエネルギー変更の結果です。変更が無い場合 Snapshot は nil です。
type SetEnergyResult struct {
	Transition *tenure.Transition
	Snapshot   *snapshot.Snapshot
}

// SetAssignmentEnergy はエネルギー割合を変更し、保有期間が変化した場合のみ
// assignment_management のスナップショットを追記します。
func (s *Service) SetAssignmentEnergy(ctx context.Context, in SetEnergyInput) (*SetEnergyResult, error) {
	teammateID := strings.TrimSpace(in.TeammateID)
	if teammateID == "" {
		return nil, ErrInvalidTeammateID
	}
	actorID := strings.TrimSpace(in.ActorID)
	if actorID == "" {
		return nil, ErrMissingActor
	}
	day := in.EffectiveDate
	if day.IsZero() {
		day = s.clock.Now()
	}
	day = tenure.NormalizeDate(day)

	var result SetEnergyResult
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		subject, err := s.activeSubject(txCtx, teammateID)
		if err != nil {
			return err
		}

		transition, err := s.ledger.SetEnergy(txCtx, tenure.SetEnergyInput{
			TeammateID:       teammateID,
			AssignmentID:     in.AssignmentID,
			EnergyPercentage: in.EnergyPercentage,
			EffectiveDate:    day,
			ActorID:          actorID,
		})
		if err != nil {
			return err
		}
		result.Transition = transition
		if !transition.Changed() {
			return nil
		}

		snap, err := s.record(txCtx, subject, snapshot.ChangeAssignmentManagement, actorID, reasonOr(in.Reason, energyReason), day, in.RequestContext)
		if err != nil {
			return err
		}
		result.Snapshot = snap
		return nil
	}); err != nil {
		return nil, err
	}

	if result.Snapshot != nil {
		s.logger.WithFields(logrus.Fields{
			"teammate_id":   teammateID,
			"assignment_id": in.AssignmentID,
			"energy":        in.EnergyPercentage,
			"snapshot_id":   result.Snapshot.ID,
		}).Info("assignment energy recorded")
	}

	return &result, nil
}

// RecordMilestoneInput はマイルストーン到達記録の入力です。
type RecordMilestoneInput struct {
	TeammateID     string
	AbilityID      string
	Level          int
	CertifiedByID  *string
	AttainedOn     time.Time
	ActorID        string
	Reason         string
	RequestContext snapshot.RequestContext
}

// RecordMilestone はマイルストーン到達を記録し、milestone_management のスナップショットを追記します。
// 同じ水準が既に記録済みでもスナップショットは追記されます。
func (s *Service) RecordMilestone(ctx context.Context, in RecordMilestoneInput) (*snapshot.Snapshot, error) {
	teammateID := strings.TrimSpace(in.TeammateID)
	if teammateID == "" {
		return nil, ErrInvalidTeammateID
	}
	abilityID := strings.TrimSpace(in.AbilityID)
	if abilityID == "" {
		return nil, ErrInvalidAbilityID
	}
	if in.Level < 1 {
		return nil, ErrInvalidLevel
	}
	if in.AttainedOn.IsZero() {
		return nil, ErrInvalidDate
	}
	actorID := strings.TrimSpace(in.ActorID)
	if actorID == "" {
		return nil, ErrMissingActor
	}
	day := tenure.NormalizeDate(in.AttainedOn)

	var created *snapshot.Snapshot
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		subject, err := s.activeSubject(txCtx, teammateID)
		if err != nil {
			return err
		}

		if err := s.milestones.RecordMilestone(txCtx, teammateID, snapshot.Milestone{
			AbilityID:     abilityID,
			Level:         in.Level,
			CertifiedByID: in.CertifiedByID,
			AttainedOn:    day,
		}, s.clock.Now()); err != nil {
			return fmt.Errorf("record milestone: %w", err)
		}

		snap, err := s.record(txCtx, subject, snapshot.ChangeMilestoneManagement, actorID, reasonOr(in.Reason, milestoneReason), day, in.RequestContext)
		if err != nil {
			return err
		}
		created = snap
		return nil
	}); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"teammate_id": teammateID,
		"ability_id":  abilityID,
		"level":       in.Level,
		"snapshot_id": created.ID,
	}).Info("milestone recorded")

	return created, nil
}

func (s *Service) activeSubject(ctx context.Context, teammateID string) (*snapshot.Subject, error) {
	subject, err := s.subjects.GetSubject(ctx, teammateID)
	if err != nil {
		return nil, err
	}
	if !subject.Active {
		return nil, ErrNotActive
	}
	return subject, nil
}

func (s *Service) record(ctx context.Context, subject *snapshot.Subject, changeType snapshot.ChangeType, actorID, reason string, day time.Time, rc snapshot.RequestContext) (*snapshot.Snapshot, error) {
	tree, err := s.builder.Build(ctx, subject.ID)
	if err != nil {
		return nil, fmt.Errorf("build state: %w", err)
	}
	snap, err := s.snapshots.Create(ctx, snapshot.CreateInput{
		EmployeeID:     subject.ID,
		CreatorID:      actorID,
		CompanyID:      subject.CompanyID,
		ChangeType:     changeType,
		Reason:         reason,
		EffectiveDate:  day,
		RequestContext: rc,
		StateTree:      tree,
	})
	if err != nil {
		return nil, fmt.Errorf("create snapshot: %w", err)
	}
	return snap, nil
}

func reasonOr(reason, fallback string) string {
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		return trimmed
	}
	return fallback
}
