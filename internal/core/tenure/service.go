package tenure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ogurasousui/checkin-ledger/internal/core/aftercommit"
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
// 呼び出し元のトランザクションがコンテキストに存在する場合はそれに参加します。
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

// Observer は保有期間の開始・終了を観測します。
type Observer interface {
	TenureOpened(kind SubjectKind)
	TenureClosed(kind SubjectKind)
}

type noopObserver struct{}

func (noopObserver) TenureOpened(SubjectKind) {}
func (noopObserver) TenureClosed(SubjectKind) {}

const (
	minEnergy = 0
	maxEnergy = 100
)

// Ledger は保有期間の開始・終了を管理し、チームメイトと対象ごとに
// 未終了の保有期間が高々一つであることを保証します。
type Ledger struct {
	repo     Repository
	clock    Clock
	tx       TransactionManager
	logger   logrus.FieldLogger
	observer Observer
}

// Option は Ledger の任意設定です。
type Option func(*Ledger)

// WithLogger はロガーを設定します。
func WithLogger(logger logrus.FieldLogger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithObserver はメトリクス等の観測者を設定します。
func WithObserver(observer Observer) Option {
	return func(l *Ledger) {
		if observer != nil {
			l.observer = observer
		}
	}
}

// NewLedger は Ledger を生成します。
func NewLedger(repo Repository, clock Clock, tx TransactionManager, opts ...Option) *Ledger {
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	l := &Ledger{
		repo:     repo,
		clock:    clock,
		tx:       tx,
		logger:   logrus.StandardLogger(),
		observer: noopObserver{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetEnergyInput はアサインメントのエネルギー割合設定の入力です。
type SetEnergyInput struct {
	TeammateID       string
	AssignmentID     string
	EnergyPercentage int
	EffectiveDate    time.Time
	ActorID          string
}

// CloseInput は保有期間終了の入力です。
type CloseInput struct {
	TenureID       string
	EffectiveDate  time.Time
	OfficialRating *string
	ActorID        string
}

// ChangePositionInput はポジション変更の入力です。
type ChangePositionInput struct {
	TeammateID     string
	PositionID     string
	ManagerID      *string
	EmploymentKind string
	EffectiveDate  time.Time
	ActorID        string
}

// RollPositionInput はポジションチェックイン確定時の繰り越し入力です。
type RollPositionInput struct {
	TeammateID     string
	EffectiveDate  time.Time
	OfficialRating string
	ActorID        string
}

// RollAssignmentInput はアサインメントチェックイン確定時の繰り越し入力です。
type RollAssignmentInput struct {
	TeammateID                  string
	AssignmentID                string
	AnticipatedEnergyPercentage *int
	DefaultEnergyPercentage     int
	EffectiveDate               time.Time
	OfficialRating              string
	ActorID                     string
}

// SetEnergy はエネルギー割合を設定します。
//
// 0 の場合は未終了の保有期間を終了し、存在しなければ何もしません。
// 同じ値の保有期間が既にあれば何もしません。異なる値であれば同日付で終了し、新たな保有期間を開始します。
func (l *Ledger) SetEnergy(ctx context.Context, in SetEnergyInput) (*Transition, error) {
	teammateID, err := normalizeID(in.TeammateID, ErrInvalidTeammateID)
	if err != nil {
		return nil, err
	}
	assignmentID, err := normalizeID(in.AssignmentID, ErrInvalidSubjectID)
	if err != nil {
		return nil, err
	}
	if err := validateEnergy(in.EnergyPercentage); err != nil {
		return nil, err
	}
	if err := validateActor(in.ActorID); err != nil {
		return nil, err
	}
	if in.EffectiveDate.IsZero() {
		return nil, ErrInvalidDate
	}
	day := NormalizeDate(in.EffectiveDate)

	var out *Transition
	if err := l.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		if err := l.repo.LockHolder(txCtx, teammateID); err != nil {
			return err
		}

		open, err := l.findOpen(txCtx, teammateID, SubjectAssignment, assignmentID)
		if err != nil {
			return err
		}

		switch {
		case in.EnergyPercentage == 0:
			if open == nil {
				out = &Transition{}
				return nil
			}
			closed, err := l.close(txCtx, open, day, nil)
			if err != nil {
				return err
			}
			out = &Transition{Closed: closed}
			return nil
		case open != nil && open.EnergyPercentage != nil && *open.EnergyPercentage == in.EnergyPercentage:
			out = &Transition{Current: open}
			return nil
		}

		transition := &Transition{}
		if open != nil {
			closed, err := l.close(txCtx, open, day, nil)
			if err != nil {
				return err
			}
			transition.Closed = closed
		}

		energy := in.EnergyPercentage
		opened, err := l.open(txCtx, &Tenure{
			TeammateID:       teammateID,
			SubjectKind:      SubjectAssignment,
			SubjectID:        assignmentID,
			StartedOn:        day,
			EnergyPercentage: &energy,
		})
		if err != nil {
			return err
		}
		transition.Opened = opened
		transition.Current = opened
		out = transition
		return nil
	}); err != nil {
		return nil, err
	}

	if out.Changed() {
		aftercommit.Defer(ctx, func() {
			l.logger.WithFields(logrus.Fields{
				"teammate_id":   teammateID,
				"assignment_id": assignmentID,
				"energy":        in.EnergyPercentage,
				"actor_id":      in.ActorID,
			}).Info("assignment energy updated")
		})
	}

	return out, nil
}

// Close は保有期間を指定日で終了します。
func (l *Ledger) Close(ctx context.Context, in CloseInput) (*Tenure, error) {
	id, err := normalizeID(in.TenureID, ErrTenureNotFound)
	if err != nil {
		return nil, err
	}
	if err := validateActor(in.ActorID); err != nil {
		return nil, err
	}
	if in.EffectiveDate.IsZero() {
		return nil, ErrInvalidDate
	}

	var closed *Tenure
	if err := l.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		existing, err := l.repo.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		if err := l.repo.LockHolder(txCtx, existing.TeammateID); err != nil {
			return err
		}
		if !existing.Open() {
			return ErrAlreadyClosed
		}
		result, err := l.close(txCtx, existing, NormalizeDate(in.EffectiveDate), in.OfficialRating)
		if err != nil {
			return err
		}
		closed = result
		return nil
	}); err != nil {
		return nil, err
	}

	return closed, nil
}

// ChangePosition はポジションの同一性（ポジション・マネージャー・雇用形態）が変わった場合に
// 雇用の保有期間を同日付で入れ替えます。同一であれば何もしません。
func (l *Ledger) ChangePosition(ctx context.Context, in ChangePositionInput) (*Transition, error) {
	teammateID, err := normalizeID(in.TeammateID, ErrInvalidTeammateID)
	if err != nil {
		return nil, err
	}
	positionID, err := normalizeID(in.PositionID, ErrInvalidSubjectID)
	if err != nil {
		return nil, err
	}
	employmentKind := strings.TrimSpace(in.EmploymentKind)
	if employmentKind == "" {
		return nil, ErrInvalidEmploymentKind
	}
	if err := validateActor(in.ActorID); err != nil {
		return nil, err
	}
	if in.EffectiveDate.IsZero() {
		return nil, ErrInvalidDate
	}
	day := NormalizeDate(in.EffectiveDate)
	managerID := normalizeOptionalID(in.ManagerID)

	var out *Transition
	if err := l.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		if err := l.repo.LockHolder(txCtx, teammateID); err != nil {
			return err
		}

		open, err := l.findOpenPosition(txCtx, teammateID)
		if err != nil {
			return err
		}
		if open != nil && open.samePositionIdentity(positionID, managerID, employmentKind) {
			out = &Transition{Current: open}
			return nil
		}

		transition := &Transition{}
		if open != nil {
			closed, err := l.close(txCtx, open, day, nil)
			if err != nil {
				return err
			}
			transition.Closed = closed
		}

		opened, err := l.open(txCtx, &Tenure{
			TeammateID:     teammateID,
			SubjectKind:    SubjectPosition,
			SubjectID:      positionID,
			StartedOn:      day,
			ManagerID:      managerID,
			EmploymentKind: employmentKind,
		})
		if err != nil {
			return err
		}
		transition.Opened = opened
		transition.Current = opened
		out = transition
		return nil
	}); err != nil {
		return nil, err
	}

	return out, nil
}

// RollPositionForward は雇用の保有期間を公式評価付きで終了し、同じ属性で同日付の保有期間を開始します。
func (l *Ledger) RollPositionForward(ctx context.Context, in RollPositionInput) (*Transition, error) {
	teammateID, err := normalizeID(in.TeammateID, ErrInvalidTeammateID)
	if err != nil {
		return nil, err
	}
	if err := validateActor(in.ActorID); err != nil {
		return nil, err
	}
	if in.EffectiveDate.IsZero() {
		return nil, ErrInvalidDate
	}
	day := NormalizeDate(in.EffectiveDate)

	var out *Transition
	if err := l.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		if err := l.repo.LockHolder(txCtx, teammateID); err != nil {
			return err
		}

		open, err := l.findOpenPosition(txCtx, teammateID)
		if err != nil {
			return err
		}
		if open == nil {
			return ErrNoOpenPosition
		}

		rating := in.OfficialRating
		closed, err := l.close(txCtx, open, day, &rating)
		if err != nil {
			return err
		}

		opened, err := l.open(txCtx, &Tenure{
			TeammateID:     teammateID,
			SubjectKind:    SubjectPosition,
			SubjectID:      open.SubjectID,
			StartedOn:      day,
			ManagerID:      cloneString(open.ManagerID),
			EmploymentKind: open.EmploymentKind,
		})
		if err != nil {
			return err
		}

		out = &Transition{Closed: closed, Opened: opened, Current: opened}
		return nil
	}); err != nil {
		return nil, err
	}

	return out, nil
}

// RollAssignmentForward はアサインメントの保有期間を公式評価付きで終了し、
// 想定エネルギー割合で同日付の保有期間を開始します。
// 想定値が無い場合は直前の値、それも無ければ既定値を用います。
func (l *Ledger) RollAssignmentForward(ctx context.Context, in RollAssignmentInput) (*Transition, error) {
	teammateID, err := normalizeID(in.TeammateID, ErrInvalidTeammateID)
	if err != nil {
		return nil, err
	}
	assignmentID, err := normalizeID(in.AssignmentID, ErrInvalidSubjectID)
	if err != nil {
		return nil, err
	}
	if in.AnticipatedEnergyPercentage != nil {
		if err := validateEnergy(*in.AnticipatedEnergyPercentage); err != nil {
			return nil, err
		}
	}
	if err := validateEnergy(in.DefaultEnergyPercentage); err != nil {
		return nil, err
	}
	if err := validateActor(in.ActorID); err != nil {
		return nil, err
	}
	if in.EffectiveDate.IsZero() {
		return nil, ErrInvalidDate
	}
	day := NormalizeDate(in.EffectiveDate)

	var out *Transition
	if err := l.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		if err := l.repo.LockHolder(txCtx, teammateID); err != nil {
			return err
		}

		open, err := l.findOpen(txCtx, teammateID, SubjectAssignment, assignmentID)
		if err != nil {
			return err
		}

		energy := in.DefaultEnergyPercentage
		switch {
		case in.AnticipatedEnergyPercentage != nil:
			energy = *in.AnticipatedEnergyPercentage
		case open != nil && open.EnergyPercentage != nil:
			energy = *open.EnergyPercentage
		}

		transition := &Transition{}
		if open != nil {
			rating := in.OfficialRating
			closed, err := l.close(txCtx, open, day, &rating)
			if err != nil {
				return err
			}
			transition.Closed = closed
		}

		if energy > 0 {
			opened, err := l.open(txCtx, &Tenure{
				TeammateID:       teammateID,
				SubjectKind:      SubjectAssignment,
				SubjectID:        assignmentID,
				StartedOn:        day,
				EnergyPercentage: &energy,
			})
			if err != nil {
				return err
			}
			transition.Opened = opened
			transition.Current = opened
		}

		out = transition
		return nil
	}); err != nil {
		return nil, err
	}

	return out, nil
}

// CloseAll はチームメイトの未終了の保有期間をすべて指定日で終了します。
func (l *Ledger) CloseAll(ctx context.Context, teammateID string, effectiveDate time.Time, actorID string) ([]*Tenure, error) {
	id, err := normalizeID(teammateID, ErrInvalidTeammateID)
	if err != nil {
		return nil, err
	}
	if err := validateActor(actorID); err != nil {
		return nil, err
	}
	if effectiveDate.IsZero() {
		return nil, ErrInvalidDate
	}
	day := NormalizeDate(effectiveDate)

	var closed []*Tenure
	if err := l.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		if err := l.repo.LockHolder(txCtx, id); err != nil {
			return err
		}
		open, err := l.repo.ListOpen(txCtx, id)
		if err != nil {
			return err
		}
		closed = make([]*Tenure, 0, len(open))
		for _, t := range open {
			result, err := l.close(txCtx, t, day, nil)
			if err != nil {
				return err
			}
			closed = append(closed, result)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return closed, nil
}

// ListForTeammate はチームメイトの全保有期間を返します。
func (l *Ledger) ListForTeammate(ctx context.Context, teammateID string) ([]*Tenure, error) {
	id, err := normalizeID(teammateID, ErrInvalidTeammateID)
	if err != nil {
		return nil, err
	}

	var result []*Tenure
	if err := l.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := l.repo.ListByTeammate(txCtx, id)
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

func (l *Ledger) findOpen(ctx context.Context, teammateID string, kind SubjectKind, subjectID string) (*Tenure, error) {
	open, err := l.repo.FindOpen(ctx, teammateID, kind, subjectID)
	if errors.Is(err, ErrTenureNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return open, nil
}

func (l *Ledger) findOpenPosition(ctx context.Context, teammateID string) (*Tenure, error) {
	open, err := l.repo.FindOpenPosition(ctx, teammateID)
	if errors.Is(err, ErrTenureNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return open, nil
}

func (l *Ledger) close(ctx context.Context, t *Tenure, day time.Time, rating *string) (*Tenure, error) {
	if day.Before(t.StartedOn) {
		return nil, fmt.Errorf("close tenure %s before its start %s: %w", t.ID, FormatDate(t.StartedOn), ErrInvalidDate)
	}
	closed, err := l.repo.Close(ctx, t.ID, day, cloneString(rating), l.clock.Now())
	if err != nil {
		return nil, err
	}
	aftercommit.Defer(ctx, func() { l.observer.TenureClosed(t.SubjectKind) })
	return closed, nil
}

func (l *Ledger) open(ctx context.Context, t *Tenure) (*Tenure, error) {
	now := l.clock.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	opened, err := l.repo.Create(ctx, t)
	if err != nil {
		return nil, err
	}
	aftercommit.Defer(ctx, func() { l.observer.TenureOpened(t.SubjectKind) })
	return opened, nil
}

func validateEnergy(value int) error {
	if value < minEnergy || value > maxEnergy {
		return ErrInvalidEnergy
	}
	return nil
}

func validateActor(actorID string) error {
	if strings.TrimSpace(actorID) == "" {
		return ErrMissingActor
	}
	return nil
}

func normalizeID(raw string, invalid error) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", invalid
	}
	return trimmed, nil
}

func normalizeOptionalID(raw *string) *string {
	if raw == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}
