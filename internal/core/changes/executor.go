package changes

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ogurasousui/checkin-ledger/internal/core/checkin"
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

// CheckInStore は実行に必要なチェックイン操作です。
type CheckInStore interface {
	Create(ctx context.Context, checkIn *checkin.CheckIn) (*checkin.CheckIn, error)
	Update(ctx context.Context, checkIn *checkin.CheckIn) (*checkin.CheckIn, error)
	FindOpen(ctx context.Context, teammateID string, kind checkin.Kind, subjectID string) (*checkin.CheckIn, error)
	FindOpenPosition(ctx context.Context, teammateID string) (*checkin.CheckIn, error)
}

// Ledger は実行に必要な保有期間操作です。
type Ledger interface {
	SetEnergy(ctx context.Context, in tenure.SetEnergyInput) (*tenure.Transition, error)
	ChangePosition(ctx context.Context, in tenure.ChangePositionInput) (*tenure.Transition, error)
	ListForTeammate(ctx context.Context, teammateID string) ([]*tenure.Tenure, error)
}

// Applied は適用されたフィールド群です。
type Applied struct {
	Category  Category
	SubjectID string
	Group     checkin.FieldGroup
}

// Skipped は権限が無いため適用されなかったフィールド群です。
type Skipped struct {
	Category  Category
	SubjectID string
	Group     checkin.FieldGroup
}

// ExecutionResult は実行結果です。
type ExecutionResult struct {
	SnapshotID string
	Applied    []Applied
	Skipped    []Skipped
}

// Executor はスナップショットの状態を現在のレコードへ適用します。
type Executor struct {
	checkIns CheckInStore
	ledger   Ledger
	clock    Clock
	tx       TransactionManager
	logger   logrus.FieldLogger
}

// NewExecutor は Executor を生成します。
func NewExecutor(checkIns CheckInStore, ledger Ledger, clock Clock, tx TransactionManager, logger logrus.FieldLogger) *Executor {
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Executor{checkIns: checkIns, ledger: ledger, clock: clock, tx: tx, logger: logger}
}

type applier func(ctx context.Context, run *execution) error

// Execute は変更種別に応じてスナップショットを適用します。
// 権限の無いフィールド群は黙って読み飛ばし、結果の Skipped に記録します。
// 未確定チェックインが無い対象では、書き込めるフィールド群に変更がある場合だけチェックインを開始します。
func (e *Executor) Execute(ctx context.Context, snap *snapshot.Snapshot, auth checkin.Authorizer, actorID string) (*ExecutionResult, error) {
	if snap == nil {
		return nil, ErrMissingSnapshot
	}
	actor := strings.TrimSpace(actorID)
	if actor == "" {
		return nil, ErrMissingActor
	}
	if auth == nil {
		auth = checkin.AuthorizerFunc(func(checkin.FieldGroup, *checkin.CheckIn) bool { return false })
	}

	var appliers []applier
	switch snap.ChangeType {
	case snapshot.ChangePositionTenure:
		appliers = []applier{e.applyPosition}
	case snapshot.ChangeAssignmentManagement:
		appliers = []applier{e.applyAssignments}
	case snapshot.ChangeAspirationManagement:
		appliers = []applier{e.applyAspirations}
	case snapshot.ChangeBulkCheckInFinalization:
		appliers = []applier{e.applyPosition, e.applyAssignments, e.applyAspirations}
	default:
		return nil, ErrUnsupportedChangeType
	}

	run := &execution{
		snap:   snap,
		auth:   auth,
		actor:  actor,
		now:    e.clock.Now(),
		result: &ExecutionResult{SnapshotID: snap.ID},
	}
	if err := e.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		for _, apply := range appliers {
			if err := apply(txCtx, run); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"snapshot_id": snap.ID,
		"change_type": snap.ChangeType,
		"applied":     len(run.result.Applied),
		"skipped":     len(run.result.Skipped),
	}).Info("snapshot executed")

	return run.result, nil
}

type execution struct {
	snap   *snapshot.Snapshot
	auth   checkin.Authorizer
	actor  string
	now    time.Time
	result *ExecutionResult
}

func (r *execution) allowed(category Category, subjectID string, group checkin.FieldGroup, ci *checkin.CheckIn) bool {
	if r.auth.Can(group, ci) {
		r.result.Applied = append(r.result.Applied, Applied{Category: category, SubjectID: subjectID, Group: group})
		return true
	}
	r.result.Skipped = append(r.result.Skipped, Skipped{Category: category, SubjectID: subjectID, Group: group})
	return false
}

func (e *Executor) applyPosition(ctx context.Context, run *execution) error {
	state := run.snap.StateTree.Position
	if state == nil {
		return nil
	}

	if current := state.Current; current != nil {
		ci, err := e.checkInFor(ctx, run, checkin.KindPosition, current.PositionID)
		if err != nil {
			return err
		}
		if run.allowed(CategoryPosition, current.PositionID, checkin.FieldGroupOfficial, ci) {
			if _, err := e.ledger.ChangePosition(ctx, tenure.ChangePositionInput{
				TeammateID:     run.snap.EmployeeID,
				PositionID:     current.PositionID,
				ManagerID:      current.ManagerID,
				EmploymentKind: current.EmploymentKind,
				EffectiveDate:  run.snap.EffectiveDate,
				ActorID:        run.actor,
			}); err != nil {
				return err
			}
		}
		return e.applyCheckInRecord(ctx, run, CategoryPosition, ci, state.CheckIn)
	}

	if state.CheckIn == nil {
		return nil
	}
	ci, err := e.positionCheckInWithoutTenure(ctx, run, state)
	if err != nil || ci == nil {
		return err
	}
	return e.applyCheckInRecord(ctx, run, CategoryPosition, ci, state.CheckIn)
}

// positionCheckInWithoutTenure は保有中のポジションが無い場合の対象チェックインを返します。
// 既存の未確定チェックイン、直近の評価済みポジションの順に探し、どちらも無ければ nil です。
func (e *Executor) positionCheckInWithoutTenure(ctx context.Context, run *execution, state *snapshot.PositionState) (*checkin.CheckIn, error) {
	found, err := e.checkIns.FindOpenPosition(ctx, run.snap.EmployeeID)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, checkin.ErrCheckInNotFound) {
		return nil, err
	}
	if state.Rated == nil {
		return nil, nil
	}
	return run.draft(checkin.KindPosition, state.Rated.PositionID), nil
}

func (e *Executor) applyAssignments(ctx context.Context, run *execution) error {
	held := make(map[string]bool, len(run.snap.StateTree.Assignments))
	for _, a := range run.snap.StateTree.Assignments {
		if a.Current != nil || a.AnticipatedEnergyPercentage != nil {
			held[a.AssignmentID] = true
		}
		if a.AnticipatedEnergyPercentage == nil && a.CheckIn == nil {
			continue
		}

		ci, err := e.checkInFor(ctx, run, checkin.KindAssignment, a.AssignmentID)
		if err != nil {
			return err
		}

		if a.AnticipatedEnergyPercentage != nil && run.allowed(CategoryAssignments, a.AssignmentID, checkin.FieldGroupOfficial, ci) {
			if err := e.setEnergy(ctx, run, a.AssignmentID, *a.AnticipatedEnergyPercentage); err != nil {
				return err
			}
		}

		if err := e.applyCheckInRecord(ctx, run, CategoryAssignments, ci, a.CheckIn); err != nil {
			return err
		}
	}

	return e.releaseAssignments(ctx, run, held)
}

// releaseAssignments はスナップショットで保有していないアサインメントの保有期間をエネルギー 0 で終了します。
func (e *Executor) releaseAssignments(ctx context.Context, run *execution, held map[string]bool) error {
	live, err := e.ledger.ListForTeammate(ctx, run.snap.EmployeeID)
	if err != nil {
		return err
	}
	for _, t := range live {
		if t.SubjectKind != tenure.SubjectAssignment || !t.Open() || held[t.SubjectID] {
			continue
		}
		ci, err := e.checkInFor(ctx, run, checkin.KindAssignment, t.SubjectID)
		if err != nil {
			return err
		}
		if !run.allowed(CategoryAssignments, t.SubjectID, checkin.FieldGroupOfficial, ci) {
			continue
		}
		if err := e.setEnergy(ctx, run, t.SubjectID, 0); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) setEnergy(ctx context.Context, run *execution, assignmentID string, energy int) error {
	_, err := e.ledger.SetEnergy(ctx, tenure.SetEnergyInput{
		TeammateID:       run.snap.EmployeeID,
		AssignmentID:     assignmentID,
		EnergyPercentage: energy,
		EffectiveDate:    run.snap.EffectiveDate,
		ActorID:          run.actor,
	})
	return err
}

func (e *Executor) applyAspirations(ctx context.Context, run *execution) error {
	for _, a := range run.snap.StateTree.Aspirations {
		if a.CheckIn == nil {
			continue
		}
		ci, err := e.checkInFor(ctx, run, checkin.KindAspiration, a.AspirationID)
		if err != nil {
			return err
		}
		if err := e.applyCheckInRecord(ctx, run, CategoryAspirations, ci, a.CheckIn); err != nil {
			return err
		}
	}
	return nil
}

// applyCheckInRecord は権限のあるフィールド群だけをチェックインへ反映し、変更があれば保存します。
// 未保存のチェックインは変更がある場合に限り作成します。
func (e *Executor) applyCheckInRecord(ctx context.Context, run *execution, category Category, ci *checkin.CheckIn, record *snapshot.CheckInRecord) error {
	if record == nil {
		return nil
	}

	changed := false
	if run.allowed(category, ci.SubjectID, checkin.FieldGroupEmployee, ci) {
		if record.EmployeeRating != nil {
			if err := checkin.ValidateRating(ci.Kind, *record.EmployeeRating); err != nil {
				return err
			}
		}
		if checkin.ApplyEmployeeFields(ci, checkin.EmployeeFields{
			Rating:                 record.EmployeeRating,
			PrivateNotes:           &record.EmployeePrivateNotes,
			PersonalAlignment:      &record.PersonalAlignment,
			ActualEnergyPercentage: record.ActualEnergyPercentage,
		}) {
			changed = true
		}
		var toggled bool
		var err error
		if record.EmployeeCompleted {
			toggled, err = ci.CompleteEmployeeSide(run.now)
		} else {
			toggled, err = ci.UncompleteEmployeeSide()
		}
		if err != nil {
			return err
		}
		changed = changed || toggled
	}

	if run.allowed(category, ci.SubjectID, checkin.FieldGroupManager, ci) {
		if record.ManagerRating != nil {
			if err := checkin.ValidateRating(ci.Kind, *record.ManagerRating); err != nil {
				return err
			}
		}
		if checkin.ApplyManagerFields(ci, checkin.ManagerFields{
			Rating:       record.ManagerRating,
			PrivateNotes: &record.ManagerPrivateNotes,
		}) {
			changed = true
		}
		var toggled bool
		var err error
		if record.ManagerCompleted {
			toggled, err = ci.CompleteManagerSide(run.actor, run.now)
		} else {
			toggled, err = ci.UncompleteManagerSide()
		}
		if err != nil {
			return err
		}
		changed = changed || toggled
	}

	if !changed {
		return nil
	}
	ci.UpdatedAt = run.now
	if ci.ID == "" {
		_, err := e.checkIns.Create(ctx, ci)
		return err
	}
	_, err := e.checkIns.Update(ctx, ci)
	return err
}

// checkInFor は対象の未確定チェックインを返します。無ければ未保存の下書きを返します。
func (e *Executor) checkInFor(ctx context.Context, run *execution, kind checkin.Kind, subjectID string) (*checkin.CheckIn, error) {
	found, err := e.checkIns.FindOpen(ctx, run.snap.EmployeeID, kind, subjectID)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, checkin.ErrCheckInNotFound) {
		return nil, err
	}
	return run.draft(kind, subjectID), nil
}

func (r *execution) draft(kind checkin.Kind, subjectID string) *checkin.CheckIn {
	return &checkin.CheckIn{
		Kind:       kind,
		TeammateID: r.snap.EmployeeID,
		SubjectID:  subjectID,
		StartedOn:  tenure.NormalizeDate(r.now),
		CreatedAt:  r.now,
		UpdatedAt:  r.now,
	}
}
