package finalization

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ogurasousui/checkin-ledger/internal/core/checkin"
	"github.com/ogurasousui/checkin-ledger/internal/core/snapshot"
	"github.com/ogurasousui/checkin-ledger/internal/core/tenure"
)

// DefaultEnergyPercentage は想定エネルギー割合も既存の保有期間も無い場合の既定値です。
const DefaultEnergyPercentage = 50

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

// CheckInRepository は確定に必要なチェックイン操作です。
type CheckInRepository interface {
	FindByIDForUpdate(ctx context.Context, id string) (*checkin.CheckIn, error)
	FindOpenPosition(ctx context.Context, teammateID string) (*checkin.CheckIn, error)
	Update(ctx context.Context, checkIn *checkin.CheckIn) (*checkin.CheckIn, error)
	LinkSnapshot(ctx context.Context, ids []string, snapshotID string) error
}

// Ledger は確定に伴う保有期間の繰り越しです。
type Ledger interface {
	RollPositionForward(ctx context.Context, in tenure.RollPositionInput) (*tenure.Transition, error)
	RollAssignmentForward(ctx context.Context, in tenure.RollAssignmentInput) (*tenure.Transition, error)
}

// StateBuilder は確定後の StateTree を組み立てます。
type StateBuilder interface {
	Build(ctx context.Context, teammateID string) (snapshot.StateTree, error)
}

// SnapshotCreator はスナップショットを追記します。
type SnapshotCreator interface {
	Create(ctx context.Context, in snapshot.CreateInput) (*snapshot.Snapshot, error)
}

// Observer は確定結果を観測します。コミット後に呼ばれます。
type Observer interface {
	Finalized(changeType snapshot.ChangeType, checkIns int)
	Rejected(category Category)
}

type noopObserver struct{}

func (noopObserver) Finalized(snapshot.ChangeType, int) {}
func (noopObserver) Rejected(Category)                  {}

// Notifier はコミット後の通知連携です。失敗しても確定結果は変わりません。
type Notifier interface {
	CheckInsFinalized(ctx context.Context, result *Result) error
}

// CategoryResult は分類ごとの確定結果です。
type CategoryResult struct {
	Category   Category
	CheckInIDs []string
	Tenures    []*tenure.Transition
}

// Result は確定結果です。何も指定されていない場合 Snapshot は nil です。
type Result struct {
	Snapshot   *snapshot.Snapshot
	Categories []CategoryResult
}

// Coordinator は複数チェックインの確定とスナップショット生成を 1 トランザクションで行います。
type Coordinator struct {
	checkIns      CheckInRepository
	ledger        Ledger
	builder       StateBuilder
	snapshots     SnapshotCreator
	subjects      snapshot.SubjectReader
	clock         Clock
	tx            TransactionManager
	logger        logrus.FieldLogger
	observer      Observer
	notifier      Notifier
	defaultEnergy int
}

// Option は Coordinator の任意設定です。
type Option func(*Coordinator)

// WithLogger はロガーを設定します。
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver はオブザーバーを設定します。
func WithObserver(observer Observer) Option {
	return func(c *Coordinator) {
		if observer != nil {
			c.observer = observer
		}
	}
}

// WithNotifier は通知連携を設定します。
func WithNotifier(notifier Notifier) Option {
	return func(c *Coordinator) {
		c.notifier = notifier
	}
}

// WithDefaultEnergy は既定のエネルギー割合を設定します。
func WithDefaultEnergy(percentage int) Option {
	return func(c *Coordinator) {
		if percentage >= 0 && percentage <= 100 {
			c.defaultEnergy = percentage
		}
	}
}

// NewCoordinator は Coordinator を生成します。
func NewCoordinator(checkIns CheckInRepository, ledger Ledger, builder StateBuilder, snapshots SnapshotCreator, subjects snapshot.SubjectReader, clock Clock, tx TransactionManager, opts ...Option) *Coordinator {
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	c := &Coordinator{
		checkIns:      checkIns,
		ledger:        ledger,
		builder:       builder,
		snapshots:     snapshots,
		subjects:      subjects,
		clock:         clock,
		tx:            tx,
		logger:        logrus.StandardLogger(),
		observer:      noopObserver{},
		defaultEnergy: DefaultEnergyPercentage,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Finalize は指定されたチェックインをすべて確定し、スナップショットを 1 件生成します。
//
// 対象の検証はポジション、アサインメント（ID 順）、志向（ID 順）の順に行い、
// 最初に前提条件を満たさなかったチェックインを NotReadyError で返します。
// いずれかの手順が失敗した場合、保有期間・チェックイン・スナップショットのいずれも変更されません。
func (c *Coordinator) Finalize(ctx context.Context, req Request) (*Result, error) {
	req.normalize()
	if err := req.validate(); err != nil {
		return nil, err
	}

	if !req.positionFlagged() && len(req.flaggedAssignments()) == 0 && len(req.flaggedAspirations()) == 0 {
		return &Result{}, nil
	}

	now := c.clock.Now()
	effective := req.EffectiveDate
	if effective.IsZero() {
		effective = now
	}
	run := &finalizeRun{
		req:       req,
		now:       now,
		effective: tenure.NormalizeDate(effective),
	}

	var result *Result
	if err := c.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		targets, err := c.collect(txCtx, run)
		if err != nil {
			return err
		}

		var categories []CategoryResult
		var linked []string
		for _, group := range targets {
			finalizer := c.finalizerFor(group.category)
			cat := CategoryResult{Category: group.category}
			for _, t := range group.items {
				transition, err := finalizer.finalize(txCtx, run, t)
				if err != nil {
					return err
				}
				cat.CheckInIDs = append(cat.CheckInIDs, t.checkIn.ID)
				if transition != nil {
					cat.Tenures = append(cat.Tenures, transition)
				}
				linked = append(linked, t.checkIn.ID)
			}
			categories = append(categories, cat)
		}

		subject, err := c.subjects.GetSubject(txCtx, req.TeammateID)
		if err != nil {
			return err
		}
		tree, err := c.builder.Build(txCtx, req.TeammateID)
		if err != nil {
			return err
		}

		snap, err := c.snapshots.Create(txCtx, snapshot.CreateInput{
			EmployeeID:     req.TeammateID,
			CreatorID:      req.FinalizedBy,
			CompanyID:      subject.CompanyID,
			ChangeType:     changeTypeFor(categories),
			Reason:         reasonOrDefault(req.Reason),
			EffectiveDate:  run.effective,
			RequestContext: req.RequestContext,
			StateTree:      tree,
		})
		if err != nil {
			return err
		}

		if err := c.checkIns.LinkSnapshot(txCtx, linked, snap.ID); err != nil {
			return err
		}

		result = &Result{Snapshot: snap, Categories: categories}
		return nil
	}); err != nil {
		var notReady *NotReadyError
		if errors.As(err, &notReady) {
			c.observer.Rejected(notReady.Category)
		}
		return nil, err
	}

	total := 0
	for _, cat := range result.Categories {
		total += len(cat.CheckInIDs)
	}
	c.observer.Finalized(result.Snapshot.ChangeType, total)
	c.logger.WithFields(logrus.Fields{
		"teammate_id":  req.TeammateID,
		"snapshot_id":  result.Snapshot.ID,
		"change_type":  result.Snapshot.ChangeType,
		"check_ins":    total,
		"finalized_by": req.FinalizedBy,
	}).Info("check-ins finalized")

	if c.notifier != nil {
		if err := c.notifier.CheckInsFinalized(ctx, result); err != nil {
			c.logger.WithError(err).WithField("snapshot_id", result.Snapshot.ID).Warn("finalization notification failed")
		}
	}

	return result, nil
}

type finalizeRun struct {
	req       Request
	now       time.Time
	effective time.Time
}

type target struct {
	checkIn *checkin.CheckIn
	rating  string
	notes   string
	energy  *int
}

type targetGroup struct {
	category Category
	items    []target
}

// collect は指定されたチェックインを行ロック付きで読み込み、確定可能であることを検証します。
func (c *Coordinator) collect(ctx context.Context, run *finalizeRun) ([]targetGroup, error) {
	req := run.req
	var groups []targetGroup

	if req.positionFlagged() {
		open, err := c.checkIns.FindOpenPosition(ctx, req.TeammateID)
		if errors.Is(err, checkin.ErrCheckInNotFound) {
			return nil, &NotReadyError{Category: CategoryPosition, Err: err}
		}
		if err != nil {
			return nil, err
		}
		ci, err := c.load(ctx, CategoryPosition, open.ID, checkin.KindPosition, req.TeammateID)
		if err != nil {
			return nil, err
		}
		groups = append(groups, targetGroup{category: CategoryPosition, items: []target{{
			checkIn: ci,
			rating:  req.Position.OfficialRating,
			notes:   req.Position.SharedNotes,
		}}})
	}

	if ids := req.flaggedAssignments(); len(ids) > 0 {
		group := targetGroup{category: CategoryAssignments}
		for _, id := range ids {
			ci, err := c.load(ctx, CategoryAssignments, id, checkin.KindAssignment, req.TeammateID)
			if err != nil {
				return nil, err
			}
			sel := req.Assignments[id]
			group.items = append(group.items, target{
				checkIn: ci,
				rating:  sel.OfficialRating,
				notes:   sel.SharedNotes,
				energy:  sel.AnticipatedEnergyPercentage,
			})
		}
		groups = append(groups, group)
	}

	if ids := req.flaggedAspirations(); len(ids) > 0 {
		group := targetGroup{category: CategoryAspirations}
		for _, id := range ids {
			ci, err := c.load(ctx, CategoryAspirations, id, checkin.KindAspiration, req.TeammateID)
			if err != nil {
				return nil, err
			}
			sel := req.Aspirations[id]
			group.items = append(group.items, target{checkIn: ci, rating: sel.OfficialRating, notes: sel.SharedNotes})
		}
		groups = append(groups, group)
	}

	return groups, nil
}

func (c *Coordinator) load(ctx context.Context, category Category, id string, kind checkin.Kind, teammateID string) (*checkin.CheckIn, error) {
	ci, err := c.checkIns.FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if ci.Kind != kind || ci.TeammateID != teammateID {
		return nil, ErrCheckInMismatch
	}
	switch {
	case ci.Finalized():
		return nil, &NotReadyError{Category: category, CheckInID: id, Err: checkin.ErrAlreadyFinalized}
	case !ci.ReadyForFinalization():
		return nil, &NotReadyError{Category: category, CheckInID: id, Err: checkin.ErrNotReady}
	}
	return ci, nil
}

// changeTypeFor は確定した分類の数から変更種別を決めます。
func changeTypeFor(categories []CategoryResult) snapshot.ChangeType {
	if len(categories) != 1 {
		return snapshot.ChangeBulkCheckInFinalization
	}
	switch categories[0].Category {
	case CategoryPosition:
		return snapshot.ChangePositionTenure
	case CategoryAssignments:
		return snapshot.ChangeAssignmentManagement
	default:
		return snapshot.ChangeAspirationManagement
	}
}

func reasonOrDefault(reason string) string {
	if reason == "" {
		return "check-in finalization"
	}
	return reason
}
