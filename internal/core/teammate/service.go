package teammate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ogurasousui/checkin-ledger/internal/core/snapshot"
	"github.com/ogurasousui/checkin-ledger/internal/core/tenure"
	"github.com/sirupsen/logrus"
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

// Ledger は雇用に伴う保有期間の操作です。
type Ledger interface {
	CloseAll(ctx context.Context, teammateID string, effectiveDate time.Time, actorID string) ([]*tenure.Tenure, error)
	ChangePosition(ctx context.Context, in tenure.ChangePositionInput) (*tenure.Transition, error)
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
	defaultListPageSize = 50
	maxListPageSize     = 200

	terminationReason    = "employment terminated"
	positionChangeReason = "position changed"
)

var employeeCodePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Service はチームメイトの雇用に関するユースケースをまとめます。
type Service struct {
	repo      Repository
	ledger    Ledger
	builder   StateBuilder
	snapshots SnapshotCreator
	clock     Clock
	tx        TransactionManager
	logger    logrus.FieldLogger
}

var _ snapshot.SubjectReader = (*Service)(nil)

// UseCase はチームメイトユースケースの公開インターフェースです。
type UseCase interface {
	CreateTeammate(ctx context.Context, in CreateTeammateInput) (*Teammate, error)
	GetTeammate(ctx context.Context, id string) (*Teammate, error)
	ListTeammates(ctx context.Context, in ListTeammatesInput) (*ListTeammatesResult, error)
	Terminate(ctx context.Context, in TerminateInput) (*TerminateResult, error)
	ChangePosition(ctx context.Context, in ChangePositionInput) (*ChangePositionResult, error)
}

// NewService は Service を生成します。
func NewService(repo Repository, ledger Ledger, builder StateBuilder, snapshots SnapshotCreator, clock Clock, tx TransactionManager, logger logrus.FieldLogger) *Service {
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
		repo:      repo,
		ledger:    ledger,
		builder:   builder,
		snapshots: snapshots,
		clock:     clock,
		tx:        tx,
		logger:    logger,
	}
}

// CreateTeammateInput はチームメイト作成時の入力です。
type CreateTeammateInput struct {
	CompanyID    string
	EmployeeCode string
	ManagerID    *string
	HiredOn      *time.Time
}

// ListTeammatesInput は一覧取得時の入力です。
type ListTeammatesInput struct {
	CompanyID string
	PageSize  int
	PageToken string
	Status    *Status
}

// ListTeammatesResult は一覧取得結果を表します。
type ListTeammatesResult struct {
	Teammates     []*Teammate
	NextPageToken string
}

// TerminateInput は雇用終了の入力です。
type TerminateInput struct {
	TeammateID     string
	EffectiveDate  time.Time
	ActorID        string
	Reason         string
	RequestContext snapshot.RequestContext
}

// TerminateResult は雇用終了の結果です。
type TerminateResult struct {
	Teammate *Teammate
	Closed   []*tenure.Tenure
	Snapshot *snapshot.Snapshot
}

// ChangePositionInput はポジション変更の入力です。
type ChangePositionInput struct {
	TeammateID     string
	PositionID     string
	ManagerID      *string
	EmploymentKind string
	EffectiveDate  time.Time
	ActorID        string
	Reason         string
	RequestContext snapshot.RequestContext
}

// ChangePositionResult はポジション変更の結果です。変更が無い場合 Snapshot は nil です。
type ChangePositionResult struct {
	Teammate   *Teammate
	Transition *tenure.Transition
	Snapshot   *snapshot.Snapshot
}

// CreateTeammate は新しいチームメイトを作成します。
func (s *Service) CreateTeammate(ctx context.Context, in CreateTeammateInput) (*Teammate, error) {
	companyID, err := normalizeCompanyID(in.CompanyID)
	if err != nil {
		return nil, err
	}

	code, err := normalizeEmployeeCode(in.EmployeeCode)
	if err != nil {
		return nil, err
	}

	var created *Teammate
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		if err := s.ensureEmployeeCodeNotExists(txCtx, companyID, code); err != nil {
			return err
		}

		now := s.clock.Now()
		result, err := s.repo.Create(txCtx, &Teammate{
			CompanyID:    companyID,
			EmployeeCode: code,
			ManagerID:    normalizeOptionalID(in.ManagerID),
			Status:       StatusActive,
			HiredOn:      normalizeDate(in.HiredOn),
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if err != nil {
			return err
		}

		created = result
		return nil
	}); err != nil {
		return nil, err
	}

	return created, nil
}

// GetTeammate はチームメイトを取得します。
func (s *Service) GetTeammate(ctx context.Context, id string) (*Teammate, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("id: %w", ErrInvalidID)
	}

	var result *Teammate
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.repo.FindByID(txCtx, strings.TrimSpace(id))
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

// GetSubject はスナップショット対象としてのチームメイトを返します。
func (s *Service) GetSubject(ctx context.Context, employeeID string) (*snapshot.Subject, error) {
	found, err := s.GetTeammate(ctx, employeeID)
	if errors.Is(err, ErrTeammateNotFound) {
		return nil, snapshot.ErrEmployeeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &snapshot.Subject{ID: found.ID, CompanyID: found.CompanyID, Active: found.Active()}, nil
}

// ListTeammates はチームメイトの一覧を取得します。
func (s *Service) ListTeammates(ctx context.Context, in ListTeammatesInput) (*ListTeammatesResult, error) {
	companyID, err := normalizeCompanyID(in.CompanyID)
	if err != nil {
		return nil, err
	}

	limit, err := normalizePageSize(in.PageSize)
	if err != nil {
		return nil, err
	}

	offset, err := parsePageToken(in.PageToken)
	if err != nil {
		return nil, err
	}

	var statusPtr *Status
	if in.Status != nil {
		if !isValidStatus(*in.Status) {
			return nil, ErrInvalidStatus
		}
		status := *in.Status
		statusPtr = &status
	}

	var result ListTeammatesResult
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		teammates, token, err := s.repo.List(txCtx, ListFilter{
			CompanyID: companyID,
			Status:    statusPtr,
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			return err
		}
		result.Teammates = teammates
		result.NextPageToken = token
		return nil
	}); err != nil {
		return nil, err
	}

	return &result, nil
}

// Terminate は雇用を終了します。
// 未終了の保有期間をすべて終了し、状態を更新して employment_termination のスナップショットを追記します。
func (s *Service) Terminate(ctx context.Context, in TerminateInput) (*TerminateResult, error) {
	id, err := normalizeID(in.TeammateID)
	if err != nil {
		return nil, err
	}
	actorID := strings.TrimSpace(in.ActorID)
	if actorID == "" {
		return nil, ErrMissingActor
	}
	if in.EffectiveDate.IsZero() {
		return nil, ErrInvalidDate
	}
	day := tenure.NormalizeDate(in.EffectiveDate)

	var result TerminateResult
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		current, err := s.repo.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if !current.Active() {
			return ErrAlreadyTerminated
		}

		closed, err := s.ledger.CloseAll(txCtx, id, day, actorID)
		if err != nil {
			return fmt.Errorf("close tenures: %w", err)
		}

		current.Status = StatusTerminated
		current.TerminatedOn = &day
		current.UpdatedAt = s.clock.Now()
		updated, err := s.repo.Update(txCtx, current)
		if err != nil {
			return err
		}

		snap, err := s.record(txCtx, updated, snapshot.ChangeEmploymentTermination, actorID, reasonOr(in.Reason, terminationReason), day, in.RequestContext)
		if err != nil {
			return err
		}

		result = TerminateResult{Teammate: updated, Closed: closed, Snapshot: snap}
		return nil
	}); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"teammate_id":    id,
		"closed_tenures": len(result.Closed),
		"snapshot_id":    result.Snapshot.ID,
	}).Info("teammate terminated")

	return &result, nil
}

// ChangePosition はポジション・マネージャー・雇用形態を変更します。
// 保有期間に変化があった場合のみ position_tenure のスナップショットを追記します。
func (s *Service) ChangePosition(ctx context.Context, in ChangePositionInput) (*ChangePositionResult, error) {
	id, err := normalizeID(in.TeammateID)
	if err != nil {
		return nil, err
	}
	actorID := strings.TrimSpace(in.ActorID)
	if actorID == "" {
		return nil, ErrMissingActor
	}
	if in.EffectiveDate.IsZero() {
		return nil, ErrInvalidDate
	}
	day := tenure.NormalizeDate(in.EffectiveDate)
	managerID := normalizeOptionalID(in.ManagerID)

	var result ChangePositionResult
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		current, err := s.repo.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if !current.Active() {
			return ErrNotActive
		}

		transition, err := s.ledger.ChangePosition(txCtx, tenure.ChangePositionInput{
			TeammateID:     id,
			PositionID:     in.PositionID,
			ManagerID:      managerID,
			EmploymentKind: in.EmploymentKind,
			EffectiveDate:  day,
			ActorID:        actorID,
		})
		if err != nil {
			return fmt.Errorf("change position: %w", err)
		}
		result.Teammate = current
		result.Transition = transition
		if !transition.Changed() {
			return nil
		}

		if !sameID(current.ManagerID, managerID) {
			current.ManagerID = managerID
			current.UpdatedAt = s.clock.Now()
			updated, err := s.repo.Update(txCtx, current)
			if err != nil {
				return err
			}
			result.Teammate = updated
		}

		snap, err := s.record(txCtx, result.Teammate, snapshot.ChangePositionTenure, actorID, reasonOr(in.Reason, positionChangeReason), day, in.RequestContext)
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
			"teammate_id": id,
			"position_id": in.PositionID,
			"snapshot_id": result.Snapshot.ID,
		}).Info("position changed")
	}

	return &result, nil
}

func (s *Service) record(ctx context.Context, t *Teammate, changeType snapshot.ChangeType, actorID, reason string, day time.Time, rc snapshot.RequestContext) (*snapshot.Snapshot, error) {
	tree, err := s.builder.Build(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("build state: %w", err)
	}
	snap, err := s.snapshots.Create(ctx, snapshot.CreateInput{
		EmployeeID:     t.ID,
		CreatorID:      actorID,
		CompanyID:      t.CompanyID,
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

func (s *Service) ensureEmployeeCodeNotExists(ctx context.Context, companyID, code string) error {
	found, err := s.repo.FindByCompanyAndCode(ctx, companyID, code)
	if err != nil && !errors.Is(err, ErrTeammateNotFound) {
		return err
	}
	if found != nil {
		return ErrEmployeeCodeAlreadyExists
	}
	return nil
}

func reasonOr(reason, fallback string) string {
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		return trimmed
	}
	return fallback
}

func sameID(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func normalizeID(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidID
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

func normalizeCompanyID(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidCompanyID
	}
	return trimmed, nil
}

func normalizeEmployeeCode(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidEmployeeCode
	}

	lower := strings.ToLower(trimmed)
	if !employeeCodePattern.MatchString(lower) {
		return "", ErrInvalidEmployeeCode
	}
	return lower, nil
}

func normalizeDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	normalized := tenure.NormalizeDate(*t)
	return &normalized
}

func isValidStatus(status Status) bool {
	switch status {
	case StatusActive, StatusTerminated:
		return true
	default:
		return false
	}
}

func normalizePageSize(pageSize int) (int, error) {
	if pageSize <= 0 {
		return defaultListPageSize, nil
	}
	if pageSize > maxListPageSize {
		return 0, ErrInvalidPageSize
	}
	return pageSize, nil
}

func parsePageToken(token string) (int, error) {
	if strings.TrimSpace(token) == "" {
		return 0, nil
	}

	offset, err := strconv.Atoi(token)
	if err != nil || offset < 0 {
		return 0, ErrInvalidPageToken
	}

	return offset, nil
}
