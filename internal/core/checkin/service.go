package checkin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

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

// UseCase はチェックインユースケースの公開インターフェースです。
type UseCase interface {
	StartCheckIn(ctx context.Context, in StartCheckInInput) (*CheckIn, error)
	GetCheckIn(ctx context.Context, id string) (*CheckIn, error)
	SubmitEmployeeSide(ctx context.Context, in SubmitEmployeeSideInput, auth Authorizer) (*SideResult, error)
	SubmitManagerSide(ctx context.Context, in SubmitManagerSideInput, auth Authorizer) (*SideResult, error)
	ListForTeammate(ctx context.Context, teammateID string) ([]*CheckIn, error)
}

// Service はチェックインの入力と片側完了を扱います。
type Service struct {
	repo   Repository
	clock  Clock
	tx     TransactionManager
	logger logrus.FieldLogger
}

// NewService は Service を生成します。
func NewService(repo Repository, clock Clock, tx TransactionManager, logger logrus.FieldLogger) *Service {
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{repo: repo, clock: clock, tx: tx, logger: logger}
}

// StartCheckInInput はチェックイン開始の入力です。
type StartCheckInInput struct {
	TeammateID string
	Kind       Kind
	SubjectID  string
	StartedOn  *time.Time
}

// SubmitEmployeeSideInput は本人側入力です。nil の項目は変更しません。
type SubmitEmployeeSideInput struct {
	CheckInID              string
	Rating                 *string
	PrivateNotes           *string
	PersonalAlignment      *string
	ActualEnergyPercentage *int
	Complete               *bool
}

// SubmitManagerSideInput はマネージャー側入力です。nil の項目は変更しません。
type SubmitManagerSideInput struct {
	CheckInID    string
	ActorID      string
	Rating       *string
	PrivateNotes *string
	Complete     *bool
}

// SideResult は片側入力の結果です。
type SideResult struct {
	CheckIn    *CheckIn
	Completion Completion
}

// StartCheckIn は未確定のチェックインを返し、無ければ新たに開始します。
func (s *Service) StartCheckIn(ctx context.Context, in StartCheckInInput) (*CheckIn, error) {
	teammateID := strings.TrimSpace(in.TeammateID)
	if teammateID == "" {
		return nil, ErrInvalidTeammateID
	}
	if !IsValidKind(in.Kind) {
		return nil, ErrInvalidKind
	}
	subjectID := strings.TrimSpace(in.SubjectID)
	if subjectID == "" {
		return nil, ErrInvalidSubjectID
	}

	var result *CheckIn
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		existing, err := s.findOpen(txCtx, teammateID, in.Kind, subjectID)
		if err != nil {
			return err
		}
		if existing != nil {
			result = existing
			return nil
		}

		now := s.clock.Now()
		startedOn := now
		if in.StartedOn != nil {
			startedOn = *in.StartedOn
		}
		created, err := s.repo.Create(txCtx, &CheckIn{
			Kind:       in.Kind,
			TeammateID: teammateID,
			SubjectID:  subjectID,
			StartedOn:  normalizeDate(startedOn),
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if err != nil {
			return err
		}
		result = created
		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// GetCheckIn はチェックインを取得します。
func (s *Service) GetCheckIn(ctx context.Context, id string) (*CheckIn, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, ErrInvalidID
	}

	var result *CheckIn
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

// SubmitEmployeeSide は本人側の項目を更新し、完了状態を切り替えます。
func (s *Service) SubmitEmployeeSide(ctx context.Context, in SubmitEmployeeSideInput, auth Authorizer) (*SideResult, error) {
	id := strings.TrimSpace(in.CheckInID)
	if id == "" {
		return nil, ErrInvalidID
	}
	if in.ActualEnergyPercentage != nil && (*in.ActualEnergyPercentage < 0 || *in.ActualEnergyPercentage > 100) {
		return nil, ErrInvalidEnergy
	}

	return s.submit(ctx, id, FieldGroupEmployee, auth, func(ci *CheckIn, now time.Time) error {
		if in.Rating != nil {
			if err := ValidateRating(ci.Kind, *in.Rating); err != nil {
				return err
			}
		}
		ApplyEmployeeFields(ci, EmployeeFields{
			Rating:                 in.Rating,
			PrivateNotes:           in.PrivateNotes,
			PersonalAlignment:      in.PersonalAlignment,
			ActualEnergyPercentage: in.ActualEnergyPercentage,
		})
		if in.Complete == nil {
			return nil
		}
		if *in.Complete {
			_, err := ci.CompleteEmployeeSide(now)
			return err
		}
		_, err := ci.UncompleteEmployeeSide()
		return err
	})
}

// SubmitManagerSide はマネージャー側の項目を更新し、完了状態を切り替えます。
func (s *Service) SubmitManagerSide(ctx context.Context, in SubmitManagerSideInput, auth Authorizer) (*SideResult, error) {
	id := strings.TrimSpace(in.CheckInID)
	if id == "" {
		return nil, ErrInvalidID
	}
	actorID := strings.TrimSpace(in.ActorID)
	if actorID == "" {
		return nil, ErrMissingActor
	}

	return s.submit(ctx, id, FieldGroupManager, auth, func(ci *CheckIn, now time.Time) error {
		if in.Rating != nil {
			if err := ValidateRating(ci.Kind, *in.Rating); err != nil {
				return err
			}
		}
		ApplyManagerFields(ci, ManagerFields{Rating: in.Rating, PrivateNotes: in.PrivateNotes})
		if in.Complete == nil {
			return nil
		}
		if *in.Complete {
			_, err := ci.CompleteManagerSide(actorID, now)
			return err
		}
		_, err := ci.UncompleteManagerSide()
		return err
	})
}

func (s *Service) submit(ctx context.Context, id string, group FieldGroup, auth Authorizer, mutate func(*CheckIn, time.Time) error) (*SideResult, error) {
	if auth == nil {
		return nil, ErrForbidden
	}

	var result *SideResult
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		current, err := s.repo.FindByIDForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if !auth.Can(group, current) {
			return ErrForbidden
		}
		if current.Finalized() {
			return ErrAlreadyFinalized
		}

		before := current.Clone()
		now := s.clock.Now()
		if err := mutate(current, now); err != nil {
			return err
		}
		current.UpdatedAt = now

		updated, err := s.repo.Update(txCtx, current)
		if err != nil {
			return err
		}
		result = &SideResult{CheckIn: updated, Completion: DetectCompletion(before, updated)}
		return nil
	}); err != nil {
		return nil, err
	}

	if result.Completion != CompletionNone {
		s.logger.WithFields(logrus.Fields{
			"check_in_id": result.CheckIn.ID,
			"kind":        result.CheckIn.Kind,
			"completion":  result.Completion,
		}).Info("check-in side completed")
	}

	return result, nil
}

func (s *Service) findOpen(ctx context.Context, teammateID string, kind Kind, subjectID string) (*CheckIn, error) {
	found, err := s.repo.FindOpen(ctx, teammateID, kind, subjectID)
	if errors.Is(err, ErrCheckInNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open check-in: %w", err)
	}
	return found, nil
}

// EmployeeFields は本人側の可変項目です。
type EmployeeFields struct {
	Rating                 *string
	PrivateNotes           *string
	PersonalAlignment      *string
	ActualEnergyPercentage *int
}

// ManagerFields はマネージャー側の可変項目です。
type ManagerFields struct {
	Rating       *string
	PrivateNotes *string
}

// ApplyEmployeeFields は nil でない本人側項目を反映し、変更があれば true を返します。
func ApplyEmployeeFields(ci *CheckIn, f EmployeeFields) bool {
	changed := false
	if f.Rating != nil && !equalString(ci.Employee.Rating, f.Rating) {
		ci.Employee.Rating = cloneString(f.Rating)
		changed = true
	}
	if f.PrivateNotes != nil && ci.Employee.PrivateNotes != *f.PrivateNotes {
		ci.Employee.PrivateNotes = *f.PrivateNotes
		changed = true
	}
	if f.PersonalAlignment != nil && ci.Employee.PersonalAlignment != *f.PersonalAlignment {
		ci.Employee.PersonalAlignment = *f.PersonalAlignment
		changed = true
	}
	if f.ActualEnergyPercentage != nil && !equalInt(ci.Employee.ActualEnergyPercentage, f.ActualEnergyPercentage) {
		ci.Employee.ActualEnergyPercentage = cloneInt(f.ActualEnergyPercentage)
		changed = true
	}
	return changed
}

// ApplyManagerFields は nil でないマネージャー側項目を反映し、変更があれば true を返します。
func ApplyManagerFields(ci *CheckIn, f ManagerFields) bool {
	changed := false
	if f.Rating != nil && !equalString(ci.Manager.Rating, f.Rating) {
		ci.Manager.Rating = cloneString(f.Rating)
		changed = true
	}
	if f.PrivateNotes != nil && ci.Manager.PrivateNotes != *f.PrivateNotes {
		ci.Manager.PrivateNotes = *f.PrivateNotes
		changed = true
	}
	return changed
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func normalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ListForTeammate はチームメイトのチェックインを開始日順に返します。
func (s *Service) ListForTeammate(ctx context.Context, teammateID string) ([]*CheckIn, error) {
	trimmed := strings.TrimSpace(teammateID)
	if trimmed == "" {
		return nil, ErrInvalidTeammateID
	}

	var result []*CheckIn
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		list, err := s.repo.ListByTeammate(txCtx, trimmed)
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
