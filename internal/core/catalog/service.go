package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ogurasousui/checkin-ledger/internal/core/snapshot"
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

var codePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Service は会社・ポジション・アサインメントのマスタを扱います。
type Service struct {
	repo  Repository
	clock Clock
	tx    TransactionManager
}

var _ snapshot.RequirementReader = (*Service)(nil)

// UseCase はカタログユースケースの公開インターフェースです。
type UseCase interface {
	CreateCompany(ctx context.Context, in CreateCompanyInput) (*Company, error)
	GetCompany(ctx context.Context, id string) (*Company, error)
	CreatePosition(ctx context.Context, in CreatePositionInput) (*Position, error)
	CreateAssignment(ctx context.Context, in CreateAssignmentInput) (*Assignment, error)
	RequireAssignment(ctx context.Context, in RequireAssignmentInput) (*RequiredAssignment, error)
	SetEnergyRange(ctx context.Context, in SetEnergyRangeInput) (*RequiredAssignment, error)
	ReassignPositions(ctx context.Context, in ReassignInput) ([]*RequiredAssignment, error)
}

// NewService は Service を生成します。
func NewService(repo Repository, clock Clock, tx TransactionManager) *Service {
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	return &Service{repo: repo, clock: clock, tx: tx}
}

// CreateCompanyInput は会社作成時の入力です。
type CreateCompanyInput struct {
	Name string
	Code string
}

// CreatePositionInput はポジション作成時の入力です。
type CreatePositionInput struct {
	CompanyID string
	Title     string
}

// CreateAssignmentInput はアサインメント作成時の入力です。
type CreateAssignmentInput struct {
	CompanyID string
	Title     string
}

// RequireAssignmentInput は必須アサインメント追加の入力です。末尾の順位に追加します。
type RequireAssignmentInput struct {
	PositionID   string
	AssignmentID string
	MinEnergy    *int
	MaxEnergy    *int
}

// SetEnergyRangeInput はエネルギー範囲設定の入力です。
type SetEnergyRangeInput struct {
	PositionID   string
	AssignmentID string
	MinEnergy    *int
	MaxEnergy    *int
}

// ReassignInput は順位変更の入力です。
type ReassignInput struct {
	PositionID   string
	AssignmentID string
	Rank         int
}

// CreateCompany は新しい会社を作成します。
func (s *Service) CreateCompany(ctx context.Context, in CreateCompanyInput) (*Company, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidName
	}
	code, err := normalizeCode(in.Code)
	if err != nil {
		return nil, err
	}

	var created *Company
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		if err := s.ensureCodeNotExists(txCtx, code); err != nil {
			return err
		}

		now := s.clock.Now()
		result, err := s.repo.CreateCompany(txCtx, &Company{
			Name:      name,
			Code:      code,
			CreatedAt: now,
			UpdatedAt: now,
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

// GetCompany は会社を取得します。
func (s *Service) GetCompany(ctx context.Context, id string) (*Company, error) {
	trimmed, err := normalizeID(id)
	if err != nil {
		return nil, fmt.Errorf("id: %w", err)
	}

	var result *Company
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		found, err := s.repo.FindCompanyByID(txCtx, trimmed)
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

// CreatePosition はポジションを作成します。
func (s *Service) CreatePosition(ctx context.Context, in CreatePositionInput) (*Position, error) {
	companyID, err := normalizeID(in.CompanyID)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrInvalidTitle
	}

	var created *Position
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		if _, err := s.repo.FindCompanyByID(txCtx, companyID); err != nil {
			return err
		}
		now := s.clock.Now()
		result, err := s.repo.CreatePosition(txCtx, &Position{CompanyID: companyID, Title: title, CreatedAt: now, UpdatedAt: now})
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

// CreateAssignment はアサインメントを作成します。
func (s *Service) CreateAssignment(ctx context.Context, in CreateAssignmentInput) (*Assignment, error) {
	companyID, err := normalizeID(in.CompanyID)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrInvalidTitle
	}

	var created *Assignment
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		if _, err := s.repo.FindCompanyByID(txCtx, companyID); err != nil {
			return err
		}
		now := s.clock.Now()
		result, err := s.repo.CreateAssignment(txCtx, &Assignment{CompanyID: companyID, Title: title, CreatedAt: now, UpdatedAt: now})
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

// RequireAssignment はポジションに必須アサインメントを追加します。
func (s *Service) RequireAssignment(ctx context.Context, in RequireAssignmentInput) (*RequiredAssignment, error) {
	positionID, err := normalizeID(in.PositionID)
	if err != nil {
		return nil, err
	}
	assignmentID, err := normalizeID(in.AssignmentID)
	if err != nil {
		return nil, err
	}
	if err := validateEnergyRange(in.MinEnergy, in.MaxEnergy); err != nil {
		return nil, err
	}

	var created *RequiredAssignment
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		position, err := s.repo.FindPositionByID(txCtx, positionID)
		if err != nil {
			return err
		}
		assignment, err := s.repo.FindAssignmentByID(txCtx, assignmentID)
		if err != nil {
			return err
		}
		if position.CompanyID != assignment.CompanyID {
			return ErrCompanyMismatch
		}

		existing, err := s.repo.LockRequirements(txCtx, positionID)
		if err != nil {
			return err
		}
		last := 0
		for _, req := range existing {
			if req.AssignmentID == assignmentID {
				return ErrRequirementExists
			}
			if req.Rank > last {
				last = req.Rank
			}
		}

		result, err := s.repo.CreateRequirement(txCtx, &RequiredAssignment{
			PositionID:   positionID,
			AssignmentID: assignmentID,
			Rank:         last + 1,
			MinEnergy:    cloneInt(in.MinEnergy),
			MaxEnergy:    cloneInt(in.MaxEnergy),
			UpdatedAt:    s.clock.Now(),
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

// SetEnergyRange は必須アサインメントのエネルギー範囲を設定します。
func (s *Service) SetEnergyRange(ctx context.Context, in SetEnergyRangeInput) (*RequiredAssignment, error) {
	positionID, err := normalizeID(in.PositionID)
	if err != nil {
		return nil, err
	}
	assignmentID, err := normalizeID(in.AssignmentID)
	if err != nil {
		return nil, err
	}
	if err := validateEnergyRange(in.MinEnergy, in.MaxEnergy); err != nil {
		return nil, err
	}

	var updated *RequiredAssignment
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.LockRequirements(txCtx, positionID)
		if err != nil {
			return err
		}
		target := findRequirement(existing, assignmentID)
		if target == nil {
			return ErrRequirementNotFound
		}
		target.MinEnergy = cloneInt(in.MinEnergy)
		target.MaxEnergy = cloneInt(in.MaxEnergy)
		target.UpdatedAt = s.clock.Now()

		result, err := s.repo.UpdateRequirement(txCtx, target)
		if err != nil {
			return err
		}
		updated = result
		return nil
	}); err != nil {
		return nil, err
	}
	return updated, nil
}

// ReassignPositions は必須アサインメントの順位を変更し、衝突した項目を順に下へずらします。
// 順位が変わった項目だけを更新し、変更後の一覧を返します。
func (s *Service) ReassignPositions(ctx context.Context, in ReassignInput) ([]*RequiredAssignment, error) {
	positionID, err := normalizeID(in.PositionID)
	if err != nil {
		return nil, err
	}
	assignmentID, err := normalizeID(in.AssignmentID)
	if err != nil {
		return nil, err
	}
	if in.Rank < 1 {
		return nil, ErrInvalidRank
	}

	var result []*RequiredAssignment
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.LockRequirements(txCtx, positionID)
		if err != nil {
			return err
		}

		before := make(map[string]int, len(existing))
		items := make([]RequiredAssignment, 0, len(existing))
		for _, req := range existing {
			before[req.AssignmentID] = req.Rank
			items = append(items, *req)
		}

		reordered, err := ReassignRanks(items, assignmentID, in.Rank)
		if err != nil {
			return err
		}

		changed := make(map[string]int)
		now := s.clock.Now()
		result = make([]*RequiredAssignment, 0, len(reordered))
		for i := range reordered {
			req := reordered[i]
			if before[req.AssignmentID] != req.Rank {
				changed[req.AssignmentID] = req.Rank
				req.UpdatedAt = now
			}
			result = append(result, &req)
		}
		if len(changed) == 0 {
			return nil
		}
		return s.repo.UpdateRanks(txCtx, positionID, changed)
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// RequiredAssignments はポジションの必須アサインメントとエネルギー範囲を返します。
func (s *Service) RequiredAssignments(ctx context.Context, positionID string) ([]snapshot.RequiredAssignment, error) {
	id, err := normalizeID(positionID)
	if err != nil {
		return nil, err
	}

	var result []snapshot.RequiredAssignment
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		list, err := s.repo.ListRequirements(txCtx, id)
		if err != nil {
			return err
		}
		result = make([]snapshot.RequiredAssignment, 0, len(list))
		for _, req := range list {
			result = append(result, snapshot.RequiredAssignment{
				AssignmentID: req.AssignmentID,
				MinEnergy:    cloneInt(req.MinEnergy),
				MaxEnergy:    cloneInt(req.MaxEnergy),
			})
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) ensureCodeNotExists(ctx context.Context, code string) error {
	company, err := s.repo.FindCompanyByCode(ctx, code)
	if err != nil && !errors.Is(err, ErrCompanyNotFound) {
		return err
	}
	if company != nil {
		return ErrCodeAlreadyExists
	}
	return nil
}

func findRequirement(list []*RequiredAssignment, assignmentID string) *RequiredAssignment {
	for _, req := range list {
		if req.AssignmentID == assignmentID {
			return req
		}
	}
	return nil
}

func validateEnergyRange(minEnergy, maxEnergy *int) error {
	for _, v := range []*int{minEnergy, maxEnergy} {
		if v != nil && (*v < 0 || *v > 100) {
			return ErrInvalidEnergyRange
		}
	}
	if minEnergy != nil && maxEnergy != nil && *minEnergy > *maxEnergy {
		return ErrInvalidEnergyRange
	}
	return nil
}

func normalizeID(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidID
	}
	return trimmed, nil
}

func normalizeCode(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidCode
	}

	lower := strings.ToLower(trimmed)
	if !codePattern.MatchString(lower) {
		return "", ErrInvalidCode
	}
	return lower, nil
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
