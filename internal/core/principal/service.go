package principal

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
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

const systemLookupTimeout = 5 * time.Second

// SystemActorConfig はシステム操作者の設定です。
type SystemActorConfig struct {
	Email string
	Name  string
}

// Service は操作者に関するユースケースをまとめます。
type Service struct {
	repo   Repository
	clock  Clock
	system SystemActorConfig
	logger logrus.FieldLogger

	mu       sync.Mutex
	systemID string
}

// UseCase は操作者ユースケースの公開インターフェースです。
type UseCase interface {
	CreatePrincipal(ctx context.Context, in CreatePrincipalInput) (*Principal, error)
	GetPrincipal(ctx context.Context, id string) (*Principal, error)
	SystemActor(ctx context.Context) (*Principal, error)
}

// NewService は Service を生成します。
func NewService(repo Repository, clock Clock, system SystemActorConfig, logger logrus.FieldLogger) *Service {
	if clock == nil {
		clock = realClock{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{repo: repo, clock: clock, system: system, logger: logger}
}

// CreatePrincipalInput は操作者作成時の入力です。
type CreatePrincipalInput struct {
	Email string
	Name  string
}

// CreatePrincipal は人間の操作者を作成します。
func (s *Service) CreatePrincipal(ctx context.Context, in CreatePrincipalInput) (*Principal, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(email, s.system.Email) {
		return nil, ErrEmailAlreadyExists
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidName
	}

	if err := s.ensureEmailNotExists(ctx, email); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	return s.repo.Create(ctx, &Principal{
		Email:     email,
		Name:      name,
		Kind:      KindHuman,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// GetPrincipal は ID で操作者を取得します。
func (s *Service) GetPrincipal(ctx context.Context, id string) (*Principal, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("id: %w", ErrInvalidID)
	}
	return s.repo.FindByID(ctx, id)
}

// SystemActor は設定されたシステム操作者を返します。
// メールアドレスで検索し、存在しなければ一度だけ作成します。
// 同時に作成された場合は一意制約違反の後に再検索します。
// システム操作者は呼び出し元のトランザクションとは独立して確定させます。
func (s *Service) SystemActor(ctx context.Context) (*Principal, error) {
	email, err := normalizeEmail(s.system.Email)
	if err != nil {
		return nil, fmt.Errorf("system actor: %w", err)
	}

	lookupCtx, cancel := context.WithTimeout(context.Background(), systemLookupTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	found, err := s.repo.FindByEmail(lookupCtx, email)
	switch {
	case err == nil:
		return checkSystem(found)
	case !errors.Is(err, ErrPrincipalNotFound):
		return nil, err
	}

	name := strings.TrimSpace(s.system.Name)
	if name == "" {
		name = "System"
	}
	now := s.clock.Now()
	created, err := s.repo.Create(lookupCtx, &Principal{
		Email:     email,
		Name:      name,
		Kind:      KindSystem,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if errors.Is(err, ErrEmailAlreadyExists) {
		found, err := s.repo.FindByEmail(lookupCtx, email)
		if err != nil {
			return nil, err
		}
		return checkSystem(found)
	}
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"principal_id": created.ID, "email": email}).Info("system actor created")
	return created, nil
}

// SystemActorID はシステム操作者の ID を返します。解決後はキャッシュします。
func (s *Service) SystemActorID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.systemID != "" {
		return s.systemID, nil
	}

	actor, err := s.SystemActor(ctx)
	if err != nil {
		return "", err
	}
	s.systemID = actor.ID
	return s.systemID, nil
}

func (s *Service) ensureEmailNotExists(ctx context.Context, email string) error {
	found, err := s.repo.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrPrincipalNotFound) {
		return err
	}
	if found != nil {
		return ErrEmailAlreadyExists
	}
	return nil
}

func checkSystem(p *Principal) (*Principal, error) {
	if p.Kind != KindSystem {
		return nil, ErrSystemActorConflict
	}
	return p, nil
}

func normalizeEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(trimmed)
	if err != nil {
		return "", ErrInvalidEmail
	}

	return strings.ToLower(addr.Address), nil
}
