package principal

import "context"

// Repository は操作者の永続化を行うインターフェースです。
type Repository interface {
	Create(ctx context.Context, principal *Principal) (*Principal, error)
	FindByID(ctx context.Context, id string) (*Principal, error)
	FindByEmail(ctx context.Context, email string) (*Principal, error)
}
