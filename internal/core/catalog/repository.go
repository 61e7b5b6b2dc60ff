package catalog

import "context"

// Repository は会社・ポジション・アサインメントの永続化を行うインターフェースです。
type Repository interface {
	CreateCompany(ctx context.Context, company *Company) (*Company, error)
	FindCompanyByID(ctx context.Context, id string) (*Company, error)
	FindCompanyByCode(ctx context.Context, code string) (*Company, error)

	CreatePosition(ctx context.Context, position *Position) (*Position, error)
	FindPositionByID(ctx context.Context, id string) (*Position, error)
	CreateAssignment(ctx context.Context, assignment *Assignment) (*Assignment, error)
	FindAssignmentByID(ctx context.Context, id string) (*Assignment, error)

	// ListRequirements はポジションの必須アサインメントを Rank 昇順で返します。
	ListRequirements(ctx context.Context, positionID string) ([]*RequiredAssignment, error)
	// LockRequirements はポジションの必須アサインメントを行ロック付きで Rank 昇順に返します。
	LockRequirements(ctx context.Context, positionID string) ([]*RequiredAssignment, error)
	CreateRequirement(ctx context.Context, req *RequiredAssignment) (*RequiredAssignment, error)
	UpdateRequirement(ctx context.Context, req *RequiredAssignment) (*RequiredAssignment, error)
	// UpdateRanks は指定された必須アサインメントの Rank を一括で更新します。
	UpdateRanks(ctx context.Context, positionID string, ranks map[string]int) error
}
