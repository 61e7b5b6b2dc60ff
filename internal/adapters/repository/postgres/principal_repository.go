package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/ogurasousui/checkin-ledger/internal/core/principal"
	pgdb "github.com/ogurasousui/checkin-ledger/internal/platform/db/postgres"
)

// PrincipalRepository は PostgreSQL を利用した操作者永続化の実装です。
type PrincipalRepository struct {
	pool pgdb.Queryer
}

var _ principal.Repository = (*PrincipalRepository)(nil)

// NewPrincipalRepository は PrincipalRepository を生成します。
func NewPrincipalRepository(pool pgdb.Queryer) *PrincipalRepository {
	return &PrincipalRepository{pool: pool}
}

// Create は操作者を新規作成します。
func (r *PrincipalRepository) Create(ctx context.Context, p *principal.Principal) (*principal.Principal, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO principals (email, name, kind, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, email, name, kind, status, created_at, updated_at
    `, p.Email, p.Name, string(p.Kind), string(p.Status), p.CreatedAt, p.UpdatedAt)

	created, err := scanPrincipal(row)
	if err != nil {
		return nil, translatePrincipalPgError(err)
	}
	return created, nil
}

// FindByID は ID で操作者を取得します。
func (r *PrincipalRepository) FindByID(ctx context.Context, id string) (*principal.Principal, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT id, email, name, kind, status, created_at, updated_at
          FROM principals
         WHERE id = $1
         LIMIT 1
    `, id)

	found, err := scanPrincipal(row)
	if err != nil {
		return nil, translatePrincipalPgError(err)
	}
	return found, nil
}

// FindByEmail はメールアドレスで操作者を取得します。
func (r *PrincipalRepository) FindByEmail(ctx context.Context, email string) (*principal.Principal, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT id, email, name, kind, status, created_at, updated_at
          FROM principals
         WHERE email = $1
         LIMIT 1
    `, email)

	found, err := scanPrincipal(row)
	if err != nil {
		return nil, translatePrincipalPgError(err)
	}
	return found, nil
}

func scanPrincipal(row pgx.Row) (*principal.Principal, error) {
	var (
		p      principal.Principal
		kind   string
		status string
	)
	if err := row.Scan(&p.ID, &p.Email, &p.Name, &kind, &status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, principal.ErrPrincipalNotFound
		}
		return nil, err
	}
	p.Kind = principal.Kind(kind)
	p.Status = principal.Status(status)
	return &p, nil
}

func translatePrincipalPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return principal.ErrPrincipalNotFound
	}
	if pgErr, ok := asPgError(err); ok && pgErr.Code == uniqueViolationCode {
		return principal.ErrEmailAlreadyExists
	}
	return err
}
