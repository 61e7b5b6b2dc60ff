package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ogurasousui/checkin-ledger/internal/core/catalog"
	pgdb "github.com/ogurasousui/checkin-ledger/internal/platform/db/postgres"
)

// CatalogRepository は PostgreSQL を利用した会社・ポジション・アサインメントの永続化実装です。
type CatalogRepository struct {
	pool pgdb.Queryer
}

var _ catalog.Repository = (*CatalogRepository)(nil)

// NewCatalogRepository は CatalogRepository を生成します。
func NewCatalogRepository(pool pgdb.Queryer) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// CreateCompany は会社を新規作成します。
func (r *CatalogRepository) CreateCompany(ctx context.Context, c *catalog.Company) (*catalog.Company, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO companies (name, code, created_at, updated_at)
        VALUES ($1, $2, $3, $4)
        RETURNING id, name, code, created_at, updated_at
    `, c.Name, c.Code, c.CreatedAt, c.UpdatedAt)

	created, err := scanCompany(row)
	if err != nil {
		return nil, translateCatalogPgError(err, catalog.ErrCompanyNotFound)
	}
	return created, nil
}

// FindCompanyByID は ID で会社を取得します。
func (r *CatalogRepository) FindCompanyByID(ctx context.Context, id string) (*catalog.Company, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	found, err := scanCompany(exec.QueryRow(ctx, `SELECT id, name, code, created_at, updated_at FROM companies WHERE id = $1`, id))
	if err != nil {
		return nil, translateCatalogPgError(err, catalog.ErrCompanyNotFound)
	}
	return found, nil
}

// FindCompanyByCode はコードで会社を取得します。
func (r *CatalogRepository) FindCompanyByCode(ctx context.Context, code string) (*catalog.Company, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	found, err := scanCompany(exec.QueryRow(ctx, `SELECT id, name, code, created_at, updated_at FROM companies WHERE code = $1`, code))
	if err != nil {
		return nil, translateCatalogPgError(err, catalog.ErrCompanyNotFound)
	}
	return found, nil
}

// CreatePosition はポジションを新規作成します。
func (r *CatalogRepository) CreatePosition(ctx context.Context, p *catalog.Position) (*catalog.Position, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO positions (company_id, title, created_at, updated_at)
        VALUES ($1, $2, $3, $4)
        RETURNING id, company_id, title, created_at, updated_at
    `, p.CompanyID, p.Title, p.CreatedAt, p.UpdatedAt)

	var created catalog.Position
	if err := row.Scan(&created.ID, &created.CompanyID, &created.Title, &created.CreatedAt, &created.UpdatedAt); err != nil {
		return nil, translateCatalogPgError(err, catalog.ErrCompanyNotFound)
	}
	return &created, nil
}

// FindPositionByID は ID でポジションを取得します。
func (r *CatalogRepository) FindPositionByID(ctx context.Context, id string) (*catalog.Position, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	var found catalog.Position
	err := exec.QueryRow(ctx, `SELECT id, company_id, title, created_at, updated_at FROM positions WHERE id = $1`, id).
		Scan(&found.ID, &found.CompanyID, &found.Title, &found.CreatedAt, &found.UpdatedAt)
	if err != nil {
		return nil, translateCatalogPgError(err, catalog.ErrPositionNotFound)
	}
	return &found, nil
}

// CreateAssignment はアサインメントを新規作成します。
func (r *CatalogRepository) CreateAssignment(ctx context.Context, a *catalog.Assignment) (*catalog.Assignment, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO assignments (company_id, title, created_at, updated_at)
        VALUES ($1, $2, $3, $4)
        RETURNING id, company_id, title, created_at, updated_at
    `, a.CompanyID, a.Title, a.CreatedAt, a.UpdatedAt)

	var created catalog.Assignment
	if err := row.Scan(&created.ID, &created.CompanyID, &created.Title, &created.CreatedAt, &created.UpdatedAt); err != nil {
		return nil, translateCatalogPgError(err, catalog.ErrCompanyNotFound)
	}
	return &created, nil
}

// FindAssignmentByID は ID でアサインメントを取得します。
func (r *CatalogRepository) FindAssignmentByID(ctx context.Context, id string) (*catalog.Assignment, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	var found catalog.Assignment
	err := exec.QueryRow(ctx, `SELECT id, company_id, title, created_at, updated_at FROM assignments WHERE id = $1`, id).
		Scan(&found.ID, &found.CompanyID, &found.Title, &found.CreatedAt, &found.UpdatedAt)
	if err != nil {
		return nil, translateCatalogPgError(err, catalog.ErrAssignmentNotFound)
	}
	return &found, nil
}

// ListRequirements はポジションの必須アサインメントを順位順に返します。
func (r *CatalogRepository) ListRequirements(ctx context.Context, positionID string) ([]*catalog.RequiredAssignment, error) {
	return r.listRequirements(ctx, `
        SELECT position_id, assignment_id, rank, min_energy, max_energy, updated_at
          FROM position_required_assignments
         WHERE position_id = $1
         ORDER BY rank
    `, positionID)
}

// LockRequirements はポジションの必須アサインメントを行ロック付きで順位順に返します。
func (r *CatalogRepository) LockRequirements(ctx context.Context, positionID string) ([]*catalog.RequiredAssignment, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	var id string
	if err := exec.QueryRow(ctx, `SELECT id FROM positions WHERE id = $1 FOR UPDATE`, positionID).Scan(&id); err != nil {
		return nil, translateCatalogPgError(err, catalog.ErrPositionNotFound)
	}
	return r.listRequirements(ctx, `
        SELECT position_id, assignment_id, rank, min_energy, max_energy, updated_at
          FROM position_required_assignments
         WHERE position_id = $1
         ORDER BY rank
           FOR UPDATE
    `, positionID)
}

// CreateRequirement は必須アサインメントを追加します。
func (r *CatalogRepository) CreateRequirement(ctx context.Context, req *catalog.RequiredAssignment) (*catalog.RequiredAssignment, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO position_required_assignments (position_id, assignment_id, rank, min_energy, max_energy, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING position_id, assignment_id, rank, min_energy, max_energy, updated_at
    `, req.PositionID, req.AssignmentID, req.Rank, nullableInt(req.MinEnergy), nullableInt(req.MaxEnergy), req.UpdatedAt)

	created, err := scanRequirement(row)
	if err != nil {
		return nil, translateCatalogPgError(err, catalog.ErrRequirementNotFound)
	}
	return created, nil
}

// UpdateRequirement はエネルギー範囲を更新します。
func (r *CatalogRepository) UpdateRequirement(ctx context.Context, req *catalog.RequiredAssignment) (*catalog.RequiredAssignment, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        UPDATE position_required_assignments
           SET min_energy = $3,
               max_energy = $4,
               updated_at = $5
         WHERE position_id = $1 AND assignment_id = $2
        RETURNING position_id, assignment_id, rank, min_energy, max_energy, updated_at
    `, req.PositionID, req.AssignmentID, nullableInt(req.MinEnergy), nullableInt(req.MaxEnergy), req.UpdatedAt)

	updated, err := scanRequirement(row)
	if err != nil {
		return nil, translateCatalogPgError(err, catalog.ErrRequirementNotFound)
	}
	return updated, nil
}

// UpdateRanks は順位を一括更新します。一意制約は遅延評価のため途中の重複は許容されます。
func (r *CatalogRepository) UpdateRanks(ctx context.Context, positionID string, ranks map[string]int) error {
	if len(ranks) == 0 {
		return nil
	}
	ids := make([]string, 0, len(ranks))
	values := make([]int32, 0, len(ranks))
	for id, rank := range ranks {
		ids = append(ids, id)
		values = append(values, int32(rank))
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	tag, err := exec.Exec(ctx, `
        UPDATE position_required_assignments AS pra
           SET rank = v.rank,
               updated_at = $4
          FROM unnest($2::uuid[], $3::int[]) AS v(assignment_id, rank)
         WHERE pra.position_id = $1 AND pra.assignment_id = v.assignment_id
    `, positionID, ids, values, time.Now().UTC())
	if err != nil {
		return translateCatalogPgError(err, catalog.ErrRequirementNotFound)
	}
	if tag.RowsAffected() != int64(len(ranks)) {
		return catalog.ErrRequirementNotFound
	}
	return nil
}

func (r *CatalogRepository) listRequirements(ctx context.Context, query string, positionID string) ([]*catalog.RequiredAssignment, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, query, positionID)
	if err != nil {
		return nil, translateCatalogPgError(err, catalog.ErrRequirementNotFound)
	}
	defer rows.Close()

	list := make([]*catalog.RequiredAssignment, 0)
	for rows.Next() {
		req, err := scanRequirement(rows)
		if err != nil {
			return nil, translateCatalogPgError(err, catalog.ErrRequirementNotFound)
		}
		list = append(list, req)
	}
	if err := rows.Err(); err != nil {
		return nil, translateCatalogPgError(err, catalog.ErrRequirementNotFound)
	}
	return list, nil
}

func scanCompany(row pgx.Row) (*catalog.Company, error) {
	var c catalog.Company
	if err := row.Scan(&c.ID, &c.Name, &c.Code, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanRequirement(row pgx.Row) (*catalog.RequiredAssignment, error) {
	var (
		req       catalog.RequiredAssignment
		minEnergy sql.NullInt32
		maxEnergy sql.NullInt32
	)
	if err := row.Scan(&req.PositionID, &req.AssignmentID, &req.Rank, &minEnergy, &maxEnergy, &req.UpdatedAt); err != nil {
		return nil, err
	}
	req.MinEnergy = intPtr(minEnergy)
	req.MaxEnergy = intPtr(maxEnergy)
	return &req, nil
}

// translateCatalogPgError は notFound を行が無い場合の返却値として使います。
func translateCatalogPgError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}

	if pgErr, ok := asPgError(err); ok {
		switch pgErr.Code {
		case uniqueViolationCode:
			switch pgErr.ConstraintName {
			case "companies_code_key":
				return catalog.ErrCodeAlreadyExists
			case "position_required_assignments_rank_key":
				return catalog.ErrInvalidRank
			default:
				return catalog.ErrRequirementExists
			}
		case foreignKeyViolationCode:
			switch pgErr.ConstraintName {
			case "position_required_assignments_position_id_fkey":
				return catalog.ErrPositionNotFound
			case "position_required_assignments_assignment_id_fkey":
				return catalog.ErrAssignmentNotFound
			default:
				return catalog.ErrCompanyNotFound
			}
		case checkViolationCode:
			if pgErr.ConstraintName == "position_required_assignments_rank_check" {
				return catalog.ErrInvalidRank
			}
			return catalog.ErrInvalidEnergyRange
		}
	}
	return err
}
