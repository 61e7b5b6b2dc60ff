package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/ogurasousui/checkin-ledger/internal/core/teammate"
	pgdb "github.com/ogurasousui/checkin-ledger/internal/platform/db/postgres"
)

const teammateColumns = `id, company_id, employee_code, manager_id, status, hired_on, terminated_on, created_at, updated_at`

// TeammateRepository は PostgreSQL を利用したチームメイト永続化の実装です。
type TeammateRepository struct {
	pool pgdb.Queryer
}

var _ teammate.Repository = (*TeammateRepository)(nil)

// NewTeammateRepository は TeammateRepository を生成します。
func NewTeammateRepository(pool pgdb.Queryer) *TeammateRepository {
	return &TeammateRepository{pool: pool}
}

// Create はチームメイトを新規作成します。
func (r *TeammateRepository) Create(ctx context.Context, t *teammate.Teammate) (*teammate.Teammate, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO teammates (company_id, employee_code, manager_id, status, hired_on, terminated_on, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING `+teammateColumns,
		t.CompanyID,
		t.EmployeeCode,
		nullableString(t.ManagerID),
		string(t.Status),
		nullableDate(t.HiredOn),
		nullableDate(t.TerminatedOn),
		t.CreatedAt,
		t.UpdatedAt,
	)

	created, err := scanTeammate(row)
	if err != nil {
		return nil, translateTeammatePgError(err)
	}
	return created, nil
}

// Update はチームメイト情報を更新します。
func (r *TeammateRepository) Update(ctx context.Context, t *teammate.Teammate) (*teammate.Teammate, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        UPDATE teammates
           SET employee_code = $1,
               manager_id = $2,
               status = $3,
               hired_on = $4,
               terminated_on = $5,
               updated_at = $6
         WHERE id = $7
        RETURNING `+teammateColumns,
		t.EmployeeCode,
		nullableString(t.ManagerID),
		string(t.Status),
		nullableDate(t.HiredOn),
		nullableDate(t.TerminatedOn),
		t.UpdatedAt,
		t.ID,
	)

	updated, err := scanTeammate(row)
	if err != nil {
		return nil, translateTeammatePgError(err)
	}
	return updated, nil
}

// FindByID は ID でチームメイトを取得します。
func (r *TeammateRepository) FindByID(ctx context.Context, id string) (*teammate.Teammate, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	found, err := scanTeammate(exec.QueryRow(ctx, `SELECT `+teammateColumns+` FROM teammates WHERE id = $1`, id))
	if err != nil {
		return nil, translateTeammatePgError(err)
	}
	return found, nil
}

// FindByIDForUpdate は行ロックを取得してチームメイトを取得します。
func (r *TeammateRepository) FindByIDForUpdate(ctx context.Context, id string) (*teammate.Teammate, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	found, err := scanTeammate(exec.QueryRow(ctx, `SELECT `+teammateColumns+` FROM teammates WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, translateTeammatePgError(err)
	}
	return found, nil
}

// FindByCompanyAndCode は会社 ID と社員コードで検索します。
func (r *TeammateRepository) FindByCompanyAndCode(ctx context.Context, companyID, employeeCode string) (*teammate.Teammate, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT `+teammateColumns+`
          FROM teammates
         WHERE company_id = $1 AND employee_code = $2
         LIMIT 1
    `, companyID, employeeCode)

	found, err := scanTeammate(row)
	if err != nil {
		return nil, translateTeammatePgError(err)
	}
	return found, nil
}

// List はチームメイトの一覧を取得します。
func (r *TeammateRepository) List(ctx context.Context, filter teammate.ListFilter) ([]*teammate.Teammate, string, error) {
	if strings.TrimSpace(filter.CompanyID) == "" {
		return nil, "", teammate.ErrInvalidCompanyID
	}
	if filter.Limit <= 0 {
		return nil, "", teammate.ErrInvalidPageSize
	}
	if filter.Offset < 0 {
		return nil, "", teammate.ErrInvalidPageToken
	}

	limitWithBuffer := filter.Limit + 1

	args := make([]any, 0, 4)
	conditions := make([]string, 0, 2)

	args = append(args, filter.CompanyID)
	conditions = append(conditions, "company_id = $"+strconv.Itoa(len(args)))

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, "status = $"+strconv.Itoa(len(args)))
	}

	args = append(args, limitWithBuffer)
	limitPlaceholder := "$" + strconv.Itoa(len(args))
	args = append(args, filter.Offset)
	offsetPlaceholder := "$" + strconv.Itoa(len(args))

	query := `
        SELECT ` + teammateColumns + `
          FROM teammates
         WHERE ` + strings.Join(conditions, " AND ") + `
         ORDER BY created_at, id
         LIMIT ` + limitPlaceholder + `
        OFFSET ` + offsetPlaceholder

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		return nil, "", translateTeammatePgError(err)
	}
	defer rows.Close()

	teammates := make([]*teammate.Teammate, 0, filter.Limit)
	for rows.Next() {
		t, err := scanTeammate(rows)
		if err != nil {
			return nil, "", translateTeammatePgError(err)
		}
		teammates = append(teammates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, "", translateTeammatePgError(err)
	}

	var nextToken string
	if len(teammates) == limitWithBuffer {
		teammates = teammates[:filter.Limit]
		nextToken = strconv.Itoa(filter.Offset + filter.Limit)
	}

	return teammates, nextToken, nil
}

func scanTeammate(row pgx.Row) (*teammate.Teammate, error) {
	var (
		t            teammate.Teammate
		managerID    sql.NullString
		status       string
		hiredOn      sql.NullTime
		terminatedOn sql.NullTime
	)

	if err := row.Scan(
		&t.ID,
		&t.CompanyID,
		&t.EmployeeCode,
		&managerID,
		&status,
		&hiredOn,
		&terminatedOn,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, teammate.ErrTeammateNotFound
		}
		return nil, err
	}

	t.ManagerID = stringPtr(managerID)
	t.Status = teammate.Status(status)
	t.HiredOn = datePtr(hiredOn)
	t.TerminatedOn = datePtr(terminatedOn)
	return &t, nil
}

func translateTeammatePgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return teammate.ErrTeammateNotFound
	}

	if pgErr, ok := asPgError(err); ok {
		switch pgErr.Code {
		case uniqueViolationCode:
			return teammate.ErrEmployeeCodeAlreadyExists
		case foreignKeyViolationCode:
			return teammate.ErrCompanyNotFound
		case checkViolationCode:
			return teammate.ErrInvalidDate
		}
	}
	return err
}
