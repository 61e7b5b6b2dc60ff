package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ogurasousui/checkin-ledger/internal/core/tenure"
	pgdb "github.com/ogurasousui/checkin-ledger/internal/platform/db/postgres"
)

const tenureColumns = `id, teammate_id, subject_kind, subject_id, started_on, ended_on, energy_percentage,
               official_rating, manager_id, employment_kind, created_at, updated_at`

// TenureRepository は PostgreSQL を利用した保有期間永続化の実装です。
type TenureRepository struct {
	pool pgdb.Queryer
}

var _ tenure.Repository = (*TenureRepository)(nil)

// NewTenureRepository は TenureRepository を生成します。
func NewTenureRepository(pool pgdb.Queryer) *TenureRepository {
	return &TenureRepository{pool: pool}
}

// LockHolder はチームメイト行を FOR UPDATE でロックします。トランザクション内で呼び出す必要があります。
func (r *TenureRepository) LockHolder(ctx context.Context, teammateID string) error {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	var id string
	if err := exec.QueryRow(ctx, `SELECT id FROM teammates WHERE id = $1 FOR UPDATE`, teammateID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tenure.ErrTeammateNotFound
		}
		return translateTenurePgError(err)
	}
	return nil
}

// FindOpen は未終了の保有期間を行ロック付きで取得します。
func (r *TenureRepository) FindOpen(ctx context.Context, teammateID string, kind tenure.SubjectKind, subjectID string) (*tenure.Tenure, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT `+tenureColumns+`
          FROM tenures
         WHERE teammate_id = $1 AND subject_kind = $2 AND subject_id = $3 AND ended_on IS NULL
         LIMIT 1
           FOR UPDATE
    `, teammateID, string(kind), subjectID)

	found, err := scanTenure(row)
	if err != nil {
		return nil, translateTenurePgError(err)
	}
	return found, nil
}

// FindOpenPosition は未終了の雇用保有期間を行ロック付きで取得します。
func (r *TenureRepository) FindOpenPosition(ctx context.Context, teammateID string) (*tenure.Tenure, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT `+tenureColumns+`
          FROM tenures
         WHERE teammate_id = $1 AND subject_kind = 'position' AND ended_on IS NULL
         LIMIT 1
           FOR UPDATE
    `, teammateID)

	found, err := scanTenure(row)
	if err != nil {
		return nil, translateTenurePgError(err)
	}
	return found, nil
}

// FindByID は ID で保有期間を取得します。
func (r *TenureRepository) FindByID(ctx context.Context, id string) (*tenure.Tenure, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `SELECT `+tenureColumns+` FROM tenures WHERE id = $1`, id)

	found, err := scanTenure(row)
	if err != nil {
		return nil, translateTenurePgError(err)
	}
	return found, nil
}

// ListOpen は未終了の保有期間を行ロック付きで返します。
func (r *TenureRepository) ListOpen(ctx context.Context, teammateID string) ([]*tenure.Tenure, error) {
	return r.list(ctx, `
        SELECT `+tenureColumns+`
          FROM tenures
         WHERE teammate_id = $1 AND ended_on IS NULL
         ORDER BY started_on, created_at
           FOR UPDATE
    `, teammateID)
}

// ListByTeammate は全保有期間を開始日・作成日時の昇順で返します。
func (r *TenureRepository) ListByTeammate(ctx context.Context, teammateID string) ([]*tenure.Tenure, error) {
	return r.list(ctx, `
        SELECT `+tenureColumns+`
          FROM tenures
         WHERE teammate_id = $1
         ORDER BY started_on, created_at
    `, teammateID)
}

// Create は保有期間を追加します。
func (r *TenureRepository) Create(ctx context.Context, t *tenure.Tenure) (*tenure.Tenure, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO tenures (teammate_id, subject_kind, subject_id, started_on, ended_on, energy_percentage,
                             official_rating, manager_id, employment_kind, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING `+tenureColumns,
		t.TeammateID,
		string(t.SubjectKind),
		t.SubjectID,
		dateOnly(t.StartedOn),
		nullableDate(t.EndedOn),
		nullableInt(t.EnergyPercentage),
		nullableString(t.OfficialRating),
		nullableString(t.ManagerID),
		t.EmploymentKind,
		t.CreatedAt,
		t.UpdatedAt,
	)

	created, err := scanTenure(row)
	if err != nil {
		return nil, translateTenurePgError(err)
	}
	return created, nil
}

// Close は未終了の保有期間を終了します。
func (r *TenureRepository) Close(ctx context.Context, id string, endedOn time.Time, officialRating *string, updatedAt time.Time) (*tenure.Tenure, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        UPDATE tenures
           SET ended_on = $2,
               official_rating = COALESCE($3, official_rating),
               updated_at = $4
         WHERE id = $1 AND ended_on IS NULL
        RETURNING `+tenureColumns,
		id,
		dateOnly(endedOn),
		nullableString(officialRating),
		updatedAt,
	)

	closed, err := scanTenure(row)
	if errors.Is(err, tenure.ErrTenureNotFound) {
		if _, findErr := r.FindByID(ctx, id); findErr != nil {
			return nil, findErr
		}
		return nil, tenure.ErrAlreadyClosed
	}
	if err != nil {
		return nil, translateTenurePgError(err)
	}
	return closed, nil
}

func (r *TenureRepository) list(ctx context.Context, query string, args ...any) ([]*tenure.Tenure, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		return nil, translateTenurePgError(err)
	}
	defer rows.Close()

	tenures := make([]*tenure.Tenure, 0)
	for rows.Next() {
		t, err := scanTenure(rows)
		if err != nil {
			return nil, translateTenurePgError(err)
		}
		tenures = append(tenures, t)
	}
	if err := rows.Err(); err != nil {
		return nil, translateTenurePgError(err)
	}
	return tenures, nil
}

func scanTenure(row pgx.Row) (*tenure.Tenure, error) {
	var (
		t              tenure.Tenure
		kind           string
		startedOn      time.Time
		endedOn        sql.NullTime
		energy         sql.NullInt32
		officialRating sql.NullString
		managerID      sql.NullString
	)

	if err := row.Scan(
		&t.ID,
		&t.TeammateID,
		&kind,
		&t.SubjectID,
		&startedOn,
		&endedOn,
		&energy,
		&officialRating,
		&managerID,
		&t.EmploymentKind,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenure.ErrTenureNotFound
		}
		return nil, err
	}

	t.SubjectKind = tenure.SubjectKind(kind)
	t.StartedOn = dateOnly(startedOn)
	t.EndedOn = datePtr(endedOn)
	t.EnergyPercentage = intPtr(energy)
	t.OfficialRating = stringPtr(officialRating)
	t.ManagerID = stringPtr(managerID)
	return &t, nil
}

func translateTenurePgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return tenure.ErrTenureNotFound
	}

	if pgErr, ok := asPgError(err); ok {
		switch pgErr.Code {
		case uniqueViolationCode, exclusionViolationCode:
			return tenure.ErrConcurrentModification
		case foreignKeyViolationCode:
			return tenure.ErrTeammateNotFound
		case checkViolationCode:
			if pgErr.ConstraintName == "tenures_period_check" {
				return tenure.ErrInvalidDate
			}
			return tenure.ErrInvalidEnergy
		}
	}
	return err
}
