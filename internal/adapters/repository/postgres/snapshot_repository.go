package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ogurasousui/checkin-ledger/internal/core/snapshot"
	pgdb "github.com/ogurasousui/checkin-ledger/internal/platform/db/postgres"
)

const snapshotColumns = `id, employee_id, creator_id, company_id, change_type, reason, effective_date,
               request_context, state_tree, created_at`

// SnapshotRepository は PostgreSQL を利用したスナップショット永続化の実装です。
// 追記と参照のみを提供し、更新と削除はトリガーでも拒否されます。
type SnapshotRepository struct {
	pool pgdb.Queryer
}

var _ snapshot.Repository = (*SnapshotRepository)(nil)

// NewSnapshotRepository は SnapshotRepository を生成します。
func NewSnapshotRepository(pool pgdb.Queryer) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

// LockEmployee は従業員行を FOR UPDATE でロックします。
func (r *SnapshotRepository) LockEmployee(ctx context.Context, employeeID string) error {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	var id string
	if err := exec.QueryRow(ctx, `SELECT id FROM teammates WHERE id = $1 FOR UPDATE`, employeeID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return snapshot.ErrEmployeeNotFound
		}
		return translateSnapshotPgError(err)
	}
	return nil
}

// Create はスナップショットを追記します。
func (r *SnapshotRepository) Create(ctx context.Context, s *snapshot.Snapshot) (*snapshot.Snapshot, error) {
	requestContext, err := json.Marshal(s.RequestContext)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode request context: %w", err)
	}
	stateTree, err := json.Marshal(s.StateTree)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode state tree: %w", err)
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO snapshots (employee_id, creator_id, company_id, change_type, reason, effective_date,
                               request_context, state_tree, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING `+snapshotColumns,
		s.EmployeeID,
		s.CreatorID,
		s.CompanyID,
		string(s.ChangeType),
		s.Reason,
		dateOnly(s.EffectiveDate),
		requestContext,
		stateTree,
		s.CreatedAt,
	)

	created, err := scanSnapshot(row)
	if err != nil {
		return nil, translateSnapshotPgError(err)
	}
	return created, nil
}

// FindByID は ID でスナップショットを取得します。
func (r *SnapshotRepository) FindByID(ctx context.Context, id string) (*snapshot.Snapshot, error) {
	return r.findOne(ctx, `SELECT `+snapshotColumns+` FROM snapshots WHERE id = $1`, id)
}

// Latest は従業員の最新スナップショットを取得します。
func (r *SnapshotRepository) Latest(ctx context.Context, employeeID string) (*snapshot.Snapshot, error) {
	return r.findOne(ctx, `
        SELECT `+snapshotColumns+`
          FROM snapshots
         WHERE employee_id = $1
         ORDER BY seq DESC
         LIMIT 1
    `, employeeID)
}

// Previous は同じ従業員で直前に追記されたスナップショットを取得します。
func (r *SnapshotRepository) Previous(ctx context.Context, s *snapshot.Snapshot) (*snapshot.Snapshot, error) {
	return r.findOne(ctx, `
        SELECT `+snapshotColumns+`
          FROM snapshots
         WHERE employee_id = $1
           AND seq < (SELECT seq FROM snapshots WHERE id = $2)
         ORDER BY seq DESC
         LIMIT 1
    `, s.EmployeeID, s.ID)
}

// History は従業員のスナップショットを新しい順に返します。
func (r *SnapshotRepository) History(ctx context.Context, employeeID string) ([]*snapshot.Snapshot, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, `
        SELECT `+snapshotColumns+`
          FROM snapshots
         WHERE employee_id = $1
         ORDER BY seq DESC
    `, employeeID)
	if err != nil {
		return nil, translateSnapshotPgError(err)
	}
	defer rows.Close()

	list := make([]*snapshot.Snapshot, 0)
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, translateSnapshotPgError(err)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, translateSnapshotPgError(err)
	}
	return list, nil
}

func (r *SnapshotRepository) findOne(ctx context.Context, query string, args ...any) (*snapshot.Snapshot, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	found, err := scanSnapshot(exec.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, translateSnapshotPgError(err)
	}
	return found, nil
}

func scanSnapshot(row pgx.Row) (*snapshot.Snapshot, error) {
	var (
		s              snapshot.Snapshot
		changeType     string
		effectiveDate  time.Time
		requestContext []byte
		stateTree      []byte
	)

	if err := row.Scan(
		&s.ID,
		&s.EmployeeID,
		&s.CreatorID,
		&s.CompanyID,
		&changeType,
		&s.Reason,
		&effectiveDate,
		&requestContext,
		&stateTree,
		&s.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, snapshot.ErrSnapshotNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(requestContext, &s.RequestContext); err != nil {
		return nil, fmt.Errorf("snapshot: decode request context: %w", err)
	}
	if err := json.Unmarshal(stateTree, &s.StateTree); err != nil {
		return nil, fmt.Errorf("snapshot: decode state tree: %w", err)
	}
	s.StateTree.Normalize()
	s.ChangeType = snapshot.ChangeType(changeType)
	s.EffectiveDate = dateOnly(effectiveDate)
	return &s, nil
}

func translateSnapshotPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return snapshot.ErrSnapshotNotFound
	}

	if pgErr, ok := asPgError(err); ok {
		switch pgErr.Code {
		case raiseExceptionCode:
			if pgErr.ConstraintName == "snapshots_append_only" {
				return snapshot.ErrImmutable
			}
		case foreignKeyViolationCode:
			return snapshot.ErrEmployeeNotFound
		case checkViolationCode:
			return snapshot.ErrInvalidChangeType
		}
	}
	return err
}
