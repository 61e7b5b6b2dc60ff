package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ogurasousui/checkin-ledger/internal/core/checkin"
	pgdb "github.com/ogurasousui/checkin-ledger/internal/platform/db/postgres"
)

const checkInColumns = `id, kind, teammate_id, subject_id, started_on,
               employee_rating, employee_private_notes, employee_personal_alignment, employee_actual_energy, employee_completed_at,
               manager_rating, manager_private_notes, manager_completed_at, manager_completed_by_id,
               official_rating, official_shared_notes, official_completed_at, official_finalized_by_id,
               snapshot_id, created_at, updated_at`

// CheckInRepository は PostgreSQL を利用したチェックイン永続化の実装です。
type CheckInRepository struct {
	pool pgdb.Queryer
}

var _ checkin.Repository = (*CheckInRepository)(nil)

// NewCheckInRepository は CheckInRepository を生成します。
func NewCheckInRepository(pool pgdb.Queryer) *CheckInRepository {
	return &CheckInRepository{pool: pool}
}

// Create はチェックインを追加します。
func (r *CheckInRepository) Create(ctx context.Context, c *checkin.CheckIn) (*checkin.CheckIn, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO check_ins (kind, teammate_id, subject_id, started_on,
                               employee_rating, employee_private_notes, employee_personal_alignment, employee_actual_energy, employee_completed_at,
                               manager_rating, manager_private_notes, manager_completed_at, manager_completed_by_id,
                               created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
        RETURNING `+checkInColumns,
		string(c.Kind),
		c.TeammateID,
		c.SubjectID,
		dateOnly(c.StartedOn),
		nullableString(c.Employee.Rating),
		c.Employee.PrivateNotes,
		c.Employee.PersonalAlignment,
		nullableInt(c.Employee.ActualEnergyPercentage),
		nullableTimestamp(c.Employee.CompletedAt),
		nullableString(c.Manager.Rating),
		c.Manager.PrivateNotes,
		nullableTimestamp(c.Manager.CompletedAt),
		nullableString(c.Manager.CompletedByID),
		c.CreatedAt,
		c.UpdatedAt,
	)

	created, err := scanCheckIn(row)
	if err != nil {
		return nil, translateCheckInPgError(err)
	}
	return created, nil
}

// Update は未確定のチェックインを更新します。公式評価の書き込みもこの更新で行います。
func (r *CheckInRepository) Update(ctx context.Context, c *checkin.CheckIn) (*checkin.CheckIn, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        UPDATE check_ins
           SET employee_rating = $2,
               employee_private_notes = $3,
               employee_personal_alignment = $4,
               employee_actual_energy = $5,
               employee_completed_at = $6,
               manager_rating = $7,
               manager_private_notes = $8,
               manager_completed_at = $9,
               manager_completed_by_id = $10,
               official_rating = $11,
               official_shared_notes = $12,
               official_completed_at = $13,
               official_finalized_by_id = $14,
               updated_at = $15
         WHERE id = $1 AND official_completed_at IS NULL
        RETURNING `+checkInColumns,
		c.ID,
		nullableString(c.Employee.Rating),
		c.Employee.PrivateNotes,
		c.Employee.PersonalAlignment,
		nullableInt(c.Employee.ActualEnergyPercentage),
		nullableTimestamp(c.Employee.CompletedAt),
		nullableString(c.Manager.Rating),
		c.Manager.PrivateNotes,
		nullableTimestamp(c.Manager.CompletedAt),
		nullableString(c.Manager.CompletedByID),
		nullableString(c.Official.Rating),
		c.Official.SharedNotes,
		nullableTimestamp(c.Official.CompletedAt),
		nullableString(c.Official.FinalizedByID),
		c.UpdatedAt,
	)

	updated, err := scanCheckIn(row)
	if errors.Is(err, checkin.ErrCheckInNotFound) {
		if _, findErr := r.FindByID(ctx, c.ID); findErr != nil {
			return nil, findErr
		}
		return nil, checkin.ErrAlreadyFinalized
	}
	if err != nil {
		return nil, translateCheckInPgError(err)
	}
	return updated, nil
}

// FindByID は ID でチェックインを取得します。
func (r *CheckInRepository) FindByID(ctx context.Context, id string) (*checkin.CheckIn, error) {
	return r.findOne(ctx, `SELECT `+checkInColumns+` FROM check_ins WHERE id = $1`, id)
}

// FindByIDForUpdate は行ロックを取得してチェックインを取得します。
func (r *CheckInRepository) FindByIDForUpdate(ctx context.Context, id string) (*checkin.CheckIn, error) {
	return r.findOne(ctx, `SELECT `+checkInColumns+` FROM check_ins WHERE id = $1 FOR UPDATE`, id)
}

// FindOpen は未確定のチェックインを取得します。
func (r *CheckInRepository) FindOpen(ctx context.Context, teammateID string, kind checkin.Kind, subjectID string) (*checkin.CheckIn, error) {
	return r.findOne(ctx, `
        SELECT `+checkInColumns+`
          FROM check_ins
         WHERE teammate_id = $1 AND kind = $2 AND subject_id = $3 AND official_completed_at IS NULL
         LIMIT 1
    `, teammateID, string(kind), subjectID)
}

// FindOpenPosition は未確定のポジションチェックインを取得します。
func (r *CheckInRepository) FindOpenPosition(ctx context.Context, teammateID string) (*checkin.CheckIn, error) {
	return r.findOne(ctx, `
        SELECT `+checkInColumns+`
          FROM check_ins
         WHERE teammate_id = $1 AND kind = 'position' AND official_completed_at IS NULL
         ORDER BY started_on DESC, created_at DESC
         LIMIT 1
    `, teammateID)
}

// ListByTeammate はチームメイトのチェックインを開始日・作成日時の昇順で返します。
func (r *CheckInRepository) ListByTeammate(ctx context.Context, teammateID string) ([]*checkin.CheckIn, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, `
        SELECT `+checkInColumns+`
          FROM check_ins
         WHERE teammate_id = $1
         ORDER BY started_on, created_at
    `, teammateID)
	if err != nil {
		return nil, translateCheckInPgError(err)
	}
	defer rows.Close()

	list := make([]*checkin.CheckIn, 0)
	for rows.Next() {
		c, err := scanCheckIn(rows)
		if err != nil {
			return nil, translateCheckInPgError(err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, translateCheckInPgError(err)
	}
	return list, nil
}

// LinkSnapshot は確定済みかつ未リンクのチェックインすべてにスナップショットを関連付けます。
// 対象件数が一致しない場合は ErrSnapshotLinkFailed を返し、呼び出し元のトランザクションで取り消されます。
func (r *CheckInRepository) LinkSnapshot(ctx context.Context, ids []string, snapshotID string) error {
	if len(ids) == 0 {
		return nil
	}
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	tag, err := exec.Exec(ctx, `
        UPDATE check_ins
           SET snapshot_id = $2
         WHERE id = ANY($1) AND official_completed_at IS NOT NULL AND snapshot_id IS NULL
    `, ids, snapshotID)
	if err != nil {
		return translateCheckInPgError(err)
	}
	if tag.RowsAffected() != int64(len(ids)) {
		return checkin.ErrSnapshotLinkFailed
	}
	return nil
}

func (r *CheckInRepository) findOne(ctx context.Context, query string, args ...any) (*checkin.CheckIn, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	found, err := scanCheckIn(exec.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, translateCheckInPgError(err)
	}
	return found, nil
}

func scanCheckIn(row pgx.Row) (*checkin.CheckIn, error) {
	var (
		c                   checkin.CheckIn
		kind                string
		startedOn           time.Time
		employeeRating      sql.NullString
		employeeEnergy      sql.NullInt32
		employeeCompletedAt sql.NullTime
		managerRating       sql.NullString
		managerCompletedAt  sql.NullTime
		managerCompletedBy  sql.NullString
		officialRating      sql.NullString
		officialCompletedAt sql.NullTime
		officialFinalizedBy sql.NullString
		snapshotID          sql.NullString
	)

	if err := row.Scan(
		&c.ID,
		&kind,
		&c.TeammateID,
		&c.SubjectID,
		&startedOn,
		&employeeRating,
		&c.Employee.PrivateNotes,
		&c.Employee.PersonalAlignment,
		&employeeEnergy,
		&employeeCompletedAt,
		&managerRating,
		&c.Manager.PrivateNotes,
		&managerCompletedAt,
		&managerCompletedBy,
		&officialRating,
		&c.Official.SharedNotes,
		&officialCompletedAt,
		&officialFinalizedBy,
		&snapshotID,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, checkin.ErrCheckInNotFound
		}
		return nil, err
	}

	c.Kind = checkin.Kind(kind)
	c.StartedOn = dateOnly(startedOn)
	c.Employee.Rating = stringPtr(employeeRating)
	c.Employee.ActualEnergyPercentage = intPtr(employeeEnergy)
	c.Employee.CompletedAt = timePtr(employeeCompletedAt)
	c.Manager.Rating = stringPtr(managerRating)
	c.Manager.CompletedAt = timePtr(managerCompletedAt)
	c.Manager.CompletedByID = stringPtr(managerCompletedBy)
	c.Official.Rating = stringPtr(officialRating)
	c.Official.CompletedAt = timePtr(officialCompletedAt)
	c.Official.FinalizedByID = stringPtr(officialFinalizedBy)
	c.SnapshotID = stringPtr(snapshotID)
	return &c, nil
}

func translateCheckInPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return checkin.ErrCheckInNotFound
	}

	if pgErr, ok := asPgError(err); ok {
		switch pgErr.Code {
		case uniqueViolationCode:
			return checkin.ErrOpenCheckInExists
		case foreignKeyViolationCode:
			if pgErr.ConstraintName == "check_ins_snapshot_id_fkey" {
				return checkin.ErrSnapshotLinkFailed
			}
			return checkin.ErrInvalidTeammateID
		case checkViolationCode:
			switch pgErr.ConstraintName {
			case "check_ins_finalize_ready_check":
				return checkin.ErrNotReady
			case "check_ins_snapshot_finalized_check":
				return checkin.ErrNotFinalized
			default:
				return checkin.ErrInvalidEnergy
			}
		}
	}
	return err
}
