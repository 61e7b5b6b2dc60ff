package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/ogurasousui/checkin-ledger/internal/core/snapshot"
	pgdb "github.com/ogurasousui/checkin-ledger/internal/platform/db/postgres"
)

// MilestoneRepository はチームメイトの能力マイルストーン到達記録を読み書きします。
type MilestoneRepository struct {
	pool pgdb.Queryer
}

var _ snapshot.MilestoneReader = (*MilestoneRepository)(nil)

// NewMilestoneRepository は MilestoneRepository を生成します。
func NewMilestoneRepository(pool pgdb.Queryer) *MilestoneRepository {
	return &MilestoneRepository{pool: pool}
}

// ListMilestones はチームメイトのマイルストーン到達記録を到達日順に返します。
func (r *MilestoneRepository) ListMilestones(ctx context.Context, teammateID string) ([]snapshot.Milestone, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, `
        SELECT ability_id, milestone_level, certified_by_id, attained_on
          FROM teammate_milestones
         WHERE teammate_id = $1
         ORDER BY attained_on, milestone_level
    `, teammateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]snapshot.Milestone, 0)
	for rows.Next() {
		var (
			m           snapshot.Milestone
			certifiedBy sql.NullString
			attainedOn  time.Time
		)
		if err := rows.Scan(&m.AbilityID, &m.Level, &certifiedBy, &attainedOn); err != nil {
			return nil, err
		}
		m.CertifiedByID = stringPtr(certifiedBy)
		m.AttainedOn = dateOnly(attainedOn)
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// RecordMilestone はマイルストーン到達を記録します。同じ水準が既にあれば何もしません。
func (r *MilestoneRepository) RecordMilestone(ctx context.Context, teammateID string, m snapshot.Milestone, createdAt time.Time) error {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	_, err := exec.Exec(ctx, `
        INSERT INTO teammate_milestones (teammate_id, ability_id, milestone_level, certified_by_id, attained_on, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (teammate_id, ability_id, milestone_level) DO NOTHING
    `, teammateID, m.AbilityID, m.Level, nullableString(m.CertifiedByID), dateOnly(m.AttainedOn), createdAt)
	if err != nil {
		if pgErr, ok := asPgError(err); ok && pgErr.Code == foreignKeyViolationCode {
			return snapshot.ErrEmployeeNotFound
		}
		return err
	}
	return nil
}
