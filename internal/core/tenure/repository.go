package tenure

import (
	"context"
	"time"
)

// Repository は保有期間永続化の抽象です。
type Repository interface {
	// LockHolder はチームメイト単位で書き込みを直列化します。
	LockHolder(ctx context.Context, teammateID string) error
	// FindOpen は未終了の保有期間を返します。存在しない場合は ErrTenureNotFound です。
	FindOpen(ctx context.Context, teammateID string, kind SubjectKind, subjectID string) (*Tenure, error)
	// FindOpenPosition は未終了の雇用（ポジション）保有期間を返します。
	FindOpenPosition(ctx context.Context, teammateID string) (*Tenure, error)
	FindByID(ctx context.Context, id string) (*Tenure, error)
	ListOpen(ctx context.Context, teammateID string) ([]*Tenure, error)
	// ListByTeammate は開始日・作成日時の昇順で全保有期間を返します。
	ListByTeammate(ctx context.Context, teammateID string) ([]*Tenure, error)
	Create(ctx context.Context, tenure *Tenure) (*Tenure, error)
	// Close は未終了の保有期間を終了します。終了済みの場合は ErrAlreadyClosed です。
	Close(ctx context.Context, id string, endedOn time.Time, officialRating *string, updatedAt time.Time) (*Tenure, error)
}
