package checkin

import "context"

// Repository はチェックイン永続化の抽象です。
type Repository interface {
	Create(ctx context.Context, checkIn *CheckIn) (*CheckIn, error)
	// Update は未確定のチェックインのみ更新します。確定済みの場合は ErrAlreadyFinalized です。
	Update(ctx context.Context, checkIn *CheckIn) (*CheckIn, error)
	FindByID(ctx context.Context, id string) (*CheckIn, error)
	// FindByIDForUpdate は行ロックを取得して取得します。
	FindByIDForUpdate(ctx context.Context, id string) (*CheckIn, error)
	// FindOpen は未確定のチェックインを返します。存在しない場合は ErrCheckInNotFound です。
	FindOpen(ctx context.Context, teammateID string, kind Kind, subjectID string) (*CheckIn, error)
	// FindOpenPosition はポジション対象を問わず未確定のポジションチェックインを返します。
	FindOpenPosition(ctx context.Context, teammateID string) (*CheckIn, error)
	// ListByTeammate は開始日・作成日時の昇順で返します。
	ListByTeammate(ctx context.Context, teammateID string) ([]*CheckIn, error)
	// LinkSnapshot は確定済みかつ未リンクのチェックインにスナップショットを関連付けます。
	LinkSnapshot(ctx context.Context, ids []string, snapshotID string) error
}
