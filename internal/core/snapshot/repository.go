package snapshot

import "context"

// Repository はスナップショット永続化の抽象です。更新と削除の操作は持ちません。
type Repository interface {
	// LockEmployee は従業員単位でスナップショット生成を直列化します。
	LockEmployee(ctx context.Context, employeeID string) error
	Create(ctx context.Context, snapshot *Snapshot) (*Snapshot, error)
	FindByID(ctx context.Context, id string) (*Snapshot, error)
	// Latest は最新のスナップショットを返します。存在しない場合は ErrSnapshotNotFound です。
	Latest(ctx context.Context, employeeID string) (*Snapshot, error)
	// History は新しい順に全スナップショットを返します。
	History(ctx context.Context, employeeID string) ([]*Snapshot, error)
	// Previous は同じ従業員の直前のスナップショットを返します。存在しない場合は ErrSnapshotNotFound です。
	Previous(ctx context.Context, snapshot *Snapshot) (*Snapshot, error)
}
