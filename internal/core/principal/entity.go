package principal

import "time"

// Kind は操作者の種別を表します。
type Kind string

const (
	KindHuman  Kind = "human"
	KindSystem Kind = "system"
)

// Status は操作者の状態を表します。
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Principal はスナップショットの作成者となる操作者です。
type Principal struct {
	ID        string
	Email     string
	Name      string
	Kind      Kind
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}
