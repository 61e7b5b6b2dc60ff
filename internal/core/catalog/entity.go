package catalog

import "time"

// Company は会社エンティティです。
type Company struct {
	ID        string
	Name      string
	Code      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Position は会社内のポジションです。
type Position struct {
	ID        string
	CompanyID string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Assignment は会社内のアサインメント（担当業務）です。
type Assignment struct {
	ID        string
	CompanyID string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RequiredAssignment はポジションが必須とするアサインメントです。
// Rank はポジション内の表示順で、同一ポジション内で一意です。
type RequiredAssignment struct {
	PositionID   string
	AssignmentID string
	Rank         int
	MinEnergy    *int
	MaxEnergy    *int
	UpdatedAt    time.Time
}
