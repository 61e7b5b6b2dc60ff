package teammate

import "context"

// Repository はチームメイト永続化の抽象です。
type Repository interface {
	Create(ctx context.Context, teammate *Teammate) (*Teammate, error)
	Update(ctx context.Context, teammate *Teammate) (*Teammate, error)
	FindByID(ctx context.Context, id string) (*Teammate, error)
	// FindByIDForUpdate は行ロックを取得して読み取ります。
	FindByIDForUpdate(ctx context.Context, id string) (*Teammate, error)
	FindByCompanyAndCode(ctx context.Context, companyID, employeeCode string) (*Teammate, error)
	List(ctx context.Context, filter ListFilter) ([]*Teammate, string, error)
}

// ListFilter は一覧取得用フィルタです。
type ListFilter struct {
	CompanyID string
	Status    *Status
	Limit     int
	Offset    int
}
