package teammate

import "time"

// Status はチームメイトの雇用状態を表します。
type Status string

const (
	StatusActive     Status = "active"
	StatusTerminated Status = "terminated"
)

// Teammate は評価対象となる従業員です。
type Teammate struct {
	ID           string
	CompanyID    string
	EmployeeCode string
	ManagerID    *string
	Status       Status
	HiredOn      *time.Time
	TerminatedOn *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Active は在籍中かを返します。
func (t *Teammate) Active() bool {
	return t.Status == StatusActive
}
