package snapshot

import "time"

// ChangeType はスナップショットを生成した変更の種別です。
type ChangeType string

const (
	ChangePositionTenure          ChangeType = "position_tenure"
	ChangeAssignmentManagement    ChangeType = "assignment_management"
	ChangeMilestoneManagement     ChangeType = "milestone_management"
	ChangeAspirationManagement    ChangeType = "aspiration_management"
	ChangeBulkCheckInFinalization ChangeType = "bulk_check_in_finalization"
	ChangeEmploymentTermination   ChangeType = "employment_termination"
)

// Valid は既知の種別かを返します。
func (c ChangeType) Valid() bool {
	switch c {
	case ChangePositionTenure, ChangeAssignmentManagement, ChangeMilestoneManagement,
		ChangeAspirationManagement, ChangeBulkCheckInFinalization, ChangeEmploymentTermination:
		return true
	default:
		return false
	}
}

// RequestContext はスナップショットを生成したリクエストの監査情報です。
type RequestContext struct {
	ActorID   string    `json:"actor_id"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	ClientIP  string    `json:"client_ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// Snapshot はある時点のチームメイトの評価状態の不変な記録です。
type Snapshot struct {
	ID             string
	EmployeeID     string
	CreatorID      string
	CompanyID      string
	ChangeType     ChangeType
	Reason         string
	EffectiveDate  time.Time
	RequestContext RequestContext
	StateTree      StateTree
	CreatedAt      time.Time
}
