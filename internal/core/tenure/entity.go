package tenure

import "time"

// SubjectKind は保有対象の種別を表します。
type SubjectKind string

const (
	SubjectAssignment SubjectKind = "assignment"
	SubjectPosition   SubjectKind = "position"
)

// Tenure はチームメイトがアサインメントまたはポジションを保有している連続期間です。
type Tenure struct {
	ID               string
	TeammateID       string
	SubjectKind      SubjectKind
	SubjectID        string
	StartedOn        time.Time
	EndedOn          *time.Time
	EnergyPercentage *int
	OfficialRating   *string
	ManagerID        *string
	EmploymentKind   string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Open は期間が終了していない場合に true を返します。
func (t *Tenure) Open() bool {
	return t.EndedOn == nil
}

// ActiveOn は指定日に保有中であったかを返します。
// 終了日当日は含みません。開始日と終了日が同一のレコードはどの日にも保有中になりません。
func (t *Tenure) ActiveOn(day time.Time) bool {
	d := NormalizeDate(day)
	if d.Before(t.StartedOn) {
		return false
	}
	return t.EndedOn == nil || d.Before(*t.EndedOn)
}

// Energy は設定されたエネルギー割合を返します。未設定の場合は 0 です。
func (t *Tenure) Energy() int {
	if t.EnergyPercentage == nil {
		return 0
	}
	return *t.EnergyPercentage
}

// samePositionIdentity はポジション・マネージャー・雇用形態が一致するかを判定します。
func (t *Tenure) samePositionIdentity(positionID string, managerID *string, employmentKind string) bool {
	if t.SubjectID != positionID || t.EmploymentKind != employmentKind {
		return false
	}
	switch {
	case t.ManagerID == nil && managerID == nil:
		return true
	case t.ManagerID == nil || managerID == nil:
		return false
	default:
		return *t.ManagerID == *managerID
	}
}

// Transition は台帳操作の結果を表します。
type Transition struct {
	Closed  *Tenure
	Opened  *Tenure
	Current *Tenure
}

// Changed は永続化された変更があったかを返します。
func (t *Transition) Changed() bool {
	return t != nil && (t.Closed != nil || t.Opened != nil)
}
