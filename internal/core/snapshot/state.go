package snapshot

import (
	"sort"
	"time"

	"github.com/ogurasousui/checkin-ledger/internal/core/checkin"
	"github.com/ogurasousui/checkin-ledger/internal/core/tenure"
)

// StateTree はスナップショットに保存される評価状態です。日付は YYYY-MM-DD 形式の文字列で保持します。
type StateTree struct {
	Position    *PositionState    `json:"position,omitempty"`
	Assignments []AssignmentState `json:"assignments"`
	Abilities   []AbilityState    `json:"abilities"`
	Aspirations []AspirationState `json:"aspirations"`
}

// PositionState は雇用（ポジション）の状態です。
type PositionState struct {
	Current *PositionRecord `json:"current,omitempty"`
	Rated   *PositionRecord `json:"rated,omitempty"`
	CheckIn *CheckInRecord  `json:"check_in,omitempty"`
}

// PositionRecord はポジション保有期間の記録です。
type PositionRecord struct {
	PositionID     string  `json:"position_id"`
	ManagerID      *string `json:"manager_id,omitempty"`
	EmploymentKind string  `json:"employment_kind"`
	StartedOn      string  `json:"started_on"`
	EndedOn        *string `json:"ended_on,omitempty"`
	OfficialRating *string `json:"official_rating,omitempty"`
}

// AssignmentState はアサインメント 1 件の状態です。
type AssignmentState struct {
	AssignmentID                string            `json:"assignment_id"`
	AnticipatedEnergyPercentage *int              `json:"anticipated_energy_percentage,omitempty"`
	Current                     *AssignmentRecord `json:"current,omitempty"`
	Rated                       *AssignmentRecord `json:"rated,omitempty"`
	CheckIn                     *CheckInRecord    `json:"check_in,omitempty"`
}

// AssignmentRecord はアサインメント保有期間の記録です。
type AssignmentRecord struct {
	EnergyPercentage *int    `json:"energy_percentage,omitempty"`
	StartedOn        string  `json:"started_on"`
	EndedOn          *string `json:"ended_on,omitempty"`
	OfficialRating   *string `json:"official_rating,omitempty"`
}

// AbilityState は能力のマイルストーン到達状態です。
type AbilityState struct {
	AbilityID      string  `json:"ability_id"`
	MilestoneLevel int     `json:"milestone_level"`
	CertifiedByID  *string `json:"certified_by_id,omitempty"`
	AttainedOn     string  `json:"attained_on"`
}

// AspirationState は志向 1 件の状態です。
type AspirationState struct {
	AspirationID string            `json:"aspiration_id"`
	Rated        *AspirationRecord `json:"rated,omitempty"`
	CheckIn      *CheckInRecord    `json:"check_in,omitempty"`
}

// AspirationRecord は確定済みの志向評価です。
type AspirationRecord struct {
	OfficialRating string `json:"official_rating"`
	RatedOn        string `json:"rated_on"`
}

// CheckInRecord は未確定チェックインの入力内容です。
type CheckInRecord struct {
	EmployeeRating         *string `json:"employee_rating,omitempty"`
	EmployeePrivateNotes   string  `json:"employee_private_notes,omitempty"`
	PersonalAlignment      string  `json:"personal_alignment,omitempty"`
	ActualEnergyPercentage *int    `json:"actual_energy_percentage,omitempty"`
	EmployeeCompleted      bool    `json:"employee_completed"`
	ManagerRating          *string `json:"manager_rating,omitempty"`
	ManagerPrivateNotes    string  `json:"manager_private_notes,omitempty"`
	ManagerCompleted       bool    `json:"manager_completed"`
	OfficialRating         *string `json:"official_rating,omitempty"`
	SharedNotes            string  `json:"shared_notes,omitempty"`
}

// Assignment はアサインメント ID で状態を検索します。
func (t StateTree) Assignment(id string) (AssignmentState, bool) {
	for _, a := range t.Assignments {
		if a.AssignmentID == id {
			return a, true
		}
	}
	return AssignmentState{}, false
}

// Aspiration は志向 ID で状態を検索します。
func (t StateTree) Aspiration(id string) (AspirationState, bool) {
	for _, a := range t.Aspirations {
		if a.AspirationID == id {
			return a, true
		}
	}
	return AspirationState{}, false
}

// Normalize はスライスを非 nil にし、キー順に並べ替えます。
func (t *StateTree) Normalize() {
	if t.Assignments == nil {
		t.Assignments = []AssignmentState{}
	}
	if t.Abilities == nil {
		t.Abilities = []AbilityState{}
	}
	if t.Aspirations == nil {
		t.Aspirations = []AspirationState{}
	}
	sort.SliceStable(t.Assignments, func(i, j int) bool { return t.Assignments[i].AssignmentID < t.Assignments[j].AssignmentID })
	sort.SliceStable(t.Abilities, func(i, j int) bool { return t.Abilities[i].AbilityID < t.Abilities[j].AbilityID })
	sort.SliceStable(t.Aspirations, func(i, j int) bool { return t.Aspirations[i].AspirationID < t.Aspirations[j].AspirationID })
}

// PositionRecordFrom は保有期間からポジション記録を作ります。
func PositionRecordFrom(t *tenure.Tenure) *PositionRecord {
	if t == nil {
		return nil
	}
	return &PositionRecord{
		PositionID:     t.SubjectID,
		ManagerID:      cloneString(t.ManagerID),
		EmploymentKind: t.EmploymentKind,
		StartedOn:      tenure.FormatDate(t.StartedOn),
		EndedOn:        tenure.FormatOptionalDate(t.EndedOn),
		OfficialRating: cloneString(t.OfficialRating),
	}
}

// AssignmentRecordFrom は保有期間からアサインメント記録を作ります。
func AssignmentRecordFrom(t *tenure.Tenure) *AssignmentRecord {
	if t == nil {
		return nil
	}
	return &AssignmentRecord{
		EnergyPercentage: cloneInt(t.EnergyPercentage),
		StartedOn:        tenure.FormatDate(t.StartedOn),
		EndedOn:          tenure.FormatOptionalDate(t.EndedOn),
		OfficialRating:   cloneString(t.OfficialRating),
	}
}

// CheckInRecordFrom はチェックインの入力内容を記録に写します。
func CheckInRecordFrom(c *checkin.CheckIn) *CheckInRecord {
	if c == nil {
		return nil
	}
	return &CheckInRecord{
		EmployeeRating:         cloneString(c.Employee.Rating),
		EmployeePrivateNotes:   c.Employee.PrivateNotes,
		PersonalAlignment:      c.Employee.PersonalAlignment,
		ActualEnergyPercentage: cloneInt(c.Employee.ActualEnergyPercentage),
		EmployeeCompleted:      c.EmployeeCompleted(),
		ManagerRating:          cloneString(c.Manager.Rating),
		ManagerPrivateNotes:    c.Manager.PrivateNotes,
		ManagerCompleted:       c.ManagerCompleted(),
		OfficialRating:         cloneString(c.Official.Rating),
		SharedNotes:            c.Official.SharedNotes,
	}
}

func formatDay(t time.Time) string {
	return tenure.FormatDate(t.UTC())
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
