package checkin

import "time"

// Kind はチェックインの評価対象の種別です。
type Kind string

const (
	KindPosition   Kind = "position"
	KindAssignment Kind = "assignment"
	KindAspiration Kind = "aspiration"
)

// State はチェックイン全体の状態です。
type State string

const (
	StateOpen                 State = "open"
	StateReadyForFinalization State = "ready_for_finalization"
	StateFinalized            State = "finalized"
)

// EmployeeSide は本人が入力する項目です。
type EmployeeSide struct {
	Rating                 *string
	PrivateNotes           string
	PersonalAlignment      string
	ActualEnergyPercentage *int
	CompletedAt            *time.Time
}

// ManagerSide はマネージャーが入力する項目です。
type ManagerSide struct {
	Rating        *string
	PrivateNotes  string
	CompletedAt   *time.Time
	CompletedByID *string
}

// OfficialSide は確定時に一度だけ設定される公式評価です。
type OfficialSide struct {
	Rating        *string
	SharedNotes   string
	CompletedAt   *time.Time
	FinalizedByID *string
}

// CheckIn は一回の評価サイクルを表します。
type CheckIn struct {
	ID         string
	Kind       Kind
	TeammateID string
	SubjectID  string
	StartedOn  time.Time
	Employee   EmployeeSide
	Manager    ManagerSide
	Official   OfficialSide
	SnapshotID *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EmployeeCompleted は本人側が完了済みかを返します。
func (c *CheckIn) EmployeeCompleted() bool {
	return c.Employee.CompletedAt != nil
}

// ManagerCompleted はマネージャー側が完了済みかを返します。
func (c *CheckIn) ManagerCompleted() bool {
	return c.Manager.CompletedAt != nil
}

// Finalized は公式評価が確定済みかを返します。
func (c *CheckIn) Finalized() bool {
	return c.Official.CompletedAt != nil
}

// ReadyForFinalization は双方が完了し、かつ未確定の場合に true を返します。
func (c *CheckIn) ReadyForFinalization() bool {
	return c.EmployeeCompleted() && c.ManagerCompleted() && !c.Finalized()
}

// State は現在の状態を返します。
func (c *CheckIn) State() State {
	switch {
	case c.Finalized():
		return StateFinalized
	case c.ReadyForFinalization():
		return StateReadyForFinalization
	default:
		return StateOpen
	}
}

// CompleteEmployeeSide は本人側を完了にします。完了済みの場合は何もしません。
func (c *CheckIn) CompleteEmployeeSide(at time.Time) (bool, error) {
	if c.Finalized() {
		return false, ErrAlreadyFinalized
	}
	if c.EmployeeCompleted() {
		return false, nil
	}
	completed := at
	c.Employee.CompletedAt = &completed
	return true, nil
}

// UncompleteEmployeeSide は本人側の完了を取り消します。
func (c *CheckIn) UncompleteEmployeeSide() (bool, error) {
	if c.Finalized() {
		return false, ErrAlreadyFinalized
	}
	if !c.EmployeeCompleted() {
		return false, nil
	}
	c.Employee.CompletedAt = nil
	return true, nil
}

// CompleteManagerSide はマネージャー側を完了にします。完了済みの場合は何もしません。
func (c *CheckIn) CompleteManagerSide(by string, at time.Time) (bool, error) {
	if c.Finalized() {
		return false, ErrAlreadyFinalized
	}
	if by == "" {
		return false, ErrMissingActor
	}
	if c.ManagerCompleted() {
		return false, nil
	}
	completed := at
	completedBy := by
	c.Manager.CompletedAt = &completed
	c.Manager.CompletedByID = &completedBy
	return true, nil
}

// UncompleteManagerSide はマネージャー側の完了を取り消します。
func (c *CheckIn) UncompleteManagerSide() (bool, error) {
	if c.Finalized() {
		return false, ErrAlreadyFinalized
	}
	if !c.ManagerCompleted() {
		return false, nil
	}
	c.Manager.CompletedAt = nil
	c.Manager.CompletedByID = nil
	return true, nil
}

// FinalizeInput は公式評価の確定入力です。
type FinalizeInput struct {
	Rating      string
	SharedNotes string
	FinalizedBy string
	At          time.Time
}

// Finalize は公式評価を確定します。確定は一度だけで、失敗時は何も変更しません。
func (c *CheckIn) Finalize(in FinalizeInput) error {
	if c.Finalized() {
		return ErrAlreadyFinalized
	}
	if !c.ReadyForFinalization() {
		return ErrNotReady
	}
	if in.FinalizedBy == "" {
		return ErrMissingActor
	}
	if err := ValidateRating(c.Kind, in.Rating); err != nil {
		return err
	}

	rating := in.Rating
	at := in.At
	by := in.FinalizedBy
	c.Official = OfficialSide{
		Rating:        &rating,
		SharedNotes:   in.SharedNotes,
		CompletedAt:   &at,
		FinalizedByID: &by,
	}
	return nil
}

// Clone はチェックインの複製を返します。
func (c *CheckIn) Clone() *CheckIn {
	if c == nil {
		return nil
	}
	out := *c
	out.Employee.Rating = cloneString(c.Employee.Rating)
	out.Employee.ActualEnergyPercentage = cloneInt(c.Employee.ActualEnergyPercentage)
	out.Employee.CompletedAt = cloneTime(c.Employee.CompletedAt)
	out.Manager.Rating = cloneString(c.Manager.Rating)
	out.Manager.CompletedAt = cloneTime(c.Manager.CompletedAt)
	out.Manager.CompletedByID = cloneString(c.Manager.CompletedByID)
	out.Official.Rating = cloneString(c.Official.Rating)
	out.Official.CompletedAt = cloneTime(c.Official.CompletedAt)
	out.Official.FinalizedByID = cloneString(c.Official.FinalizedByID)
	out.SnapshotID = cloneString(c.SnapshotID)
	return &out
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

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
