package checkin

// Completion は片側完了操作の前後比較の結果です。
type Completion string

const (
	CompletionNone         Completion = "none"
	CompletionEmployeeOnly Completion = "employee_only"
	CompletionManagerOnly  Completion = "manager_only"
	CompletionBoth         Completion = "both_complete"
)

// DetectCompletion は操作前後の状態から新たに成立した完了を判定します。
// 通知などの後続処理はこの結果だけを見て判断します。
func DetectCompletion(before, after *CheckIn) Completion {
	if after == nil {
		return CompletionNone
	}

	var wasEmployee, wasManager bool
	if before != nil {
		wasEmployee = before.EmployeeCompleted()
		wasManager = before.ManagerCompleted()
	}
	isEmployee := after.EmployeeCompleted()
	isManager := after.ManagerCompleted()

	switch {
	case isEmployee && isManager && !(wasEmployee && wasManager):
		return CompletionBoth
	case isEmployee && !wasEmployee:
		return CompletionEmployeeOnly
	case isManager && !wasManager:
		return CompletionManagerOnly
	default:
		return CompletionNone
	}
}
