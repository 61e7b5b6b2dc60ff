package finalization

import (
	"fmt"

	"github.com/ogurasousui/checkin-ledger/internal/core/checkin"
	"github.com/ogurasousui/checkin-ledger/internal/core/fault"
)

var (
	ErrInvalidRequest  = fault.Validation("finalization: invalid request")
	ErrCheckInMismatch = fault.Validation("finalization: check-in does not belong to the teammate or category")
)

// NotReadyError は確定の前提条件を満たさないチェックインを示します。
type NotReadyError struct {
	Category  Category
	CheckInID string
	Err       error
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("finalization: %s check-in %s is not ready: %v", e.Category, e.CheckInID, e.Err)
}

// Unwrap は原因のエラーを返します。
func (e *NotReadyError) Unwrap() error {
	if e.Err == nil {
		return checkin.ErrNotReady
	}
	return e.Err
}
