package management

import "github.com/ogurasousui/checkin-ledger/internal/core/fault"

var (
	ErrInvalidTeammateID = fault.Validation("management: invalid teammate id")
	ErrInvalidAbilityID  = fault.Validation("management: invalid ability id")
	ErrInvalidLevel      = fault.Validation("management: milestone level must be positive")
	ErrInvalidDate       = fault.Validation("management: invalid date")
	ErrMissingActor      = fault.Validation("management: actor is required")
	ErrNotActive         = fault.Precondition("management: teammate is not active")
)
