package teammate

import "github.com/ogurasousui/checkin-ledger/internal/core/fault"

var (
	ErrInvalidID                 = fault.Validation("teammate: invalid id")
	ErrInvalidCompanyID          = fault.Validation("teammate: invalid company id")
	ErrInvalidEmployeeCode       = fault.Validation("teammate: invalid employee code")
	ErrInvalidStatus             = fault.Validation("teammate: invalid status")
	ErrInvalidPageSize           = fault.Validation("teammate: invalid page size")
	ErrInvalidPageToken          = fault.Validation("teammate: invalid page token")
	ErrInvalidDate               = fault.Validation("teammate: invalid effective date")
	ErrMissingActor              = fault.Validation("teammate: actor is required")
	ErrTeammateNotFound          = fault.NotFound("teammate: not found")
	ErrCompanyNotFound           = fault.NotFound("teammate: company not found")
	ErrAlreadyTerminated         = fault.Precondition("teammate: already terminated")
	ErrNotActive                 = fault.Precondition("teammate: not active")
	ErrEmployeeCodeAlreadyExists = fault.Consistency("teammate: employee code already exists")
)
