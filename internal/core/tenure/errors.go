package tenure

import "github.com/ogurasousui/checkin-ledger/internal/core/fault"

var (
	ErrInvalidEnergy          = fault.Validation("tenure: invalid energy percentage")
	ErrInvalidDate            = fault.Validation("tenure: invalid effective date")
	ErrMissingActor           = fault.Validation("tenure: actor is required")
	ErrInvalidTeammateID      = fault.Validation("tenure: invalid teammate id")
	ErrInvalidSubjectID       = fault.Validation("tenure: invalid subject id")
	ErrInvalidEmploymentKind  = fault.Validation("tenure: invalid employment kind")
	ErrTenureNotFound         = fault.NotFound("tenure: not found")
	ErrTeammateNotFound       = fault.NotFound("tenure: teammate not found")
	ErrAlreadyClosed          = fault.Precondition("tenure: already closed")
	ErrNoOpenPosition         = fault.Precondition("tenure: no open position tenure")
	ErrConcurrentModification = fault.Consistency("tenure: concurrent open tenure detected")
)
