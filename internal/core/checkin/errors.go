package checkin

import "github.com/ogurasousui/checkin-ledger/internal/core/fault"

var (
	ErrInvalidID          = fault.Validation("checkin: invalid id")
	ErrInvalidKind        = fault.Validation("checkin: invalid kind")
	ErrInvalidTeammateID  = fault.Validation("checkin: invalid teammate id")
	ErrInvalidSubjectID   = fault.Validation("checkin: invalid subject id")
	ErrInvalidRating      = fault.Validation("checkin: invalid rating")
	ErrInvalidEnergy      = fault.Validation("checkin: invalid actual energy percentage")
	ErrMissingActor       = fault.Validation("checkin: actor is required")
	ErrCheckInNotFound    = fault.NotFound("checkin: not found")
	ErrNotReady           = fault.Precondition("checkin: not ready for finalization")
	ErrAlreadyFinalized   = fault.Precondition("checkin: already finalized")
	ErrNotFinalized       = fault.Precondition("checkin: not finalized")
	ErrForbidden          = fault.Authorization("checkin: actor cannot edit these fields")
	ErrSnapshotLinkFailed = fault.Consistency("checkin: snapshot link did not match finalized check-ins")
	ErrOpenCheckInExists  = fault.Consistency("checkin: open check-in already exists")
)
