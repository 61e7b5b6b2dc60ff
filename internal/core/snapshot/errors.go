package snapshot

import "github.com/ogurasousui/checkin-ledger/internal/core/fault"

var (
	ErrInvalidID          = fault.Validation("snapshot: invalid id")
	ErrInvalidEmployeeID  = fault.Validation("snapshot: invalid employee id")
	ErrInvalidCreatorID   = fault.Validation("snapshot: invalid creator id")
	ErrInvalidCompanyID   = fault.Validation("snapshot: invalid company id")
	ErrInvalidChangeType  = fault.Validation("snapshot: invalid change type")
	ErrSnapshotNotFound   = fault.NotFound("snapshot: not found")
	ErrEmployeeNotFound   = fault.NotFound("snapshot: employee not found")
	ErrNotEligible        = fault.Precondition("snapshot: employee is not eligible for an initial snapshot")
	ErrImmutable          = fault.Consistency("snapshot: snapshots are append-only")
	ErrSystemActorMissing = fault.Consistency("snapshot: system actor could not be resolved")
)
