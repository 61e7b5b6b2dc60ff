package changes

import "github.com/ogurasousui/checkin-ledger/internal/core/fault"

var (
	ErrUnsupportedChangeType = fault.Validation("changes: unsupported change type")
	ErrMissingSnapshot       = fault.Validation("changes: snapshot is required")
	ErrMissingActor          = fault.Validation("changes: actor is required")
)
