package catalog

import "github.com/ogurasousui/checkin-ledger/internal/core/fault"

var (
	// ErrCompanyNotFound は会社が存在しない場合に返却されます。
	ErrCompanyNotFound = fault.NotFound("catalog: company not found")
	// ErrPositionNotFound はポジションが存在しない場合に返却されます。
	ErrPositionNotFound = fault.NotFound("catalog: position not found")
	// ErrAssignmentNotFound はアサインメントが存在しない場合に返却されます。
	ErrAssignmentNotFound = fault.NotFound("catalog: assignment not found")
	// ErrRequirementNotFound は必須アサインメントが存在しない場合に返却されます。
	ErrRequirementNotFound = fault.NotFound("catalog: required assignment not found")
	// ErrCodeAlreadyExists はコード重複時に返却されます。
	ErrCodeAlreadyExists = fault.Consistency("catalog: code already exists")
	// ErrRequirementExists は必須アサインメント重複時に返却されます。
	ErrRequirementExists = fault.Consistency("catalog: required assignment already exists")
	// ErrCompanyMismatch はポジションとアサインメントの会社が異なる場合に返却されます。
	ErrCompanyMismatch = fault.Precondition("catalog: position and assignment belong to different companies")
	ErrInvalidID          = fault.Validation("catalog: invalid id")
	ErrInvalidName        = fault.Validation("catalog: invalid name")
	ErrInvalidCode        = fault.Validation("catalog: invalid code")
	ErrInvalidTitle       = fault.Validation("catalog: invalid title")
	ErrInvalidRank        = fault.Validation("catalog: invalid rank")
	ErrInvalidEnergyRange = fault.Validation("catalog: invalid energy range")
)
