package principal

import "github.com/ogurasousui/checkin-ledger/internal/core/fault"

var (
	// ErrPrincipalNotFound は操作者が存在しない場合に返却されます。
	ErrPrincipalNotFound = fault.NotFound("principal: not found")
	// ErrEmailAlreadyExists はメールアドレス重複時に返却されます。
	ErrEmailAlreadyExists = fault.Consistency("principal: email already exists")
	// ErrInvalidEmail はメールアドレスが不正な場合に返却されます。
	ErrInvalidEmail = fault.Validation("principal: invalid email")
	// ErrInvalidName は名前が不正な場合に返却されます。
	ErrInvalidName = fault.Validation("principal: invalid name")
	// ErrInvalidID は ID が不正な場合に返却されます。
	ErrInvalidID = fault.Validation("principal: invalid id")
	// ErrSystemActorConflict はシステム操作者のメールアドレスが人間の操作者に使われている場合に返却されます。
	ErrSystemActorConflict = fault.Consistency("principal: system actor email belongs to a human principal")
)
