// Package fault はドメインエラーの分類を提供します。
//
// 各パッケージのセンチネルエラーはここで定義された分類のいずれかに属し、
// errors.Is でセンチネル自身と分類の両方を判定できます。
package fault

import "errors"

var (
	// ErrValidation は入力の形式や範囲が不正な場合の分類です。
	ErrValidation = errors.New("validation error")
	// ErrPrecondition は要求された遷移の前提条件を満たさない場合の分類です。
	ErrPrecondition = errors.New("precondition failed")
	// ErrAuthorization は操作者が対象フィールド群の権限を持たない場合の分類です。
	ErrAuthorization = errors.New("not authorized")
	// ErrConsistency はコミット時に不変条件違反を検出した場合の分類です。
	ErrConsistency = errors.New("consistency violation")
	// ErrNotFound は参照先が存在しない場合の分類です。
	ErrNotFound = errors.New("not found")
)

type classified struct {
	msg   string
	class error
}

func (e *classified) Error() string {
	return e.msg
}

func (e *classified) Is(target error) bool {
	return target == e.class
}

// Validation は入力不正に分類されるセンチネルを生成します。
func Validation(msg string) error {
	return &classified{msg: msg, class: ErrValidation}
}

// Precondition は前提条件違反に分類されるセンチネルを生成します。
func Precondition(msg string) error {
	return &classified{msg: msg, class: ErrPrecondition}
}

// Authorization は権限不足に分類されるセンチネルを生成します。
func Authorization(msg string) error {
	return &classified{msg: msg, class: ErrAuthorization}
}

// Consistency は整合性違反に分類されるセンチネルを生成します。
func Consistency(msg string) error {
	return &classified{msg: msg, class: ErrConsistency}
}

// NotFound は未検出に分類されるセンチネルを生成します。
func NotFound(msg string) error {
	return &classified{msg: msg, class: ErrNotFound}
}

// ClassOf は err が属する分類を返します。分類されない場合は nil を返します。
func ClassOf(err error) error {
	for _, class := range []error{ErrValidation, ErrPrecondition, ErrAuthorization, ErrConsistency, ErrNotFound} {
		if errors.Is(err, class) {
			return class
		}
	}
	return nil
}
