package checkin

// FieldGroup は権限判定の単位となるフィールド群です。
type FieldGroup string

const (
	FieldGroupEmployee FieldGroup = "employee"
	FieldGroupManager  FieldGroup = "manager"
	FieldGroupOfficial FieldGroup = "official"
)

// Authorizer は操作者がチェックインのフィールド群を編集できるかを判定します。
type Authorizer interface {
	Can(group FieldGroup, checkIn *CheckIn) bool
}

// AuthorizerFunc は関数を Authorizer として扱います。
type AuthorizerFunc func(group FieldGroup, checkIn *CheckIn) bool

// Can は f を呼び出します。
func (f AuthorizerFunc) Can(group FieldGroup, checkIn *CheckIn) bool {
	return f(group, checkIn)
}
