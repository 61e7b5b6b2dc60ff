package checkin

var (
	assignmentRatings = map[string]struct{}{
		"working_to_meet": {},
		"meeting":         {},
		"exceeding":       {},
	}
	positionRatings = map[string]struct{}{
		"-3": {}, "-2": {}, "-1": {}, "0": {}, "1": {}, "2": {}, "3": {},
	}
)

// ValidateRating は種別ごとの評価値を検証します。
func ValidateRating(kind Kind, rating string) error {
	var allowed map[string]struct{}
	switch kind {
	case KindPosition:
		allowed = positionRatings
	case KindAssignment, KindAspiration:
		allowed = assignmentRatings
	default:
		return ErrInvalidKind
	}
	if _, ok := allowed[rating]; !ok {
		return ErrInvalidRating
	}
	return nil
}

// IsValidKind は種別が既知かを返します。
func IsValidKind(kind Kind) bool {
	switch kind {
	case KindPosition, KindAssignment, KindAspiration:
		return true
	default:
		return false
	}
}
