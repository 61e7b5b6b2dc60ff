package tenure

import (
	"strings"
	"time"
)

// DateLayout は日付の文字列表現です。
const DateLayout = "2006-01-02"

// NormalizeDate は時刻を UTC の日付（0 時）へ丸めます。
func NormalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate は YYYY-MM-DD 形式の日付を解析します。
func ParseDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, ErrInvalidDate
	}
	t, err := time.ParseInLocation(DateLayout, trimmed, time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// FormatDate は日付を YYYY-MM-DD 形式で返します。
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatOptionalDate は nil を許容して日付を整形します。
func FormatOptionalDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := FormatDate(*t)
	return &s
}
