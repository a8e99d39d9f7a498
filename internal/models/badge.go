package models

import "strconv"

// BadgeLabel renders an unread count for a badge: empty for zero, "9+" above nine.
func BadgeLabel(n int) string {
	switch {
	case n <= 0:
		return ""
	case n > 9:
		return "9+"
	default:
		return strconv.Itoa(n)
	}
}
