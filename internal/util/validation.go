package util

import (
	"regexp"
	"strconv"
)

var sessionIDRegex = regexp.MustCompile(`^[0-9a-f]{32}$`)

func IsValidSessionID(s string) bool {
	return sessionIDRegex.MatchString(s)
}

// IsNumeric reports whether s parses as a positive integer.
func IsNumeric(s string) bool {
	n, err := strconv.ParseInt(s, 10, 64)
	return err == nil && n > 0
}
