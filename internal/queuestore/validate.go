package queuestore

import "regexp"

var accountIDRegexp = regexp.MustCompile(accountIDPattern)

// ValidAccountID reports whether id is exactly 17 ASCII digits.
func ValidAccountID(id string) bool {
	return accountIDRegexp.MatchString(id)
}
