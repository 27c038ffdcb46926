package core

import (
	"regexp"
	"strings"
)

// Matches reports whether a transaction description belongs to the rule.
// A pattern written as /expr/ is a case-insensitive regular expression;
// anything else is a case-insensitive substring. An invalid expression
// matches nothing.
func (r RecurringRule) Matches(description string) bool {
	pattern := strings.TrimSpace(r.Pattern)
	if pattern == "" {
		return false
	}
	if len(pattern) > 2 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") {
		re, err := regexp.Compile("(?i)" + pattern[1:len(pattern)-1])
		if err != nil {
			return false
		}
		return re.MatchString(description)
	}
	return strings.Contains(strings.ToLower(description), strings.ToLower(pattern))
}
