package util

import (
	"regexp"
	"strconv"
	"strings"
)

var votesPattern = regexp.MustCompile(`^-?(?:\d{1,3}(?:[ ,]\d{3})+|\d+)$`)

// ParseVotes parses a vote count as reported by vendors: plain digits or
// digits grouped by commas/spaces. Negative counts parse but are reported
// as not ok so callers can clamp them.
func ParseVotes(input string) (int, bool) {
	s := strings.TrimSpace(strings.ReplaceAll(input, "\u00a0", " "))
	if s == "" || !votesPattern.MatchString(s) {
		return 0, false
	}
	s = strings.NewReplacer(",", "", " ", "").Replace(s)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	if n < 0 {
		return n, false
	}
	return n, true
}
