package server

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	minDisplayName = 2
	maxDisplayName = 20
)

var profanityPattern = regexp.MustCompile(`(?i)(fuck|shit|bitch)`)

// NormalizeDisplayName trims name, checks its length and masks profanity.
func NormalizeDisplayName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < minDisplayName || n > maxDisplayName {
		return "", false
	}

	return profanityPattern.ReplaceAllStringFunc(name, func(word string) string {
		return strings.Repeat("*", len(word))
	}), true
}
