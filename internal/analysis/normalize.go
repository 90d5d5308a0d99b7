package analysis

import "regexp"

var boldPattern = regexp.MustCompile(`\*\*(.*?)\*\*`)

// Normalize strips markdown bold delimiters and keeps the enclosed text.
// It repeats until no pair remains so the result is stable under reapplication.
func Normalize(text string) string {
	for {
		next := boldPattern.ReplaceAllString(text, "$1")
		if next == text {
			return next
		}
		text = next
	}
}
