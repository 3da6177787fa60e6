// Package validate provides text validation and sanitization for
// user-submitted content: question text, edit reasons, report reasons
// and issue tags.
package validate

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// String validation errors
var (
	ErrStringTooShort    = errors.New("string is too short")
	ErrStringTooLong     = errors.New("string is too long")
	ErrInvalidCharacters = errors.New("string contains invalid characters")
	ErrEmpty             = errors.New("string is empty")
)

// StringConstraints defines validation constraints for a string.
type StringConstraints struct {
	MinLength      int            // Minimum length in runes (0 = no minimum)
	MaxLength      int            // Maximum length in runes (0 = no maximum)
	AllowedPattern *regexp.Regexp // Optional regex pattern for allowed characters
	AllowEmpty     bool           // Whether empty strings are allowed
	TrimSpace      bool           // Whether to trim whitespace before validation
}

// String validates a string against the given constraints.
// Returns the validated (and optionally trimmed) string and an error if validation fails.
func String(s string, constraints StringConstraints) (string, error) {
	if constraints.TrimSpace {
		s = strings.TrimSpace(s)
	}

	if s == "" {
		if !constraints.AllowEmpty {
			return "", ErrEmpty
		}
		return s, nil
	}

	// Rune count, not byte count, so multibyte scripts get the full budget.
	length := utf8.RuneCountInString(s)

	if constraints.MinLength > 0 && length < constraints.MinLength {
		return "", fmt.Errorf("%w: got %d chars, need at least %d", ErrStringTooShort, length, constraints.MinLength)
	}
	if constraints.MaxLength > 0 && length > constraints.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrStringTooLong, length, constraints.MaxLength)
	}

	if constraints.AllowedPattern != nil && !constraints.AllowedPattern.MatchString(s) {
		return "", fmt.Errorf("%w: does not match required pattern", ErrInvalidCharacters)
	}

	if containsControlCharacters(s) {
		return "", fmt.Errorf("%w: control characters are not allowed", ErrInvalidCharacters)
	}

	return s, nil
}

// containsControlCharacters reports whether the string has control
// characters other than newline and tab.
func containsControlCharacters(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return true
		}
	}
	return false
}

// SanitizeHTML escapes HTML special characters so stored text renders as
// plain text when echoed back to clients.
func SanitizeHTML(s string) string {
	return html.EscapeString(s)
}

// tagPattern restricts issue tags to lowercase slugs.
var tagPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9\-]*$`)

// QuestionText validates and trims voter-submitted question text.
func QuestionText(text string, minLen, maxLen int) (string, error) {
	return String(text, StringConstraints{
		MinLength: minLen,
		MaxLength: maxLen,
		TrimSpace: true,
	})
}

// ReportReason validates and trims a report's free-text reason.
func ReportReason(reason string, maxLen int) (string, error) {
	return String(reason, StringConstraints{
		MinLength: 1,
		MaxLength: maxLen,
		TrimSpace: true,
	})
}

// Tag validates a single issue tag: non-empty lowercase slug, at most
// maxLen runes.
func Tag(tag string, maxLen int) (string, error) {
	return String(tag, StringConstraints{
		MinLength:      1,
		MaxLength:      maxLen,
		AllowedPattern: tagPattern,
		TrimSpace:      true,
	})
}
