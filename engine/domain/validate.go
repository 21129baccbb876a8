package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Injection patterns: SQL and template fragments that never belong in a
// question about legislation.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(DROP|DELETE|INSERT|UPDATE|ALTER|EXEC|UNION)\b.*\b(TABLE|FROM|INTO|SELECT|SET)\b`),
	regexp.MustCompile(`(?i)(--|;)\s*(DROP|DELETE|SELECT)`),
	regexp.MustCompile(`(?i)\$\{.*\}`),
	regexp.MustCompile(`(?i)<\s*script\b`),
}

const (
	minQuestionLength = 3
	maxQuestionLength = 2000
)

// ValidateQuestion checks a user question before it enters the pipeline.
func ValidateQuestion(q string) error {
	text := strings.TrimSpace(q)

	n := utf8.RuneCountInString(text)
	if n < minQuestionLength {
		return NewValidationError("question", text, ErrQuestionTooShort)
	}
	if n > maxQuestionLength {
		return NewValidationError("question", string([]rune(text)[:64]), ErrQuestionTooLong)
	}

	for _, pat := range injectionPatterns {
		if pat.MatchString(text) {
			return NewValidationError("question", text, ErrQueryInjection)
		}
	}
	return nil
}
