package observability

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// PIILevel controls how user identifiers and free text appear in logs and spans.
type PIILevel string

const (
	// PIILevelNone redacts everything
	PIILevelNone PIILevel = "none"
	// PIILevelHashed replaces identifiers with salted hashes
	PIILevelHashed PIILevel = "hashed"
	// PIILevelFull logs values as they are
	PIILevelFull PIILevel = "full"
)

var (
	emailPattern      = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phonePattern      = regexp.MustCompile(`\+?\b\d{3}[-.\s]?\d{3}[-.\s]?\d{3,4}\b`)
	creditCardPattern = regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`)
)

type Sanitizer struct {
	level PIILevel
	salt  string
}

// NewSanitizer returns a sanitizer for level. Unknown levels behave as hashed.
func NewSanitizer(level, salt string) *Sanitizer {
	l := PIILevel(strings.ToLower(strings.TrimSpace(level)))
	switch l {
	case PIILevelNone, PIILevelHashed, PIILevelFull:
	default:
		l = PIILevelHashed
	}
	return &Sanitizer{level: l, salt: salt}
}

func (s *Sanitizer) Level() PIILevel {
	return s.level
}

// UserID hides a user id according to the level.
func (s *Sanitizer) UserID(userID string) string {
	if userID == "" {
		return ""
	}
	switch s.level {
	case PIILevelFull:
		return userID
	case PIILevelNone:
		return "[REDACTED]"
	default:
		return s.hash(userID)
	}
}

// Text masks emails, phone and card numbers inside free text such as query strings.
func (s *Sanitizer) Text(input string) string {
	switch s.level {
	case PIILevelFull:
		return input
	case PIILevelNone:
		if input == "" {
			return ""
		}
		return "[REDACTED]"
	}

	result := creditCardPattern.ReplaceAllString(input, "[CC:REDACTED]")
	result = emailPattern.ReplaceAllStringFunc(result, func(match string) string {
		return "[EMAIL:" + s.hash(match) + "]"
	})
	return phonePattern.ReplaceAllStringFunc(result, func(match string) string {
		return "[PHONE:" + s.hash(match) + "]"
	})
}

// hash returns the first 8 hex characters of the salted SHA-256.
func (s *Sanitizer) hash(data string) string {
	sum := sha256.Sum256([]byte(data + s.salt))
	return hex.EncodeToString(sum[:])[:8]
}
