package auth

import (
	"errors"
	"regexp"
)

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrInvalidIdentifier is returned for table or column names that cannot be
// spliced into SQL text as-is.
var ErrInvalidIdentifier = errors.New("invalid identifier format")

// SanitizeIdentifier ensures an identifier contains only safe characters.
func SanitizeIdentifier(identifier string) (string, error) {
	if !identPattern.MatchString(identifier) {
		return "", ErrInvalidIdentifier
	}
	return identifier, nil
}

func sanitizeAll(identifiers ...string) error {
	for _, id := range identifiers {
		if _, err := SanitizeIdentifier(id); err != nil {
			return err
		}
	}
	return nil
}
