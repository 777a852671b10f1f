package federation

import (
	"errors"
	"strings"
)

// ErrNotReadOnly is returned by ReadOnly for statements that may write.
var ErrNotReadOnly = errors.New("only a single SELECT or WITH statement is allowed")

// ReadOnly checks that sqlText is one statement starting with SELECT or
// WITH. Comments are skipped wherever they appear. It does not parse the
// statement, so a WITH ... DELETE still passes; RunReadOnly additionally
// runs the statement on a query-only connection.
func ReadOnly(sqlText string) error {
	body := strings.TrimSpace(skipComments(sqlText))
	if i := statementEnd(body); i >= 0 {
		if strings.TrimSpace(skipComments(body[i+1:])) != "" {
			return ErrNotReadOnly
		}
		body = body[:i]
	}
	word := body
	if i := strings.IndexFunc(body, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	}); i >= 0 {
		word = body[:i]
	}
	switch strings.ToUpper(word) {
	case "SELECT", "WITH":
		return nil
	}
	return ErrNotReadOnly
}

// skipComments drops leading whitespace, -- line comments and /* */ blocks.
func skipComments(s string) string {
	for {
		s = strings.TrimLeft(s, " \t\r\n")
		switch {
		case strings.HasPrefix(s, "--"):
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				return ""
			}
			s = s[i+1:]
		case strings.HasPrefix(s, "/*"):
			i := strings.Index(s[2:], "*/")
			if i < 0 {
				return ""
			}
			s = s[i+4:]
		default:
			return s
		}
	}
}

// statementEnd returns the index of the first ';' outside quotes and
// comments, or -1.
func statementEnd(s string) int {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '[':
			quote = ']'
		case c == '-' && strings.HasPrefix(s[i:], "--"):
			j := strings.IndexByte(s[i:], '\n')
			if j < 0 {
				return -1
			}
			i += j
		case c == '/' && strings.HasPrefix(s[i:], "/*"):
			j := strings.Index(s[i+2:], "*/")
			if j < 0 {
				return -1
			}
			i += j + 3
		case c == ';':
			return i
		}
	}
	return -1
}
