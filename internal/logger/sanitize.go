package logger

import (
	"strings"
	"unicode"
)

// Length limits applied to values copied from requests into log fields.
const (
	MaxPathLength          = 500
	MaxIdentityLength      = 128
	MaxErrorMessageLength  = 1000
	MaxGeneralStringLength = 2000
)

const truncatedMarker = "..."

// SanitizeString strips control characters and invalid UTF-8 from s and cuts it to
// at most maxLength bytes without splitting a rune. A non-positive maxLength means
// MaxGeneralStringLength.
func SanitizeString(s string, maxLength int) string {
	if s == "" {
		return ""
	}
	if maxLength <= 0 {
		maxLength = MaxGeneralStringLength
	}

	var b strings.Builder
	b.Grow(min(len(s), maxLength+len(truncatedMarker)))
	for _, r := range strings.ToValidUTF8(s, "") {
		if !loggable(r) {
			continue
		}
		if b.Len()+len(string(r)) > maxLength {
			b.WriteString(truncatedMarker)
			break
		}
		b.WriteRune(r)
	}
	return b.String()
}

func loggable(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return unicode.IsPrint(r)
}

// SanitizePath prepares a request path for logging.
func SanitizePath(path string) string {
	return SanitizeString(path, MaxPathLength)
}

// SanitizeIdentity prepares an external provider identity for logging.
func SanitizeIdentity(identity string) string {
	return SanitizeString(identity, MaxIdentityLength)
}

// SanitizeError returns err's message prepared for logging, or "" for nil.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error(), MaxErrorMessageLength)
}

// SanitizeEmail keeps the domain of an email address and masks the local part.
func SanitizeEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return SanitizeIdentity(email)
	}
	local := []rune(email[:at])
	return SanitizeIdentity(string(local[0]) + "***" + email[at:])
}
