// Package email derives human-readable names from email addresses for
// records where no display name was provided.
package email

import (
	"strings"
	"unicode"
)

// DisplayName builds a presentable name from the address's local part:
// "jo.van-dam@example.org" becomes "Jo Van Dam". Addresses with an empty or
// separator-only local part fall back to the address itself.
func DisplayName(address string) string {
	localPart := address
	if at := strings.IndexByte(address, '@'); at > 0 {
		localPart = address[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return address
	}

	for i, part := range parts {
		parts[i] = capitalize(part)
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
