package phone

import (
	"regexp"
	"strings"
)

const (
	// CountryPrefix is the E.164 prefix the telephony provider expects.
	CountryPrefix = "+46"

	// DefaultExtension is appended by the switchboard to numbers calling the café's 013-number.
	DefaultExtension = "239927"

	// DefaultMaxLength is +46 followed by 9 digits.
	DefaultMaxLength = 12
)

var validNumber = regexp.MustCompile(`^(\+46|0)[0-9]{7,9}$`)

// Format makes sure a number carries the country prefix.
// Numbers already starting with '+' are returned as-is; otherwise the
// national trunk digit is replaced by +46. Empty input stays empty.
func Format(p string) string {
	if p == "" || p[0] == '+' {
		return p
	}
	return CountryPrefix + p[1:]
}

// RemoveAreaCode turns +46... into the national 0... form used in profiles.
func RemoveAreaCode(p string) string {
	if !strings.HasPrefix(p, CountryPrefix) {
		return p
	}
	return "0" + p[len(CountryPrefix):]
}

// RemoveExtension strips ext from p when p is longer than maxLen and ends with it.
func RemoveExtension(p, ext string, maxLen int) string {
	if ext != "" && len(p) > maxLen && strings.HasSuffix(p, ext) {
		return p[:len(p)-len(ext)]
	}
	return p
}

// IsValid reports whether p looks like a Swedish mobile or landline number.
func IsValid(p string) bool {
	return validNumber.MatchString(p)
}
