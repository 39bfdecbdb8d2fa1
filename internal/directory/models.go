package directory

import "strings"

// Profile is the subset of a user's profile the phone router needs.
type Profile struct {
	UserID      int64    `json:"user_id" db:"user_id"`
	FirstName   string   `json:"first_name" db:"first_name"`
	LastName    string   `json:"last_name" db:"last_name"`
	MobilePhone string   `json:"mobile_phone" db:"mobile_phone"`
	Groups      []string `json:"groups"`
}

// Phones returns the mobile numbers of profiles in order; empty numbers are kept
// so callers decide how to treat them.
func Phones(ps []Profile) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.MobilePhone)
	}
	return out
}

// DisplayGroupName hides the leading underscore used for internal groups.
func DisplayGroupName(name string) string {
	return strings.TrimPrefix(name, "_")
}
