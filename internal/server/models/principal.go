package models

// Principal is an authenticated caller: produced by an identity source at
// login and reconstructed from access token claims on every request.
type Principal struct {
	UserID      string
	DisplayName string
	Roles       []string
}

// HasRole reports whether the principal carries role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}
