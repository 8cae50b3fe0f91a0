package models

import (
	"strings"
	"time"
)

// DefaultRole is granted to every locally registered user.
const DefaultRole = "ROLE_USER"

// User is a locally registered account. It is the identity source behind
// username/password login; the token core only ever sees the Principal.
type User struct {
	ID           string
	UserName     string
	DisplayName  string
	PasswordHash []byte
	Roles        []string
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// Principal returns the verified identity handed to the token core.
func (u *User) Principal() Principal {
	return Principal{
		UserID:      u.ID,
		DisplayName: u.DisplayName,
		Roles:       append([]string(nil), u.Roles...),
	}
}

// JoinRoles serializes roles the way they are stored and signed: comma-joined.
func JoinRoles(roles []string) string {
	return strings.Join(roles, ",")
}

// SplitRoles is the inverse of JoinRoles. Empty input yields no roles.
func SplitRoles(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	roles := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			roles = append(roles, p)
		}
	}
	return roles
}
