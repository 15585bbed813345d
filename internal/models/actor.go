package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole scopes what a user may do in the review workflow.
type UserRole string

const (
	RoleAdmin    UserRole = "ADMIN"
	RoleReviewer UserRole = "REVIEWER"
	RoleEncoder  UserRole = "ENCODER"
)

// Actor identifies who performed an operation. ID 0 is the system actor
// used when no authenticated session exists.
type Actor struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SystemActor is the fallback actor for unauthenticated operations.
var SystemActor = Actor{ID: 0, Name: "System"}

// User is an account able to submit or review change requests.
type User struct {
	ID           int64      `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Active       bool       `db:"active" json:"active"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
}

// Actor derives the workflow actor identity from the account.
func (u *User) Actor() Actor {
	if u == nil {
		return SystemActor
	}
	return Actor{ID: u.ID, Name: u.FullName}
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   int64    `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Actor derives the workflow actor identity from token claims.
func (c *JWTClaims) Actor() Actor {
	if c == nil {
		return SystemActor
	}
	return Actor{ID: c.UserID, Name: c.FullName}
}
