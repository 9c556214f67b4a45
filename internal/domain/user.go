package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
	UserStatusLocked   UserStatus = "locked"
)

// User is a person who can belong to one or more tenants.
type User struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	FirstName    string     `json:"first_name" db:"first_name"`
	LastName     string     `json:"last_name" db:"last_name"`
	Status       UserStatus `json:"status" db:"status"`
	FailedLogins int        `json:"-" db:"failed_logins"`
	LockedUntil  *time.Time `json:"-" db:"locked_until"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
}

// FullName joins first and last name, falling back to the email.
func (u *User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// IsLocked reports whether the account is locked at the given instant.
func (u *User) IsLocked(now time.Time) bool {
	return u.Status == UserStatusLocked && u.LockedUntil != nil && now.Before(*u.LockedUntil)
}
