package entity

import (
	"time"
)

type User struct {
	ID              int64
	Phone           string
	Email           string
	FullName        string
	Role            string
	Status          UserStatus
	PhoneVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProfileComplete reports whether the account holds more than the bare
// identity created on first login.
func (u User) ProfileComplete() bool {
	return u.Email != ""
}

type NewUser struct {
	ID       int64
	Phone    string
	Email    string
	FullName string
	Role     string
	Status   UserStatus
}
