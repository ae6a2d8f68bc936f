package models

import (
	"time"
)

const (
	AuthProviderEmail  = "email"
	AuthProviderGoogle = "google"
)

type User struct {
	ID        int64
	CreatedAt time.Time
	UpdatedAt time.Time

	Email string

	// Nil for accounts that only ever signed in through a provider
	HashedPassword *string

	FirstName string
	LastName  string
	Avatar    *string

	IsActive        bool
	IsEmailVerified bool

	// Federation linkage
	AuthProvider  string
	GoogleID      *string
	GooglePicture *string

	// Password recovery state
	OTPCode           *string
	OTPExpiresAt      *time.Time
	OTPAttempts       int
	OTPLastRequestAt  *time.Time
	OTPLastVerifiedAt *time.Time
}

func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// PublicUser is the account projection returned from auth endpoints
type PublicUser struct {
	ID              int64     `json:"id"`
	Email           string    `json:"email"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Avatar          *string   `json:"avatar,omitempty"`
	IsActive        bool      `json:"is_active"`
	IsEmailVerified bool      `json:"is_email_verified"`
	AuthProvider    string    `json:"auth_provider"`
	CreatedAt       time.Time `json:"created_at"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:              u.ID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Avatar:          u.Avatar,
		IsActive:        u.IsActive,
		IsEmailVerified: u.IsEmailVerified,
		AuthProvider:    u.AuthProvider,
		CreatedAt:       u.CreatedAt,
	}
}
