package models

import (
	"time"
)

type RefreshToken struct {
	ID        int64
	UserID    int64
	Token     string
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time

	// Terminal: a revoked token can never mint new pairs again
	Revoked bool
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// TokenPair issued by TokenManager on login, register, refresh or federated auth
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}
