package identity

import (
	"context"
	"errors"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUserNotFound = errors.New("user not found")
)

// Actor is an authenticated identity as seen by the messaging core.
type Actor struct {
	UID         string  `json:"uid"`
	DisplayName string  `json:"displayName"`
	PhotoURL    *string `json:"photoURL"`
	Admin       bool    `json:"-"`
}

// Provider is the external identity system. Verify authenticates a bearer credential;
// Lookup resolves a user id to its public identity.
type Provider interface {
	Verify(ctx context.Context, token string) (*Actor, error)
	Lookup(ctx context.Context, uid string) (*Actor, error)
}
