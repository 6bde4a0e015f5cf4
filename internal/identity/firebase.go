package identity

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
)

// FirebaseProvider verifies Firebase ID tokens. A user is admin-equivalent when the
// token or the user record carries admin=true or role="admin" as a custom claim.
type FirebaseProvider struct {
	client *auth.Client
}

func NewFirebaseProvider(ctx context.Context, projectID string) (*FirebaseProvider, error) {
	if projectID == "" {
		return nil, errors.New("FIREBASE_PROJECT_ID is not set")
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, err
	}
	return &FirebaseProvider{client: client}, nil
}

func (p *FirebaseProvider) Verify(ctx context.Context, token string) (*Actor, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	tok, err := p.client.VerifyIDToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	actor := &Actor{UID: tok.UID, Admin: isAdmin(tok.Claims)}
	if name, ok := tok.Claims["name"].(string); ok {
		actor.DisplayName = name
	}
	if pic, ok := tok.Claims["picture"].(string); ok {
		actor.PhotoURL = strPtrOrNil(pic)
	}
	return actor, nil
}

func (p *FirebaseProvider) Lookup(ctx context.Context, uid string) (*Actor, error) {
	if uid == "" {
		return nil, ErrUserNotFound
	}
	user, err := p.client.GetUser(ctx, uid)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &Actor{
		UID:         user.UID,
		DisplayName: user.DisplayName,
		PhotoURL:    strPtrOrNil(user.PhotoURL),
		Admin:       isAdmin(user.CustomClaims),
	}, nil
}

func isAdmin(claims map[string]interface{}) bool {
	if v, ok := claims["admin"].(bool); ok && v {
		return true
	}
	role, _ := claims["role"].(string)
	return role == "admin"
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
