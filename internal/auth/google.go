package auth

import (
	"context"
	"fmt"

	"google.golang.org/api/idtoken"
)

// GoogleIdentity is the subset of a verified Google ID token the service uses.
type GoogleIdentity struct {
	GoogleID string
	Email    string
}

// GoogleVerifier checks a Google ID token and returns the identity it asserts.
type GoogleVerifier interface {
	Verify(ctx context.Context, token string) (*GoogleIdentity, error)
}

type googleVerifier struct {
	clientID string
}

// NewGoogleVerifier validates tokens against Google's published keys,
// accepting only tokens minted for the given OAuth client.
func NewGoogleVerifier(clientID string) GoogleVerifier {
	return &googleVerifier{clientID: clientID}
}

func (v *googleVerifier) Verify(ctx context.Context, token string) (*GoogleIdentity, error) {
	payload, err := idtoken.Validate(ctx, token, v.clientID)
	if err != nil {
		return nil, fmt.Errorf("validate google id token: %w", err)
	}
	email, _ := payload.Claims["email"].(string)
	return &GoogleIdentity{GoogleID: payload.Subject, Email: email}, nil
}
