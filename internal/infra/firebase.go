// README: Firebase Admin SDK initialisation and the actor identity verifiers.
package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// Identity is the verified caller. UID is the opaque actor id used by every
// engine operation; Role comes from the "role" custom claim ("driver" or empty).
type Identity struct {
	UID  string
	Role string
}

// TokenVerifier turns a raw bearer token into a verified Identity.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*Identity, error)
}

type firebaseVerifier struct {
	client *auth.Client
}

// NewFirebaseVerifier creates a TokenVerifier using the Firebase Admin SDK.
// If credentialsFile is empty, application-default credentials are used.
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsFile string) (TokenVerifier, error) {
	opts := []option.ClientOption{}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app.Auth: %w", err)
	}
	return &firebaseVerifier{client: client}, nil
}

func (v *firebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*Identity, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return &Identity{UID: token.UID, Role: roleClaim(token.Claims)}, nil
}

func roleClaim(claims map[string]interface{}) string {
	if r, ok := claims["role"].(string); ok {
		return r
	}
	return ""
}

var ErrInvalidDevToken = errors.New("dev token must be <uid> or <uid>:<role>")

// DevVerifier trusts the token text itself: "<uid>" or "<uid>:<role>".
// It is only wired when no Firebase project is configured (local runs, bench).
type DevVerifier struct{}

func (DevVerifier) VerifyIDToken(_ context.Context, idToken string) (*Identity, error) {
	uid, role, _ := strings.Cut(strings.TrimSpace(idToken), ":")
	if uid == "" {
		return nil, ErrInvalidDevToken
	}
	return &Identity{UID: uid, Role: role}, nil
}
