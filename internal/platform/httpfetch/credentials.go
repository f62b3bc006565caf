package httpfetch

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/auth/credentials"

	"github.com/phrazzld/mediagen/internal/generation"
)

// CloudPlatformScope is the OAuth scope requested for provider calls.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

type staticTokenProvider struct {
	token string
}

// Token implements auth.TokenProvider.
func (p staticTokenProvider) Token(context.Context) (*auth.Token, error) {
	if p.token == "" {
		return nil, errors.New("static access token is empty")
	}
	return &auth.Token{Value: p.token, Type: "Bearer"}, nil
}

// StaticTokenProvider returns a provider that always hands out token.
func StaticTokenProvider(token string) auth.TokenProvider {
	return staticTokenProvider{token: token}
}

// NewTokenProvider returns a static provider when accessToken is set and
// application default credentials otherwise.
func NewTokenProvider(accessToken string) (auth.TokenProvider, error) {
	if accessToken != "" {
		return StaticTokenProvider(accessToken), nil
	}

	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		Scopes: []string{CloudPlatformScope},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrCredentials, err)
	}
	return creds, nil
}
