package httpfetch

import (
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/auth"
	"github.com/hashicorp/go-cleanhttp"

	"github.com/phrazzld/mediagen/internal/generation"
)

// bearerTransport sets an Authorization header from a token provider.
type bearerTransport struct {
	base   http.RoundTripper
	tokens auth.TokenProvider
}

// RoundTrip implements http.RoundTripper. The token is only sent to the host
// of the first request in a redirect chain.
func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !sameHostAsOrigin(req) {
		r := req.Clone(req.Context())
		r.Header.Del("Authorization")
		return t.base.RoundTrip(r)
	}

	tok, err := t.tokens.Token(req.Context())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", generation.ErrCredentials, err)
	}

	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+tok.Value)
	return t.base.RoundTrip(r)
}

// sameHostAsOrigin walks back through the redirect responses that led to req.
func sameHostAsOrigin(req *http.Request) bool {
	origin := req
	for origin.Response != nil && origin.Response.Request != nil {
		origin = origin.Response.Request
	}
	return strings.EqualFold(origin.URL.Host, req.URL.Host)
}

// WithBearer returns a copy of client whose requests carry a bearer token
// from tokens.
func WithBearer(client *http.Client, tokens auth.TokenProvider) *http.Client {
	if client == nil {
		client = cleanhttp.DefaultPooledClient()
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	c := *client
	c.Transport = &bearerTransport{base: base, tokens: tokens}
	return &c
}
