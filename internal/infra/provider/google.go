package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/arklim/identity-token-service/internal/core/port"
)

const defaultGoogleTokenInfoURL = "https://www.googleapis.com/oauth2/v3/tokeninfo"

// GoogleResolver validates Google OAuth access tokens against the
// tokeninfo endpoint and checks the token was minted for our client id.
type GoogleResolver struct {
	clientID string
	endpoint string
	client   *http.Client
}

// NewGoogleResolver builds a resolver for the given OAuth client id.
func NewGoogleResolver(clientID string) *GoogleResolver {
	return &GoogleResolver{
		clientID: clientID,
		endpoint: defaultGoogleTokenInfoURL,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// WithEndpoint overrides the tokeninfo URL, used by tests.
func (r *GoogleResolver) WithEndpoint(endpoint string) *GoogleResolver {
	r.endpoint = endpoint
	return r
}

// WithHTTPClient overrides the HTTP client.
func (r *GoogleResolver) WithHTTPClient(client *http.Client) *GoogleResolver {
	r.client = client
	return r
}

type googleTokenInfo struct {
	Aud     string `json:"aud"`
	Sub     string `json:"sub"`
	Expires string `json:"expires_in"`
}

// Resolve implements port.IdentityResolver.
func (r *GoogleResolver) Resolve(ctx context.Context, accessToken string) (string, error) {
	endpoint := r.endpoint + "?access_token=" + url.QueryEscape(accessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build tokeninfo request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call tokeninfo: %w", err)
	}
	defer resp.Body.Close()

	// Google answers 4xx for invalid or expired tokens.
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", port.ErrIdentityNotResolved
		}
		return "", fmt.Errorf("tokeninfo returned status %d", resp.StatusCode)
	}

	var info googleTokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("decode tokeninfo response: %w", err)
	}

	// A valid token for someone else's application is still a rejection.
	if info.Sub == "" || info.Aud != r.clientID {
		return "", port.ErrIdentityNotResolved
	}

	return info.Sub, nil
}
