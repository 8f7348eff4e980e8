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

const defaultFacebookDebugTokenURL = "https://graph.facebook.com/debug_token"

// FacebookResolver validates Facebook access tokens via the Graph API
// debug_token endpoint, authenticating with the app access token
// ("app_id|app_secret").
type FacebookResolver struct {
	appID     string
	appSecret string
	endpoint  string
	client    *http.Client
}

// NewFacebookResolver builds a resolver for the given Facebook app.
func NewFacebookResolver(appID, appSecret string) *FacebookResolver {
	return &FacebookResolver{
		appID:     appID,
		appSecret: appSecret,
		endpoint:  defaultFacebookDebugTokenURL,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// WithEndpoint overrides the debug_token URL, used by tests.
func (r *FacebookResolver) WithEndpoint(endpoint string) *FacebookResolver {
	r.endpoint = endpoint
	return r
}

// WithHTTPClient overrides the HTTP client.
func (r *FacebookResolver) WithHTTPClient(client *http.Client) *FacebookResolver {
	r.client = client
	return r
}

type facebookDebugToken struct {
	Data struct {
		AppID   string `json:"app_id"`
		IsValid bool   `json:"is_valid"`
		UserID  string `json:"user_id"`
	} `json:"data"`
}

// Resolve implements port.IdentityResolver.
func (r *FacebookResolver) Resolve(ctx context.Context, accessToken string) (string, error) {
	query := url.Values{}
	query.Set("input_token", accessToken)
	query.Set("access_token", r.appID+"|"+r.appSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build debug_token request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call debug_token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", port.ErrIdentityNotResolved
		}
		return "", fmt.Errorf("debug_token returned status %d", resp.StatusCode)
	}

	var payload facebookDebugToken
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode debug_token response: %w", err)
	}

	if !payload.Data.IsValid || payload.Data.UserID == "" || payload.Data.AppID != r.appID {
		return "", port.ErrIdentityNotResolved
	}

	return payload.Data.UserID, nil
}
