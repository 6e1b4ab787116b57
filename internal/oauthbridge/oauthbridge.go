// Package oauthbridge implements the GitHub/Google authorization-code
// exchange from spec.md §4.4: redirect to the provider, exchange a code
// for an access token, fetch the user's identity, and hand it to the
// Token Store's findOrCreateOAuthSession.
package oauthbridge

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/termweb-dev/termweb-core/internal/authstore"
	"github.com/termweb-dev/termweb-core/internal/logger"
)

// Identity is the provider-reported user identity handed to
// findOrCreateOAuthSession.
type Identity struct {
	Provider       string
	ProviderUserID string
	DisplayName    string
}

// Bridge exchanges OAuth codes for sessions via the configured store.
type Bridge struct {
	store      *authstore.Store
	httpClient *http.Client
}

// New constructs a Bridge backed by store.
func New(store *authstore.Store) *Bridge {
	return &Bridge{
		store:      store,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// providerScope is the OAuth scope requested per provider, per spec.md
// §4.4: "user:email for github, openid email profile for google".
var providerScope = map[string]string{
	"github": "user:email",
	"google": "openid email profile",
}

var providerAuthorizeURL = map[string]string{
	"github": "https://github.com/login/oauth/authorize",
	"google": "https://accounts.google.com/o/oauth2/v2/auth",
}

var providerTokenURL = map[string]string{
	"github": "https://github.com/login/oauth/access_token",
	"google": "https://oauth2.googleapis.com/token",
}

// AuthorizeURL builds the provider's authorize URL for an incoming
// request's Host/X-Forwarded-Proto, per spec.md §4.4 step 1.
func (b *Bridge) AuthorizeURL(provider string, host string, forwardedProto string) (string, error) {
	creds, ok := b.store.OAuthProviderCreds(provider)
	if !ok {
		return "", fmt.Errorf("oauth provider %q not configured", provider)
	}
	base, ok := providerAuthorizeURL[provider]
	if !ok {
		return "", fmt.Errorf("unknown oauth provider %q", provider)
	}

	redirect := callbackURL(provider, host, forwardedProto)
	q := url.Values{}
	q.Set("client_id", creds.ClientID)
	q.Set("scope", providerScope[provider])
	q.Set("redirect_uri", redirect)
	if provider == "google" {
		q.Set("response_type", "code")
	}
	return base + "?" + q.Encode(), nil
}

// callbackURL derives the callback URL from the request's Host header,
// honoring X-Forwarded-Proto and defaulting to http for localhost, else
// https, per spec.md §4.4 step 1.
func callbackURL(provider, host, forwardedProto string) string {
	scheme := forwardedProto
	if scheme == "" {
		if strings.HasPrefix(host, "localhost") || strings.HasPrefix(host, "127.0.0.1") {
			scheme = "http"
		} else {
			scheme = "https"
		}
	}
	return fmt.Sprintf("%s://%s/auth/%s/callback", scheme, host, provider)
}

// Exchange performs the full callback step: trades code for a token, then
// fetches the provider identity, per spec.md §4.4 step 2.
func (b *Bridge) Exchange(provider, code, host, forwardedProto string) (Identity, error) {
	switch provider {
	case "github":
		return b.exchangeGitHub(code, host, forwardedProto)
	case "google":
		return b.exchangeGoogle(code, host, forwardedProto)
	default:
		return Identity{}, fmt.Errorf("unknown oauth provider %q", provider)
	}
}

func (b *Bridge) exchangeGitHub(code, host, forwardedProto string) (Identity, error) {
	creds, ok := b.store.OAuthProviderCreds("github")
	if !ok {
		return Identity{}, fmt.Errorf("github oauth not configured")
	}

	form := url.Values{}
	form.Set("client_id", creds.ClientID)
	form.Set("client_secret", creds.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", callbackURL("github", host, forwardedProto))

	req, err := http.NewRequest(http.MethodPost, providerTokenURL["github"], strings.NewReader(form.Encode()))
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return Identity{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Identity{}, err
	}
	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil || tokenResp.AccessToken == "" {
		return Identity{}, fmt.Errorf("github token exchange failed")
	}

	userReq, err := http.NewRequest(http.MethodGet, "https://api.github.com/user", nil)
	if err != nil {
		return Identity{}, err
	}
	userReq.Header.Set("Authorization", "Bearer "+tokenResp.AccessToken)

	userResp, err := b.httpClient.Do(userReq)
	if err != nil {
		return Identity{}, err
	}
	defer userResp.Body.Close()

	userBody, err := io.ReadAll(userResp.Body)
	if err != nil {
		return Identity{}, err
	}
	var user struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
	}
	if err := json.Unmarshal(userBody, &user); err != nil || user.ID == 0 {
		return Identity{}, fmt.Errorf("github user lookup failed")
	}

	return Identity{
		Provider:       "github",
		ProviderUserID: strconv.FormatInt(user.ID, 10),
		DisplayName:    user.Login,
	}, nil
}

func (b *Bridge) exchangeGoogle(code, host, forwardedProto string) (Identity, error) {
	creds, ok := b.store.OAuthProviderCreds("google")
	if !ok {
		return Identity{}, fmt.Errorf("google oauth not configured")
	}

	form := url.Values{}
	form.Set("client_id", creds.ClientID)
	form.Set("client_secret", creds.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", callbackURL("google", host, forwardedProto))
	form.Set("grant_type", "authorization_code")

	resp, err := b.httpClient.PostForm(providerTokenURL["google"], form)
	if err != nil {
		return Identity{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Identity{}, err
	}
	var tokenResp struct {
		IDToken string `json:"id_token"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil || tokenResp.IDToken == "" {
		return Identity{}, fmt.Errorf("google token exchange failed")
	}

	sub, name, err := decodeGoogleIDToken(tokenResp.IDToken)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Provider: "google", ProviderUserID: sub, DisplayName: name}, nil
}

// decodeGoogleIDToken extracts sub/name from the unverified middle segment
// of a Google id_token, per spec.md §4.4 step 2: "base64url-decode the
// middle segment, extract sub and name (fall back to email)." Signature
// verification of the id_token is not performed here: the token arrived
// over the TLS-protected token-endpoint response, which is the provider's
// own authenticated channel.
func decodeGoogleIDToken(idToken string) (sub, name string, err error) {
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return "", "", fmt.Errorf("malformed id_token")
	}
	payload, err := base64URLDecode(parts[1])
	if err != nil {
		return "", "", fmt.Errorf("decode id_token payload: %w", err)
	}
	var claims struct {
		Sub   string `json:"sub"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", "", fmt.Errorf("parse id_token payload: %w", err)
	}
	if claims.Sub == "" {
		return "", "", fmt.Errorf("id_token missing sub")
	}
	displayName := claims.Name
	if displayName == "" {
		displayName = claims.Email
	}
	return claims.Sub, displayName, nil
}

// ErrorRedirect builds the `/?error=<reason>` redirect target spec.md
// §4.4 uses on any exchange failure.
func ErrorRedirect(reason string) string {
	return "/?error=" + url.QueryEscape(reason)
}

// Logf is a small convenience wrapper so callers can log a failed exchange
// with the oauth component logger without importing zerolog directly.
func Logf(provider string, err error) {
	logger.OAuth().Warn().Str("provider", provider).Err(err).Msg("oauth exchange failed")
}
