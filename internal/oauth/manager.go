package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Manager obtains client-credentials access tokens and caches them in a
// TokenState.
type Manager struct {
	decl       Declaration
	httpClient *http.Client
	config     *clientcredentials.Config
	state      *TokenState
}

func NewManager(decl Declaration, creds Credentials) (*Manager, error) {
	if decl.Provider == "" {
		return nil, fmt.Errorf("provider is required")
	}
	if decl.TokenURL == "" {
		return nil, fmt.Errorf("tokenURL is required")
	}
	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}

	return &Manager{
		decl:       decl,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		config: &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     decl.TokenURL,
			Scopes:       strings.Fields(decl.Scope),
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		state: NewTokenState(),
	}, nil
}

// AccessToken returns a valid bearer token, exchanging credentials when the
// cached token is absent or about to expire.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	token, err := m.state.EnsureValid(ctx, m.exchange)
	if err != nil {
		tokenValid.WithLabelValues(m.decl.Provider).Set(0)
		return "", err
	}
	tokenValid.WithLabelValues(m.decl.Provider).Set(1)
	return token, nil
}

// Invalidate forgets the cached token, typically after the API answered 401.
func (m *Manager) Invalidate() {
	m.state.Invalidate()
	tokenValid.WithLabelValues(m.decl.Provider).Set(0)
}

// TokenState exposes the underlying state for inspection.
func (m *Manager) TokenState() *TokenState {
	return m.state
}

func (m *Manager) exchange(ctx context.Context) (string, time.Duration, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	token, err := m.config.Token(ctx)
	if err != nil {
		exchangeTotal.WithLabelValues(m.decl.Provider, "failure").Inc()
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			status := 0
			if retrieveErr.Response != nil {
				status = retrieveErr.Response.StatusCode
			}
			return "", 0, &AuthenticationError{Status: status, Body: string(retrieveErr.Body), Err: err}
		}
		return "", 0, &AuthenticationError{Err: err}
	}
	if token.Expiry.IsZero() {
		exchangeTotal.WithLabelValues(m.decl.Provider, "failure").Inc()
		return "", 0, &AuthenticationError{Err: errors.New("token response missing expires_in")}
	}

	exchangeTotal.WithLabelValues(m.decl.Provider, "success").Inc()
	tokenExpiry.WithLabelValues(m.decl.Provider).Set(float64(token.Expiry.Unix()))
	return token.AccessToken, time.Until(token.Expiry), nil
}
