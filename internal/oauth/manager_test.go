package oauth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManagerClientCredentialsExchange(t *testing.T) {
	var tokenRequests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenRequests++
		require.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		form, err := url.ParseQuery(string(body))
		require.NoError(t, err)
		require.Equal(t, "client_credentials", form.Get("grant_type"))
		require.Equal(t, "client-id", form.Get("client_id"))
		require.Equal(t, "client-secret", form.Get("client_secret"))
		require.Equal(t, "read:device:current_values", form.Get("scope"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"test-token","expires_in":10800,"token_type":"Bearer"}`)
	}))
	defer server.Close()

	manager, err := NewManager(Declaration{
		Provider: "airthings",
		TokenURL: server.URL,
		Scope:    "read:device:current_values",
	}, Credentials{ClientID: "client-id", ClientSecret: "client-secret"})
	require.NoError(t, err)

	ctx := context.Background()
	token, err := manager.AccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "test-token", token)

	expiresAt := manager.TokenState().Current().ExpiresAt
	require.WithinDuration(t, time.Now().Add(3*time.Hour), expiresAt, 5*time.Second)

	_, err = manager.AccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, tokenRequests)

	manager.Invalidate()
	_, err = manager.AccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, tokenRequests)
}

func TestManagerRejectedExchange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"invalid_client"}`)
	}))
	defer server.Close()

	manager, err := NewManager(Declaration{Provider: "airthings", TokenURL: server.URL},
		Credentials{ClientID: "client-id", ClientSecret: "wrong"})
	require.NoError(t, err)

	_, err = manager.AccessToken(context.Background())
	require.ErrorIs(t, err, ErrAuthenticationFailed)

	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
	require.Equal(t, http.StatusUnauthorized, authErr.Status)
	require.Contains(t, authErr.Body, "invalid_client")
	require.False(t, manager.TokenState().Valid())
}

func TestManagerMalformedTokenResponse(t *testing.T) {
	cases := map[string]string{
		"missing access token": `{"expires_in":3600}`,
		"missing expiry":       `{"access_token":"test-token"}`,
		"not json":             `<html>oops</html>`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, body)
			}))
			defer server.Close()

			manager, err := NewManager(Declaration{Provider: "airthings", TokenURL: server.URL},
				Credentials{ClientID: "client-id", ClientSecret: "client-secret"})
			require.NoError(t, err)

			_, err = manager.AccessToken(context.Background())
			require.ErrorIs(t, err, ErrAuthenticationFailed)
		})
	}
}

func TestNewManagerValidation(t *testing.T) {
	creds := Credentials{ClientID: "id", ClientSecret: "secret"}

	_, err := NewManager(Declaration{TokenURL: "http://example"}, creds)
	require.Error(t, err)

	_, err = NewManager(Declaration{Provider: "airthings"}, creds)
	require.Error(t, err)

	_, err = NewManager(Declaration{Provider: "airthings", TokenURL: "http://example"}, Credentials{ClientID: "id"})
	require.Error(t, err)
}

func TestLoadCredentials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"client_id":"id","client_secret":"secret"}`), 0o600))

	creds, err := LoadCredentials(path)
	require.NoError(t, err)
	require.Equal(t, "id", creds.ClientID)
	require.Equal(t, "secret", creds.ClientSecret)

	require.NoError(t, os.Chmod(path, 0o644))
	_, err = LoadCredentials(path)
	require.Error(t, err)

	_, err = DecodeCredentials([]byte(`{"schema_version":2,"client_id":"id","client_secret":"secret"}`))
	require.Error(t, err)
}
