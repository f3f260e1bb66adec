package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ValidityMargin is subtracted from a token's lifetime so a token that is
// about to expire is never handed to a request.
const ValidityMargin = 20 * time.Second

var ErrAuthenticationFailed = errors.New("authentication failed")

// AuthenticationError describes a rejected or malformed token exchange.
type AuthenticationError struct {
	Status int
	Body   string
	Err    error
}

func (e *AuthenticationError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("authentication failed %d: %s", e.Status, strings.TrimSpace(e.Body))
	case e.Err != nil:
		return fmt.Sprintf("authentication failed: %v", e.Err)
	default:
		return "authentication failed"
	}
}

func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAuthenticationFailed
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// Token is a bearer credential. The zero value is the absent token.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Valid reports whether the token can still be used at now.
func (t Token) Valid(now time.Time) bool {
	if t.Value == "" || t.ExpiresAt.IsZero() {
		return false
	}
	return t.ExpiresAt.Unix() > now.Add(ValidityMargin).Unix()
}

// RefreshFunc exchanges credentials for a new access token.
type RefreshFunc func(ctx context.Context) (accessToken string, expiresIn time.Duration, err error)

// TokenState tracks the current access token. Check, refresh and store run
// under one lock so concurrent callers trigger at most one exchange.
type TokenState struct {
	mu    sync.Mutex
	token Token
	now   func() time.Time
}

func NewTokenState() *TokenState {
	return &TokenState{now: time.Now}
}

// Current returns a copy of the stored token.
func (s *TokenState) Current() Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Valid reports whether the stored token is usable right now.
func (s *TokenState) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token.Valid(s.clock())
}

// EnsureValid returns the stored token value, calling refresh first when the
// token is absent or inside the validity margin. A failed refresh leaves the
// previous token untouched.
func (s *TokenState) EnsureValid(ctx context.Context, refresh RefreshFunc) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token.Valid(s.clock()) {
		return s.token.Value, nil
	}
	if refresh == nil {
		return "", &AuthenticationError{Err: errors.New("no refresh function configured")}
	}

	accessToken, expiresIn, err := refresh(ctx)
	if err != nil {
		var authErr *AuthenticationError
		if errors.As(err, &authErr) {
			return "", err
		}
		return "", &AuthenticationError{Err: err}
	}
	if accessToken == "" {
		return "", &AuthenticationError{Err: errors.New("empty access token")}
	}

	s.token = Token{
		Value:     accessToken,
		ExpiresAt: s.clock().Add(expiresIn),
	}
	return s.token.Value, nil
}

// Invalidate drops the stored token so the next EnsureValid refreshes.
func (s *TokenState) Invalidate() {
	s.mu.Lock()
	s.token = Token{}
	s.mu.Unlock()
}

func (s *TokenState) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}
