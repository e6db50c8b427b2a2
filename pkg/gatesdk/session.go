package gatesdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// refreshBuffer is how long before expiry a Session refreshes its token.
const refreshBuffer = 30 * time.Second

// Session represents an authenticated session with automatic token refresh.
type Session struct {
	client *SDKClient

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

func newSession(client *SDKClient, tokens *TokenResponse) *Session {
	s := &Session{client: client}
	s.store(tokens)
	return s
}

// store must be called with mu held for writing, or before s is shared.
func (s *Session) store(tokens *TokenResponse) {
	s.accessToken = tokens.AccessToken
	s.refreshToken = tokens.RefreshToken
	s.expiresAt = time.Now().Add(time.Duration(tokens.ExpiresIn)*time.Second - refreshBuffer)
}

// AccessToken returns the current access token without checking expiration.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// Me returns the authenticated user.
func (s *Session) Me(ctx context.Context) (*UserView, error) {
	var out UserResponse
	if err := s.call(ctx, http.MethodGet, "/api/auth/me", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// LogoutAll invalidates every token issued to this user, including the
// session's own.
func (s *Session) LogoutAll(ctx context.Context) error {
	var out TokenVersionResponse
	return s.call(ctx, http.MethodPost, "/api/auth/logout-all", nil, &out, http.StatusOK)
}

// ChangePassword rotates the password. The gate invalidates every other
// session and the Session switches to the pair it returns.
func (s *Session) ChangePassword(ctx context.Context, current, next string) error {
	var out TokenResponse
	req := ChangePasswordRequest{CurrentPassword: current, NewPassword: next}
	if err := s.call(ctx, http.MethodPost, "/api/auth/change-password", req, &out, http.StatusOK); err != nil {
		return err
	}

	s.mu.Lock()
	s.store(&out)
	s.mu.Unlock()
	return nil
}

// SetParticipantMode toggles the organizer's participant view.
func (s *Session) SetParticipantMode(ctx context.Context, enabled bool) (*UserView, error) {
	var out UserResponse
	req := ParticipantModeRequest{Enabled: enabled}
	if err := s.call(ctx, http.MethodPut, "/api/auth/participant-mode", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// CheckAccess calls one of the /api/access probes, for example "staff" or
// "departments/TECHNICAL".
func (s *Session) CheckAccess(ctx context.Context, probe string) (*AccessResponse, error) {
	var out AccessResponse
	if err := s.call(ctx, http.MethodGet, "/api/access/"+probe, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// SuspendUser suspends another account and returns its new token version.
func (s *Session) SuspendUser(ctx context.Context, userID string) (int64, error) {
	return s.adminUser(ctx, "/api/admin/users/"+url.PathEscape(userID)+"/suspend")
}

// ReinstateUser lifts a suspension.
func (s *Session) ReinstateUser(ctx context.Context, userID string) (int64, error) {
	return s.adminUser(ctx, "/api/admin/users/"+url.PathEscape(userID)+"/reinstate")
}

// ApproveOrganizer marks an organizer account as verified.
func (s *Session) ApproveOrganizer(ctx context.Context, userID string) error {
	var out MessageResponse
	path := "/api/admin/organizers/" + url.PathEscape(userID) + "/approve"
	return s.call(ctx, http.MethodPost, path, nil, &out, http.StatusOK)
}

func (s *Session) adminUser(ctx context.Context, path string) (int64, error) {
	var out TokenVersionResponse
	if err := s.call(ctx, http.MethodPost, path, nil, &out, http.StatusOK); err != nil {
		return 0, err
	}
	return out.TokenVersion, nil
}

func (s *Session) call(ctx context.Context, method, path string, payload, target any, expected int) error {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return err
	}

	resp, err := s.client.doRequest(ctx, method, path, token, payload)
	if err != nil {
		return err
	}
	return decodeJSON(resp, target, expected)
}

// getValidToken returns a valid access token, automatically refreshing if expired.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited.
	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}

	if s.refreshToken == "" {
		return "", fmt.Errorf("access token expired and no refresh token available")
	}

	tokens, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	s.store(tokens)

	return s.accessToken, nil
}
