package gatesdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SDKClient is a client for the eventgate HTTP API.
// It provides access to unauthenticated operations and can create authenticated Sessions.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a new client for the gate at baseURL.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Login exchanges credentials for a token pair and wraps it in a Session.
// otp may be empty for accounts without a second factor.
func (c *SDKClient) Login(ctx context.Context, email, password, otp string) (*Session, error) {
	tokens, err := c.LoginTokens(ctx, LoginRequest{Email: email, Password: password, OTP: otp})
	if err != nil {
		return nil, err
	}
	return newSession(c, tokens), nil
}

// LoginTokens performs POST /api/auth/login and returns the raw response.
func (c *SDKClient) LoginTokens(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	return c.postTokens(ctx, "/api/auth/login", req)
}

// Refresh exchanges a refresh token for a new pair.
func (c *SDKClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return c.postTokens(ctx, "/api/auth/refresh", RefreshRequest{RefreshToken: refreshToken})
}

// NewSessionFromTokens creates an authenticated session from existing tokens.
func (c *SDKClient) NewSessionFromTokens(accessToken, refreshToken string, expiresIn int) *Session {
	return newSession(c, &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
	})
}

// ForgotPassword requests a reset link. The gate accepts every address.
func (c *SDKClient) ForgotPassword(ctx context.Context, email string) error {
	return c.postAccepted(ctx, "/api/auth/forgot-password", EmailRequest{Email: email})
}

// ResendVerification requests a new verification email.
func (c *SDKClient) ResendVerification(ctx context.Context, email string) error {
	return c.postAccepted(ctx, "/api/auth/resend-verification", EmailRequest{Email: email})
}

// GetSession reports who the token belongs to, if anyone. An empty or
// rejected token yields Authenticated=false rather than an error.
func (c *SDKClient) GetSession(ctx context.Context, accessToken string) (*SessionResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/auth/session", accessToken, nil)
	if err != nil {
		return nil, err
	}

	var out SessionResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *SDKClient) postTokens(ctx context.Context, path string, payload any) (*TokenResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, path, "", payload)
	if err != nil {
		return nil, err
	}

	var tokens TokenResponse
	if err := decodeJSON(resp, &tokens, http.StatusOK); err != nil {
		return nil, err
	}
	return &tokens, nil
}

func (c *SDKClient) postAccepted(ctx context.Context, path string, payload any) error {
	resp, err := c.doRequest(ctx, http.MethodPost, path, "", payload)
	if err != nil {
		return err
	}

	var msg MessageResponse
	return decodeJSON(resp, &msg, http.StatusAccepted)
}
