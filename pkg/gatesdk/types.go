package gatesdk

// ============================================================================
// Authentication
// ============================================================================

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`

	// OTP is the current TOTP code. Only required for enrolled accounts.
	OTP string `json:"otp,omitempty"`
}

// TokenResponse is returned by login, refresh and change-password.
type TokenResponse struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`

	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int `json:"expiresIn"`

	User *UserView `json:"user,omitempty"`
}

// RefreshRequest is the body of POST /api/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ChangePasswordRequest is the body of POST /api/auth/change-password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// EmailRequest is the body of forgot-password and resend-verification.
type EmailRequest struct {
	Email string `json:"email"`
}

// ParticipantModeRequest is the body of PUT /api/auth/participant-mode.
type ParticipantModeRequest struct {
	Enabled bool `json:"enabled"`
}

// ============================================================================
// Users
// ============================================================================

// UserView is the public projection of a user record.
type UserView struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	Name               string `json:"name"`
	Role               string `json:"role"`
	Department         string `json:"department,omitempty"`
	EmailVerified      bool   `json:"emailVerified"`
	VerificationStatus string `json:"verificationStatus"`
	ParticipantMode    bool   `json:"participantMode"`
}

// UserResponse wraps a single user.
type UserResponse struct {
	Success bool     `json:"success"`
	User    UserView `json:"user"`
}

// SessionResponse is returned by GET /api/auth/session, which never denies.
type SessionResponse struct {
	Success       bool      `json:"success"`
	Authenticated bool      `json:"authenticated"`
	User          *UserView `json:"user,omitempty"`
}

// ============================================================================
// Generic responses
// ============================================================================

// MessageResponse is a bare acknowledgement.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// AccessResponse is returned by the /api/access probes.
type AccessResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Requirement string `json:"requirement"`
}

// TokenVersionResponse is returned by operations that invalidate sessions.
type TokenVersionResponse struct {
	Success      bool   `json:"success"`
	UserID       string `json:"userId"`
	TokenVersion int64  `json:"tokenVersion"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness check results for critical dependencies (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks represents the status of critical service dependencies.
type HealthChecks struct {
	// Database indicates the user directory connection status
	Database string `json:"database"`

	// RateStore indicates the shared rate counter status. Empty when the
	// gate counts in memory.
	RateStore string `json:"rateStore,omitempty"`
}
