package gatesdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/eventgate/pkg/httpx"
)

// Error codes carried in the "error" field of failure envelopes.
const (
	CodeNotFound             = "NOT_FOUND"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeOrganizerNotVerified = "ORGANIZER_NOT_VERIFIED"
	CodeTooManyRequests      = "TOO_MANY_REQUESTS"
	CodeBadRequest           = "BAD_REQUEST"
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeOTPRequired          = "OTP_REQUIRED"
	CodeInvalidOTP           = "INVALID_OTP"
	CodeEmailNotVerified     = "EMAIL_NOT_VERIFIED"
	CodeAccountSuspended     = "ACCOUNT_SUSPENDED"
	CodeInvalidRefreshToken  = "INVALID_REFRESH_TOKEN"
	CodeWrongPassword        = "WRONG_PASSWORD"
	CodeInvalidPassword      = "INVALID_PASSWORD"
	CodeNotOrganizer         = "NOT_ORGANIZER"
	CodeInternal             = "INTERNAL_ERROR"
)

// APIError is a {success:false} envelope. The server writes it and the
// client returns it as an error.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Code       string `json:"error,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Code, e.Message)
}

// WriteError writes this APIError to an HTTP response writer.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteError(w, e.StatusCode, e.Message, e.Code)
}

var (
	ErrBadRequest = &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       CodeBadRequest,
		Message:    "Invalid request body",
	}

	ErrInvalidCredentials = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       CodeInvalidCredentials,
		Message:    "Invalid email or password",
	}

	ErrOTPRequired = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       CodeOTPRequired,
		Message:    "One-time code required",
	}

	ErrInvalidOTP = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       CodeInvalidOTP,
		Message:    "Invalid one-time code",
	}

	ErrEmailNotVerified = &APIError{
		StatusCode: http.StatusForbidden,
		Code:       CodeEmailNotVerified,
		Message:    "Please verify your email address before logging in",
	}

	ErrAccountSuspended = &APIError{
		StatusCode: http.StatusForbidden,
		Code:       CodeAccountSuspended,
		Message:    "This account has been suspended",
	}

	ErrInvalidRefreshToken = &APIError{
		StatusCode: http.StatusUnauthorized,
		Code:       CodeInvalidRefreshToken,
		Message:    "Invalid or expired refresh token",
	}

	ErrWrongPassword = &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       CodeWrongPassword,
		Message:    "Current password is incorrect",
	}

	ErrInvalidPassword = &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidPassword,
		Message:    "New password must be set and differ from the current one",
	}

	ErrNotOrganizer = &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       CodeNotOrganizer,
		Message:    "Only organizer accounts can do this",
	}

	ErrInternal = &APIError{
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternal,
		Message:    "Internal server error",
	}
)

// parseErrorResponse turns a non-success response into an *APIError. Bodies
// that are not envelopes keep the status and the raw text.
func parseErrorResponse(resp *http.Response, body []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = string(body)
	}
	apiErr.StatusCode = resp.StatusCode
	return apiErr
}
