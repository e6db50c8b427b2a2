package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/eventgate/internal/gate/domain"
	"github.com/aussiebroadwan/eventgate/internal/gate/service"
	"github.com/aussiebroadwan/eventgate/pkg/gatesdk"
	"github.com/aussiebroadwan/eventgate/pkg/httpx"
	"github.com/aussiebroadwan/eventgate/pkg/slogx"
)

// AuthHandler serves the /api/auth routes.
type AuthHandler struct {
	Accounts  *service.AccountService
	AccessTTL time.Duration
}

func (h *AuthHandler) writeTokens(w http.ResponseWriter, pair domain.TokenPair, u *domain.User) {
	resp := gatesdk.TokenResponse{
		Success:      true,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int(h.AccessTTL / time.Second),
	}
	if u != nil {
		view := userView(u)
		resp.User = &view
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleLogin exchanges credentials for a token pair.
//
//	@Summary		Log in
//	@Description	Verifies email, password and, for enrolled accounts, the TOTP code. Starts the inactivity window.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		gatesdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	gatesdk.TokenResponse
//	@Failure		400		{object}	gatesdk.APIError	"Malformed body"
//	@Failure		401		{object}	gatesdk.APIError	"Invalid credentials or one-time code"
//	@Failure		403		{object}	gatesdk.APIError	"Suspended or unverified account"
//	@Failure		429		{object}	gatesdk.APIError	"Too many attempts"
//	@Router			/api/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req gatesdk.LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		gatesdk.ErrBadRequest.WriteError(w)
		return
	}

	pair, u, err := h.Accounts.Login(r.Context(), req.Email, req.Password, req.OTP)
	if err != nil {
		writeAccountError(w, r, err)
		return
	}

	slogx.Annotate(r.Context(), "user_id", u.ID)
	h.writeTokens(w, pair, &u)
}

// HandleRefresh trades a refresh token for a new pair.
//
//	@Summary		Refresh tokens
//	@Description	Issues a new pair. The account must still be live and inside its inactivity window.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		gatesdk.RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	gatesdk.TokenResponse
//	@Failure		400		{object}	gatesdk.APIError
//	@Failure		401		{object}	gatesdk.APIError	"Invalid or expired refresh token"
//	@Failure		429		{object}	gatesdk.APIError
//	@Router			/api/auth/refresh [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req gatesdk.RefreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.RefreshToken == "" {
		gatesdk.ErrBadRequest.WriteError(w)
		return
	}

	pair, err := h.Accounts.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeAccountError(w, r, err)
		return
	}
	h.writeTokens(w, pair, nil)
}

// HandleLogoutAll invalidates every token the caller holds.
//
//	@Summary		Log out everywhere
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	gatesdk.TokenVersionResponse
//	@Failure		404	{object}	gatesdk.APIError
//	@Router			/api/auth/logout-all [post].
func (h *AuthHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	u, _ := httpx.UserFromContext(r.Context())

	version, err := h.Accounts.LogoutEverywhere(r.Context(), u.ID)
	if err != nil {
		writeAccountError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, gatesdk.TokenVersionResponse{
		Success:      true,
		UserID:       u.ID,
		TokenVersion: version,
	})
}

// HandleChangePassword rotates the caller's password.
//
//	@Summary		Change password
//	@Description	Invalidates every other session and returns a pair for the caller.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		gatesdk.ChangePasswordRequest	true	"Passwords"
//	@Success		200		{object}	gatesdk.TokenResponse
//	@Failure		400		{object}	gatesdk.APIError
//	@Failure		404		{object}	gatesdk.APIError
//	@Failure		429		{object}	gatesdk.APIError
//	@Router			/api/auth/change-password [post].
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	u, _ := httpx.UserFromContext(r.Context())

	var req gatesdk.ChangePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		gatesdk.ErrBadRequest.WriteError(w)
		return
	}

	pair, err := h.Accounts.ChangePassword(r.Context(), u.ID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		writeAccountError(w, r, err)
		return
	}
	h.writeTokens(w, pair, nil)
}

// HandleForgotPassword accepts a reset request for any address.
//
//	@Summary		Request a password reset
//	@Description	Always answers 202 so the endpoint cannot be used to discover accounts.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		gatesdk.EmailRequest	true	"Email"
//	@Success		202		{object}	gatesdk.MessageResponse
//	@Failure		429		{object}	gatesdk.APIError
//	@Router			/api/auth/forgot-password [post].
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req gatesdk.EmailRequest
	if err := httpx.DecodeJSON(r, &req); err == nil && req.Email != "" {
		h.Accounts.RequestPasswordReset(r.Context(), req.Email)
	}
	httpx.WriteJSON(w, http.StatusAccepted, gatesdk.MessageResponse{
		Success: true,
		Message: "If the address is registered, a reset link is on its way",
	})
}

// HandleResendVerification accepts a verification request for any address.
//
//	@Summary		Resend the verification email
//	@Description	Always answers 202 so the endpoint cannot be used to discover accounts.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		gatesdk.EmailRequest	true	"Email"
//	@Success		202		{object}	gatesdk.MessageResponse
//	@Failure		429		{object}	gatesdk.APIError
//	@Router			/api/auth/resend-verification [post].
func (h *AuthHandler) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req gatesdk.EmailRequest
	if err := httpx.DecodeJSON(r, &req); err == nil && req.Email != "" {
		h.Accounts.ResendVerification(r.Context(), req.Email)
	}
	httpx.WriteJSON(w, http.StatusAccepted, gatesdk.MessageResponse{
		Success: true,
		Message: "If the address is registered and unverified, a new email is on its way",
	})
}

// HandleParticipantMode toggles the organizer's participant view.
//
//	@Summary		Toggle participant mode
//	@Description	While enabled, organizer-only routes treat the caller as a participant.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		gatesdk.ParticipantModeRequest	true	"Mode"
//	@Success		200		{object}	gatesdk.UserResponse
//	@Failure		400		{object}	gatesdk.APIError
//	@Failure		404		{object}	gatesdk.APIError
//	@Router			/api/auth/participant-mode [put].
func (h *AuthHandler) HandleParticipantMode(w http.ResponseWriter, r *http.Request) {
	u, _ := httpx.UserFromContext(r.Context())

	var req gatesdk.ParticipantModeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		gatesdk.ErrBadRequest.WriteError(w)
		return
	}

	if err := h.Accounts.SetParticipantMode(r.Context(), u, req.Enabled); err != nil {
		writeAccountError(w, r, err)
		return
	}

	updated := *u
	updated.TemporaryRole = nil
	if req.Enabled {
		p := domain.RoleParticipant
		updated.TemporaryRole = &p
	}
	httpx.WriteJSON(w, http.StatusOK, gatesdk.UserResponse{Success: true, User: userView(&updated)})
}

// HandleMe returns the authenticated user.
//
//	@Summary		Current user
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	gatesdk.UserResponse
//	@Failure		404	{object}	gatesdk.APIError
//	@Router			/api/auth/me [get].
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	u, _ := httpx.UserFromContext(r.Context())
	httpx.WriteJSON(w, http.StatusOK, gatesdk.UserResponse{Success: true, User: userView(u)})
}

// HandleSession reports whether the request carries a live session.
//
//	@Summary		Session probe
//	@Description	Never denies. A missing or rejected token reports authenticated=false.
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	gatesdk.SessionResponse
//	@Router			/api/auth/session [get].
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	resp := gatesdk.SessionResponse{Success: true}
	if u, ok := httpx.UserFromContext(r.Context()); ok {
		view := userView(u)
		resp.Authenticated = true
		resp.User = &view
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
