package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/eventgate/internal/gate/domain"
	"github.com/aussiebroadwan/eventgate/internal/gate/service"
	"github.com/aussiebroadwan/eventgate/pkg/gatesdk"
	"github.com/aussiebroadwan/eventgate/pkg/slogx"
)

func userView(u *domain.User) gatesdk.UserView {
	return gatesdk.UserView{
		ID:                 u.ID,
		Email:              u.Email,
		Name:               u.Name,
		Role:               string(u.Role),
		Department:         string(u.Department),
		EmailVerified:      u.EmailVerified,
		VerificationStatus: string(u.VerificationStatus),
		ParticipantMode:    u.InParticipantMode(),
	}
}

// accountErrors maps service failures the caller is allowed to see.
var accountErrors = []struct {
	err error
	api *gatesdk.APIError
}{
	{service.ErrInvalidLogin, gatesdk.ErrInvalidCredentials},
	{service.ErrOTPRequired, gatesdk.ErrOTPRequired},
	{service.ErrInvalidOTP, gatesdk.ErrInvalidOTP},
	{service.ErrEmailNotVerified, gatesdk.ErrEmailNotVerified},
	{service.ErrAccountSuspended, gatesdk.ErrAccountSuspended},
	{service.ErrInvalidRefresh, gatesdk.ErrInvalidRefreshToken},
	{service.ErrWrongPassword, gatesdk.ErrWrongPassword},
	{service.ErrInvalidPassword, gatesdk.ErrInvalidPassword},
	{service.ErrNotOrganizer, gatesdk.ErrNotOrganizer},
}

// writeAccountError renders err from an AccountService call. Missing or
// unmanageable targets are denials and look like any other 404.
func writeAccountError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, service.ErrUserNotFound) || errors.Is(err, service.ErrCannotManage) {
		Deny(w, r, fmt.Errorf("%w: %w", domain.ErrInsufficientPrivilege, err))
		return
	}

	for _, m := range accountErrors {
		if errors.Is(err, m.err) {
			m.api.WriteError(w)
			return
		}
	}

	slogx.FromContext(r.Context()).Error("account operation failed", slog.Any("error", err))
	gatesdk.ErrInternal.WriteError(w)
}
