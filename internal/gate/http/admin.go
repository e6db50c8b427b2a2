package http

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/eventgate/internal/gate/domain"
	"github.com/aussiebroadwan/eventgate/internal/gate/service"
	"github.com/aussiebroadwan/eventgate/pkg/gatesdk"
	"github.com/aussiebroadwan/eventgate/pkg/httpx"
)

// AdminHandler serves the /api/admin routes.
type AdminHandler struct {
	Accounts *service.AccountService
}

// HandleSuspend suspends a user the caller manages.
//
//	@Summary		Suspend a user
//	@Description	Bumps the target's token version so every session ends at once.
//	@Description	Targets outside the caller's reach answer 404.
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string	true	"User ID"
//	@Success		200	{object}	gatesdk.TokenVersionResponse
//	@Failure		404	{object}	gatesdk.APIError
//	@Router			/api/admin/users/{id}/suspend [post].
func (h *AdminHandler) HandleSuspend(w http.ResponseWriter, r *http.Request) {
	h.setSuspended(w, r, h.Accounts.Suspend)
}

// HandleReinstate lifts a suspension.
//
//	@Summary		Reinstate a user
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string	true	"User ID"
//	@Success		200	{object}	gatesdk.TokenVersionResponse
//	@Failure		404	{object}	gatesdk.APIError
//	@Router			/api/admin/users/{id}/reinstate [post].
func (h *AdminHandler) HandleReinstate(w http.ResponseWriter, r *http.Request) {
	h.setSuspended(w, r, h.Accounts.Reinstate)
}

func (h *AdminHandler) setSuspended(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, actor *domain.User, targetID string) (int64, error),
) {
	actor, _ := httpx.UserFromContext(r.Context())
	targetID := r.PathValue("id")

	version, err := op(r.Context(), actor, targetID)
	if err != nil {
		writeAccountError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, gatesdk.TokenVersionResponse{
		Success:      true,
		UserID:       targetID,
		TokenVersion: version,
	})
}

// HandleApproveOrganizer verifies an organizer account.
//
//	@Summary		Approve an organizer
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string	true	"User ID"
//	@Success		200	{object}	gatesdk.MessageResponse
//	@Failure		400	{object}	gatesdk.APIError	"Target is not an organizer"
//	@Failure		404	{object}	gatesdk.APIError
//	@Router			/api/admin/organizers/{id}/approve [post].
func (h *AdminHandler) HandleApproveOrganizer(w http.ResponseWriter, r *http.Request) {
	if err := h.Accounts.ApproveOrganizer(r.Context(), r.PathValue("id")); err != nil {
		writeAccountError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, gatesdk.MessageResponse{Success: true, Message: "Organizer approved"})
}
