package http

import (
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/eventgate/internal/gate/domain"
	"github.com/aussiebroadwan/eventgate/internal/gate/policy"
	"github.com/aussiebroadwan/eventgate/pkg/gatesdk"
	"github.com/aussiebroadwan/eventgate/pkg/httpx"
)

// AccessHandler confirms that the guard let the caller through. Frontends
// use these probes to decide which areas to show.
//
//	@Summary		Access probes
//	@Description	Each probe answers 200 when the caller meets its requirement and 404 otherwise.
//	@Description	An organizer awaiting verification gets 403 from verified-organizer.
//	@Tags			Access
//	@Security		BearerAuth
//	@Produce		json
//	@Param			probe	path		string	true	"staff, department-head, organizer, verified-organizer or super-admin"
//	@Success		200		{object}	gatesdk.AccessResponse
//	@Failure		403		{object}	gatesdk.APIError
//	@Failure		404		{object}	gatesdk.APIError
//	@Router			/api/access/{probe} [get].
func AccessHandler(req policy.Requirement) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeGranted(w, req)
	}
}

// HandleDepartmentAccess checks membership of the department in the path.
//
//	@Summary		Department access probe
//	@Tags			Access
//	@Security		BearerAuth
//	@Produce		json
//	@Param			department	path		string	true	"CUSTOMER_SERVICE, OPERATIONS or FINANCE"
//	@Success		200			{object}	gatesdk.AccessResponse
//	@Failure		404			{object}	gatesdk.APIError
//	@Router			/api/access/departments/{department} [get].
func HandleDepartmentAccess(w http.ResponseWriter, r *http.Request) {
	dept, ok := domain.ParseDepartment(r.PathValue("department"))
	if !ok {
		Deny(w, r, fmt.Errorf("%w: unknown department %q", domain.ErrInsufficientPrivilege, r.PathValue("department")))
		return
	}

	u, _ := httpx.UserFromContext(r.Context())
	req := policy.RequireDepartment(dept)
	if err := policy.Decide(u, req); err != nil {
		Deny(w, r, err)
		return
	}
	writeGranted(w, req)
}

func writeGranted(w http.ResponseWriter, req policy.Requirement) {
	httpx.WriteJSON(w, http.StatusOK, gatesdk.AccessResponse{
		Success:     true,
		Message:     "Access granted",
		Requirement: req.Name,
	})
}
