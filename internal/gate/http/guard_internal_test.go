package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/eventgate/internal/gate/policy"
	"github.com/stretchr/testify/require"
)

func TestEnforceWithoutAuthenticatedUser(t *testing.T) {
	h := enforce(policy.Allow())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.JSONEq(t, `{"success":false,"message":"Authentication required","error":"UNAUTHORIZED"}`, rec.Body.String())
}
