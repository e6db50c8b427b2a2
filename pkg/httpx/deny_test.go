package httpx_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/eventgate/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestWriteNotFound(t *testing.T) {
	first := httptest.NewRecorder()
	httpx.WriteNotFound(first)

	second := httptest.NewRecorder()
	httpx.WriteNotFound(second)

	require.Equal(t, http.StatusNotFound, first.Code)
	require.Equal(t, "application/json", first.Header().Get("Content-Type"))
	require.Equal(t, "no-store", first.Header().Get("Cache-Control"))
	require.Equal(t, first.Body.Bytes(), second.Body.Bytes())
	require.JSONEq(t, `{"success":false,"message":"Resource not found","error":"NOT_FOUND"}`, first.Body.String())
	require.Equal(t, httpx.NotFoundBody(), first.Body.Bytes())
}

func TestWriteUnauthorized(t *testing.T) {
	rec := httptest.NewRecorder()
	httpx.WriteUnauthorized(rec)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.JSONEq(t, `{"success":false,"message":"Authentication required","error":"UNAUTHORIZED"}`, rec.Body.String())
}

func TestWriteForbidden(t *testing.T) {
	rec := httptest.NewRecorder()
	httpx.WriteForbidden(rec, "Organizer account not verified yet", "ORGANIZER_NOT_VERIFIED")

	require.Equal(t, http.StatusForbidden, rec.Code)

	var env httpx.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.False(t, env.Success)
	require.Equal(t, "Organizer account not verified yet", env.Message)
}

func TestWriteTooManyRequests(t *testing.T) {
	t.Run("rounds retry-after", func(t *testing.T) {
		rec := httptest.NewRecorder()
		httpx.WriteTooManyRequests(rec, "slow down", 90*time.Second+400*time.Millisecond)

		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.Equal(t, "90", rec.Header().Get("Retry-After"))
		require.JSONEq(t, `{"success":false,"message":"slow down","error":"TOO_MANY_REQUESTS"}`, rec.Body.String())
	})

	t.Run("never below one second", func(t *testing.T) {
		rec := httptest.NewRecorder()
		httpx.WriteTooManyRequests(rec, "slow down", 0)
		require.Equal(t, "1", rec.Header().Get("Retry-After"))
	})
}

func TestChain(t *testing.T) {
	var order []string
	mw := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mw("first"), nil, mw("second"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"first", "second", "handler"}, order)
}
