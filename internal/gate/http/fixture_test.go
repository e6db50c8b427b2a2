package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/eventgate/internal/gate/domain"
	gatehttp "github.com/aussiebroadwan/eventgate/internal/gate/http"
	"github.com/aussiebroadwan/eventgate/internal/gate/ratelimit"
	"github.com/aussiebroadwan/eventgate/internal/gate/service"
	"github.com/aussiebroadwan/eventgate/internal/gate/store"
	"github.com/aussiebroadwan/eventgate/internal/gate/store/drivers/sqlite"
	"github.com/aussiebroadwan/eventgate/pkg/cryptox"
	"github.com/aussiebroadwan/eventgate/pkg/gatesdk"
	"github.com/aussiebroadwan/eventgate/pkg/idx"
	"github.com/aussiebroadwan/eventgate/pkg/jwtx"
	"github.com/aussiebroadwan/eventgate/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct horse battery staple"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// syncSink writes activity straight through so scenarios can assert on it
// without waiting for the background recorder.
type syncSink struct {
	users store.Users
}

func (s syncSink) Record(userID string, at time.Time) bool {
	return s.users.TouchLastActivity(context.Background(), userID, at) == nil
}

type gateFixture struct {
	clock  *clock
	store  *sqlite.Store
	router *gatehttp.Router
	server *httptest.Server
	client *gatesdk.SDKClient
}

// roomyRules keeps scenario tests clear of the limiter; every request
// comes from the same loopback address.
func roomyRules() map[ratelimit.Class]ratelimit.Rule {
	rules := ratelimit.DefaultRules()
	for class, rule := range rules {
		rule.Limit = 1000
		rules[class] = rule
	}
	return rules
}

// newGateFixture builds the full gate over an in-memory directory. extra
// runs before the server starts so tests can mount their own routes.
func newGateFixture(t *testing.T, rules map[ratelimit.Class]ratelimit.Rule, extra func(*gatehttp.Router)) *gateFixture {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	c := &clock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	codec, err := jwtx.NewCodec(jwtx.CodecConfig{
		AccessSecret:  []byte("router-test-access-secret"),
		AccessTTL:     time.Hour,
		RefreshSecret: []byte("router-test-refresh-secret"),
		RefreshTTL:    24 * time.Hour,
		Issuer:        "eventgate-test",
		Now:           c.Now,
	})
	require.NoError(t, err)

	validator := service.NewSessionValidator(codec, st.Users(), syncSink{users: st.Users()}, service.SessionConfig{
		Timeout: 30 * time.Minute,
		Now:     c.Now,
	})

	if rules == nil {
		rules = roomyRules()
	}
	governor := ratelimit.NewGovernor(ratelimit.Config{
		Counter: ratelimit.NewMemoryCounter().WithClock(c.Now),
		Rules:   rules,
		Deny:    gatehttp.Deny,
		Wait:    func(context.Context, time.Duration) error { return nil },
		Now:     c.Now,
	})

	router := gatehttp.NewRouter(validator, governor, st, "test", slogx.Discard())
	router.Accounts = &service.AccountService{
		Store:          st,
		Tokens:         codec,
		SessionTimeout: 30 * time.Minute,
		Now:            c.Now,
	}
	router.AccessTTL = codec.AccessTTL()
	router.ApplyRoutes()
	if extra != nil {
		extra(router)
	}

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &gateFixture{
		clock:  c,
		store:  st,
		router: router,
		server: srv,
		client: gatesdk.NewSDKClient(srv.URL),
	}
}

func (f *gateFixture) seed(t *testing.T, role domain.Role, mutate func(*domain.User)) domain.User {
	t.Helper()
	hash, err := cryptox.HashPassword(testPassword)
	require.NoError(t, err)

	u := domain.User{
		ID:                 idx.New().String(),
		Email:              idx.New().String() + "@example.com",
		Name:               "Test " + string(role),
		PasswordHash:       hash,
		Role:               role,
		Department:         role.Department(),
		EmailVerified:      true,
		VerificationStatus: domain.VerificationApproved,
	}
	if mutate != nil {
		mutate(&u)
	}
	require.NoError(t, f.store.Users().CreateUser(context.Background(), u))
	return u
}

func (f *gateFixture) login(t *testing.T, u domain.User) *gatesdk.Session {
	t.Helper()
	s, err := f.client.Login(context.Background(), u.Email, testPassword, "")
	require.NoError(t, err)
	return s
}

// do sends a raw request and returns the status and body.
func (f *gateFixture) do(t *testing.T, method, path, token string, payload any) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, f.server.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func requireAPIError(t *testing.T, err error, status int, code string) {
	t.Helper()
	require.Error(t, err)

	var apiErr *gatesdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, status, apiErr.StatusCode)
	require.Equal(t, code, apiErr.Code)
}
