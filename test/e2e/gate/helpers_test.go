package gate_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/eventgate/internal/gate/app"
	"github.com/aussiebroadwan/eventgate/internal/gate/domain"
	"github.com/aussiebroadwan/eventgate/internal/gate/ratelimit"
	"github.com/aussiebroadwan/eventgate/internal/gate/store/drivers/postgres"
	"github.com/aussiebroadwan/eventgate/pkg/cryptox"
	"github.com/aussiebroadwan/eventgate/pkg/gatesdk"
	"github.com/aussiebroadwan/eventgate/pkg/idx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * End-to-end harness: the whole gate runs in-process against real Postgres
 * and Redis containers and is driven through gatesdk.
 */

const (
	adminEmail    = "root@example.com"
	adminPassword = "Admin123!"
	userPassword  = "User123!"
)

type backends struct {
	postgresURL string
	redisHost   string
	// pepperFile is shared so every replica hashes passwords alike.
	pepperFile string
}

// startContainer runs req and returns its host and mapped port.
func startContainer(t *testing.T, req testcontainers.ContainerRequest, port string) (string, string) {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, port)
	require.NoError(t, err)

	return host, mapped.Port()
}

// setupBackends starts Postgres and Redis for one test.
func setupBackends(t *testing.T) backends {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping end-to-end test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	pgHost, pgPort := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "gate",
			"POSTGRES_PASSWORD": "gate",
			"POSTGRES_DB":       "gate",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	}, "5432")

	redisHost, redisPort := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}, "6379")

	return backends{
		postgresURL: fmt.Sprintf("postgres://gate:gate@%s:%s/gate?sslmode=disable", pgHost, pgPort),
		redisHost:   fmt.Sprintf("%s:%s", redisHost, redisPort),
		pepperFile:  filepath.Join(t.TempDir(), "pepper"),
	}
}

type gate struct {
	client *gatesdk.SDKClient
	store  *postgres.Store
}

// startGate boots the application. redisDB separates the rate counters of
// gates sharing one Redis.
func startGate(t *testing.T, b backends, redisDB int, rules map[ratelimit.Class]ratelimit.Rule) *gate {
	t.Helper()

	if rules == nil {
		rules = ratelimit.DefaultRules()
		for class, rule := range rules {
			rule.Limit = 1000
			rules[class] = rule
		}
	}

	cfg := app.Config{
		JWTSecret:           "e2e-access-secret",
		JWTExpiresIn:        15 * time.Minute,
		JWTRefreshSecret:    "e2e-refresh-secret",
		JWTRefreshExpiresIn: 24 * time.Hour,
		JWTIssuer:           "eventgate-e2e",
		SessionTimeout:      30 * time.Minute,
		DatabaseURL:         b.postgresURL,
		RedisURL:            fmt.Sprintf("redis://%s/%d", b.redisHost, redisDB),
		RateRules:           rules,
		SpeedRule:           ratelimit.SpeedRule{DelayAfter: 1000, Step: time.Millisecond, MaxDelay: time.Millisecond, Window: time.Minute},
		DirectoryTimeout:    2 * time.Second,
		ActivityQueueSize:   64,
		SweepInterval:       time.Minute,
		PepperFile:          b.pepperFile,
		BootstrapEmail:      adminEmail,
		BootstrapPassword:   adminPassword,
		Env:                 "test",
		LogLevel:            "error",
		Port:                8080,
		ShutdownGracePeriod: 5 * time.Second,
	}

	application, err := app.New(cfg)
	require.NoError(t, err)
	application.Start()

	srv := httptest.NewServer(application.Handler())
	t.Cleanup(func() {
		srv.Close()
		require.NoError(t, application.Shutdown())
	})

	st, err := postgres.NewStore(context.Background(), b.postgresURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	return &gate{client: gatesdk.NewSDKClient(srv.URL), store: st}
}

// seed inserts a verified user straight into the directory.
func (g *gate) seed(t *testing.T, role domain.Role, mutate func(*domain.User)) domain.User {
	t.Helper()
	hash, err := cryptox.HashPassword(userPassword)
	require.NoError(t, err)

	u := domain.User{
		ID:                 idx.New().String(),
		Email:              idx.New().String() + "@example.com",
		Name:               "E2E " + string(role),
		PasswordHash:       hash,
		Role:               role,
		Department:         role.Department(),
		EmailVerified:      true,
		VerificationStatus: domain.VerificationApproved,
	}
	if mutate != nil {
		mutate(&u)
	}
	require.NoError(t, g.store.Users().CreateUser(context.Background(), u))
	return u
}

func (g *gate) login(t *testing.T, email, password string) *gatesdk.Session {
	t.Helper()
	s, err := g.client.Login(context.Background(), email, password, "")
	require.NoError(t, err)
	return s
}

func requireAPIError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var apiErr *gatesdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, status, apiErr.StatusCode)
	require.Equal(t, code, apiErr.Code)
}
