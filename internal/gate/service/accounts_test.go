package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/eventgate/internal/gate/domain"
	"github.com/aussiebroadwan/eventgate/internal/gate/service"
	"github.com/aussiebroadwan/eventgate/internal/gate/store/drivers/sqlite"
	"github.com/aussiebroadwan/eventgate/pkg/cryptox"
	"github.com/aussiebroadwan/eventgate/pkg/idx"
	"github.com/aussiebroadwan/eventgate/pkg/jwtx"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct horse battery staple"

type accountsFixture struct {
	clock    *clock
	store    *sqlite.Store
	codec    *jwtx.Codec
	accounts *service.AccountService
}

func newAccountsFixture(t *testing.T) *accountsFixture {
	t.Helper()
	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	c := newClock()
	codec := newCodec(t, c)
	return &accountsFixture{
		clock: c,
		store: st,
		codec: codec,
		accounts: &service.AccountService{
			Store:          st,
			Tokens:         codec,
			SessionTimeout: 30 * time.Minute,
			Now:            c.Now,
		},
	}
}

func (f *accountsFixture) seed(t *testing.T, role domain.Role, mutate func(*domain.User)) domain.User {
	t.Helper()
	hash, err := cryptox.HashPassword(testPassword)
	require.NoError(t, err)

	u := domain.User{
		ID:                 idx.New().String(),
		Email:              string(role) + "-" + idx.New().String() + "@example.com",
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

func (f *accountsFixture) reload(t *testing.T, id string) domain.User {
	t.Helper()
	u, err := f.store.Users().FindUserByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	f := newAccountsFixture(t)
	u := f.seed(t, domain.RoleOrganizer, nil)

	pair, got, err := f.accounts.Login(ctx, u.Email, testPassword, "")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	claims, err := f.codec.Verify(pair.AccessToken, jwtx.KindAccess)
	require.NoError(t, err)
	require.Equal(t, int64(1), claims.TokenVersion)

	_, err = f.codec.Verify(pair.RefreshToken, jwtx.KindRefresh)
	require.NoError(t, err)

	require.WithinDuration(t, f.clock.Now(), f.reload(t, u.ID).LastActivity, time.Millisecond)

	t.Run("wrong password", func(t *testing.T) {
		_, _, err := f.accounts.Login(ctx, u.Email, "nope", "")
		require.ErrorIs(t, err, service.ErrInvalidLogin)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, _, err := f.accounts.Login(ctx, "ghost@example.com", testPassword, "")
		require.ErrorIs(t, err, service.ErrInvalidLogin)
	})

	t.Run("suspended", func(t *testing.T) {
		s := f.seed(t, domain.RoleParticipant, func(u *domain.User) { u.Suspended = true })
		_, _, err := f.accounts.Login(ctx, s.Email, testPassword, "")
		require.ErrorIs(t, err, service.ErrAccountSuspended)
	})

	t.Run("unverified email", func(t *testing.T) {
		s := f.seed(t, domain.RoleParticipant, func(u *domain.User) { u.EmailVerified = false })
		_, _, err := f.accounts.Login(ctx, s.Email, testPassword, "")
		require.ErrorIs(t, err, service.ErrEmailNotVerified)
	})
}

func TestLoginWithTOTP(t *testing.T) {
	ctx := context.Background()
	f := newAccountsFixture(t)

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "eventgate", AccountName: "head@example.com"})
	require.NoError(t, err)
	secret := key.Secret()
	u := f.seed(t, domain.RoleCSHead, func(u *domain.User) { u.TOTPSecret = &secret })

	_, _, err = f.accounts.Login(ctx, u.Email, testPassword, "")
	require.ErrorIs(t, err, service.ErrOTPRequired)

	_, _, err = f.accounts.Login(ctx, u.Email, testPassword, "000000x")
	require.ErrorIs(t, err, service.ErrInvalidOTP)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	_, _, err = f.accounts.Login(ctx, u.Email, testPassword, code)
	require.NoError(t, err)
}

func TestIdleThenRelogin(t *testing.T) {
	ctx := context.Background()
	f := newAccountsFixture(t)
	u := f.seed(t, domain.RoleParticipant, nil)

	pair, _, err := f.accounts.Login(ctx, u.Email, testPassword, "")
	require.NoError(t, err)

	validator := service.NewSessionValidator(f.codec, f.store.Users(), nil, service.SessionConfig{
		Timeout: 30 * time.Minute,
		Now:     f.clock.Now,
	})

	f.clock.Advance(31 * time.Minute)
	_, err = validator.Validate(ctx, "Bearer "+pair.AccessToken, service.ModeRequired)
	require.ErrorIs(t, err, domain.ErrSessionExpired)

	_, err = f.accounts.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, service.ErrInvalidRefresh)
	require.ErrorIs(t, err, domain.ErrSessionExpired)

	again, _, err := f.accounts.Login(ctx, u.Email, testPassword, "")
	require.NoError(t, err)
	require.WithinDuration(t, f.clock.Now(), f.reload(t, u.ID).LastActivity, time.Millisecond)

	got, err := validator.Validate(ctx, "Bearer "+again.AccessToken, service.ModeRequired)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	// The old access token is still cryptographically valid and the window
	// is open again, so it works too: inactivity is per user, not per token.
	_, err = validator.Validate(ctx, "Bearer "+pair.AccessToken, service.ModeRequired)
	require.NoError(t, err)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	f := newAccountsFixture(t)
	u := f.seed(t, domain.RoleOrganizer, nil)

	pair, _, err := f.accounts.Login(ctx, u.Email, testPassword, "")
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	next, err := f.accounts.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.AccessToken, next.AccessToken)
	require.WithinDuration(t, f.clock.Now(), f.reload(t, u.ID).LastActivity, time.Millisecond)

	t.Run("access token is not a refresh token", func(t *testing.T) {
		_, err := f.accounts.Refresh(ctx, pair.AccessToken)
		require.ErrorIs(t, err, service.ErrInvalidRefresh)
	})

	t.Run("stale after logout everywhere", func(t *testing.T) {
		version, err := f.accounts.LogoutEverywhere(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, int64(2), version)

		_, err = f.accounts.Refresh(ctx, next.RefreshToken)
		require.ErrorIs(t, err, service.ErrInvalidRefresh)
		require.ErrorIs(t, err, domain.ErrStaleVersion)
	})
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	f := newAccountsFixture(t)
	u := f.seed(t, domain.RoleParticipant, nil)

	_, err := f.accounts.ChangePassword(ctx, u.ID, "wrong", "new-password-123")
	require.ErrorIs(t, err, service.ErrWrongPassword)

	_, err = f.accounts.ChangePassword(ctx, u.ID, testPassword, testPassword)
	require.ErrorIs(t, err, service.ErrInvalidPassword)

	pair, err := f.accounts.ChangePassword(ctx, u.ID, testPassword, "new-password-123")
	require.NoError(t, err)

	claims, err := f.codec.Verify(pair.AccessToken, jwtx.KindAccess)
	require.NoError(t, err)
	require.Equal(t, int64(2), claims.TokenVersion)
	require.Equal(t, int64(2), f.reload(t, u.ID).TokenVersion)

	_, _, err = f.accounts.Login(ctx, u.Email, testPassword, "")
	require.ErrorIs(t, err, service.ErrInvalidLogin)
	_, _, err = f.accounts.Login(ctx, u.Email, "new-password-123", "")
	require.NoError(t, err)
}

func TestSuspendAndReinstate(t *testing.T) {
	ctx := context.Background()
	f := newAccountsFixture(t)

	head := f.seed(t, domain.RoleCSHead, nil)
	senior := f.seed(t, domain.RoleCSSeniorAgent, nil)
	agent := f.seed(t, domain.RoleCSAgent, nil)
	opsAgent := f.seed(t, domain.RoleOpsAgent, nil)

	t.Run("senior cannot suspend senior", func(t *testing.T) {
		other := f.seed(t, domain.RoleCSSeniorAgent, nil)
		_, err := f.accounts.Suspend(ctx, &senior, other.ID)
		require.ErrorIs(t, err, service.ErrCannotManage)
	})

	t.Run("head cannot cross departments", func(t *testing.T) {
		_, err := f.accounts.Suspend(ctx, &head, opsAgent.ID)
		require.ErrorIs(t, err, service.ErrCannotManage)
	})

	t.Run("nobody suspends themselves", func(t *testing.T) {
		_, err := f.accounts.Suspend(ctx, &head, head.ID)
		require.ErrorIs(t, err, service.ErrCannotManage)
	})

	t.Run("unknown target", func(t *testing.T) {
		_, err := f.accounts.Suspend(ctx, &head, idx.New().String())
		require.ErrorIs(t, err, service.ErrUserNotFound)
	})

	version, err := f.accounts.Suspend(ctx, &senior, agent.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), version)
	require.True(t, f.reload(t, agent.ID).Suspended)

	version, err = f.accounts.Reinstate(ctx, &head, agent.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), version, "reinstating does not revive old tokens")
	require.False(t, f.reload(t, agent.ID).Suspended)
}

func TestApproveOrganizer(t *testing.T) {
	ctx := context.Background()
	f := newAccountsFixture(t)

	org := f.seed(t, domain.RoleOrganizer, func(u *domain.User) { u.VerificationStatus = domain.VerificationPending })
	require.NoError(t, f.accounts.ApproveOrganizer(ctx, org.ID))
	require.Equal(t, domain.VerificationApproved, f.reload(t, org.ID).VerificationStatus)

	p := f.seed(t, domain.RoleParticipant, nil)
	require.ErrorIs(t, f.accounts.ApproveOrganizer(ctx, p.ID), service.ErrNotOrganizer)
	require.ErrorIs(t, f.accounts.ApproveOrganizer(ctx, idx.New().String()), service.ErrUserNotFound)
}

func TestSetParticipantMode(t *testing.T) {
	ctx := context.Background()
	f := newAccountsFixture(t)

	org := f.seed(t, domain.RoleOrganizer, func(u *domain.User) { u.Metadata = map[string]any{"locale": "en-AU"} })

	require.NoError(t, f.accounts.SetParticipantMode(ctx, &org, true))
	got := f.reload(t, org.ID)
	require.True(t, got.InParticipantMode())
	require.Equal(t, "en-AU", got.Metadata["locale"])

	require.NoError(t, f.accounts.SetParticipantMode(ctx, &org, false))
	got = f.reload(t, org.ID)
	require.False(t, got.InParticipantMode())
	require.Nil(t, got.TemporaryRole)

	p := f.seed(t, domain.RoleParticipant, nil)
	require.ErrorIs(t, f.accounts.SetParticipantMode(ctx, &p, true), service.ErrNotOrganizer)
	require.NoError(t, f.accounts.SetParticipantMode(ctx, &p, false))
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	f := newAccountsFixture(t)

	created, err := f.accounts.Bootstrap(ctx, domain.BootstrapAdmin{})
	require.NoError(t, err)
	require.False(t, created, "nothing configured")

	admin := domain.BootstrapAdmin{Email: "root@example.com", Password: "bootstrap-password"}
	created, err = f.accounts.Bootstrap(ctx, admin)
	require.NoError(t, err)
	require.True(t, created)

	created, err = f.accounts.Bootstrap(ctx, admin)
	require.NoError(t, err)
	require.False(t, created, "directory no longer empty")

	_, u, err := f.accounts.Login(ctx, "ROOT@example.com", "bootstrap-password", "")
	require.NoError(t, err)
	require.Equal(t, domain.RoleSuperAdmin, u.Role)
}
