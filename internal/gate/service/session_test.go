package service_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/eventgate/internal/gate/domain"
	"github.com/aussiebroadwan/eventgate/internal/gate/service"
	"github.com/aussiebroadwan/eventgate/pkg/cryptox"
	"github.com/aussiebroadwan/eventgate/pkg/slogx"
	"github.com/stretchr/testify/require"
)

type sessionFixture struct {
	clock     *clock
	dir       *fakeDirectory
	sink      *fakeSink
	validator *service.SessionValidator
	user      domain.User
	token     string
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	c := newClock()
	u := domain.User{
		ID:                 "01HZX3M5V8Q2B7N4K6J9T0R1SA",
		Email:              "cs.agent@example.com",
		Role:               domain.RoleCSAgent,
		TokenVersion:       1,
		EmailVerified:      true,
		VerificationStatus: domain.VerificationApproved,
		LastActivity:       c.Now(),
	}
	dir := newFakeDirectory(u)
	sink := &fakeSink{}
	codec := newCodec(t, c)

	token, err := codec.IssueAccessToken(u.ID, u.TokenVersion)
	require.NoError(t, err)

	v := service.NewSessionValidator(codec, dir, sink, service.SessionConfig{
		Timeout: 30 * time.Minute,
		Now:     c.Now,
	})
	return &sessionFixture{clock: c, dir: dir, sink: sink, validator: v, user: u, token: token}
}

func TestValidateAcceptsLiveSession(t *testing.T) {
	f := newSessionFixture(t)
	f.clock.Advance(5 * time.Minute)

	u, err := f.validator.Validate(context.Background(), "Bearer "+f.token, service.ModeRequired)
	require.NoError(t, err)
	require.NotNil(t, u)
	require.Equal(t, f.user.ID, u.ID)

	require.Equal(t, 1, f.sink.count())
	require.Equal(t, f.clock.Now(), f.sink.touches[0].at)
}

func TestValidateHeaderShapes(t *testing.T) {
	f := newSessionFixture(t)

	for _, header := range []string{"", "Bearer", "Bearer ", "Basic abc", f.token, "Bearer a b", "Token " + f.token} {
		t.Run("required "+header, func(t *testing.T) {
			u, err := f.validator.Validate(context.Background(), header, service.ModeRequired)
			require.Nil(t, u)
			require.ErrorIs(t, err, domain.ErrInvalidCredential)
		})
		t.Run("optional "+header, func(t *testing.T) {
			u, err := f.validator.Validate(context.Background(), header, service.ModeOptional)
			require.NoError(t, err)
			require.Nil(t, u)
		})
	}

	t.Run("scheme is case insensitive", func(t *testing.T) {
		u, err := f.validator.Validate(context.Background(), "bearer "+f.token, service.ModeRequired)
		require.NoError(t, err)
		require.NotNil(t, u)
	})

	require.Equal(t, 1, f.dir.lookups, "only the accepted header reached the directory")
}

func TestValidateRejectsRefreshToken(t *testing.T) {
	f := newSessionFixture(t)
	codec := newCodec(t, f.clock)
	refresh, err := codec.IssueRefreshToken(f.user.ID, f.user.TokenVersion)
	require.NoError(t, err)

	_, err = f.validator.Validate(context.Background(), "Bearer "+refresh, service.ModeRequired)
	require.ErrorIs(t, err, domain.ErrInvalidCredential)
}

func TestValidateVersionInvalidation(t *testing.T) {
	f := newSessionFixture(t)

	_, err := f.validator.Validate(context.Background(), "Bearer "+f.token, service.ModeRequired)
	require.NoError(t, err)

	f.dir.update(f.user.ID, func(u *domain.User) { u.TokenVersion++ })

	_, err = f.validator.Validate(context.Background(), "Bearer "+f.token, service.ModeRequired)
	require.ErrorIs(t, err, domain.ErrStaleVersion)
	require.Equal(t, "stale_version", domain.Reason(err))
	require.Equal(t, 1, f.sink.count(), "rejected requests never refresh activity")
}

func TestValidateSlidingTimeout(t *testing.T) {
	t.Run("exactly at the limit is still alive", func(t *testing.T) {
		f := newSessionFixture(t)
		f.clock.Advance(30 * time.Minute)

		_, err := f.validator.Validate(context.Background(), "Bearer "+f.token, service.ModeRequired)
		require.NoError(t, err)
	})

	t.Run("past the limit expires", func(t *testing.T) {
		f := newSessionFixture(t)
		f.clock.Advance(31 * time.Minute)

		_, err := f.validator.Validate(context.Background(), "Bearer "+f.token, service.ModeRequired)
		require.ErrorIs(t, err, domain.ErrSessionExpired)
		require.Zero(t, f.sink.count())
		require.Equal(t, f.user.LastActivity, f.dir.get(f.user.ID).LastActivity)
	})

	t.Run("activity slides the window", func(t *testing.T) {
		f := newSessionFixture(t)
		for range 3 {
			f.clock.Advance(18 * time.Minute)
			_, err := f.validator.Validate(context.Background(), "Bearer "+f.token, service.ModeRequired)
			require.NoError(t, err)
			// The sink stands in for the recorder; apply the write it queued.
			last := f.sink.touches[f.sink.count()-1]
			require.NoError(t, f.dir.TouchLastActivity(context.Background(), last.userID, last.at))
		}
	})

	t.Run("never recorded counts as expired", func(t *testing.T) {
		f := newSessionFixture(t)
		f.dir.update(f.user.ID, func(u *domain.User) { u.LastActivity = time.Time{} })

		_, err := f.validator.Validate(context.Background(), "Bearer "+f.token, service.ModeRequired)
		require.ErrorIs(t, err, domain.ErrSessionExpired)
	})
}

func TestValidateAccountState(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.User)
	}{
		{"suspended", func(u *domain.User) { u.Suspended = true }},
		{"email unverified", func(u *domain.User) { u.EmailVerified = false }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSessionFixture(t)
			f.dir.update(f.user.ID, tt.mutate)

			_, err := f.validator.Validate(context.Background(), "Bearer "+f.token, service.ModeRequired)
			require.ErrorIs(t, err, domain.ErrInvalidCredential)
		})
	}

	t.Run("deleted user", func(t *testing.T) {
		f := newSessionFixture(t)
		f.dir.mu.Lock()
		delete(f.dir.users, f.user.ID)
		f.dir.mu.Unlock()

		_, err := f.validator.Validate(context.Background(), "Bearer "+f.token, service.ModeRequired)
		require.ErrorIs(t, err, domain.ErrInvalidCredential)
	})
}

func TestValidateDirectoryDegraded(t *testing.T) {
	f := newSessionFixture(t)
	backendErr := errors.New("connection refused")
	f.dir.err = backendErr

	_, err := f.validator.Validate(context.Background(), "Bearer "+f.token, service.ModeRequired)
	require.ErrorIs(t, err, domain.ErrInvalidCredential)
	require.ErrorIs(t, err, backendErr)

	u, err := f.validator.Validate(context.Background(), "Bearer "+f.token, service.ModeOptional)
	require.NoError(t, err)
	require.Nil(t, u)
}

func TestValidateLookupSurvivesCancellation(t *testing.T) {
	f := newSessionFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	u, err := f.validator.Validate(ctx, "Bearer "+f.token, service.ModeRequired)
	require.NoError(t, err)
	require.NotNil(t, u)

	require.NoError(t, f.dir.lastCtx.Err(), "lookup context is detached from the request")
	_, hasDeadline := f.dir.lastCtx.Deadline()
	require.True(t, hasDeadline)
}

func TestCheckSession(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	base := domain.User{ID: "u1", TokenVersion: 4, EmailVerified: true, LastActivity: now.Add(-time.Minute)}

	require.NoError(t, service.CheckSession(base, 4, now, 30*time.Minute))
	require.ErrorIs(t, service.CheckSession(base, 3, now, 30*time.Minute), domain.ErrStaleVersion)
	require.ErrorIs(t, service.CheckSession(base, 5, now, 30*time.Minute), domain.ErrStaleVersion)
	require.ErrorIs(t, service.CheckSession(base, 4, now, 30*time.Second), domain.ErrSessionExpired)
}

func TestBearerToken(t *testing.T) {
	tok, ok := service.BearerToken("  Bearer abc.def.ghi ")
	require.True(t, ok)
	require.Equal(t, "abc.def.ghi", tok)

	_, ok = service.BearerToken("Bearerabc")
	require.False(t, ok)
}

func TestValidateLogsTokenFingerprint(t *testing.T) {
	f := newSessionFixture(t)
	f.dir.update(f.user.ID, func(u *domain.User) { u.TokenVersion++ })

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := slogx.WithContext(context.Background(), logger)

	for _, mode := range []service.Mode{service.ModeRequired, service.ModeOptional} {
		_, _ = f.validator.Validate(ctx, "Bearer "+f.token, mode)
	}

	out := buf.String()
	fp := cryptox.FingerprintToken(f.token)
	require.Equal(t, 2, strings.Count(out, `"token_fp":"`+fp+`"`), "both rejections carry the fingerprint")
	require.Contains(t, out, `"reason":"stale_version"`)
	require.NotContains(t, out, f.token, "the token itself never reaches the logs")

	t.Run("no token, no fingerprint", func(t *testing.T) {
		buf.Reset()
		_, _ = f.validator.Validate(ctx, "", service.ModeRequired)
		require.Contains(t, buf.String(), "session rejected")
		require.NotContains(t, buf.String(), "token_fp")
	})
}
