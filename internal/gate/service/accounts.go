package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/eventgate/internal/gate/domain"
	"github.com/aussiebroadwan/eventgate/internal/gate/metrics"
	"github.com/aussiebroadwan/eventgate/internal/gate/policy"
	"github.com/aussiebroadwan/eventgate/internal/gate/store"
	"github.com/aussiebroadwan/eventgate/pkg/cryptox"
	"github.com/aussiebroadwan/eventgate/pkg/idx"
	"github.com/aussiebroadwan/eventgate/pkg/jwtx"
	"github.com/aussiebroadwan/eventgate/pkg/slogx"
	"github.com/pquerna/otp/totp"
)

var (
	ErrInvalidLogin     = errors.New("invalid_login")
	ErrOTPRequired      = errors.New("otp_required")
	ErrInvalidOTP       = errors.New("invalid_otp")
	ErrEmailNotVerified = errors.New("email_not_verified")
	ErrAccountSuspended = errors.New("account_suspended")
	ErrInvalidRefresh   = errors.New("invalid_refresh_token")
	ErrWrongPassword    = errors.New("wrong_password")
	ErrInvalidPassword  = errors.New("invalid_password")
	ErrCannotManage     = errors.New("cannot_manage_user")
	ErrUserNotFound     = errors.New("user_not_found")
	ErrNotOrganizer     = errors.New("not_an_organizer")
)

// TokenIssuer is satisfied by *jwtx.Codec.
type TokenIssuer interface {
	TokenVerifier
	IssueAccessToken(userID string, tokenVersion int64) (string, error)
	IssueRefreshToken(userID string, tokenVersion int64) (string, error)
}

// AccountService owns every directory mutation the gate performs: logins,
// refreshes and the operations that bump token versions.
type AccountService struct {
	Store          store.Store
	Tokens         TokenIssuer
	SessionTimeout time.Duration
	Now            func() time.Time
}

func (s *AccountService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AccountService) timeout() time.Duration {
	if s.SessionTimeout > 0 {
		return s.SessionTimeout
	}
	return DefaultSessionTimeout
}

// Login checks credentials, starts the activity window and issues a pair.
// otp is only consulted for users with TOTP enrolled.
func (s *AccountService) Login(ctx context.Context, email, password, otp string) (domain.TokenPair, domain.User, error) {
	l := slogx.FromContext(ctx)

	u, err := s.login(ctx, email, password, otp)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues(loginResult(err)).Inc()
		l.Info("login refused", slog.String("result", loginResult(err)), slog.Any("error", err))
		return domain.TokenPair{}, domain.User{}, err
	}

	now := s.now()
	if err := s.Store.Users().TouchLastActivity(ctx, u.ID, now); err != nil {
		return domain.TokenPair{}, domain.User{}, fmt.Errorf("record login activity: %w", err)
	}
	u.LastActivity = now

	pair, err := s.issuePair(u.ID, u.TokenVersion)
	if err != nil {
		return domain.TokenPair{}, domain.User{}, err
	}

	metrics.LoginsTotal.WithLabelValues("ok").Inc()
	l.Info("login succeeded", slog.String("user_id", u.ID), slog.Int64("token_version", u.TokenVersion))
	return pair, u, nil
}

func (s *AccountService) login(ctx context.Context, email, password, otp string) (domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return domain.User{}, ErrInvalidLogin
	}

	u, err := s.Store.Users().FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrInvalidLogin
		}
		return domain.User{}, err
	}

	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrInvalidHash) {
			slogx.FromContext(ctx).Error("stored password hash is unreadable", slog.String("user_id", u.ID), slog.Any("error", err))
		}
		return domain.User{}, ErrInvalidLogin
	}

	if u.TOTPSecret != nil && *u.TOTPSecret != "" {
		otp = strings.TrimSpace(otp)
		if otp == "" {
			return domain.User{}, ErrOTPRequired
		}
		if !totp.Validate(otp, *u.TOTPSecret) {
			return domain.User{}, ErrInvalidOTP
		}
	}

	if u.Suspended {
		return domain.User{}, ErrAccountSuspended
	}
	if !u.EmailVerified {
		return domain.User{}, ErrEmailNotVerified
	}
	return u, nil
}

func loginResult(err error) string {
	for _, known := range []error{ErrInvalidLogin, ErrOTPRequired, ErrInvalidOTP, ErrAccountSuspended, ErrEmailNotVerified} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "error"
}

// Refresh trades a refresh token for a new pair. The account has to pass
// the same checks as a request would, including the inactivity window.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	claims, err := s.Tokens.Verify(refreshToken, jwtx.KindRefresh)
	if err != nil {
		return domain.TokenPair{}, ErrInvalidRefresh
	}

	u, err := s.Store.Users().FindUserByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenPair{}, ErrInvalidRefresh
		}
		return domain.TokenPair{}, err
	}

	now := s.now()
	if err := CheckSession(u, claims.TokenVersion, now, s.timeout()); err != nil {
		slogx.FromContext(ctx).Info("refresh refused",
			slog.String("user_id", u.ID),
			slog.String("reason", domain.Reason(err)),
		)
		return domain.TokenPair{}, fmt.Errorf("%w: %w", ErrInvalidRefresh, err)
	}

	if err := s.Store.Users().TouchLastActivity(ctx, u.ID, now); err != nil {
		return domain.TokenPair{}, fmt.Errorf("record refresh activity: %w", err)
	}

	return s.issuePair(u.ID, u.TokenVersion)
}

// LogoutEverywhere invalidates every token the user holds.
func (s *AccountService) LogoutEverywhere(ctx context.Context, userID string) (int64, error) {
	version, err := s.Store.Users().BumpTokenVersion(ctx, userID)
	if err != nil {
		return 0, mapUserErr(err)
	}
	slogx.FromContext(ctx).Info("logged out everywhere", slog.String("user_id", userID), slog.Int64("token_version", version))
	return version, nil
}

// ChangePassword replaces the password, which bumps the token version, and
// returns a fresh pair so the caller's own session survives.
func (s *AccountService) ChangePassword(ctx context.Context, userID, current, next string) (domain.TokenPair, error) {
	if next == "" || next == current {
		return domain.TokenPair{}, ErrInvalidPassword
	}

	u, err := s.Store.Users().FindUserByID(ctx, userID)
	if err != nil {
		return domain.TokenPair{}, mapUserErr(err)
	}
	if err := cryptox.VerifyPassword(current, u.PasswordHash); err != nil {
		return domain.TokenPair{}, ErrWrongPassword
	}

	hash, err := cryptox.HashPassword(next)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("hash password: %w", err)
	}

	var version int64
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		v, err := tx.Users().UpdatePasswordHash(ctx, userID, hash)
		if err != nil {
			return err
		}
		version = v
		return tx.Users().TouchLastActivity(ctx, userID, s.now())
	})
	if err != nil {
		return domain.TokenPair{}, mapUserErr(err)
	}

	slogx.FromContext(ctx).Info("password changed", slog.String("user_id", userID), slog.Int64("token_version", version))
	return s.issuePair(userID, version)
}

// Suspend blocks a user and invalidates their tokens. The actor has to be
// allowed to manage the target.
func (s *AccountService) Suspend(ctx context.Context, actor *domain.User, targetID string) (int64, error) {
	return s.setSuspended(ctx, actor, targetID, true)
}

// Reinstate lifts a suspension. Tokens invalidated by the suspension stay
// invalid; the user has to log in again.
func (s *AccountService) Reinstate(ctx context.Context, actor *domain.User, targetID string) (int64, error) {
	return s.setSuspended(ctx, actor, targetID, false)
}

func (s *AccountService) setSuspended(ctx context.Context, actor *domain.User, targetID string, suspended bool) (int64, error) {
	if actor == nil {
		return 0, ErrCannotManage
	}

	target, err := s.Store.Users().FindUserByID(ctx, targetID)
	if err != nil {
		return 0, mapUserErr(err)
	}
	if target.ID == actor.ID || !policy.CanManageUser(actor.Role, actor.Department, target.Role, target.Department) {
		return 0, fmt.Errorf("%w: %s (%s) on %s (%s)", ErrCannotManage, actor.ID, actor.Role, target.ID, target.Role)
	}

	version, err := s.Store.Users().SetSuspended(ctx, targetID, suspended)
	if err != nil {
		return 0, mapUserErr(err)
	}

	slogx.FromContext(ctx).Info("user suspension changed",
		slog.String("actor_id", actor.ID),
		slog.String("user_id", targetID),
		slog.Bool("suspended", suspended),
		slog.Int64("token_version", version),
	)
	return version, nil
}

// ApproveOrganizer marks an organizer account as verified.
func (s *AccountService) ApproveOrganizer(ctx context.Context, organizerID string) error {
	u, err := s.Store.Users().FindUserByID(ctx, organizerID)
	if err != nil {
		return mapUserErr(err)
	}
	if u.Role != domain.RoleOrganizer {
		return ErrNotOrganizer
	}
	if err := s.Store.Users().SetVerificationStatus(ctx, organizerID, domain.VerificationApproved); err != nil {
		return mapUserErr(err)
	}
	slogx.FromContext(ctx).Info("organizer approved", slog.String("user_id", organizerID))
	return nil
}

// SetParticipantMode toggles the temporary participant role. Only users who
// could act as organizers have anything to switch away from.
func (s *AccountService) SetParticipantMode(ctx context.Context, u *domain.User, enabled bool) error {
	if u == nil {
		return ErrUserNotFound
	}
	var role *domain.Role
	if enabled {
		if !u.Role.IsOrganizerTier() {
			return ErrNotOrganizer
		}
		p := domain.RoleParticipant
		role = &p
	}
	if err := s.Store.Users().SetTemporaryRole(ctx, u.ID, role); err != nil {
		return mapUserErr(err)
	}
	slogx.FromContext(ctx).Info("participant mode changed", slog.String("user_id", u.ID), slog.Bool("enabled", enabled))
	return nil
}

// RequestPasswordReset and ResendVerification only record intent. Delivery
// belongs to the notification service, and the caller learns nothing about
// whether the address exists.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) {
	s.noteMailRequest(ctx, "password_reset", email)
}

func (s *AccountService) ResendVerification(ctx context.Context, email string) {
	s.noteMailRequest(ctx, "email_verification", email)
}

func (s *AccountService) noteMailRequest(ctx context.Context, kind, email string) {
	l := slogx.FromContext(ctx)
	u, err := s.Store.Users().FindUserByEmail(ctx, strings.TrimSpace(email))
	switch {
	case errors.Is(err, store.ErrNotFound):
		l.Debug("mail request for unknown address", slog.String("kind", kind))
	case err != nil:
		l.Warn("mail request lookup failed", slog.String("kind", kind), slog.Any("error", err))
	default:
		l.Info("mail request accepted", slog.String("kind", kind), slog.String("user_id", u.ID))
	}
}

// Bootstrap creates the first SUPER_ADMIN when the directory is empty. It
// reports whether a user was created.
func (s *AccountService) Bootstrap(ctx context.Context, admin domain.BootstrapAdmin) (bool, error) {
	l := slogx.FromContext(ctx)
	if admin.Email == "" || admin.Password == "" {
		return false, nil
	}

	hash, err := cryptox.HashPassword(admin.Password)
	if err != nil {
		return false, fmt.Errorf("hash bootstrap password: %w", err)
	}

	var created bool
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		empty, err := tx.Users().IsEmpty(ctx)
		if err != nil || !empty {
			return err
		}

		name := admin.Name
		if name == "" {
			name = "Super Admin"
		}
		u := domain.User{
			ID:                 idx.New().String(),
			Email:              admin.Email,
			Name:               name,
			PasswordHash:       hash,
			Role:               domain.RoleSuperAdmin,
			EmailVerified:      true,
			VerificationStatus: domain.VerificationApproved,
		}
		if err := tx.Users().CreateUser(ctx, u); err != nil {
			return err
		}
		created = true
		l.Info("bootstrapped super admin", slog.String("user_id", u.ID), slog.String("email", u.Email))
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (s *AccountService) issuePair(userID string, version int64) (domain.TokenPair, error) {
	access, err := s.Tokens.IssueAccessToken(userID, version)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.Tokens.IssueRefreshToken(userID, version)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func mapUserErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}
