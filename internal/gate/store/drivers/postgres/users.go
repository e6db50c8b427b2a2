package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aussiebroadwan/eventgate/internal/gate/domain"
	"github.com/aussiebroadwan/eventgate/internal/gate/store"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, email, name, password_hash, role, department, token_version,
	email_verified, verification_status, last_activity_ms, suspended, totp_secret,
	metadata, created_at_ms, updated_at_ms`

const (
	queryUserByID    = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	queryUserByEmail = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

	queryInsertUser = `INSERT INTO users (id, email, name, password_hash, role, department,
	token_version, email_verified, verification_status, last_activity_ms, suspended,
	totp_secret, metadata, created_at_ms, updated_at_ms)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	queryTouch = `UPDATE users SET last_activity_ms = $1
	WHERE id = $2 AND (last_activity_ms IS NULL OR last_activity_ms < $1)`

	queryBumpVersion = `UPDATE users SET token_version = token_version + 1, updated_at_ms = $1
	WHERE id = $2 RETURNING token_version`

	queryUpdatePassword = `UPDATE users SET password_hash = $1, token_version = token_version + 1, updated_at_ms = $2
	WHERE id = $3 RETURNING token_version`

	querySuspend = `UPDATE users SET suspended = TRUE, token_version = token_version + 1, updated_at_ms = $1
	WHERE id = $2 RETURNING token_version`

	queryReinstate = `UPDATE users SET suspended = FALSE, updated_at_ms = $1
	WHERE id = $2 RETURNING token_version`

	querySetVerification = `UPDATE users SET verification_status = $1, updated_at_ms = $2 WHERE id = $3`

	querySetTemporaryRole   = `UPDATE users SET metadata = jsonb_set(metadata, '{temporaryRole}', to_jsonb($1::text)), updated_at_ms = $2 WHERE id = $3`
	queryClearTemporaryRole = `UPDATE users SET metadata = metadata - 'temporaryRole', updated_at_ms = $1 WHERE id = $2`

	queryCountUsers = `SELECT COUNT(*) FROM users`
)

type usersRepo struct {
	q   querier
	now func() time.Time
}

func (r *usersRepo) FindUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.findOne(ctx, queryUserByID, id)
}

func (r *usersRepo) FindUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.findOne(ctx, queryUserByEmail, email)
}

func (r *usersRepo) findOne(ctx context.Context, query string, arg string) (domain.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, query, arg))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	md := u.Metadata
	if md == nil {
		md = map[string]any{}
	}
	mdJSON, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("postgres: encode metadata: %w", err)
	}

	now := r.now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.TokenVersion == 0 {
		u.TokenVersion = 1
	}
	if u.VerificationStatus == "" {
		u.VerificationStatus = domain.VerificationPending
	}

	var department, lastActivity any
	if u.Department != domain.DepartmentNone {
		department = string(u.Department)
	}
	if !u.LastActivity.IsZero() {
		lastActivity = toMillis(u.LastActivity)
	}

	_, err = r.q.Exec(ctx, queryInsertUser,
		u.ID,
		u.Email,
		u.Name,
		u.PasswordHash,
		string(u.Role),
		department,
		u.TokenVersion,
		u.EmailVerified,
		string(u.VerificationStatus),
		lastActivity,
		u.Suspended,
		u.TOTPSecret,
		mdJSON,
		toMillis(u.CreatedAt),
		toMillis(now),
	)
	return mapUniqueViolation(err)
}

func (r *usersRepo) TouchLastActivity(ctx context.Context, id string, at time.Time) error {
	_, err := r.q.Exec(ctx, queryTouch, toMillis(at), id)
	return err
}

func (r *usersRepo) BumpTokenVersion(ctx context.Context, id string) (int64, error) {
	return r.returningVersion(ctx, queryBumpVersion, toMillis(r.now()), id)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, id, hash string) (int64, error) {
	return r.returningVersion(ctx, queryUpdatePassword, hash, toMillis(r.now()), id)
}

func (r *usersRepo) SetSuspended(ctx context.Context, id string, suspended bool) (int64, error) {
	if suspended {
		return r.returningVersion(ctx, querySuspend, toMillis(r.now()), id)
	}
	return r.returningVersion(ctx, queryReinstate, toMillis(r.now()), id)
}

func (r *usersRepo) SetVerificationStatus(ctx context.Context, id string, status domain.VerificationStatus) error {
	tag, err := r.q.Exec(ctx, querySetVerification, string(status), toMillis(r.now()), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) SetTemporaryRole(ctx context.Context, id string, role *domain.Role) error {
	var err error
	var rows int64
	if role == nil {
		tag, execErr := r.q.Exec(ctx, queryClearTemporaryRole, toMillis(r.now()), id)
		rows, err = tag.RowsAffected(), execErr
	} else {
		tag, execErr := r.q.Exec(ctx, querySetTemporaryRole, string(*role), toMillis(r.now()), id)
		rows, err = tag.RowsAffected(), execErr
	}
	if err != nil {
		return err
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.q.QueryRow(ctx, queryCountUsers).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

func (r *usersRepo) returningVersion(ctx context.Context, query string, args ...any) (int64, error) {
	var version int64
	if err := r.q.QueryRow(ctx, query, args...).Scan(&version); err != nil {
		return 0, mapNotFound(err)
	}
	return version, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u            domain.User
		role         string
		department   *string
		verification string
		lastActivity *int64
		metadata     []byte
		createdAt    int64
		updatedAt    int64
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.PasswordHash,
		&role,
		&department,
		&u.TokenVersion,
		&u.EmailVerified,
		&verification,
		&lastActivity,
		&u.Suspended,
		&u.TOTPSecret,
		&metadata,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}

	u.Role = domain.Role(role)
	if department != nil {
		u.Department = domain.Department(*department)
	}
	u.VerificationStatus = domain.VerificationStatus(verification)
	if lastActivity != nil {
		u.LastActivity = fromMillis(*lastActivity)
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &u.Metadata); err != nil {
			return domain.User{}, fmt.Errorf("postgres: decode metadata for %s: %w", u.ID, err)
		}
	}
	u.TemporaryRole = domain.TemporaryRoleFromMetadata(u.Metadata)

	return u, nil
}
