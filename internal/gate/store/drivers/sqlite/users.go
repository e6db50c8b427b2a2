package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aussiebroadwan/eventgate/internal/gate/domain"
	"github.com/aussiebroadwan/eventgate/internal/gate/store"
)

const userColumns = `id, email, name, password_hash, role, department, token_version,
	email_verified, verification_status, last_activity_ms, suspended, totp_secret,
	metadata, created_at_ms, updated_at_ms`

const (
	queryUserByID    = `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	queryUserByEmail = `SELECT ` + userColumns + ` FROM users WHERE email = ? COLLATE NOCASE`

	queryInsertUser = `INSERT INTO users (id, email, name, password_hash, role, department,
	token_version, email_verified, verification_status, last_activity_ms, suspended,
	totp_secret, metadata, created_at_ms, updated_at_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryTouch = `UPDATE users SET last_activity_ms = ?
	WHERE id = ? AND (last_activity_ms IS NULL OR last_activity_ms < ?)`

	queryBumpVersion = `UPDATE users SET token_version = token_version + 1, updated_at_ms = ?
	WHERE id = ? RETURNING token_version`

	queryUpdatePassword = `UPDATE users SET password_hash = ?, token_version = token_version + 1, updated_at_ms = ?
	WHERE id = ? RETURNING token_version`

	querySuspend = `UPDATE users SET suspended = 1, token_version = token_version + 1, updated_at_ms = ?
	WHERE id = ? RETURNING token_version`

	queryReinstate = `UPDATE users SET suspended = 0, updated_at_ms = ?
	WHERE id = ? RETURNING token_version`

	querySetVerification = `UPDATE users SET verification_status = ?, updated_at_ms = ? WHERE id = ?`

	querySetTemporaryRole   = `UPDATE users SET metadata = json_set(metadata, '$.temporaryRole', ?), updated_at_ms = ? WHERE id = ?`
	queryClearTemporaryRole = `UPDATE users SET metadata = json_remove(metadata, '$.temporaryRole'), updated_at_ms = ? WHERE id = ?`

	queryCountUsers = `SELECT COUNT(*) FROM users`
)

type usersRepo struct {
	q   querier
	now func() time.Time
}

func (r *usersRepo) FindUserByID(ctx context.Context, id string) (domain.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx, queryUserByID, id))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) FindUserByEmail(ctx context.Context, email string) (domain.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx, queryUserByEmail, email))
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
		return fmt.Errorf("sqlite: encode metadata: %w", err)
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

	var lastActivity sql.NullInt64
	if !u.LastActivity.IsZero() {
		lastActivity = sql.NullInt64{Int64: toMillis(u.LastActivity), Valid: true}
	}

	_, err = r.q.ExecContext(ctx, queryInsertUser,
		u.ID,
		u.Email,
		u.Name,
		u.PasswordHash,
		string(u.Role),
		mapStringNull(string(u.Department)),
		u.TokenVersion,
		u.EmailVerified,
		string(u.VerificationStatus),
		lastActivity,
		u.Suspended,
		mapOptionalString(u.TOTPSecret),
		string(mdJSON),
		toMillis(u.CreatedAt),
		toMillis(now),
	)
	return mapUniqueViolation(err)
}

func (r *usersRepo) TouchLastActivity(ctx context.Context, id string, at time.Time) error {
	ms := toMillis(at)
	_, err := r.q.ExecContext(ctx, queryTouch, ms, id, ms)
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
	res, err := r.q.ExecContext(ctx, querySetVerification, string(status), toMillis(r.now()), id)
	return requireRow(res, err)
}

func (r *usersRepo) SetTemporaryRole(ctx context.Context, id string, role *domain.Role) error {
	var (
		res sql.Result
		err error
	)
	if role == nil {
		res, err = r.q.ExecContext(ctx, queryClearTemporaryRole, toMillis(r.now()), id)
	} else {
		res, err = r.q.ExecContext(ctx, querySetTemporaryRole, string(*role), toMillis(r.now()), id)
	}
	return requireRow(res, err)
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.q.QueryRowContext(ctx, queryCountUsers).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

func (r *usersRepo) returningVersion(ctx context.Context, query string, args ...any) (int64, error) {
	var version int64
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&version); err != nil {
		return 0, mapNotFound(err)
	}
	return version, nil
}

func requireRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u            domain.User
		role         string
		department   sql.NullString
		verification string
		lastActivity sql.NullInt64
		totp         sql.NullString
		metadata     string
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
		&totp,
		&metadata,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}

	u.Role = domain.Role(role)
	u.Department = domain.Department(mapNullString(department))
	u.VerificationStatus = domain.VerificationStatus(verification)
	u.LastActivity = fromNullMillis(lastActivity)
	u.TOTPSecret = mapNullStringPtr(totp)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)

	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &u.Metadata); err != nil {
			return domain.User{}, fmt.Errorf("sqlite: decode metadata for %s: %w", u.ID, err)
		}
	}
	u.TemporaryRole = domain.TemporaryRoleFromMetadata(u.Metadata)

	return u, nil
}
