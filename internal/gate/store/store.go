package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/eventgate/internal/gate/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement it. Repositories hang off it as methods so a Tx can
// hand out the same repositories bound to the transaction.
type Store interface {
	Users() Users

	ApplyMigrations() error

	// WithTx executes fn within a transaction. fn returning an error rolls
	// back, nil commits. Nested transactions are not supported.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store.
type Tx interface {
	Users() Users
}

// Users is the user directory. The session path only ever calls
// FindUserByID and TouchLastActivity; everything else serves account
// management.
type Users interface {
	// FindUserByID returns ErrNotFound when no such user exists.
	FindUserByID(ctx context.Context, id string) (domain.User, error)

	// FindUserByEmail is case-insensitive.
	FindUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts u. ErrAlreadyExists on a duplicate email.
	CreateUser(ctx context.Context, u domain.User) error

	// TouchLastActivity moves last_activity forward to at. Older
	// timestamps are ignored, so concurrent writers settle on the latest.
	TouchLastActivity(ctx context.Context, id string, at time.Time) error

	// BumpTokenVersion invalidates every outstanding token for the user and
	// returns the new version.
	BumpTokenVersion(ctx context.Context, id string) (int64, error)

	// UpdatePasswordHash stores a new hash and bumps the token version in
	// the same statement.
	UpdatePasswordHash(ctx context.Context, id, hash string) (int64, error)

	// SetSuspended toggles suspension. Suspending bumps the token version.
	SetSuspended(ctx context.Context, id string, suspended bool) (int64, error)

	SetVerificationStatus(ctx context.Context, id string, status domain.VerificationStatus) error

	// SetTemporaryRole writes metadata.temporaryRole, or removes it when
	// role is nil. Other metadata keys are preserved.
	SetTemporaryRole(ctx context.Context, id string, role *domain.Role) error

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}
