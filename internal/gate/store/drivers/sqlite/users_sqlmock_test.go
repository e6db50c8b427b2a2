package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aussiebroadwan/eventgate/internal/gate/store"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return newStoreFromDB(db, "sqlmock"), mock
}

func TestFindUserByIDPropagatesDriverErrors(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \?`).
		WithArgs("u-1").
		WillReturnError(errors.New("database is locked"))

	_, err := st.Users().FindUserByID(context.Background(), "u-1")
	require.Error(t, err)
	require.NotErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindUserByIDMapsNoRows(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \?`).
		WithArgs("u-1").
		WillReturnError(sql.ErrNoRows)

	_, err := st.Users().FindUserByID(context.Background(), "u-1")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindUserByIDRejectsCorruptMetadata(t *testing.T) {
	st, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{
		"id", "email", "name", "password_hash", "role", "department", "token_version",
		"email_verified", "verification_status", "last_activity_ms", "suspended", "totp_secret",
		"metadata", "created_at_ms", "updated_at_ms",
	}).AddRow("u-1", "a@example.com", "", "h", "ORGANIZER", nil, int64(1),
		true, "APPROVED", nil, false, nil, "{not json", int64(0), int64(0))

	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \?`).WithArgs("u-1").WillReturnRows(rows)

	_, err := st.Users().FindUserByID(context.Background(), "u-1")
	require.ErrorContains(t, err, "decode metadata")
}

func TestTouchLastActivityPropagatesErrors(t *testing.T) {
	st, mock := newMockStore(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectExec(`UPDATE users SET last_activity_ms = \?`).
		WithArgs(at.UnixMilli(), "u-1", at.UnixMilli()).
		WillReturnError(errors.New("disk I/O error"))

	err := st.Users().TouchLastActivity(context.Background(), "u-1", at)
	require.ErrorContains(t, err, "disk I/O error")
	require.NoError(t, mock.ExpectationsWereMet())
}
