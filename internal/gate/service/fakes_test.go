package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/eventgate/internal/gate/domain"
	"github.com/aussiebroadwan/eventgate/internal/gate/store"
	"github.com/aussiebroadwan/eventgate/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

// clock is a manually advanced time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeDirectory struct {
	mu      sync.Mutex
	users   map[string]domain.User
	err     error
	lookups int
	lastCtx context.Context
}

func newFakeDirectory(users ...domain.User) *fakeDirectory {
	d := &fakeDirectory{users: map[string]domain.User{}}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *fakeDirectory) FindUserByID(ctx context.Context, id string) (domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups++
	d.lastCtx = ctx
	if d.err != nil {
		return domain.User{}, d.err
	}
	u, ok := d.users[id]
	if !ok {
		return domain.User{}, store.ErrNotFound
	}
	return u, nil
}

func (d *fakeDirectory) TouchLastActivity(_ context.Context, id string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return store.ErrNotFound
	}
	if at.After(u.LastActivity) {
		u.LastActivity = at
		d.users[id] = u
	}
	return nil
}

func (d *fakeDirectory) update(id string, fn func(*domain.User)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := d.users[id]
	fn(&u)
	d.users[id] = u
}

func (d *fakeDirectory) get(id string) domain.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.users[id]
}

type recordedTouch struct {
	userID string
	at     time.Time
}

type fakeSink struct {
	mu      sync.Mutex
	touches []recordedTouch
}

func (s *fakeSink) Record(userID string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touches = append(s.touches, recordedTouch{userID: userID, at: at})
	return true
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.touches)
}

func newCodec(t *testing.T, c *clock) *jwtx.Codec {
	t.Helper()
	codec, err := jwtx.NewCodec(jwtx.CodecConfig{
		AccessSecret:  []byte("access-secret-for-tests"),
		AccessTTL:     time.Hour,
		RefreshSecret: []byte("refresh-secret-for-tests"),
		RefreshTTL:    24 * time.Hour,
		Issuer:        "eventgate-test",
		Now:           c.Now,
	})
	require.NoError(t, err)
	return codec
}
