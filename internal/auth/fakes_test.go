package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeUsers struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[int64]User)}
}

func (f *fakeUsers) FindUserByID(_ context.Context, id int64) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) FindUserByUsername(_ context.Context, username string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (f *fakeUsers) FindUserByUsernameOrEmail(_ context.Context, value string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Username == value || strings.EqualFold(u.Email, value) {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (f *fakeUsers) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := f.FindUserByUsername(ctx, username)
	return err == nil, nil
}

func (f *fakeUsers) ExistsByEmail(_ context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUsers) CreateUser(_ context.Context, u User) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Username == u.Username {
			return User{}, ErrDuplicateUsername
		}
		if strings.EqualFold(existing.Email, u.Email) {
			return User{}, ErrDuplicateEmail
		}
	}
	f.nextID++
	u.ID = f.nextID
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeUsers) RecordLoginFailure(_ context.Context, userID int64) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	u.IncrementFailedLoginAttempts()
	f.byID[userID] = u
	return u, nil
}

func (f *fakeUsers) RecordLoginSuccess(_ context.Context, userID int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.RecordLogin(at)
	f.byID[userID] = u
	return nil
}

func (f *fakeUsers) EnsureUser(ctx context.Context, u User) (bool, error) {
	if exists, _ := f.ExistsByUsername(ctx, u.Username); exists {
		return false, nil
	}
	_, err := f.CreateUser(ctx, u)
	return err == nil, err
}

func (f *fakeUsers) update(id int64, mutate func(*User)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.byID[id]
	mutate(&u)
	f.byID[id] = u
}

func (f *fakeUsers) get(id int64) User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id]
}

// plainHasher keeps tests fast; bcrypt is covered in password_test.go.
type plainHasher struct{}

func (plainHasher) Hash(plain string) (string, error) { return "plain:" + plain, nil }

func (plainHasher) Compare(hash, plain string) bool { return hash == "plain:"+plain }

const testSecret = "0123456789abcdef0123456789abcdef-test"

func newTestService(clock *fakeClock) (*Service, *fakeUsers, *MemoryRefreshTokens) {
	return newTestServiceWith(clock, plainHasher{})
}

func newTestServiceWith(clock *fakeClock, hasher PasswordHasher) (*Service, *fakeUsers, *MemoryRefreshTokens) {
	tokens, err := NewTokenService(testSecret, time.Hour, false)
	if err != nil {
		panic(err)
	}
	tokens.WithClock(clock.Now)

	store := NewMemoryRefreshTokens()
	refresh := NewRefreshTokens(store, 7*24*time.Hour).WithClock(clock.Now)
	users := newFakeUsers()

	return NewService(users, tokens, refresh, hasher).WithClock(clock.Now), users, store
}
