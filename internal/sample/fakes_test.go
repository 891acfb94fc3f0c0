package sample

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"samples-backend/internal/auth"
	"samples-backend/internal/media"
)

type fakeRepo struct {
	mu        sync.Mutex
	nextID    int64
	byID      map[int64]Sample
	usernames map[int64]string
	clock     time.Time
	failNext  error
}

func newFakeRepo(users map[int64]string) *fakeRepo {
	return &fakeRepo{
		byID:      make(map[int64]Sample),
		usernames: users,
		clock:     time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fakeRepo) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeRepo) takeFailure() error {
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeRepo) Create(_ context.Context, s Sample) (Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return Sample{}, err
	}
	f.nextID++
	s.ID = f.nextID
	s.Username = f.usernames[s.UserID]
	s.CreatedAt = f.tick()
	s.UpdatedAt = s.CreatedAt
	f.byID[s.ID] = s
	return s, nil
}

func (f *fakeRepo) FindByID(_ context.Context, id int64) (Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return Sample{}, ErrNotFound
	}
	return s, nil
}

func (f *fakeRepo) sorted(match func(Sample) bool) []Sample {
	out := make([]Sample, 0)
	for _, s := range f.byID {
		if match(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func paginate(all []Sample, page, size int) []Sample {
	start := page * size
	if start >= len(all) {
		return []Sample{}
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

func (f *fakeRepo) List(_ context.Context, page, size int) ([]Sample, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.sorted(func(Sample) bool { return true })
	return paginate(all, page, size), int64(len(all)), nil
}

func (f *fakeRepo) ListByUser(_ context.Context, userID int64, page, size int) ([]Sample, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.sorted(func(s Sample) bool { return s.UserID == userID })
	return paginate(all, page, size), int64(len(all)), nil
}

func (f *fakeRepo) ListAllByUser(_ context.Context, userID int64) ([]Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted(func(s Sample) bool { return s.UserID == userID }), nil
}

func (f *fakeRepo) Update(_ context.Context, s Sample) (Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return Sample{}, err
	}
	if _, ok := f.byID[s.ID]; !ok {
		return Sample{}, ErrNotFound
	}
	s.UpdatedAt = f.tick()
	f.byID[s.ID] = s
	return s, nil
}

func (f *fakeRepo) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeUsers map[int64]string

func (f fakeUsers) FindUserByID(_ context.Context, id int64) (auth.User, error) {
	name, ok := f[id]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return auth.User{ID: id, Username: name}, nil
}

type fakeStore struct {
	mu         sync.Mutex
	uploads    int
	deleted    []string
	failUpload error
	failDelete error
}

func (f *fakeStore) Upload(_ context.Context, img media.Image, folder string) (media.Uploaded, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpload != nil {
		return media.Uploaded{}, f.failUpload
	}
	f.uploads++
	id := fmt.Sprintf("%s/img-%d", folder, f.uploads)
	return media.Uploaded{URL: "https://cdn.example/" + id + ".png", PublicID: id}, nil
}

func (f *fakeStore) Delete(_ context.Context, publicID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, publicID)
	return f.failDelete
}

func (f *fakeStore) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingLogger) Warn(message string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, message)
}

var errBoom = errors.New("boom")

var (
	alice = auth.Identity{ID: 1, Username: "alice", Role: auth.RoleUser}
	bob   = auth.Identity{ID: 2, Username: "bob", Role: auth.RoleUser}
)

func newTestService() (*Service, *fakeRepo, *fakeStore, *recordingLogger) {
	users := fakeUsers{1: "alice", 2: "bob"}
	repo := newFakeRepo(users)
	store := &fakeStore{}
	logger := &recordingLogger{}
	return NewService(repo, users, store, logger), repo, store, logger
}

func testImage() *media.Image {
	return &media.Image{Data: []byte("\x89PNG\r\n\x1a\n"), ContentType: "image/png", Filename: "kick.png"}
}
