package service

import (
	"context"
	"io"
	"sync"

	"imagevault/internal/models"
	"imagevault/internal/queue"
	"imagevault/internal/repository"
	"imagevault/internal/storage"
)

type memoryImages struct {
	mu      sync.Mutex
	created []models.Image
}

func (m *memoryImages) Create(_ context.Context, image models.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, image)
	return nil
}

func (m *memoryImages) TempIDExists(_ context.Context, tempID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, img := range m.created {
		if img.TempID == tempID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryImages) GetByTempID(_ context.Context, tempID, ownerID string) (models.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, img := range m.created {
		if img.TempID == tempID && img.UserID == ownerID {
			return img, nil
		}
	}
	return models.Image{}, repository.ErrImageNotFound
}

// countingStore records every key written through it.
type countingStore struct {
	*storage.MemoryStore
	mu   sync.Mutex
	keys []string
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: storage.NewMemoryStore()}
}

func (s *countingStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	s.mu.Lock()
	s.keys = append(s.keys, key)
	s.mu.Unlock()
	return s.MemoryStore.Put(ctx, key, r, size, contentType)
}

type staticDirectory map[string]*models.AccountTier

func (d staticDirectory) Lookup(_ context.Context, userID string) (*models.AccountTier, error) {
	return d[userID], nil
}

type recordingQueue struct {
	tasks []queue.Task
}

func (q *recordingQueue) Enqueue(_ context.Context, task queue.Task) error {
	q.tasks = append(q.tasks, task)
	return nil
}

type memoryUsers struct {
	byName map[string]models.User
}

func newMemoryUsers(users ...models.User) *memoryUsers {
	m := &memoryUsers{byName: make(map[string]models.User)}
	for _, u := range users {
		m.byName[u.Username] = u
	}
	return m
}

func (m *memoryUsers) Create(_ context.Context, user models.User) error {
	m.byName[user.Username] = user
	return nil
}

func (m *memoryUsers) UpdateStatus(_ context.Context, id string, status models.UserStatus) error {
	for name, u := range m.byName {
		if u.ID == id {
			u.Status = status
			m.byName[name] = u
			return nil
		}
	}
	return repository.ErrUserNotFound
}

func (m *memoryUsers) FindByUsername(_ context.Context, username string) (models.User, error) {
	u, ok := m.byName[username]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (m *memoryUsers) GetByID(_ context.Context, id string) (models.User, error) {
	for _, u := range m.byName {
		if u.ID == id {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}
