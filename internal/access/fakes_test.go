package access

import (
	"context"
	"sync"
	"time"

	"imagevault/internal/models"
	"imagevault/internal/repository"
	"imagevault/internal/storage"
)

type fakeRecords struct {
	mu     sync.Mutex
	images map[string]models.Image
	err    error
}

func newFakeRecords(images ...models.Image) *fakeRecords {
	r := &fakeRecords{images: make(map[string]models.Image)}
	for _, img := range images {
		r.images[img.ID] = img
	}
	return r
}

func (r *fakeRecords) GetByIDForOwner(_ context.Context, id, ownerID string) (models.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return models.Image{}, r.err
	}
	img, ok := r.images[id]
	if !ok || img.UserID != ownerID {
		return models.Image{}, repository.ErrImageNotFound
	}
	return img, nil
}

func (r *fakeRecords) GetByTempID(_ context.Context, tempID, ownerID string) (models.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return models.Image{}, r.err
	}
	for _, img := range r.images {
		if img.TempID == tempID && img.UserID == ownerID {
			return img, nil
		}
	}
	return models.Image{}, repository.ErrImageNotFound
}

func (r *fakeRecords) TempIDExists(_ context.Context, tempID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	for _, img := range r.images {
		if img.TempID == tempID {
			return true, nil
		}
	}
	return false, nil
}

type fakeDirectory map[string]*models.AccountTier

func (d fakeDirectory) Lookup(_ context.Context, userID string) (*models.AccountTier, error) {
	return d[userID], nil
}

type stubResolver struct {
	obj   *storage.Object
	err   error
	calls int
}

func (s *stubResolver) Resolve(_ context.Context, _ models.Image, _ int) (*storage.Object, error) {
	s.calls++
	return s.obj, s.err
}

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
