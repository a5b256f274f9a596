// internal/media/memory.go
package media

import (
	"context"
	"sort"
	"sync"

	"github.com/wishplanet/wishplanet-go/internal/model"
)

// memory implements the Store interface using in-memory storage.
// It's intended for development and testing purposes.
type memory struct {
	mu    sync.RWMutex
	files map[string]*model.MediaFile // Map of file id to record
}

// NewMemory creates a new in-memory media store.
func NewMemory() Store {
	return &memory{
		files: make(map[string]*model.MediaFile),
	}
}

func (m *memory) StoreFile(ctx context.Context, file model.MediaFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.files[file.ID]; exists {
		return ErrConflict
	}

	fileCopy := file
	fileCopy.Data = append([]byte(nil), file.Data...)
	m.files[file.ID] = &fileCopy
	return nil
}

func (m *memory) GetFile(ctx context.Context, id string) (*model.MediaFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	file, exists := m.files[id]
	if !exists {
		return nil, ErrNotFound
	}
	fileCopy := *file
	fileCopy.Data = append([]byte(nil), file.Data...)
	return &fileCopy, nil
}

func (m *memory) GetFilesBySeal(ctx context.Context, sealID string) ([]model.MediaFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var files []model.MediaFile
	for _, file := range m.files {
		if file.SealID == sealID {
			fileCopy := *file
			fileCopy.Data = append([]byte(nil), file.Data...)
			files = append(files, fileCopy)
		}
	}
	// ULID ids sort by creation time, giving upload order.
	sort.Slice(files, func(i, j int) bool { return files[i].ID < files[j].ID })
	return files, nil
}

func (m *memory) UpdateSealID(ctx context.Context, id, sealID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, exists := m.files[id]
	if !exists {
		return ErrNotFound
	}
	file.SealID = sealID
	return nil
}

func (m *memory) DeleteFile(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.files[id]; !exists {
		return ErrNotFound
	}
	delete(m.files, id)
	return nil
}

func (m *memory) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = make(map[string]*model.MediaFile)
	return nil
}

func (m *memory) Close() error {
	return nil
}
