// internal/media/store.go
// Package media provides durable storage of uploaded binary attachments,
// independent of wallet and chain state. Implementations exist for LevelDB
// (the default, per-node store), PostgreSQL, and memory (tests).
package media

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/wishplanet/wishplanet-go/internal/model"
)

// Standard errors returned by the media store
var (
	ErrNotFound = errors.New("not found") // Returned when a file is not found
	ErrConflict = errors.New("conflict")  // Returned when a file id already exists
	ErrTooLarge = errors.New("file exceeds size limit")
	ErrBadType  = errors.New("file type not allowed")
	ErrBadName  = errors.New("file name rejected")
)

// maxNameLen bounds the stored file name.
const maxNameLen = 255

// Store defines the operations of the local media store. Files are written
// once, optionally re-linked to their owning wish via UpdateSealID, and
// removed only by explicit deletion; a wish that still names a deleted file
// keeps the dangling reference.
type Store interface {
	// StoreFile writes a complete file record. The caller must have read
	// the binary payload fully before calling; the store never holds a
	// write open across a partial read.
	StoreFile(ctx context.Context, file model.MediaFile) error
	// GetFile returns a single file with its payload, or ErrNotFound.
	GetFile(ctx context.Context, id string) (*model.MediaFile, error)
	// GetFilesBySeal returns all files linked to a wish id, in upload order.
	GetFilesBySeal(ctx context.Context, sealID string) ([]model.MediaFile, error)
	// UpdateSealID sets the back-reference of one file record.
	UpdateSealID(ctx context.Context, id, sealID string) error
	// DeleteFile removes a file, or ErrNotFound.
	DeleteFile(ctx context.Context, id string) error
	// ClearAll removes every stored file.
	ClearAll(ctx context.Context) error
	// Close releases the underlying storage.
	Close() error
}

// NewID generates a media file identifier. ULIDs sort by creation time, which
// keeps per-seal listings in upload order without a separate sequence.
func NewID() string {
	return "file_" + ulid.Make().String()
}

// KindOf maps a MIME type to its coarse category, or "" when the category is
// not an allowed one.
func KindOf(mimeType string) model.MediaKind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return model.MediaImage
	case strings.HasPrefix(mimeType, "audio/"):
		return model.MediaAudio
	case strings.HasPrefix(mimeType, "video/"):
		return model.MediaVideo
	default:
		return ""
	}
}

// ValidateFile checks an upload before any store write occurs. It enforces
// the size limit, the image/audio/video category restriction, and the name
// length bound, returning the detected kind on success.
func ValidateFile(name, mimeType string, size, maxSize int64) (model.MediaKind, error) {
	if name == "" || len(name) > maxNameLen {
		return "", fmt.Errorf("name %q: %w", name, ErrBadName)
	}
	if size > maxSize {
		return "", fmt.Errorf("size %d exceeds limit %d: %w", size, maxSize, ErrTooLarge)
	}
	kind := KindOf(mimeType)
	if kind == "" {
		return "", fmt.Errorf("mime type %q: %w", mimeType, ErrBadType)
	}
	return kind, nil
}
