// internal/media/leveldb.go
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/wishplanet/wishplanet-go/internal/model"
)

// Key layout:
//
//	f:<id>            -> JSON file record (payload inlined, base64 in JSON)
//	s:<sealId>:<id>   -> empty (secondary index on the owning wish)
//
// ULID-based ids keep the seal index iteration in upload order.
const (
	filePrefix = "f:"
	sealPrefix = "s:"
)

// levelStore implements the Store interface on a local LevelDB directory.
// This is the default backend: a per-node object store with no external
// dependencies.
type levelStore struct {
	db *leveldb.DB
}

// NewLevelDB opens (or creates) a LevelDB media store at path.
func NewLevelDB(path string) (Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open media store at %s: %w", path, err)
	}
	return &levelStore{db: db}, nil
}

func fileKey(id string) []byte {
	return []byte(filePrefix + id)
}

func sealKey(sealID, id string) []byte {
	return []byte(sealPrefix + sealID + ":" + id)
}

func (l *levelStore) StoreFile(ctx context.Context, file model.MediaFile) error {
	if _, err := l.db.Get(fileKey(file.ID), nil); err == nil {
		return ErrConflict
	} else if !errors.Is(err, leveldb.ErrNotFound) {
		return fmt.Errorf("check file %s: %w", file.ID, err)
	}

	// Payload field is written with a concrete base64 value via the JSON
	// round trip; readers get it back verbatim.
	raw, err := json.Marshal(storedFile(file))
	if err != nil {
		return fmt.Errorf("marshal file %s: %w", file.ID, err)
	}

	batch := new(leveldb.Batch)
	batch.Put(fileKey(file.ID), raw)
	if file.SealID != "" {
		batch.Put(sealKey(file.SealID, file.ID), nil)
	}
	if err := l.db.Write(batch, nil); err != nil {
		return fmt.Errorf("write file %s: %w", file.ID, err)
	}
	return nil
}

func (l *levelStore) GetFile(ctx context.Context, id string) (*model.MediaFile, error) {
	raw, err := l.db.Get(fileKey(id), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read file %s: %w", id, err)
	}
	var file model.MediaFile
	rec := storedRecord{MediaFile: &file}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal file %s: %w", id, err)
	}
	file.Data = rec.Payload
	return &file, nil
}

func (l *levelStore) GetFilesBySeal(ctx context.Context, sealID string) ([]model.MediaFile, error) {
	iter := l.db.NewIterator(util.BytesPrefix([]byte(sealPrefix+sealID+":")), nil)
	defer iter.Release()

	var files []model.MediaFile
	for iter.Next() {
		key := string(iter.Key())
		id := key[len(sealPrefix)+len(sealID)+1:]
		file, err := l.GetFile(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Stale index entry for a deleted file.
				continue
			}
			return nil, err
		}
		files = append(files, *file)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("scan seal %s: %w", sealID, err)
	}
	return files, nil
}

func (l *levelStore) UpdateSealID(ctx context.Context, id, sealID string) error {
	file, err := l.GetFile(ctx, id)
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	if file.SealID != "" && file.SealID != sealID {
		batch.Delete(sealKey(file.SealID, id))
	}
	file.SealID = sealID
	raw, err := json.Marshal(storedFile(*file))
	if err != nil {
		return fmt.Errorf("marshal file %s: %w", id, err)
	}
	batch.Put(fileKey(id), raw)
	if sealID != "" {
		batch.Put(sealKey(sealID, id), nil)
	}
	if err := l.db.Write(batch, nil); err != nil {
		return fmt.Errorf("update file %s: %w", id, err)
	}
	return nil
}

func (l *levelStore) DeleteFile(ctx context.Context, id string) error {
	file, err := l.GetFile(ctx, id)
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	batch.Delete(fileKey(id))
	if file.SealID != "" {
		batch.Delete(sealKey(file.SealID, id))
	}
	if err := l.db.Write(batch, nil); err != nil {
		return fmt.Errorf("delete file %s: %w", id, err)
	}
	return nil
}

func (l *levelStore) ClearAll(ctx context.Context) error {
	iter := l.db.NewIterator(nil, nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("scan store: %w", err)
	}
	if err := l.db.Write(batch, nil); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	return nil
}

func (l *levelStore) Close() error {
	return l.db.Close()
}

// storedRecord is the on-disk JSON shape. The API-facing struct hides the
// payload from marshaling, so persistence needs its own tags.
type storedRecord struct {
	*model.MediaFile
	Payload []byte `json:"payload"`
}

func storedFile(f model.MediaFile) storedRecord {
	data := f.Data
	f.Data = nil
	return storedRecord{MediaFile: &f, Payload: data}
}
