// internal/localwish/localwish.go
// Package localwish keeps the older purely-local wish storage path alive: a
// flat JSON array of wish records under one fixed key, with no chain
// involvement. It exists for backward compatibility with data written before
// wishes moved on-chain.
package localwish

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/wishplanet/wishplanet-go/internal/model"
)

// storageKey is the single key the whole array lives under.
const storageKey = "wishPlanet_wishes"

// ErrNotFound is returned when no local wish carries the requested id.
var ErrNotFound = errors.New("local wish not found")

// Store is the legacy local wish store. All operations load and rewrite the
// full array; the dataset is expected to stay small.
type Store struct {
	mu sync.Mutex
	db *leveldb.DB
}

// Open opens (or creates) the store at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open local wish store at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying storage.
func (s *Store) Close() error {
	return s.db.Close()
}

// List returns every locally stored wish in insertion order.
func (s *Store) List() ([]model.Wish, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Add appends a wish to the array, assigning an id and creation time when
// absent, and returns the stored record.
func (s *Store) Add(wish model.Wish) (model.Wish, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if wish.ID == "" {
		wish.ID = uuid.NewString()
	}
	if wish.CreatedAt.IsZero() {
		wish.CreatedAt = time.Now().UTC()
	}
	if wish.RewardsWei == "" {
		wish.RewardsWei = "0"
	}

	wishes, err := s.load()
	if err != nil {
		return model.Wish{}, err
	}
	wishes = append(wishes, wish)
	if err := s.save(wishes); err != nil {
		return model.Wish{}, err
	}
	return wish, nil
}

// ByCreator returns the wishes stored for one creator address,
// case-insensitively.
func (s *Store) ByCreator(creator string) ([]model.Wish, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wishes, err := s.load()
	if err != nil {
		return nil, err
	}
	matched := []model.Wish{}
	for _, w := range wishes {
		if strings.EqualFold(w.Creator, creator) {
			matched = append(matched, w)
		}
	}
	return matched, nil
}

// Update replaces the stored record carrying the same id.
func (s *Store) Update(wish model.Wish) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wishes, err := s.load()
	if err != nil {
		return err
	}
	for i := range wishes {
		if wishes[i].ID == wish.ID {
			wishes[i] = wish
			return s.save(wishes)
		}
	}
	return fmt.Errorf("update %s: %w", wish.ID, ErrNotFound)
}

// AddDonation adds amountWei to the embedded reward total of one wish.
func (s *Store) AddDonation(id string, amountWei *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wishes, err := s.load()
	if err != nil {
		return err
	}
	for i := range wishes {
		if wishes[i].ID != id {
			continue
		}
		total, ok := new(big.Int).SetString(wishes[i].RewardsWei, 10)
		if !ok {
			total = big.NewInt(0)
		}
		wishes[i].RewardsWei = total.Add(total, amountWei).String()
		return s.save(wishes)
	}
	return fmt.Errorf("donate %s: %w", id, ErrNotFound)
}

// Like increments the embedded like counter of one wish. Unlike on-chain
// wishes, local counters live inside the stored record and mutate in place.
func (s *Store) Like(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wishes, err := s.load()
	if err != nil {
		return err
	}
	for i := range wishes {
		if wishes[i].ID == id {
			wishes[i].Likes++
			return s.save(wishes)
		}
	}
	return fmt.Errorf("like %s: %w", id, ErrNotFound)
}

// Remove deletes one wish from the array. Media files the wish referenced are
// left untouched.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wishes, err := s.load()
	if err != nil {
		return err
	}
	for i := range wishes {
		if wishes[i].ID == id {
			wishes = append(wishes[:i], wishes[i+1:]...)
			return s.save(wishes)
		}
	}
	return fmt.Errorf("remove %s: %w", id, ErrNotFound)
}

// Clear drops the whole array.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Delete([]byte(storageKey), nil); err != nil {
		return fmt.Errorf("clear local wishes: %w", err)
	}
	return nil
}

func (s *Store) load() ([]model.Wish, error) {
	raw, err := s.db.Get([]byte(storageKey), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read local wishes: %w", err)
	}
	var wishes []model.Wish
	if err := json.Unmarshal(raw, &wishes); err != nil {
		return nil, fmt.Errorf("decode local wishes: %w", err)
	}
	return wishes, nil
}

func (s *Store) save(wishes []model.Wish) error {
	raw, err := json.Marshal(wishes)
	if err != nil {
		return fmt.Errorf("encode local wishes: %w", err)
	}
	if err := s.db.Put([]byte(storageKey), raw, nil); err != nil {
		return fmt.Errorf("write local wishes: %w", err)
	}
	return nil
}
