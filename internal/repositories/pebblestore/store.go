// Package pebblestore persists the catalog and settings in an embedded Pebble database.
package pebblestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"

	domain "github.com/smartprice/api/internal/domain"
	"github.com/smartprice/api/internal/repositories"
)

var (
	productPrefix = []byte("product/")
	productUpper  = []byte("product0")
	settingsKey   = []byte("settings")
	pingKey       = []byte("_ping")
)

// Store is a repositories.Registry backed by Pebble. Products are stored one key per entry with
// a zero padded position so iteration order equals list order.
type Store struct {
	db *pebble.DB
	// mu serialises product mutations so read-modify-write cycles never interleave.
	mu sync.Mutex
}

var _ repositories.Registry = (*Store)(nil)

// Open opens or creates the database directory.
func Open(dir string) (*Store, error) {
	opts := &pebble.Options{
		MemTableSize: 16 << 20,
	}
	db, err := pebble.Open(filepath.Clean(dir), opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the database.
func (s *Store) Close(context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database answers reads.
func (s *Store) Ping(context.Context) error {
	_, closer, err := s.db.Get(pingKey)
	if err == nil {
		return closer.Close()
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	return repositories.NewStoreError("pebble.ping", repositories.StoreErrorUnavailable, err)
}

// Products returns the product repository.
func (s *Store) Products() repositories.ProductRepository { return productRepository{store: s} }

// Settings returns the settings repository.
func (s *Store) Settings() repositories.SettingsRepository { return settingsRepository{store: s} }

func productKey(position int) []byte {
	return append(append([]byte(nil), productPrefix...), fmt.Sprintf("%08d", position)...)
}

type productRepository struct {
	store *Store
}

func (r productRepository) List(ctx context.Context) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.store.readProducts()
}

func (r productRepository) Mutate(ctx context.Context, fn repositories.ProductMutation) ([]domain.Product, error) {
	if fn == nil {
		return nil, errors.New("pebble: mutation is required")
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	current, err := r.store.readProducts()
	if err != nil {
		return nil, err
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if next == nil {
		next = []domain.Product{}
	}

	batch := r.store.db.NewBatch()
	defer func() {
		_ = batch.Close()
	}()
	if err := batch.DeleteRange(productPrefix, productUpper, nil); err != nil {
		return nil, repositories.NewStoreError("products.mutate", repositories.StoreErrorUnknown, err)
	}
	for i, product := range next {
		value, err := json.Marshal(product)
		if err != nil {
			return nil, repositories.NewStoreError("products.mutate", repositories.StoreErrorCorrupt, err)
		}
		if err := batch.Set(productKey(i), value, nil); err != nil {
			return nil, repositories.NewStoreError("products.mutate", repositories.StoreErrorUnknown, err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return nil, repositories.NewStoreError("products.mutate", repositories.StoreErrorUnavailable, err)
	}
	return append([]domain.Product(nil), next...), nil
}

func (s *Store) readProducts() ([]domain.Product, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: productPrefix, UpperBound: productUpper})
	if err != nil {
		return nil, repositories.NewStoreError("products.list", repositories.StoreErrorUnavailable, err)
	}
	defer func() {
		_ = iter.Close()
	}()

	products := []domain.Product{}
	for iter.First(); iter.Valid(); iter.Next() {
		var product domain.Product
		if err := json.Unmarshal(iter.Value(), &product); err != nil {
			return nil, repositories.NewStoreError("products.list", repositories.StoreErrorCorrupt,
				fmt.Errorf("key %s: %w", iter.Key(), err))
		}
		products = append(products, product)
	}
	if err := iter.Error(); err != nil {
		return nil, repositories.NewStoreError("products.list", repositories.StoreErrorUnavailable, err)
	}
	return products, nil
}

type settingsRepository struct {
	store *Store
}

func (r settingsRepository) Get(ctx context.Context) (domain.AppSettings, error) {
	if err := ctx.Err(); err != nil {
		return domain.AppSettings{}, err
	}
	value, closer, err := r.store.db.Get(settingsKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return domain.AppSettings{}, repositories.NewStoreError("settings.get", repositories.StoreErrorNotFound, nil)
	}
	if err != nil {
		return domain.AppSettings{}, repositories.NewStoreError("settings.get", repositories.StoreErrorUnavailable, err)
	}
	defer func() {
		_ = closer.Close()
	}()

	settings := domain.DefaultAppSettings()
	if err := json.Unmarshal(value, &settings); err != nil {
		return domain.AppSettings{}, repositories.NewStoreError("settings.get", repositories.StoreErrorCorrupt, err)
	}
	return settings, nil
}

func (r settingsRepository) Save(ctx context.Context, settings domain.AppSettings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(settings)
	if err != nil {
		return repositories.NewStoreError("settings.save", repositories.StoreErrorCorrupt, err)
	}
	if err := r.store.db.Set(settingsKey, value, pebble.Sync); err != nil {
		return repositories.NewStoreError("settings.save", repositories.StoreErrorUnavailable, err)
	}
	return nil
}
