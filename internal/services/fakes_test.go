package services

import (
	"context"
	"sync"

	domain "github.com/smartprice/api/internal/domain"
	"github.com/smartprice/api/internal/repositories"
)

type memoryProductRepo struct {
	mu        sync.Mutex
	products  []domain.Product
	listErr   error
	mutateErr error
	mutations int
}

func (r *memoryProductRepo) List(ctx context.Context) ([]domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	return append([]domain.Product(nil), r.products...), nil
}

func (r *memoryProductRepo) Mutate(ctx context.Context, fn repositories.ProductMutation) ([]domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mutateErr != nil {
		return nil, r.mutateErr
	}
	next, err := fn(append([]domain.Product(nil), r.products...))
	if err != nil {
		return nil, err
	}
	r.mutations++
	r.products = append([]domain.Product(nil), next...)
	return append([]domain.Product(nil), r.products...), nil
}

type memorySettingsRepo struct {
	settings *domain.AppSettings
	getErr   error
	saveErr  error
	saved    int
}

func (r *memorySettingsRepo) Get(ctx context.Context) (domain.AppSettings, error) {
	if r.getErr != nil {
		return domain.AppSettings{}, r.getErr
	}
	if r.settings == nil {
		return domain.AppSettings{}, repositories.NewStoreError("settings.get", repositories.StoreErrorNotFound, nil)
	}
	return *r.settings, nil
}

func (r *memorySettingsRepo) Save(ctx context.Context, settings domain.AppSettings) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	stored := settings
	r.settings = &stored
	r.saved++
	return nil
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return prefix + string(rune('0'+n))
	}
}
