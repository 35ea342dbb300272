package repositories

import (
	"context"

	domain "github.com/smartprice/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
// Each store driver (pebble, firestore, postgres) provides one implementation.
type Registry interface {
	Close(ctx context.Context) error
	// Ping verifies the backing store is reachable. Used by readiness checks.
	Ping(ctx context.Context) error

	Products() ProductRepository
	Settings() SettingsRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductMutation receives the current ordered product list and returns the list to persist.
// Returning an error aborts the mutation without writing.
type ProductMutation func(current []domain.Product) ([]domain.Product, error)

// ProductRepository persists the ordered product list as a single logical document.
type ProductRepository interface {
	// List returns every product in stored order. An empty store yields an empty slice.
	List(ctx context.Context) ([]domain.Product, error)
	// Mutate applies fn atomically with respect to other Mutate calls against the same store.
	Mutate(ctx context.Context, fn ProductMutation) ([]domain.Product, error)
}

// SettingsRepository persists the store-wide settings document.
type SettingsRepository interface {
	// Get returns the saved settings. Implementations return a RepositoryError with IsNotFound
	// when nothing has been saved yet.
	Get(ctx context.Context) (domain.AppSettings, error)
	Save(ctx context.Context, settings domain.AppSettings) error
}

// HealthRepository reports dependency health for readiness probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
