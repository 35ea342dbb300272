// Package firestore stores the catalog and settings in Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/smartprice/api/internal/domain"
	pfirestore "github.com/smartprice/api/internal/platform/firestore"
	"github.com/smartprice/api/internal/repositories"
)

const (
	defaultPrefix      = "smartprice"
	settingsDocID      = "app"
	productsCollection = "products"
	settingsCollection = "settings"
	positionField      = "position"
)

type unitPriceDoc struct {
	Box  float64 `firestore:"box"`
	Item float64 `firestore:"item"`
}

type priceTableDoc struct {
	Purchase    unitPriceDoc `firestore:"purchase"`
	Wholesale   unitPriceDoc `firestore:"wholesale"`
	RetailFloor unitPriceDoc `firestore:"retailFloor"`
	Retail      unitPriceDoc `firestore:"retail"`
}

type productDoc struct {
	ID       string        `firestore:"id"`
	Name     string        `firestore:"name"`
	Position int           `firestore:"position"`
	Prices   priceTableDoc `firestore:"prices"`
}

type settingsDoc struct {
	GeminiAPIKey    string `firestore:"geminiApiKey"`
	DeepSeekAPIKey  string `firestore:"deepseekApiKey"`
	DeepSeekBaseURL string `firestore:"deepseekBaseUrl"`
	CashierName     string `firestore:"cashierName"`
}

func encodeProduct(p domain.Product, position int) productDoc {
	return productDoc{
		ID:       p.ID,
		Name:     p.Name,
		Position: position,
		Prices: priceTableDoc{
			Purchase:    unitPriceDoc(p.Prices.Purchase),
			Wholesale:   unitPriceDoc(p.Prices.Wholesale),
			RetailFloor: unitPriceDoc(p.Prices.RetailFloor),
			Retail:      unitPriceDoc(p.Prices.Retail),
		},
	}
}

func (d productDoc) product() domain.Product {
	return domain.Product{
		ID:   d.ID,
		Name: d.Name,
		Prices: domain.PriceTable{
			Purchase:    domain.UnitPrice(d.Prices.Purchase),
			Wholesale:   domain.UnitPrice(d.Prices.Wholesale),
			RetailFloor: domain.UnitPrice(d.Prices.RetailFloor),
			Retail:      domain.UnitPrice(d.Prices.Retail),
		},
	}
}

// positionDocID keys product documents by list position, mirroring the pebble key layout.
func positionDocID(position int) string {
	return fmt.Sprintf("%08d", position)
}

// Registry implements repositories.Registry on Firestore.
type Registry struct {
	provider *pfirestore.Provider
	products *pfirestore.Collection[productDoc]
	settings *pfirestore.Collection[settingsDoc]
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry binds the repositories to the <prefix>_products and <prefix>_settings collections.
func NewRegistry(provider *pfirestore.Provider, prefix string) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry: provider is required")
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "_")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Registry{
		provider: provider,
		products: pfirestore.NewCollection[productDoc](provider, prefix+"_"+productsCollection),
		settings: pfirestore.NewCollection[settingsDoc](provider, prefix+"_"+settingsCollection),
	}, nil
}

// Provider exposes the shared client provider so other Firestore-backed components reuse one connection.
func (r *Registry) Provider() *pfirestore.Provider {
	return r.provider
}

// Close releases the shared client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

// Ping reads the settings document. A missing document still proves the backend answered.
func (r *Registry) Ping(ctx context.Context) error {
	_, err := r.settings.Get(ctx, settingsDocID)
	if err == nil || repositories.IsNotFound(err) {
		return nil
	}
	return err
}

func (r *Registry) Products() repositories.ProductRepository { return productRepository{registry: r} }

func (r *Registry) Settings() repositories.SettingsRepository { return settingsRepository{registry: r} }

type productRepository struct {
	registry *Registry
}

func (p productRepository) List(ctx context.Context) ([]domain.Product, error) {
	docs, err := p.registry.products.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy(positionField, firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, doc.Data.product())
	}
	return products, nil
}

// Mutate runs fn inside a transaction. Firestore may retry the transaction, so fn can be
// invoked more than once; only the final attempt is committed.
func (p productRepository) Mutate(ctx context.Context, fn repositories.ProductMutation) ([]domain.Product, error) {
	if fn == nil {
		return nil, errors.New("firestore: mutation is required")
	}
	coll, err := p.registry.products.Ref(ctx)
	if err != nil {
		return nil, err
	}

	var (
		result      []domain.Product
		mutationErr error
	)
	err = p.registry.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		mutationErr = nil
		snaps, err := tx.Documents(coll.OrderBy(positionField, firestore.Asc)).GetAll()
		if err != nil {
			return err
		}
		current := make([]domain.Product, 0, len(snaps))
		for _, snap := range snaps {
			doc, err := p.registry.products.Decode(snap)
			if err != nil {
				return repositories.NewStoreError("products.mutate", repositories.StoreErrorCorrupt, err)
			}
			current = append(current, doc.product())
		}

		next, err := fn(current)
		if err != nil {
			mutationErr = err
			return err
		}

		keep := make(map[string]struct{}, len(next))
		for i, product := range next {
			id := positionDocID(i)
			keep[id] = struct{}{}
			if err := tx.Set(coll.Doc(id), encodeProduct(product, i)); err != nil {
				return err
			}
		}
		for _, snap := range snaps {
			if _, ok := keep[snap.Ref.ID]; ok {
				continue
			}
			if err := tx.Delete(snap.Ref); err != nil {
				return err
			}
		}
		result = append([]domain.Product{}, next...)
		return nil
	})
	if mutationErr != nil {
		return nil, mutationErr
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

type settingsRepository struct {
	registry *Registry
}

func (s settingsRepository) Get(ctx context.Context) (domain.AppSettings, error) {
	doc, err := s.registry.settings.Get(ctx, settingsDocID)
	if err != nil {
		return domain.AppSettings{}, err
	}
	settings := domain.AppSettings(doc.Data)
	if strings.TrimSpace(settings.DeepSeekBaseURL) == "" {
		settings.DeepSeekBaseURL = domain.DefaultDeepSeekBaseURL
	}
	return settings, nil
}

func (s settingsRepository) Save(ctx context.Context, settings domain.AppSettings) error {
	return s.registry.settings.Set(ctx, settingsDocID, settingsDoc(settings))
}
