package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/smartprice/api/internal/domain"
	"github.com/smartprice/api/internal/repositories"
)

func newTestCatalogService(t *testing.T, repo *memoryProductRepo) CatalogService {
	t.Helper()
	svc, err := NewCatalogService(CatalogServiceDeps{
		Products:    repo,
		IDGenerator: sequentialIDs("id-"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return svc
}

func TestNewCatalogServiceRequiresRepository(t *testing.T) {
	if _, err := NewCatalogService(CatalogServiceDeps{}); !errors.Is(err, ErrCatalogRepositoryMissing) {
		t.Fatalf("expected ErrCatalogRepositoryMissing, got %v", err)
	}
}

func TestCatalogServiceListEmpty(t *testing.T) {
	svc := newTestCatalogService(t, &memoryProductRepo{})
	products, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if products == nil || len(products) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", products)
	}
}

func TestCatalogServiceAddPrepends(t *testing.T) {
	repo := &memoryProductRepo{products: []domain.Product(widgetCatalog())}
	svc := newTestCatalogService(t, repo)

	product, err := svc.Add(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if product.ID != "id-1" || product.Name != NewProductName {
		t.Fatalf("unexpected product %#v", product)
	}
	if product.Prices != (domain.PriceTable{}) {
		t.Fatalf("expected zero prices, got %#v", product.Prices)
	}
	if len(repo.products) != 3 || repo.products[0].ID != "id-1" || repo.products[1].ID != "a" {
		t.Fatalf("expected new product first, got %#v", repo.products)
	}
}

func TestCatalogServiceRename(t *testing.T) {
	repo := &memoryProductRepo{products: []domain.Product(widgetCatalog())}
	svc := newTestCatalogService(t, repo)

	product, err := svc.Rename(context.Background(), RenameProductCommand{ProductID: "a", Name: " 红 <b>牛</b>　250ml "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if product.Name != "红牛250ml" {
		t.Fatalf("expected stripped name, got %q", product.Name)
	}
	if repo.products[0].Name != "红牛250ml" {
		t.Fatalf("expected stored rename, got %q", repo.products[0].Name)
	}

	if _, err := svc.Rename(context.Background(), RenameProductCommand{ProductID: "a", Name: "  "}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input for blank name, got %v", err)
	}
	if _, err := svc.Rename(context.Background(), RenameProductCommand{ProductID: "missing", Name: "x"}); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCatalogServiceUpdatePrice(t *testing.T) {
	repo := &memoryProductRepo{products: []domain.Product(widgetCatalog())}
	svc := newTestCatalogService(t, repo)

	product, err := svc.UpdatePrice(context.Background(), UpdatePriceCommand{
		ProductID: "b",
		Tier:      domain.PriceTierRetail,
		Unit:      domain.UnitItem,
		Value:     7.5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if product.Prices.Retail != (domain.UnitPrice{Item: 7.5}) {
		t.Fatalf("unexpected retail price %#v", product.Prices.Retail)
	}
	if product.Prices.Wholesale != (domain.UnitPrice{Box: 50, Item: 5}) {
		t.Fatalf("expected other tiers untouched, got %#v", product.Prices.Wholesale)
	}

	invalid := []UpdatePriceCommand{
		{ProductID: "b", Tier: "vip", Unit: domain.UnitBox, Value: 1},
		{ProductID: "b", Tier: domain.PriceTierRetail, Unit: "crate", Value: 1},
		{ProductID: "b", Tier: domain.PriceTierRetail, Unit: domain.UnitBox, Value: -1},
		{ProductID: "", Tier: domain.PriceTierRetail, Unit: domain.UnitBox, Value: 1},
	}
	for _, cmd := range invalid {
		if _, err := svc.UpdatePrice(context.Background(), cmd); !errors.Is(err, ErrCatalogInvalidInput) {
			t.Fatalf("expected invalid input for %#v, got %v", cmd, err)
		}
	}
}

func TestCatalogServiceDelete(t *testing.T) {
	repo := &memoryProductRepo{products: []domain.Product(widgetCatalog())}
	svc := newTestCatalogService(t, repo)

	if err := svc.Delete(context.Background(), "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.products) != 1 || repo.products[0].ID != "b" {
		t.Fatalf("expected only b to remain, got %#v", repo.products)
	}
	if err := svc.Delete(context.Background(), "a"); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if repo.mutations != 1 {
		t.Fatalf("expected failed delete not to write, got %d writes", repo.mutations)
	}
}

func TestCatalogServiceImportReplace(t *testing.T) {
	repo := &memoryProductRepo{products: []domain.Product(widgetCatalog())}
	svc := newTestCatalogService(t, repo)

	summary, err := svc.Import(context.Background(), ImportProductsCommand{
		Mode: ImportModeReplace,
		Products: []domain.Product{
			{ID: "x", Name: "可乐 330ml", Prices: domain.PriceTable{Retail: domain.UnitPrice{Box: -3, Item: 3}}},
			{ID: "x", Name: "雪碧"},
			{Name: "   "},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Added != 2 || summary.Updated != 0 || summary.Total != 2 {
		t.Fatalf("unexpected summary %#v", summary)
	}
	if repo.products[0].ID != "x" || repo.products[0].Name != "可乐330ml" {
		t.Fatalf("unexpected first product %#v", repo.products[0])
	}
	if repo.products[0].Prices.Retail.Box != 0 {
		t.Fatalf("expected negative price clamped, got %v", repo.products[0].Prices.Retail.Box)
	}
	if repo.products[1].ID != "id-1" {
		t.Fatalf("expected duplicate id to be replaced, got %q", repo.products[1].ID)
	}
}

func TestCatalogServiceImportMerge(t *testing.T) {
	repo := &memoryProductRepo{products: []domain.Product(widgetCatalog())}
	svc := newTestCatalogService(t, repo)

	newPrices := domain.PriceTable{Wholesale: domain.UnitPrice{Box: 90, Item: 18}}
	summary, err := svc.Import(context.Background(), ImportProductsCommand{
		Mode: ImportModeMerge,
		Products: []domain.Product{
			{ID: "ignored", Name: " Wid get ", Prices: newPrices},
			{Name: "Doohickey", Prices: newPrices},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Updated != 1 || summary.Added != 1 || summary.Total != 3 || summary.Mode != ImportModeMerge {
		t.Fatalf("unexpected summary %#v", summary)
	}
	if repo.products[0].ID != "a" || repo.products[0].Prices != newPrices {
		t.Fatalf("expected Widget to keep its id and take new prices, got %#v", repo.products[0])
	}
	if repo.products[2].ID != "id-1" || repo.products[2].Name != "Doohickey" {
		t.Fatalf("expected appended product, got %#v", repo.products[2])
	}
}

func TestCatalogServiceImportRejectsUnknownMode(t *testing.T) {
	svc := newTestCatalogService(t, &memoryProductRepo{})
	if _, err := svc.Import(context.Background(), ImportProductsCommand{Mode: "append"}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCatalogServicePropagatesStoreErrors(t *testing.T) {
	storeErr := repositories.NewStoreError("products.mutate", repositories.StoreErrorUnavailable, errors.New("disk gone"))
	svc := newTestCatalogService(t, &memoryProductRepo{mutateErr: storeErr, listErr: storeErr})

	if _, err := svc.Add(context.Background()); !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
	var repoErr repositories.RepositoryError
	if _, err := svc.List(context.Background()); !errors.As(err, &repoErr) || !repoErr.IsUnavailable() {
		t.Fatalf("expected unavailable repository error, got %v", err)
	}
}
