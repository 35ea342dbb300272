package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	domain "github.com/smartprice/api/internal/domain"
	"github.com/smartprice/api/internal/platform/textutil"
	"github.com/smartprice/api/internal/repositories"
)

// NewProductName is the placeholder name given to products created from the list view.
const NewProductName = "新商品"

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type catalogService struct {
	repo   repositories.ProductRepository
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

var (
	// ErrCatalogRepositoryMissing indicates the repository dependency is absent.
	ErrCatalogRepositoryMissing = errors.New("catalog service: repository is not configured")
	// ErrCatalogInvalidInput indicates the caller supplied invalid data to a catalog mutation.
	ErrCatalogInvalidInput = errors.New("catalog service: invalid input")
	// ErrCatalogNotFound indicates the product id does not exist.
	ErrCatalogNotFound = errors.New("catalog service: product not found")
)

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, ErrCatalogRepositoryMissing
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = uuid.NewString
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{
		repo:   deps.Products,
		newID:  newID,
		logger: logger,
	}, nil
}

func (s *catalogService) List(ctx context.Context) ([]Product, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []Product{}
	}
	return products, nil
}

func (s *catalogService) Add(ctx context.Context) (Product, error) {
	product := Product{ID: s.newID(), Name: NewProductName}
	if _, err := s.repo.Mutate(ctx, func(current []Product) ([]Product, error) {
		next := make([]Product, 0, len(current)+1)
		next = append(next, product)
		return append(next, current...), nil
	}); err != nil {
		return Product{}, err
	}
	s.logger(ctx, "catalog.product_added", map[string]any{"productId": product.ID})
	return product, nil
}

func (s *catalogService) Rename(ctx context.Context, cmd RenameProductCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	name := textutil.ProductName(cmd.Name)
	if name == "" {
		return Product{}, fmt.Errorf("%w: name must not be empty", ErrCatalogInvalidInput)
	}
	return s.updateProduct(ctx, productID, func(p *Product) {
		p.Name = name
	})
}

func (s *catalogService) UpdatePrice(ctx context.Context, cmd UpdatePriceCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if !cmd.Tier.Valid() {
		return Product{}, fmt.Errorf("%w: unknown price tier %q", ErrCatalogInvalidInput, cmd.Tier)
	}
	if !cmd.Unit.Valid() {
		return Product{}, fmt.Errorf("%w: unknown unit %q", ErrCatalogInvalidInput, cmd.Unit)
	}
	if math.IsNaN(cmd.Value) || math.IsInf(cmd.Value, 0) || cmd.Value < 0 {
		return Product{}, fmt.Errorf("%w: price must be a non-negative number", ErrCatalogInvalidInput)
	}
	return s.updateProduct(ctx, productID, func(p *Product) {
		price := p.Prices.Price(cmd.Tier)
		if cmd.Unit == domain.UnitBox {
			price.Box = cmd.Value
		} else {
			price.Item = cmd.Value
		}
		p.Prices = p.Prices.WithPrice(cmd.Tier, price)
	})
}

func (s *catalogService) Delete(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	_, err := s.repo.Mutate(ctx, func(current []Product) ([]Product, error) {
		next := make([]Product, 0, len(current))
		removed := false
		for _, product := range current {
			if product.ID == productID {
				removed = true
				continue
			}
			next = append(next, product)
		}
		if !removed {
			return nil, fmt.Errorf("%w: %s", ErrCatalogNotFound, productID)
		}
		return next, nil
	})
	if err != nil {
		return err
	}
	s.logger(ctx, "catalog.product_deleted", map[string]any{"productId": productID})
	return nil
}

func (s *catalogService) Import(ctx context.Context, cmd ImportProductsCommand) (ImportSummary, error) {
	mode := cmd.Mode
	if mode == "" {
		mode = ImportModeReplace
	}
	if mode != ImportModeReplace && mode != ImportModeMerge {
		return ImportSummary{}, fmt.Errorf("%w: unknown import mode %q", ErrCatalogInvalidInput, cmd.Mode)
	}

	incoming := make([]Product, 0, len(cmd.Products))
	for _, product := range cmd.Products {
		product.Name = textutil.ProductName(product.Name)
		if product.Name == "" {
			continue
		}
		product.ID = strings.TrimSpace(product.ID)
		product.Prices = clampPriceTable(product.Prices)
		incoming = append(incoming, product)
	}

	summary := ImportSummary{Mode: mode}
	stored, err := s.repo.Mutate(ctx, func(current []Product) ([]Product, error) {
		summary.Updated, summary.Added = 0, 0
		if mode == ImportModeReplace {
			return s.replaceProducts(incoming, &summary), nil
		}
		return s.mergeProducts(current, incoming, &summary), nil
	})
	if err != nil {
		return ImportSummary{}, err
	}
	summary.Total = len(stored)

	s.logger(ctx, "catalog.imported", map[string]any{
		"mode":    string(mode),
		"source":  cmd.Source,
		"updated": summary.Updated,
		"added":   summary.Added,
		"total":   summary.Total,
	})
	return summary, nil
}

func (s *catalogService) replaceProducts(incoming []Product, summary *ImportSummary) []Product {
	seen := make(map[string]struct{}, len(incoming))
	next := make([]Product, 0, len(incoming))
	for _, product := range incoming {
		if _, dup := seen[product.ID]; product.ID == "" || dup {
			product.ID = s.newID()
		}
		seen[product.ID] = struct{}{}
		next = append(next, product)
		summary.Added++
	}
	return next
}

func (s *catalogService) mergeProducts(current, incoming []Product, summary *ImportSummary) []Product {
	next := append([]Product(nil), current...)
	byName := make(map[string]int, len(next))
	for i, product := range next {
		key := textutil.StripWhitespace(product.Name)
		if _, exists := byName[key]; !exists {
			byName[key] = i
		}
	}
	for _, product := range incoming {
		if i, ok := byName[product.Name]; ok {
			next[i].Prices = product.Prices
			summary.Updated++
			continue
		}
		product.ID = s.newID()
		byName[product.Name] = len(next)
		next = append(next, product)
		summary.Added++
	}
	return next
}

func (s *catalogService) updateProduct(ctx context.Context, productID string, apply func(*Product)) (Product, error) {
	var updated Product
	_, err := s.repo.Mutate(ctx, func(current []Product) ([]Product, error) {
		next := append([]Product(nil), current...)
		for i := range next {
			if next[i].ID != productID {
				continue
			}
			apply(&next[i])
			updated = next[i]
			return next, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrCatalogNotFound, productID)
	})
	if err != nil {
		return Product{}, err
	}
	s.logger(ctx, "catalog.product_updated", map[string]any{"productId": productID})
	return updated, nil
}

func clampPriceTable(table PriceTable) PriceTable {
	for _, tier := range domain.PriceTiers {
		price := table.Price(tier)
		price.Box = clampPrice(price.Box)
		price.Item = clampPrice(price.Item)
		table = table.WithPrice(tier, price)
	}
	return table
}

func clampPrice(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
