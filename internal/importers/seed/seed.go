// Package seed loads a starter catalog from a YAML or JSON file.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	domain "github.com/smartprice/api/internal/domain"
	"github.com/smartprice/api/internal/services"
)

type unitPrice struct {
	Box  float64 `yaml:"box"`
	Item float64 `yaml:"item"`
}

type product struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Prices struct {
		Purchase    unitPrice `yaml:"purchase"`
		Wholesale   unitPrice `yaml:"wholesale"`
		RetailFloor unitPrice `yaml:"retail_floor"`
		Retail      unitPrice `yaml:"retail"`
	} `yaml:"prices"`
}

type document struct {
	Products []product `yaml:"products"`
}

// Parse decodes either a bare product list or a document with a products key. JSON input is
// accepted because it is valid YAML.
func Parse(data []byte) ([]domain.Product, error) {
	var list []product
	if err := yaml.Unmarshal(data, &list); err != nil {
		var doc document
		if docErr := yaml.Unmarshal(data, &doc); docErr != nil {
			return nil, fmt.Errorf("seed: decode catalog: %w", err)
		}
		list = doc.Products
	}

	out := make([]domain.Product, 0, len(list))
	for _, p := range list {
		out = append(out, domain.Product{
			ID:   strings.TrimSpace(p.ID),
			Name: p.Name,
			Prices: domain.PriceTable{
				Purchase:    domain.UnitPrice(p.Prices.Purchase),
				Wholesale:   domain.UnitPrice(p.Prices.Wholesale),
				RetailFloor: domain.UnitPrice(p.Prices.RetailFloor),
				Retail:      domain.UnitPrice(p.Prices.Retail),
			},
		})
	}
	return out, nil
}

// LoadFile reads and parses a seed file.
func LoadFile(path string) ([]domain.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", path, err)
	}
	return Parse(data)
}

// Apply imports the seed file when the catalog is empty. It returns the number of products written.
func Apply(ctx context.Context, catalog services.CatalogService, path string) (int, error) {
	if catalog == nil {
		return 0, errors.New("seed: catalog service is required")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, nil
	}
	existing, err := catalog.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	products, err := LoadFile(path)
	if err != nil {
		return 0, err
	}
	for i := range products {
		products[i].Prices = services.NormalizeImportedPrices(products[i].Prices)
	}
	summary, err := catalog.Import(ctx, services.ImportProductsCommand{
		Products: products,
		Mode:     services.ImportModeReplace,
		Source:   "seed",
	})
	if err != nil {
		return 0, err
	}
	return summary.Total, nil
}
