package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/smartprice/api/internal/domain"
	"github.com/smartprice/api/internal/services"
)

type stubCatalog struct {
	services.CatalogService
	existing []domain.Product
	imported []services.ImportProductsCommand
}

func (s *stubCatalog) List(context.Context) ([]domain.Product, error) {
	return s.existing, nil
}

func (s *stubCatalog) Import(ctx context.Context, cmd services.ImportProductsCommand) (services.ImportSummary, error) {
	s.imported = append(s.imported, cmd)
	return services.ImportSummary{Mode: cmd.Mode, Added: len(cmd.Products), Total: len(cmd.Products)}, nil
}

func TestParseYAMLAndJSON(t *testing.T) {
	yamlDoc := `
products:
  - id: a
    name: 红牛
    prices:
      wholesale: {box: 100, item: 20}
  - name: 可乐
    prices:
      retail_floor: {box: 48}
`
	products, err := Parse([]byte(yamlDoc))
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "a", products[0].ID)
	assert.Equal(t, domain.UnitPrice{Box: 100, Item: 20}, products[0].Prices.Wholesale)
	assert.Equal(t, domain.UnitPrice{Box: 48}, products[1].Prices.RetailFloor)

	jsonDoc := `[{"id":"x","name":"Widget","prices":{"retail":{"box":1.5,"item":0.25}}}]`
	products, err = Parse([]byte(jsonDoc))
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, domain.UnitPrice{Box: 1.5, Item: 0.25}, products[0].Prices.Retail)

	_, err = Parse([]byte("products: [unterminated"))
	assert.Error(t, err)
}

func TestApplySeedsEmptyCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- name: 矿泉水\n  prices:\n    purchase: {box: 20}\n"), 0o600))

	catalog := &stubCatalog{}
	count, err := Apply(context.Background(), catalog, path)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, catalog.imported, 1)
	assert.Equal(t, services.ImportModeReplace, catalog.imported[0].Mode)
	assert.Equal(t, domain.UnitPrice{Box: 20, Item: 20}, catalog.imported[0].Products[0].Prices.Purchase)
}

func TestApplySkipsWhenCatalogHasProducts(t *testing.T) {
	catalog := &stubCatalog{existing: []domain.Product{{ID: "a", Name: "x"}}}
	count, err := Apply(context.Background(), catalog, "/does/not/exist.yaml")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, catalog.imported)

	count, err = Apply(context.Background(), &stubCatalog{}, "  ")
	require.NoError(t, err)
	assert.Zero(t, count)
}
