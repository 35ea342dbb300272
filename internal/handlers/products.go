package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/smartprice/api/internal/domain"
	"github.com/smartprice/api/internal/platform/httpx"
	"github.com/smartprice/api/internal/services"
)

// ProductHandlers exposes catalog maintenance and price table imports.
type ProductHandlers struct {
	catalog services.CatalogService
	imports services.PriceImportService
	cfg     handlerConfig
}

// NewProductHandlers constructs product handlers. imports may be nil, in which case the upload
// endpoints report 503.
func NewProductHandlers(catalog services.CatalogService, imports services.PriceImportService, opts ...HandlerOption) *ProductHandlers {
	return &ProductHandlers{catalog: catalog, imports: imports, cfg: newHandlerConfig(opts)}
}

// Routes registers product endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Post("/products", h.addProduct)
	r.Post("/products:import", h.importProducts)
	r.Post("/products:import-spreadsheet", h.importSpreadsheet)
	r.Post("/products:import-image", h.importImage)
	r.Patch("/products/{productID}", h.updateProduct)
	r.Delete("/products/{productID}", h.deleteProduct)
}

type priceTablePayload struct {
	Purchase    unitPricePayload `json:"purchase"`
	Wholesale   unitPricePayload `json:"wholesale"`
	RetailFloor unitPricePayload `json:"retail_floor"`
	Retail      unitPricePayload `json:"retail"`
}

type productPayload struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Prices priceTablePayload `json:"prices"`
}

type productListResponse struct {
	Products []productPayload `json:"products"`
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "catalog unavailable", http.StatusServiceUnavailable))
		return
	}
	products, err := h.catalog.List(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	out := make([]productPayload, 0, len(products))
	for _, product := range products {
		out = append(out, buildProductPayload(product))
	}
	httpx.WriteJSON(w, http.StatusOK, productListResponse{Products: out})
}

func (h *ProductHandlers) addProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "catalog unavailable", http.StatusServiceUnavailable))
		return
	}
	product, err := h.catalog.Add(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, buildProductPayload(product))
}

type priceCellPayload struct {
	Tier  string  `json:"tier"`
	Unit  string  `json:"unit"`
	Value float64 `json:"value"`
}

type updateProductRequest struct {
	Name   *string            `json:"name"`
	Prices []priceCellPayload `json:"prices"`
}

// updateProduct applies a rename and any number of price cell edits. Each edit is its own
// store mutation, so a failure part way leaves the earlier edits in place.
func (h *ProductHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "catalog unavailable", http.StatusServiceUnavailable))
		return
	}
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	var req updateProductRequest
	if err := httpx.DecodeJSON(r, &req, h.cfg.maxBody); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	if req.Name == nil && len(req.Prices) == 0 {
		writeBadRequest(ctx, w, fmt.Errorf("name or prices must be provided"))
		return
	}

	var (
		product domain.Product
		err     error
	)
	if req.Name != nil {
		product, err = h.catalog.Rename(ctx, services.RenameProductCommand{ProductID: productID, Name: *req.Name})
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
	}
	for _, cell := range req.Prices {
		product, err = h.catalog.UpdatePrice(ctx, services.UpdatePriceCommand{
			ProductID: productID,
			Tier:      domain.PriceTier(strings.TrimSpace(cell.Tier)),
			Unit:      domain.Unit(strings.TrimSpace(cell.Unit)),
			Value:     cell.Value,
		})
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
	}
	httpx.WriteJSON(w, http.StatusOK, buildProductPayload(product))
}

func (h *ProductHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "catalog unavailable", http.StatusServiceUnavailable))
		return
	}
	if err := h.catalog.Delete(ctx, chi.URLParam(r, "productID")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type importProductsRequest struct {
	Mode     string           `json:"mode"`
	Products []productPayload `json:"products"`
}

type importSummaryPayload struct {
	Mode    string `json:"mode"`
	Updated int    `json:"updated"`
	Added   int    `json:"added"`
	Total   int    `json:"total"`
}

func (h *ProductHandlers) importProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "catalog unavailable", http.StatusServiceUnavailable))
		return
	}
	var req importProductsRequest
	if err := httpx.DecodeJSON(r, &req, h.cfg.maxBody); err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	products := make([]domain.Product, 0, len(req.Products))
	for _, p := range req.Products {
		products = append(products, productFromPayload(p))
	}
	summary, err := h.catalog.Import(ctx, services.ImportProductsCommand{
		Products: products,
		Mode:     services.ImportMode(strings.TrimSpace(req.Mode)),
		Source:   "json",
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildImportSummaryPayload(summary))
}

func (h *ProductHandlers) importSpreadsheet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.imports == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "price import unavailable", http.StatusServiceUnavailable))
		return
	}
	data, err := httpx.ReadBody(r, h.cfg.maxBody)
	if err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	summary, err := h.imports.ImportSpreadsheet(ctx, services.SpreadsheetImportCommand{
		Data: data,
		Mode: importModeParam(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildImportSummaryPayload(summary))
}

func (h *ProductHandlers) importImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.imports == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "price import unavailable", http.StatusServiceUnavailable))
		return
	}
	data, err := httpx.ReadBody(r, h.cfg.maxBody)
	if err != nil {
		writeBadRequest(ctx, w, err)
		return
	}
	mimeType := r.Header.Get("Content-Type")
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	summary, err := h.imports.ImportImage(ctx, services.ImageImportCommand{
		Data:     data,
		MIMEType: strings.TrimSpace(mimeType),
		Mode:     importModeParam(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildImportSummaryPayload(summary))
}

func importModeParam(r *http.Request) services.ImportMode {
	return services.ImportMode(strings.TrimSpace(r.URL.Query().Get("mode")))
}

func buildProductPayload(product domain.Product) productPayload {
	return productPayload{
		ID:   product.ID,
		Name: product.Name,
		Prices: priceTablePayload{
			Purchase:    unitPricePayload(product.Prices.Purchase),
			Wholesale:   unitPricePayload(product.Prices.Wholesale),
			RetailFloor: unitPricePayload(product.Prices.RetailFloor),
			Retail:      unitPricePayload(product.Prices.Retail),
		},
	}
}

func productFromPayload(p productPayload) domain.Product {
	return domain.Product{
		ID:   p.ID,
		Name: p.Name,
		Prices: domain.PriceTable{
			Purchase:    domain.UnitPrice(p.Prices.Purchase),
			Wholesale:   domain.UnitPrice(p.Prices.Wholesale),
			RetailFloor: domain.UnitPrice(p.Prices.RetailFloor),
			Retail:      domain.UnitPrice(p.Prices.Retail),
		},
	}
}

func buildImportSummaryPayload(summary services.ImportSummary) importSummaryPayload {
	return importSummaryPayload{
		Mode:    string(summary.Mode),
		Updated: summary.Updated,
		Added:   summary.Added,
		Total:   summary.Total,
	}
}
