package domain

// PriceTier identifies one of the four price levels every product carries.
type PriceTier string

const (
	// PriceTierPurchase is the supplier cost.
	PriceTierPurchase PriceTier = "purchase"
	// PriceTierWholesale is the trade price and the default quoting tier.
	PriceTierWholesale PriceTier = "wholesale"
	// PriceTierRetailFloor is the lowest acceptable retail price.
	PriceTierRetailFloor PriceTier = "retail_floor"
	// PriceTierRetail is the list price.
	PriceTierRetail PriceTier = "retail"
)

// DefaultPriceTier is used when a caller does not choose a tier.
const DefaultPriceTier = PriceTierWholesale

// PriceTiers lists tiers in display order. Spreadsheet columns are assigned in this order too.
var PriceTiers = []PriceTier{PriceTierPurchase, PriceTierWholesale, PriceTierRetailFloor, PriceTierRetail}

var priceTierLabels = map[PriceTier]string{
	PriceTierPurchase:    "进货价",
	PriceTierWholesale:   "批发价",
	PriceTierRetailFloor: "零售底价",
	PriceTierRetail:      "零售价",
}

// Label returns the display caption for the tier.
func (t PriceTier) Label() string {
	return priceTierLabels[t]
}

// Valid reports whether t is one of the four known tiers.
func (t PriceTier) Valid() bool {
	_, ok := priceTierLabels[t]
	return ok
}

// Unit is the sale granularity a price or quantity applies to.
type Unit string

const (
	UnitBox  Unit = "box"
	UnitItem Unit = "item"
)

// Valid reports whether u is box or item.
func (u Unit) Valid() bool {
	return u == UnitBox || u == UnitItem
}

// UnitPrice holds the box and item price for one tier. Both default to zero.
type UnitPrice struct {
	Box  float64 `json:"box"`
	Item float64 `json:"item"`
}

// PriceTable maps each tier to its unit prices.
type PriceTable struct {
	Purchase    UnitPrice `json:"purchase"`
	Wholesale   UnitPrice `json:"wholesale"`
	RetailFloor UnitPrice `json:"retail_floor"`
	Retail      UnitPrice `json:"retail"`
}

// Price returns the unit prices for tier, or the zero value for an unknown tier.
func (p PriceTable) Price(tier PriceTier) UnitPrice {
	switch tier {
	case PriceTierPurchase:
		return p.Purchase
	case PriceTierWholesale:
		return p.Wholesale
	case PriceTierRetailFloor:
		return p.RetailFloor
	case PriceTierRetail:
		return p.Retail
	default:
		return UnitPrice{}
	}
}

// WithPrice returns a copy of the table with tier replaced by price. Unknown tiers are ignored.
func (p PriceTable) WithPrice(tier PriceTier, price UnitPrice) PriceTable {
	switch tier {
	case PriceTierPurchase:
		p.Purchase = price
	case PriceTierWholesale:
		p.Wholesale = price
	case PriceTierRetailFloor:
		p.RetailFloor = price
	case PriceTierRetail:
		p.Retail = price
	}
	return p
}

// Product is a catalog entry. Name never contains whitespace.
type Product struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Prices PriceTable `json:"prices"`
}

// Catalog is an ordered product list.
type Catalog []Product

// Lookup finds a product by id. The boolean is false for dangling references.
func (c Catalog) Lookup(id string) (Product, bool) {
	for _, product := range c {
		if product.ID == id {
			return product, true
		}
	}
	return Product{}, false
}

// Index builds an id keyed view of the catalog for repeated lookups.
func (c Catalog) Index() map[string]Product {
	index := make(map[string]Product, len(c))
	for _, product := range c {
		if _, exists := index[product.ID]; exists {
			continue
		}
		index[product.ID] = product
	}
	return index
}

// OrderItem is one resolved quotation line. ProductName is frozen at resolution time so the
// line stays readable after the product is deleted.
type OrderItem struct {
	ProductID    string `json:"productId"`
	ProductName  string `json:"productName"`
	QuantityBox  int    `json:"quantityBox"`
	QuantityItem int    `json:"quantityItem"`
}
