package services

// PricedQuote is the result of pricing a line list at one tier.
type PricedQuote struct {
	Tier  PriceTier
	Lines []QuotationLine
	Total float64
}

// PriceQuote computes per-line subtotals and the grand total. It never fails: a line whose
// product is missing from the catalog is priced at zero and keeps its frozen name.
// The input lines are not modified.
func PriceQuote(lines []OrderItem, catalog Catalog, tier PriceTier) PricedQuote {
	index := catalog.Index()
	quote := PricedQuote{
		Tier:  tier,
		Lines: make([]QuotationLine, 0, len(lines)),
	}
	for _, item := range lines {
		line := QuotationLine{Item: item}
		if product, ok := index[item.ProductID]; ok {
			line.Found = true
			line.UnitPrice = product.Prices.Price(tier)
			line.Subtotal = LineSubtotal(line.UnitPrice, item)
		}
		quote.Lines = append(quote.Lines, line)
		quote.Total += line.Subtotal
	}
	return quote
}

// LineSubtotal is box price times box quantity plus item price times item quantity.
func LineSubtotal(price UnitPrice, item OrderItem) float64 {
	return price.Box*float64(item.QuantityBox) + price.Item*float64(item.QuantityItem)
}
