package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// QuotationDateLayout matches the short numeric date shoppers already paste into chats.
const QuotationDateLayout = "2006/1/2"

// QuotationInput is everything the formatter needs. It never reads ambient state.
type QuotationInput struct {
	Lines        []OrderItem
	Catalog      Catalog
	Tier         PriceTier
	CashierLabel string
	Date         time.Time
}

var amountPrinter = message.NewPrinter(language.SimplifiedChinese)

// FormatQuotation renders the shareable quotation text:
//
//	📅 2026/10/18 (Amy)
//	1. Widget: 5箱(￥100)+2个(￥20) = ￥540
//	💰 总计: ￥540
//
// Lines whose product has been deleted use the frozen name and zero unit prices.
func FormatQuotation(in QuotationInput) string {
	quote := PriceQuote(in.Lines, in.Catalog, in.Tier)
	index := in.Catalog.Index()

	var b strings.Builder
	b.WriteString("📅 ")
	b.WriteString(in.Date.Format(QuotationDateLayout))
	if label := strings.TrimSpace(in.CashierLabel); label != "" {
		fmt.Fprintf(&b, " (%s)", label)
	}
	b.WriteString("\n")

	for i, line := range quote.Lines {
		name := line.Item.ProductName
		if product, ok := index[line.Item.ProductID]; ok {
			name = product.Name
		}
		parts := make([]string, 0, 2)
		if line.Item.QuantityBox > 0 {
			parts = append(parts, fmt.Sprintf("%d箱(￥%s)", line.Item.QuantityBox, formatUnitPrice(line.UnitPrice.Box)))
		}
		if line.Item.QuantityItem > 0 {
			parts = append(parts, fmt.Sprintf("%d个(￥%s)", line.Item.QuantityItem, formatUnitPrice(line.UnitPrice.Item)))
		}
		fmt.Fprintf(&b, "%d. %s: %s = ￥%s\n", i+1, name, strings.Join(parts, "+"), FormatAmount(line.Subtotal))
	}

	b.WriteString("💰 总计: ￥")
	b.WriteString(FormatAmount(quote.Total))
	return b.String()
}

// FormatAmount renders a money amount with thousands separators and at most two decimals.
func FormatAmount(v float64) string {
	return amountPrinter.Sprint(number.Decimal(v, number.MaxFractionDigits(2)))
}

// formatUnitPrice renders a catalog price as entered, without grouping.
func formatUnitPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
