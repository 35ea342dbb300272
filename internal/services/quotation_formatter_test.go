package services

import (
	"testing"
	"time"

	domain "github.com/smartprice/api/internal/domain"
)

func TestPriceQuote_IdempotentAndTierSwitch(t *testing.T) {
	lines := []OrderItem{
		{ProductID: "a", ProductName: "Widget", QuantityBox: 5, QuantityItem: 2},
		{ProductID: "b", ProductName: "Gadget", QuantityItem: 4},
	}
	snapshot := append([]OrderItem(nil), lines...)
	catalog := widgetCatalog()

	first := PriceQuote(lines, catalog, domain.PriceTierWholesale)
	second := PriceQuote(lines, catalog, domain.PriceTierWholesale)
	if first.Total != second.Total || first.Total != 560 {
		t.Fatalf("expected stable total 560, got %v and %v", first.Total, second.Total)
	}

	retail := PriceQuote(lines, catalog, domain.PriceTierRetail)
	if retail.Total != 5*120+2*25 {
		t.Fatalf("expected retail total 650, got %v", retail.Total)
	}
	if retail.Lines[1].Subtotal != 0 {
		t.Fatalf("expected unset retail price to price as zero, got %v", retail.Lines[1].Subtotal)
	}
	for i := range lines {
		if lines[i] != snapshot[i] {
			t.Fatalf("expected line %d quantities untouched, got %#v", i, lines[i])
		}
	}
}

func TestPriceQuote_DanglingReference(t *testing.T) {
	lines := []OrderItem{
		{ProductID: "gone", ProductName: "OldThing", QuantityBox: 3},
		{ProductID: "a", ProductName: "Widget", QuantityBox: 1},
	}
	quote := PriceQuote(lines, widgetCatalog(), domain.PriceTierWholesale)
	if quote.Lines[0].Found || quote.Lines[0].Subtotal != 0 {
		t.Fatalf("expected dangling line to price at zero, got %#v", quote.Lines[0])
	}
	if quote.Total != 100 {
		t.Fatalf("expected total 100, got %v", quote.Total)
	}
}

func TestPriceQuote_UnknownTier(t *testing.T) {
	quote := PriceQuote([]OrderItem{{ProductID: "a", QuantityBox: 1}}, widgetCatalog(), domain.PriceTier("vip"))
	if quote.Total != 0 {
		t.Fatalf("expected unknown tier to price as zero, got %v", quote.Total)
	}
}

func TestFormatQuotation(t *testing.T) {
	date := time.Date(2026, time.October, 18, 9, 30, 0, 0, time.UTC)

	t.Run("single box line", func(t *testing.T) {
		text := FormatQuotation(QuotationInput{
			Lines:        []OrderItem{{ProductID: "a", ProductName: "Widget", QuantityBox: 5}},
			Catalog:      widgetCatalog(),
			Tier:         domain.PriceTierWholesale,
			CashierLabel: "Amy",
			Date:         date,
		})
		expected := "📅 2026/10/18 (Amy)\n" +
			"1. Widget: 5箱(￥100) = ￥500\n" +
			"💰 总计: ￥500"
		if text != expected {
			t.Fatalf("expected\n%s\ngot\n%s", expected, text)
		}
	})

	t.Run("box and item with grouping", func(t *testing.T) {
		catalog := domain.Catalog{{
			ID:     "p",
			Name:   "整箱水",
			Prices: domain.PriceTable{Retail: domain.UnitPrice{Box: 1250.5, Item: 12}},
		}}
		text := FormatQuotation(QuotationInput{
			Lines:   []OrderItem{{ProductID: "p", ProductName: "整箱水", QuantityBox: 2, QuantityItem: 3}},
			Catalog: catalog,
			Tier:    domain.PriceTierRetail,
			Date:    date,
		})
		expected := "📅 2026/10/18\n" +
			"1. 整箱水: 2箱(￥1250.5)+3个(￥12) = ￥2,537\n" +
			"💰 总计: ￥2,537"
		if text != expected {
			t.Fatalf("expected\n%s\ngot\n%s", expected, text)
		}
	})

	t.Run("missing product uses frozen name", func(t *testing.T) {
		text := FormatQuotation(QuotationInput{
			Lines: []OrderItem{
				{ProductID: "gone", ProductName: "OldThing", QuantityBox: 1, QuantityItem: 2},
				{ProductID: "b", ProductName: "Renamed", QuantityItem: 4},
			},
			Catalog: widgetCatalog(),
			Tier:    domain.PriceTierWholesale,
			Date:    date,
		})
		expected := "📅 2026/10/18\n" +
			"1. OldThing: 1箱(￥0)+2个(￥0) = ￥0\n" +
			"2. Gadget: 4个(￥5) = ￥20\n" +
			"💰 总计: ￥20"
		if text != expected {
			t.Fatalf("expected\n%s\ngot\n%s", expected, text)
		}
	})

	t.Run("empty list", func(t *testing.T) {
		text := FormatQuotation(QuotationInput{Date: date, CashierLabel: " "})
		expected := "📅 2026/10/18\n💰 总计: ￥0"
		if text != expected {
			t.Fatalf("expected %q, got %q", expected, text)
		}
	})
}

func TestFormatAmount(t *testing.T) {
	cases := map[float64]string{
		0:         "0",
		540:       "540",
		1234567:   "1,234,567",
		99.999:    "100",
		1000.25:   "1,000.25",
		0.1 + 0.2: "0.3",
	}
	for input, expected := range cases {
		if got := FormatAmount(input); got != expected {
			t.Fatalf("FormatAmount(%v): expected %q, got %q", input, expected, got)
		}
	}
}
