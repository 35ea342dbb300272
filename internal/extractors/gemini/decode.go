package gemini

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	domain "github.com/smartprice/api/internal/domain"
	"github.com/smartprice/api/internal/platform/textutil"
	"github.com/smartprice/api/internal/services"
)

var priceFields = []string{
	"purchase_box", "purchase_item",
	"wholesale_box", "wholesale_item",
	"retail_floor_box", "retail_floor_item",
	"retail_box", "retail_item",
}

// amount accepts a JSON number, a numeric string or null.
type amount float64

func (a *amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = amount(textutil.ParseAmount(s))
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if f < 0 {
		f = 0
	}
	*a = amount(f)
	return nil
}

type tableRow struct {
	Name            any    `json:"name"`
	PurchaseBox     amount `json:"purchase_box"`
	PurchaseItem    amount `json:"purchase_item"`
	WholesaleBox    amount `json:"wholesale_box"`
	WholesaleItem   amount `json:"wholesale_item"`
	RetailFloorBox  amount `json:"retail_floor_box"`
	RetailFloorItem amount `json:"retail_floor_item"`
	RetailBox       amount `json:"retail_box"`
	RetailItem      amount `json:"retail_item"`
}

func (r tableRow) toRaw() services.RawPriceRow {
	name := ""
	switch v := r.Name.(type) {
	case string:
		name = v
	case float64:
		name = fmt.Sprint(v)
	}
	return services.RawPriceRow{
		Name: name,
		Prices: domain.PriceTable{
			Purchase:    domain.UnitPrice{Box: float64(r.PurchaseBox), Item: float64(r.PurchaseItem)},
			Wholesale:   domain.UnitPrice{Box: float64(r.WholesaleBox), Item: float64(r.WholesaleItem)},
			RetailFloor: domain.UnitPrice{Box: float64(r.RetailFloorBox), Item: float64(r.RetailFloorItem)},
			Retail:      domain.UnitPrice{Box: float64(r.RetailBox), Item: float64(r.RetailItem)},
		},
	}
}

func decodeResponse(resp *genai.GenerateContentResponse) ([]services.RawPriceRow, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("%w: response has no candidates", services.ErrExtractorMalformedResponse)
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && !part.Thought {
			text.WriteString(part.Text)
		}
	}
	return DecodeRows(text.String())
}

// DecodeRows parses the JSON array returned by the model.
func DecodeRows(content string) ([]services.RawPriceRow, error) {
	payload := bytes.TrimSpace([]byte(content))
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty content", services.ErrExtractorMalformedResponse)
	}
	if payload[0] != '[' {
		return nil, fmt.Errorf("%w: expected a JSON array", services.ErrExtractorMalformedResponse)
	}
	var rows []tableRow
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrExtractorMalformedResponse, err)
	}
	out := make([]services.RawPriceRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRaw())
	}
	return out, nil
}
