package deepseek

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/smartprice/api/internal/services"
)

type rowEnvelope struct {
	Items json.RawMessage `json:"items"`
}

type rawRow struct {
	ProductID    json.RawMessage `json:"productId"`
	QuantityBox  json.RawMessage `json:"quantityBox"`
	QuantityItem json.RawMessage `json:"quantityItem"`
}

// DecodeRows parses the model output. Both {"items":[...]} and a bare array are accepted.
// Quantities may be numbers, numeric strings, null or absent. Anything else is malformed.
func DecodeRows(content string) ([]services.ExtractedRow, error) {
	payload := bytes.TrimSpace([]byte(stripCodeFence(content)))
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty content", services.ErrExtractorMalformedResponse)
	}

	list := payload
	if payload[0] == '{' {
		var envelope rowEnvelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			return nil, fmt.Errorf("%w: %v", services.ErrExtractorMalformedResponse, err)
		}
		list = bytes.TrimSpace(envelope.Items)
	}
	if len(list) == 0 || list[0] != '[' {
		return nil, fmt.Errorf("%w: items is not an array", services.ErrExtractorMalformedResponse)
	}

	var raw []rawRow
	if err := json.Unmarshal(list, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrExtractorMalformedResponse, err)
	}

	rows := make([]services.ExtractedRow, 0, len(raw))
	for i, r := range raw {
		id, err := decodeID(r.ProductID)
		if err != nil {
			return nil, fmt.Errorf("%w: items[%d].productId: %v", services.ErrExtractorMalformedResponse, i, err)
		}
		box, err := decodeQuantity(r.QuantityBox)
		if err != nil {
			return nil, fmt.Errorf("%w: items[%d].quantityBox: %v", services.ErrExtractorMalformedResponse, i, err)
		}
		item, err := decodeQuantity(r.QuantityItem)
		if err != nil {
			return nil, fmt.Errorf("%w: items[%d].quantityItem: %v", services.ErrExtractorMalformedResponse, i, err)
		}
		rows = append(rows, services.ExtractedRow{ProductID: id, QuantityBox: box, QuantityItem: item})
	}
	return rows, nil
}

func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("unexpected value %s", raw)
}

func decodeQuantity(raw json.RawMessage) (*float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("unexpected value %s", raw)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("not a number: %q", s)
	}
	return &f, nil
}

// stripCodeFence removes a ```json fence some models wrap around JSON output.
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 {
		trimmed = trimmed[newline+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
}
