// Package spreadsheet reads supplier price lists from xlsx workbooks.
package spreadsheet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	domain "github.com/smartprice/api/internal/domain"
	"github.com/smartprice/api/internal/platform/textutil"
	"github.com/smartprice/api/internal/services"
)

const nameHeaderMarker = "名称"

// ErrHeaderNotFound indicates no row of the first sheet contains a name column header.
var ErrHeaderNotFound = errors.New("spreadsheet: header row with a name column not found")

// Parser implements services.SpreadsheetParser.
type Parser struct{}

var _ services.SpreadsheetParser = Parser{}

// NewParser returns a workbook parser.
func NewParser() Parser {
	return Parser{}
}

// Parse reads the first sheet. The header row is the first row with a cell containing 名称.
// Price columns after the name column are assigned to tiers in order of appearance, box and
// item columns counted separately.
func (Parser) Parse(ctx context.Context, data []byte) ([]services.RawPriceRow, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: open workbook: %w", err)
	}
	defer func() {
		_ = book.Close()
	}()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("spreadsheet: workbook has no sheets")
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: read sheet %q: %w", sheets[0], err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return parseRows(rows)
}

type columnLayout struct {
	name  int
	box   []int
	items []int
}

func findLayout(rows [][]string) (int, columnLayout, bool) {
	for r, row := range rows {
		for c, cell := range row {
			if !strings.Contains(cell, nameHeaderMarker) {
				continue
			}
			layout := columnLayout{name: c}
			for idx := c + 1; idx < len(row); idx++ {
				header := row[idx]
				if !strings.Contains(header, "价") && !strings.Contains(header, "售") {
					continue
				}
				if strings.Contains(header, "箱") {
					layout.box = append(layout.box, idx)
				}
				if strings.Contains(header, "个") || strings.Contains(header, "单") {
					layout.items = append(layout.items, idx)
				}
			}
			return r, layout, true
		}
	}
	return 0, columnLayout{}, false
}

func parseRows(rows [][]string) ([]services.RawPriceRow, error) {
	headerIndex, layout, ok := findLayout(rows)
	if !ok {
		return nil, ErrHeaderNotFound
	}

	out := make([]services.RawPriceRow, 0, len(rows)-headerIndex-1)
	for _, row := range rows[headerIndex+1:] {
		if len(row) <= layout.name {
			continue
		}
		name := strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(row[layout.name]))
		if name == "" || strings.Contains(name, "总计") || strings.Contains(name, "产品名称") || strings.Contains(name, nameHeaderMarker) {
			continue
		}

		var table domain.PriceTable
		for tierIndex, tier := range domain.PriceTiers {
			table = table.WithPrice(tier, domain.UnitPrice{
				Box:  cellAmount(row, layout.box, tierIndex),
				Item: cellAmount(row, layout.items, tierIndex),
			})
		}
		out = append(out, services.RawPriceRow{Name: name, Prices: table})
	}
	return out, nil
}

func cellAmount(row []string, columns []int, tierIndex int) float64 {
	if tierIndex >= len(columns) {
		return 0
	}
	col := columns[tierIndex]
	if col >= len(row) {
		return 0
	}
	return textutil.ParseAmount(row[col])
}
