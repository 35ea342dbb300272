package spreadsheet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	domain "github.com/smartprice/api/internal/domain"
)

func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	book := excelize.NewFile()
	defer func() { _ = book.Close() }()

	sheet := book.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, book.SetSheetRow(sheet, cell, &row))
	}
	buf, err := book.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParserReadsTieredColumns(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"2026 春季价目表"},
		{"序号", "产品名称", "总箱数", "进货价/箱", "进货价/个", "批发价/箱", "批发单价", "零售底价/箱", "零售价/箱", "零售售价/个"},
		{1, "红 牛\n250ml", 12, "1,200", 50, 1300, "", 1400, 1500, 66},
		{2, "矿泉水", 3, 20, "", 24, 1.5},
		{3, "", 9, 1},
		{"", "产品名称"},
		{"", "总计", 24, 999},
	})

	rows, err := NewParser().Parse(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "红 牛 250ml", rows[0].Name)
	assert.Equal(t, domain.UnitPrice{Box: 1200, Item: 50}, rows[0].Prices.Purchase)
	assert.Equal(t, domain.UnitPrice{Box: 1300, Item: 0}, rows[0].Prices.Wholesale)
	assert.Equal(t, domain.UnitPrice{Box: 1400, Item: 66}, rows[0].Prices.RetailFloor)
	assert.Equal(t, domain.UnitPrice{Box: 1500, Item: 0}, rows[0].Prices.Retail)

	assert.Equal(t, "矿泉水", rows[1].Name)
	assert.Equal(t, domain.UnitPrice{Box: 20, Item: 0}, rows[1].Prices.Purchase)
	assert.Equal(t, domain.UnitPrice{Box: 24, Item: 1.5}, rows[1].Prices.Wholesale)
}

func TestParserRequiresHeader(t *testing.T) {
	data := buildWorkbook(t, [][]any{{"foo", "bar"}, {"x", 1}})
	_, err := NewParser().Parse(context.Background(), data)
	assert.ErrorIs(t, err, ErrHeaderNotFound)
}

func TestParserRejectsNonWorkbook(t *testing.T) {
	_, err := NewParser().Parse(context.Background(), []byte("name,price\nx,1\n"))
	assert.Error(t, err)
}
