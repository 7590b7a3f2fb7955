package parser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestBakai_Excel(t *testing.T) {
	content := buildWorkbook(t, [][]interface{}{
		{"Выписка Bakai Bank"},
		{"Дата операции", "Описание", "Приход", "Расход"},
		{time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), "Пополнение: от Айбек Т. на карту", 15000, nil},
		{"02.02.2024", "Оплата в Globus за продукты", nil, 350.75},
		{"итого", "", 15000, 350.75},
	})

	txs, err := Bakai().Parse(context.Background(), content, "statement.xlsx")

	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Equal(t, day(2024, 2, 1), txs[0].Date)
	assert.Equal(t, domain.TransactionTypeIncome, txs[0].Type)
	assert.Equal(t, "15000", txs[0].Amount.String())
	assert.Equal(t, "Айбек Т.", txs[0].Counterparty)

	assert.Equal(t, day(2024, 2, 2), txs[1].Date)
	assert.Equal(t, domain.TransactionTypeExpense, txs[1].Type)
	assert.Equal(t, "350.75", txs[1].Amount.String())
	assert.Equal(t, "Globus", txs[1].Counterparty)
}

func TestBakai_ExcelCorruptWorkbook(t *testing.T) {
	_, err := Bakai().Parse(context.Background(), []byte("not a zip"), "statement.xls")

	var fe *FormatError
	require.True(t, errors.As(err, &fe), "got %v", err)
	assert.Equal(t, "statement.xls", fe.Filename)
}

func TestBakai_CSV(t *testing.T) {
	content := []byte("\xef\xbb\xbfДата;Описание;Сумма\n" +
		"01.02.2024;Оплата в Globus за продукты;-1 250,50\n" +
		"bad;row;1\n" +
		"03.02.2024;\"Перевод: от Асель на карту\";2 000,00\n")

	txs, err := Bakai().Parse(context.Background(), content, "export.CSV")

	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "1250.5", txs[0].Amount.String())
	assert.Equal(t, domain.TransactionTypeExpense, txs[0].Type)
	assert.Equal(t, "Асель", txs[1].Counterparty)
	assert.Equal(t, domain.TransactionTypeIncome, txs[1].Type)
}

func TestSniffDelimiter(t *testing.T) {
	assert.Equal(t, ';', sniffDelimiter([]byte("\n\na;b;c,d\n")))
	assert.Equal(t, ',', sniffDelimiter([]byte("a,b,c")))
	assert.Equal(t, '\t', sniffDelimiter([]byte("a\tb\tc")))
	assert.Equal(t, ',', sniffDelimiter(nil))
}

func TestExtractSheetTables_UnknownExtension(t *testing.T) {
	_, err := ExtractSheetTables([]byte("x"), "ods")

	var fe *FormatError
	assert.True(t, errors.As(err, &fe))
}
