package parser

import (
	"context"
	"errors"
	"regexp"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/normalize"
)

// statementParser dispatches a file to PDF or spreadsheet extraction by
// extension and applies the bank's layout. A nil layout means the bank does
// not publish that format.
type statementParser struct {
	pdf   *Layout
	sheet *Layout
}

func (p *statementParser) Parse(ctx context.Context, content []byte, filename string) ([]domain.ParsedTransaction, error) {
	ext := normalize.FileExtension(filename)

	var (
		tables []Table
		layout *Layout
		err    error
	)
	switch {
	case ext == "pdf" && p.pdf != nil:
		layout = p.pdf
		tables, err = ExtractPDFTables(content)
	case isSpreadsheetExt(ext) && p.sheet != nil:
		layout = p.sheet
		tables, err = ExtractSheetTables(content, ext)
	default:
		return nil, &FormatError{Filename: filename, Reason: "unsupported file extension " + quoteExt(ext)}
	}
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) && fe.Filename == "" {
			fe.Filename = filename
		}
		return nil, err
	}

	return layout.Transactions(ctx, tables), nil
}

func quoteExt(ext string) string {
	if ext == "" {
		return "(none)"
	}
	return "." + ext
}

var mbankLayout = Layout{
	HeaderKeywords: []string{"дата", "date", "сумма", "amount", "описание", "description"},
	Columns: ColumnKeywords{
		Date:        []string{"дата", "date"},
		Description: []string{"описание", "description", "назначение"},
		Amount:      []string{"сумма", "amount", "приход", "расход"},
		Income:      []string{"приход", "credit", "зачисление"},
		Expense:     []string{"расход", "debit", "списание"},
	},
	Counterparty: CounterpartyExtractor{
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)от\s+(.+?)(?:\s+ИИН|\s+БИН|$)`),
			regexp.MustCompile(`(?i)в пользу\s+(.+?)(?:\s+ИИН|\s+БИН|$)`),
			regexp.MustCompile(`(?i)перевод\s+(?:на|от)\s+(.+?)(?:\s*$|\s+[А-Я])`),
		},
		FallbackWords:    3,
		FallbackMinWords: 2,
	},
}

// Mbank parses MBank PDF statements.
func Mbank() Parser {
	return &statementParser{pdf: &mbankLayout}
}

var bakaiCounterparty = CounterpartyExtractor{
	StripPrefix: regexp.MustCompile(`(?i)^(Оплата|Перевод|Покупка|Снятие|Пополнение)\s*:?\s*`),
	Patterns: []*regexp.Regexp{
		regexp.MustCompile(`от\s+(.+?)(?:\s*$|\s+на\s)`),
		regexp.MustCompile(`в\s+(.+?)(?:\s*$|\s+за\s)`),
		regexp.MustCompile(`^([A-Za-zА-Яа-я\s]+?)(?:\s+\d|\s*$)`),
	},
	MinLength:        2,
	FallbackWords:    3,
	FallbackMinWords: 1,
}

var bakaiPDFLayout = Layout{
	HeaderKeywords: []string{"дата", "date"},
	Columns: ColumnKeywords{
		Date:        []string{"дата", "date"},
		Description: []string{"опис", "назнач"},
		Amount:      []string{"сумма", "amount"},
	},
	Counterparty: bakaiCounterparty,
}

var bakaiSheetLayout = Layout{
	HeaderKeywords: []string{"дата", "date"},
	Columns: ColumnKeywords{
		Date:        []string{"дата", "date", "дата операции"},
		Description: []string{"описание", "description", "назначение", "детали"},
		Amount:      []string{"сумма", "amount"},
		Income:      []string{"приход", "credit", "зачисление", "дебет"},
		Expense:     []string{"расход", "debit", "списание", "кредит"},
	},
	Counterparty: bakaiCounterparty,
}

// Bakai parses Bakai Bank statements in PDF, Excel or CSV form.
func Bakai() Parser {
	return &statementParser{pdf: &bakaiPDFLayout, sheet: &bakaiSheetLayout}
}
