package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

func isSpreadsheetExt(ext string) bool {
	switch ext {
	case "xlsx", "xlsm", "xls", "csv":
		return true
	}
	return false
}

// ExtractSheetTables returns one table per worksheet of an Excel workbook, or
// a single table for a CSV file. Cell values are read raw, so dates stored as
// numbers come back as serials.
func ExtractSheetTables(content []byte, ext string) ([]Table, error) {
	switch ext {
	case "csv":
		t, err := readCSV(content)
		if err != nil {
			return nil, err
		}
		return []Table{t}, nil
	case "xlsx", "xlsm", "xls":
		return readWorkbook(content)
	default:
		return nil, &FormatError{Reason: "unsupported spreadsheet extension " + quoteExt(ext)}
	}
}

func readWorkbook(content []byte) ([]Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, &FormatError{Reason: "unreadable workbook", Err: err}
	}
	defer f.Close()

	var tables []Table
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, &FormatError{Reason: fmt.Sprintf("reading sheet %q", sheet), Err: err}
		}
		tables = append(tables, Table{Rows: rows, SerialDates: true})
	}
	return tables, nil
}

func readCSV(content []byte) (Table, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(content))
	r.Comma = sniffDelimiter(content)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return Table{}, &FormatError{Reason: "malformed csv", Err: err}
	}
	return Table{Rows: rows}, nil
}

// sniffDelimiter picks the most frequent of ';', ',' and tab on the first
// non-empty line. Statements exported with comma decimals use ';'.
func sniffDelimiter(content []byte) rune {
	var first string
	for _, line := range strings.Split(string(content), "\n") {
		if strings.TrimSpace(line) != "" {
			first = line
			break
		}
	}

	best, bestCount := ',', 0
	for _, d := range []rune{';', ',', '\t'} {
		if n := strings.Count(first, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
