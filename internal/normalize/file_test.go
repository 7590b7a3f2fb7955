package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileExtension(t *testing.T) {
	tests := map[string]string{
		"statement.pdf":       "pdf",
		"Statement.XLSX":      "xlsx",
		"archive.2024.01.xls": "xls",
		"export.csv ":         "csv",
		"no_extension":        "",
		"dir.v2/no_extension": "",
		"":                    "",
		"user/abcd1234_a.Pdf": "pdf",
	}

	for in, want := range tests {
		assert.Equal(t, want, FileExtension(in), in)
	}
}
