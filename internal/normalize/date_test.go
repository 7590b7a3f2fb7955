package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	feb1 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"dotted", "01.02.2024", feb1},
		{"dotted unpadded", "1.2.2024", feb1},
		{"slashed", "01/02/2024", feb1},
		{"iso", "2024-02-01", feb1},
		{"dashed", "01-02-2024", feb1},
		{"short year", "01.02.24", feb1},
		{"with time", "01.02.2024 13:45:10", feb1},
		{"iso datetime", "2024-02-01T13:45:10", feb1},
		{"surrounding space", "  01.02.2024  ", feb1},
		{"last day of year", "31.12.2023", time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestParseDate_DayFirstWinsOverMonthFirst(t *testing.T) {
	got, err := ParseDate("03/04/2024")
	require.NoError(t, err)
	assert.Equal(t, time.April, got.Month())
	assert.Equal(t, 3, got.Day())
}

func TestParseDate_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "Дата", "32.01.2024", "2024/02/30", "итого"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseDate(in)
			assert.Error(t, err)
		})
	}
}
