package parser

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Gaps between glyphs, as fractions of the font size. A gap wider than
// wordGap inserts a space; wider than cellGap starts a new cell.
const (
	wordGap = 0.15
	cellGap = 1.0
)

// wrapSlack tolerates a wrapped line starting slightly left of its column.
const wrapSlack = 2.0

// glyph is a positioned piece of text on a page line.
type glyph struct {
	X, W, FontSize float64
	S              string
}

// span is a run of glyphs that form one table cell on a line.
type span struct {
	x0, x1 float64
	text   string
}

func (s span) center() float64 { return (s.x0 + s.x1) / 2 }

// ExtractPDFTables reads the text layer of a PDF and rebuilds the tables on
// each page from glyph positions. Encrypted, scanned or corrupt files yield a
// *FormatError.
func ExtractPDFTables(content []byte) (tables []Table, err error) {
	defer func() {
		if r := recover(); r != nil {
			tables = nil
			err = &FormatError{Reason: "unreadable pdf", Err: fmt.Errorf("pdf reader panic: %v", r)}
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, &FormatError{Reason: "unreadable pdf", Err: err}
	}

	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, &FormatError{Reason: fmt.Sprintf("reading page %d", i), Err: err}
		}

		lines := make([][]glyph, 0, len(rows))
		for _, row := range rows {
			line := make([]glyph, 0, len(row.Content))
			for _, t := range row.Content {
				line = append(line, glyph{X: t.X, W: t.W, FontSize: t.FontSize, S: t.S})
			}
			lines = append(lines, line)
		}
		tables = append(tables, assembleTables(lines)...)
	}
	return tables, nil
}

// splitSpans groups a line's glyphs into cells by horizontal gaps.
func splitSpans(line []glyph) []span {
	if len(line) == 0 {
		return nil
	}
	sorted := append([]glyph(nil), line...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	var (
		spans []span
		cur   *span
		b     strings.Builder
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.text = strings.Join(strings.Fields(b.String()), " ")
		if cur.text != "" {
			spans = append(spans, *cur)
		}
		cur = nil
		b.Reset()
	}

	for _, g := range sorted {
		size := g.FontSize
		if size <= 0 {
			size = 10
		}
		width := g.W
		if width <= 0 {
			width = 0.5 * size * float64(len([]rune(g.S)))
		}

		if cur != nil {
			gap := g.X - cur.x1
			switch {
			case gap > cellGap*size:
				flush()
			case gap > wordGap*size:
				b.WriteByte(' ')
			}
		}
		if cur == nil {
			cur = &span{x0: g.X, x1: g.X}
		}
		b.WriteString(g.S)
		cur.x1 = math.Max(cur.x1, g.X+width)
	}
	flush()
	return spans
}

// blockRow is one table row: the cells found on its own line plus any
// wrapped continuation lines below it.
type blockRow struct {
	spans []span
	wraps []span
}

// assembleTables turns page lines into tables. Consecutive lines with two or
// more cells form a table. A single-cell line inside a table that sits under
// a later column is a wrapped continuation of the previous row; any other
// single-cell line ends the table.
func assembleTables(lines [][]glyph) []Table {
	var (
		tables []Table
		block  []blockRow
	)
	closeBlock := func() {
		if len(block) >= 2 {
			tables = append(tables, alignBlock(block))
		}
		block = nil
	}

	for _, line := range lines {
		spans := splitSpans(line)
		switch {
		case len(spans) >= 2:
			block = append(block, blockRow{spans: spans})
		case len(spans) == 1 && len(block) > 0 && wrapColumn(widestRow(block), spans[0]) > 0:
			last := &block[len(block)-1]
			last.wraps = append(last.wraps, spans[0])
		default:
			closeBlock()
		}
	}
	closeBlock()
	return tables
}

// widestRow returns the row with the most cells of its own. Continuation
// lines never count, so they cannot add a column.
func widestRow(block []blockRow) []span {
	widest := block[0].spans
	for _, row := range block[1:] {
		if len(row.spans) > len(widest) {
			widest = row.spans
		}
	}
	return widest
}

// alignBlock assigns every span to a column of the widest row, joining spans
// that land in the same column. Continuation text is appended to the cell of
// the column it starts under.
func alignBlock(block []blockRow) Table {
	anchors := widestRow(block)
	rows := make([][]string, 0, len(block))
	for _, row := range block {
		cells := make([]string, len(anchors))
		add := func(col int, text string) {
			if cells[col] == "" {
				cells[col] = text
			} else {
				cells[col] += " " + text
			}
		}
		for _, s := range row.spans {
			add(nearestColumn(anchors, s), s.text)
		}
		for _, s := range row.wraps {
			add(wrapColumn(anchors, s), s.text)
		}
		rows = append(rows, cells)
	}
	return Table{Rows: rows}
}

// wrapColumn picks the column a wrapped line belongs to. Wrapped text starts
// at the left edge of its cell but may run far past it, so the rightmost
// column starting at or before the line wins over the widest overlap.
func wrapColumn(anchors []span, s span) int {
	col := -1
	for i, a := range anchors {
		if a.x0 <= s.x0+wrapSlack {
			col = i
		}
	}
	if col < 0 {
		return nearestColumn(anchors, s)
	}
	return col
}

// nearestColumn picks the anchor overlapping s the most, or the one with the
// closest center when nothing overlaps.
func nearestColumn(anchors []span, s span) int {
	best, bestOverlap := -1, 0.0
	for i, a := range anchors {
		overlap := math.Min(a.x1, s.x1) - math.Max(a.x0, s.x0)
		if overlap > bestOverlap {
			best, bestOverlap = i, overlap
		}
	}
	if best >= 0 {
		return best
	}

	best, bestDist := 0, math.Inf(1)
	for i, a := range anchors {
		if d := math.Abs(a.center() - s.center()); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
