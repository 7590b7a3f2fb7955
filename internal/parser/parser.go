// Package parser extracts transactions from bank statement files.
//
// Each supported bank registers a Parser under its parser type. Parsers turn
// the file into tables (PDF text layout, spreadsheet sheets, CSV records or a
// model-produced table) and run a shared header/column heuristic over them.
package parser

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/statement-ingest/internal/domain"
)

// Parser types declared on banks.
const (
	TypeMbankPDF   = "mbank_pdf"
	TypeBakaiPDF   = "bakai_pdf"
	TypeBakaiExcel = "bakai_excel"
	TypeObankPDF   = "obank_pdf"
	TypeOptimaPDF  = "optima_pdf"
)

// Parser extracts transactions from one statement file. Malformed rows are
// skipped; a file the parser cannot handle at all yields a *FormatError.
type Parser interface {
	Parse(ctx context.Context, content []byte, filename string) ([]domain.ParsedTransaction, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(ctx context.Context, content []byte, filename string) ([]domain.ParsedTransaction, error)

// Parse calls f.
func (f ParserFunc) Parse(ctx context.Context, content []byte, filename string) ([]domain.ParsedTransaction, error) {
	return f(ctx, content, filename)
}

// FormatError reports a file that is unsupported or structurally unreadable
// for the selected parser. It is never worth retrying.
type FormatError struct {
	Filename string
	Reason   string
	Err      error
}

func (e *FormatError) Error() string {
	msg := "unsupported statement format"
	if e.Filename != "" {
		msg += fmt.Sprintf(" (%s)", e.Filename)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error { return e.Err }

// Registry maps parser types to parsers. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// DefaultRegistry returns a registry with the heuristic parsers for every
// bank that has one.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(TypeMbankPDF, Mbank())
	bakai := Bakai()
	r.Register(TypeBakaiPDF, bakai)
	r.Register(TypeBakaiExcel, bakai)
	return r
}

// Register adds or replaces the parser for parserType.
func (r *Registry) Register(parserType string, p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[parserType] = p
}

// Resolve returns the parser registered for parserType, or a *FormatError.
func (r *Registry) Resolve(parserType string) (Parser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[parserType]
	if !ok {
		return nil, &FormatError{Reason: fmt.Sprintf("no parser for bank type %q", parserType)}
	}
	return p, nil
}

// Types lists the registered parser types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.parsers))
	for t := range r.parsers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
