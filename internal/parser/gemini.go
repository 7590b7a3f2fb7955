package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/normalize"
	"github.com/dvloznov/statement-ingest/internal/retry"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured explicitly.
const DefaultGeminiModel = "gemini-2.5-flash"

// ContentGenerator is the part of the genai client the model-backed parser
// needs. *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiParser asks a Gemini model to transcribe the statement's transaction
// table and then applies the same row heuristic as the other parsers. It
// serves banks without a dedicated layout.
type GeminiParser struct {
	models   ContentGenerator
	model    string
	bankName string
}

// NewGeminiParser creates a model-backed parser for the named bank.
func NewGeminiParser(models ContentGenerator, model, bankName string) *GeminiParser {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiParser{models: models, model: model, bankName: bankName}
}

var modelLayout = Layout{
	HeaderKeywords: []string{"date"},
	Columns: ColumnKeywords{
		Date:        []string{"date"},
		Description: []string{"description"},
		Amount:      []string{"amount"},
	},
	Counterparty: mbankLayout.Counterparty,
}

type modelRow struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      json.RawMessage `json:"amount"`
}

func (p *GeminiParser) Parse(ctx context.Context, content []byte, filename string) ([]domain.ParsedTransaction, error) {
	var mimeType string
	switch ext := normalize.FileExtension(filename); ext {
	case "pdf":
		mimeType = "application/pdf"
	case "csv":
		mimeType = "text/csv"
	default:
		return nil, &FormatError{Filename: filename, Reason: "unsupported file extension " + quoteExt(ext)}
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: statementPrompt(p.bankName)},
				{InlineData: &genai.Blob{MIMEType: mimeType, Data: content}},
			},
		},
	}

	resp, err := p.models.GenerateContent(ctx, p.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("gemini generate content: %w", err))
	}

	raw := resp.Text()
	if strings.TrimSpace(raw) == "" {
		return nil, &FormatError{Filename: filename, Reason: "model returned no transactions table"}
	}

	var rows []modelRow
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &rows); err != nil {
		return nil, &FormatError{Filename: filename, Reason: "model output is not a JSON array", Err: err}
	}

	table := Table{Rows: [][]string{{"date", "description", "amount"}}}
	for _, r := range rows {
		table.Rows = append(table.Rows, []string{r.Date, r.Description, rawAmount(r.Amount)})
	}
	return modelLayout.Transactions(ctx, []Table{table}), nil
}

// rawAmount returns the amount as text whether the model emitted a JSON
// number or a string.
func rawAmount(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	v := strings.TrimSpace(string(raw))
	if v == "null" {
		return ""
	}
	return v
}

func statementPrompt(bankName string) string {
	return "You are a bank statement parser for " + bankName + " statements.\n\n" +
		"Task:\n" +
		"- Transcribe ALL transactions in the attached statement.\n" +
		"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n" +
		"- Output a JSON array of objects.\n\n" +
		"Each object must have these fields:\n" +
		"- \"date\": string, the transaction date exactly as printed\n" +
		"- \"description\": string, the full operation description\n" +
		"- \"amount\": string (positive for money IN, negative for money OUT)\n\n" +
		"Rules:\n" +
		"- If the statement has separate income/expense columns, convert to a single signed \"amount\".\n" +
		"- Skip opening/closing balance and total lines.\n" +
		"- Do NOT wrap the response in code fences.\n" +
		"- Output must begin with \"[\" and end with \"]\".\n"
}

// cleanModelJSON strips Markdown fences and any text around the JSON array.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
