package domain

import (
	"github.com/google/uuid"
)

// Bank is a supported statement issuer. ParserType selects the parser.
type Bank struct {
	ID         uuid.UUID
	Name       string
	ParserType string
}

// Account belongs to a user and is held at a bank.
type Account struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	BankID   uuid.UUID
	Name     string
	Currency string
}

// DefaultBanks are seeded into a fresh database.
var DefaultBanks = []Bank{
	{ID: uuid.MustParse("0b6a1f52-3d6e-4d7c-9a53-6f1a1c0e0001"), Name: "MBank", ParserType: "mbank_pdf"},
	{ID: uuid.MustParse("0b6a1f52-3d6e-4d7c-9a53-6f1a1c0e0002"), Name: "Bakai Bank", ParserType: "bakai_pdf"},
	{ID: uuid.MustParse("0b6a1f52-3d6e-4d7c-9a53-6f1a1c0e0003"), Name: "O!Bank", ParserType: "obank_pdf"},
	{ID: uuid.MustParse("0b6a1f52-3d6e-4d7c-9a53-6f1a1c0e0004"), Name: "Optima Bank", ParserType: "optima_pdf"},
}
