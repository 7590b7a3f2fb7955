package bigquery

import "embed"

// Migrations holds the versioned DDL files, named NNNN_name.sql. Table names
// use the {{PROJECT_ID}} and {{DATASET_ID}} placeholders.
//
//go:embed migrations/*.sql
var Migrations embed.FS
