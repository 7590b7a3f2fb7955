package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"testing"
	"testing/fstest"

	bqinfra "github.com/dvloznov/statement-ingest/internal/infra/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFilenamePattern(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  string
		name     string
	}{
		{"0001_init_schema_migrations.sql", true, "0001", "init_schema_migrations"},
		{"001_invalid.sql", false, "", ""},
		{"0001_test", false, "", ""},
		{"0001.sql", false, "", ""},
		{"invalid_0001_test.sql", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			matches := migrationPattern.FindStringSubmatch(tt.filename)
			if !tt.valid {
				assert.Nil(t, matches)
				return
			}
			require.NotNil(t, matches)
			assert.Equal(t, tt.version, matches[1])
			assert.Equal(t, tt.name, matches[2])
		})
	}
}

func TestReadMigrations(t *testing.T) {
	raw := "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.t` (id INT64);"
	fsys := fstest.MapFS{
		"0002_second.sql": {Data: []byte("SELECT 2;")},
		"0001_first.sql":  {Data: []byte(raw)},
		"README.md":       {Data: []byte("notes")},
	}

	migrations, err := readMigrations(context.Background(), fsys, "proj", "ds")
	require.NoError(t, err)

	require.Len(t, migrations, 2)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "first", migrations[0].Name)
	assert.Equal(t, "CREATE TABLE `proj.ds.t` (id INT64);", migrations[0].SQL)
	assert.Equal(t, fmt.Sprintf("%x", sha256.Sum256([]byte(raw))), migrations[0].Checksum)
	assert.Equal(t, 2, migrations[1].Version)
}

func TestReadMigrations_ChecksumIgnoresTarget(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_first.sql": {Data: []byte("CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.t` (id INT64);")},
	}

	a, err := readMigrations(context.Background(), fsys, "proj-a", "ds")
	require.NoError(t, err)
	b, err := readMigrations(context.Background(), fsys, "proj-b", "other")
	require.NoError(t, err)

	assert.NotEqual(t, a[0].SQL, b[0].SQL)
	assert.Equal(t, a[0].Checksum, b[0].Checksum)
}

func TestReadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_a.sql": {Data: []byte("SELECT 1;")},
		"0001_b.sql": {Data: []byte("SELECT 1;")},
	}

	_, err := readMigrations(context.Background(), fsys, "p", "d")
	assert.ErrorContains(t, err, "duplicate migration version 0001")
}

func TestEmbeddedMigrations(t *testing.T) {
	files, err := fs.Sub(bqinfra.Migrations, "migrations")
	require.NoError(t, err)

	migrations, err := readMigrations(context.Background(), files, "proj", "statements")
	require.NoError(t, err)

	require.NotEmpty(t, migrations)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Contains(t, migrations[0].SQL, "`proj.statements.transactions`")
	assert.NotContains(t, migrations[0].SQL, "{{")
}

func TestPending(t *testing.T) {
	migrations := []Migration{
		{Version: 1, Name: "init", Checksum: "aaa"},
		{Version: 2, Name: "rules", Checksum: "bbb"},
	}

	todo, err := pending(migrations, []AppliedMigration{{Version: 1, Checksum: "aaa"}})
	require.NoError(t, err)
	require.Len(t, todo, 1)
	assert.Equal(t, 2, todo[0].Version)

	_, err = pending(migrations, []AppliedMigration{{Version: 1, Checksum: "changed"}})
	assert.ErrorContains(t, err, "modified after being applied")
}
