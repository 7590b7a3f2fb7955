package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/statement-ingest/internal/config"
	bqinfra "github.com/dvloznov/statement-ingest/internal/infra/bigquery"
	"github.com/dvloznov/statement-ingest/internal/infra/sqlstore"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		projectID  string
		datasetID  string
		appliedBy  string
		sqlitePath string
	)

	cmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply schema migrations to BigQuery or a local sqlite database",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log, err := logger.Configure(cfg.Log.Level, cfg.Log.Format, os.Stderr)
			if err != nil {
				return err
			}
			ctx := logger.WithContext(cmd.Context(), log)

			if cmd.Flags().Changed("sqlite") || (projectID == "" && cfg.Database.Backend == config.DatabaseSQLite) {
				if sqlitePath == "" {
					sqlitePath = cfg.Database.SQLitePath
				}
				return migrateSQLite(ctx, sqlitePath)
			}

			if projectID == "" {
				projectID = cfg.Database.ProjectID
			}
			if datasetID == "" {
				datasetID = cfg.Database.Dataset
			}
			if projectID == "" {
				return fmt.Errorf("--project is required for BigQuery migrations")
			}
			return migrateBigQuery(ctx, projectID, datasetID, appliedBy)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", os.Getenv("PFM_CONFIG"), "path to the YAML config file")
	cmd.Flags().StringVar(&projectID, "project", "", "GCP project ID")
	cmd.Flags().StringVar(&datasetID, "dataset", "", "BigQuery dataset ID")
	cmd.Flags().StringVar(&appliedBy, "applied-by", "migrate-cli", "name recorded for applied migrations")
	cmd.Flags().StringVar(&sqlitePath, "sqlite", "", "migrate this sqlite file instead of BigQuery")

	return cmd
}

func migrateSQLite(ctx context.Context, path string) error {
	log := logger.FromContext(ctx)

	store, err := sqlstore.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating %s: %w", path, err)
	}
	log.Info().Str("path", path).Msg("sqlite schema is up to date")
	return nil
}

func migrateBigQuery(ctx context.Context, projectID, datasetID, appliedBy string) error {
	log := logger.FromContext(ctx)

	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to create BigQuery client: %w", err)
	}
	defer client.Close()

	log.Info().Str("project", projectID).Str("dataset", datasetID).Msg("Connected to BigQuery")

	files, err := fs.Sub(bqinfra.Migrations, "migrations")
	if err != nil {
		return err
	}
	migrations, err := readMigrations(ctx, files, projectID, datasetID)
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	log.Info().Int("count", len(migrations)).Msg("Found migration files")

	m := &migrator{client: client, projectID: projectID, datasetID: datasetID, appliedBy: appliedBy}
	applied, err := m.apply(ctx, migrations)
	if err != nil {
		return err
	}

	if applied == 0 {
		log.Info().Msg("No new migrations to apply. Database is up to date.")
	} else {
		log.Info().Int("applied", applied).Msg("Successfully applied migrations")
	}
	return nil
}
