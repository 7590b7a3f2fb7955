package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dvloznov/statement-ingest/internal/app"
	"github.com/dvloznov/statement-ingest/internal/config"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli carries the settings shared by every subcommand.
type cli struct {
	configPath string
	user       string

	cfg *config.Config
	log zerolog.Logger
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "cli",
		Short: "Operate the bank statement ingestion pipeline",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			log, err := logger.Configure(cfg.Log.Level, cfg.Log.Format, os.Stderr)
			if err != nil {
				return err
			}
			c.cfg, c.log = cfg, log
			cmd.SetContext(logger.WithContext(cmd.Context(), log))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&c.configPath, "config", os.Getenv("PFM_CONFIG"), "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&c.user, "user", os.Getenv("PFM_USER_ID"), "user ID the command acts for")

	rootCmd.AddCommand(
		newParseCommand(c),
		newSubmitCommand(c),
		newProcessCommand(c),
		newRecategorizeCommand(c),
		newBanksCommand(c),
		newCategoriesCommand(c),
		newRulesCommand(c),
		newAccountsCommand(c),
	)
	return rootCmd
}

// open wires the full application. Callers must Close it.
func (c *cli) open(ctx context.Context) (*app.App, error) {
	return app.New(ctx, c.cfg)
}

func (c *cli) userID() (uuid.UUID, error) {
	if c.user == "" {
		return uuid.Nil, fmt.Errorf("--user is required")
	}
	id, err := uuid.Parse(c.user)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --user: %w", err)
	}
	return id, nil
}

func parseID(kind, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s ID %q: %w", kind, s, err)
	}
	return id, nil
}
