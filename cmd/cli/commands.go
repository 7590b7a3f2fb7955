package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dvloznov/statement-ingest/internal/app"
	"github.com/dvloznov/statement-ingest/internal/categorize"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newParseCommand(c *cli) *cobra.Command {
	var parserType string

	cmd := &cobra.Command{
		Use:   "parse FILE",
		Short: "Run a parser on a local statement file and print the transactions as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			reg, err := app.NewRegistry(ctx, c.cfg.Gemini)
			if err != nil {
				return err
			}
			p, err := reg.Resolve(parserType)
			if err != nil {
				return err
			}

			txs, err := p.Parse(ctx, content, filepath.Base(args[0]))
			if err != nil {
				return err
			}
			c.log.Info().Int("transactions", len(txs)).Str("parser_type", parserType).Msg("Parsed statement")

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(txs)
		},
	}

	cmd.Flags().StringVar(&parserType, "type", "", "parser type, e.g. mbank_pdf (required)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newSubmitCommand(c *cli) *cobra.Command {
	var accountFlag string

	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Store a statement file and create a pending upload for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := c.userID()
			if err != nil {
				return err
			}
			accountID, err := parseID("account", accountFlag)
			if err != nil {
				return err
			}
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			upload, err := a.Submit(ctx, userID, accountID, filepath.Base(args[0]), content)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), upload.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&accountFlag, "account", "", "account ID (required)")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func newProcessCommand(c *cli) *cobra.Command {
	var reprocess bool

	cmd := &cobra.Command{
		Use:   "process UPLOAD_ID",
		Short: "Run ingestion for one upload in this process, with retries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			uploadID, err := parseID("upload", args[0])
			if err != nil {
				return err
			}

			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Runner.Run(ctx, uploadID, reprocess)
			if err != nil {
				return err
			}

			switch {
			case result.Skipped && result.Status == "":
				fmt.Fprintf(cmd.OutOrStdout(), "upload %s not found\n", uploadID)
			case result.Skipped:
				fmt.Fprintf(cmd.OutOrStdout(), "upload %s already %s, nothing to do\n", uploadID, result.Status)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "upload %s %s: %d transactions\n", uploadID, result.Status, result.Transactions)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reprocess, "reprocess", false, "run again even if the upload ended in error")
	return cmd
}

func newRecategorizeCommand(c *cli) *cobra.Command {
	var txFlags []string

	cmd := &cobra.Command{
		Use:   "recategorize",
		Short: "Re-apply categorization rules to the user's auto-categorized transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := c.userID()
			if err != nil {
				return err
			}
			var ids []uuid.UUID
			for _, s := range txFlags {
				id, err := parseID("transaction", s)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}

			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			changed, err := a.Engine.Recategorize(ctx, userID, ids)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d transactions recategorized\n", changed)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&txFlags, "tx", nil, "limit to these transaction IDs")
	return cmd
}

func newBanksCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "banks",
		Short: "List banks and whether a parser is available for each",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			banks, err := a.Repo.ListBanks(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPARSER\tAVAILABLE")
			for _, b := range banks {
				_, resolveErr := a.Parsers.Resolve(b.ParserType)
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", b.ID, b.Name, b.ParserType, resolveErr == nil)
			}
			return w.Flush()
		},
	}
}

func newCategoriesCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the categories visible to the user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := c.userID()
			if err != nil {
				return err
			}
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			categories, err := a.Repo.ListCategories(ctx, userID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tTYPE\tSYSTEM")
			for _, cat := range categories {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", cat.ID, cat.Name, cat.Type, cat.IsSystem())
			}
			return w.Flush()
		},
	}
}

func newRulesCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage categorization rules",
	}
	cmd.AddCommand(newRulesListCommand(c), newRulesAddCommand(c), newRulesDeleteCommand(c))
	return cmd
}

func newRulesListCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the rules applied to the user's transactions, in evaluation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := c.userID()
			if err != nil {
				return err
			}
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			rules, err := a.Engine.ApplicableRules(ctx, userID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPRIORITY\tMATCH\tPATTERN\tCATEGORY\tSCOPE")
			for _, r := range rules {
				scope := "user"
				if r.IsSystem() {
					scope = "system"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n", r.ID, r.Priority, r.MatchType, r.Pattern, r.CategoryID, scope)
			}
			return w.Flush()
		},
	}
}

func newRulesAddCommand(c *cli) *cobra.Command {
	var (
		categoryFlag string
		pattern      string
		matchType    string
		priority     int
		system       bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a categorization rule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			categoryID, err := parseID("category", categoryFlag)
			if err != nil {
				return err
			}
			rule := &domain.CategorizationRule{
				ID:         uuid.New(),
				CategoryID: categoryID,
				Pattern:    pattern,
				MatchType:  domain.MatchType(strings.ToLower(matchType)),
				Priority:   priority,
			}
			if !system {
				userID, err := c.userID()
				if err != nil {
					return err
				}
				rule.UserID = &userID
			}
			if err := categorize.ValidateRule(*rule); err != nil {
				return err
			}

			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Repo.CreateRule(ctx, rule); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rule.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&categoryFlag, "category", "", "target category ID (required)")
	cmd.Flags().StringVar(&pattern, "pattern", "", "text or regular expression to match (required)")
	cmd.Flags().StringVar(&matchType, "match", string(domain.MatchContains), "exact, contains or regex")
	cmd.Flags().IntVar(&priority, "priority", 0, "higher priorities are evaluated first")
	cmd.Flags().BoolVar(&system, "system", false, "create a rule that applies to every user")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("pattern")
	return cmd
}

func newRulesDeleteCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete RULE_ID",
		Short: "Delete one of the user's rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := c.userID()
			if err != nil {
				return err
			}
			ruleID, err := parseID("rule", args[0])
			if err != nil {
				return err
			}
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			deleted, err := a.Repo.DeleteRule(ctx, userID, ruleID)
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("rule %s: %w", ruleID, domain.ErrNotFound)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted rule %s\n", ruleID)
			return nil
		},
	}
}

func newAccountsCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage bank accounts",
	}
	cmd.AddCommand(newAccountsAddCommand(c))
	return cmd
}

func newAccountsAddCommand(c *cli) *cobra.Command {
	var bank, name, currency string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an account at a bank, identified by bank ID or parser type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := c.userID()
			if err != nil {
				return err
			}
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			banks, err := a.Repo.ListBanks(ctx)
			if err != nil {
				return err
			}
			bankID, err := findBank(banks, bank)
			if err != nil {
				return err
			}

			account := &domain.Account{
				ID:       uuid.New(),
				UserID:   userID,
				BankID:   bankID,
				Name:     name,
				Currency: strings.ToUpper(currency),
			}
			if err := a.Repo.CreateAccount(ctx, account); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), account.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&bank, "bank", "", "bank ID or parser type, e.g. mbank_pdf (required)")
	cmd.Flags().StringVar(&name, "name", "", "account name (required)")
	cmd.Flags().StringVar(&currency, "currency", "KGS", "ISO currency code")
	_ = cmd.MarkFlagRequired("bank")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func findBank(banks []domain.Bank, ref string) (uuid.UUID, error) {
	for _, b := range banks {
		if b.ID.String() == ref || strings.EqualFold(b.ParserType, ref) {
			return b.ID, nil
		}
	}
	return uuid.Nil, fmt.Errorf("bank %q: %w", ref, domain.ErrNotFound)
}
