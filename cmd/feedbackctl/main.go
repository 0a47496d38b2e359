package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/welldanyogia/feedback-forms/internal/auth"
	"github.com/welldanyogia/feedback-forms/internal/config"
	"github.com/welldanyogia/feedback-forms/internal/database"
	"github.com/welldanyogia/feedback-forms/internal/export"
	"github.com/welldanyogia/feedback-forms/internal/form"
	"github.com/welldanyogia/feedback-forms/internal/logger"
	"github.com/welldanyogia/feedback-forms/internal/privacy"
	"github.com/welldanyogia/feedback-forms/internal/repository"
	"github.com/welldanyogia/feedback-forms/internal/retention"
)

var (
	cfg      *config.Config
	log      *slog.Logger
	logLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "feedbackctl",
		Short: "Operator tool for the feedback service",
		Long: `feedbackctl runs maintenance and privacy tasks directly against the
feedback database: spam sweeps, submitter erasure, exports, form
management and admin token issuance.

Connection settings are read from the environment or a .env file.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg = config.Load()
			log = logger.New(logger.Config{
				Level:         logLevel,
				Format:        "text",
				Output:        "stderr",
				MaskSubmitter: cfg.Log.MaskSubmitter,
			})
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(eraseCmd())
	rootCmd.AddCommand(personalDataCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(formsCmd())
	rootCmd.AddCommand(tokenCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// openDB connects and returns the sqlx handle plus a function releasing it.
func openDB(ctx context.Context) (*sqlx.DB, func(), error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := database.Connect(connectCtx, cfg.Database, log)
	if err != nil {
		return nil, nil, err
	}
	db := database.SQLX(pool)
	return db, func() {
		db.Close()
		pool.Close()
	}, nil
}

func sweepCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete spam older than the retention threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, closeDB, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			threshold := cfg.Forms.SpamThreshold
			if days > 0 {
				threshold = time.Duration(days) * 24 * time.Hour
			}

			sweeper := retention.NewSweeper(repository.NewFeedbackRepo(db), log)
			deleted, err := sweeper.SweepOldSpam(cmd.Context(), threshold)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d spam records older than %s\n", deleted, threshold)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "age in days (default from FORMS_SPAM_THRESHOLD)")
	return cmd
}

func eraseCmd() *cobra.Command {
	var (
		email    string
		page     int
		pageSize int
		all      bool
	)

	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Erase a submitter's feedback",
		Long: `Erase feedback whose author email matches --email, one page at a time.
With --all, pages are erased until none remain.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, closeDB, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			walker := privacy.NewWalker(repository.NewFeedbackRepo(db), log)
			out := cmd.OutOrStdout()

			if all {
				removed, err := walker.EraseAll(cmd.Context(), email, pageSize)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "removed %d records\n", removed)
				return nil
			}

			res, err := walker.Erase(cmd.Context(), email, page, pageSize)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "removed %d records, done=%t\n", res.ItemsRemoved, res.Done)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "submitter email address")
	cmd.Flags().IntVar(&page, "page", 1, "page to erase")
	cmd.Flags().IntVar(&pageSize, "page-size", privacy.DefaultPageSize, "records per page")
	cmd.Flags().BoolVar(&all, "all", false, "erase every page")
	cmd.MarkFlagRequired("email")
	return cmd
}

func personalDataCmd() *cobra.Command {
	var (
		email    string
		page     int
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "personal-data",
		Short: "Print a submitter's personal data export as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, closeDB, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			walker := privacy.NewWalker(repository.NewFeedbackRepo(db), log)
			data, err := walker.Export(cmd.Context(), email, page, pageSize)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(data)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "submitter email address")
	cmd.Flags().IntVar(&page, "page", 1, "page to export")
	cmd.Flags().IntVar(&pageSize, "page-size", privacy.DefaultPageSize, "records per page")
	cmd.MarkFlagRequired("email")
	return cmd
}

func exportCmd() *cobra.Command {
	var (
		ids     []string
		outFile string
		archive bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export feedback records as CSV",
		Long: `Export the records named by --ids as one CSV table. The table is
written to stdout, to --out, or uploaded to the export bucket with --archive.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseIDs(ids)
			if err != nil {
				return err
			}

			db, closeDB, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			table, err := export.NewAggregator(repository.NewFeedbackRepo(db), log).Export(cmd.Context(), parsed)
			if err != nil {
				return err
			}

			if archive {
				if !cfg.Storage.Enabled() {
					return fmt.Errorf("export storage is not configured")
				}
				a, err := export.NewArchiver(cfg.Storage, log).Upload(cmd.Context(), table)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", a.Key, a.URL)
				return nil
			}

			var w io.Writer = cmd.OutOrStdout()
			if outFile != "" {
				f, err := os.Create(outFile)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", outFile, err)
				}
				defer f.Close()
				w = f
			}
			return export.WriteCSV(w, table)
		},
	}

	cmd.Flags().StringSliceVar(&ids, "ids", nil, "comma separated record ids")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write CSV to file")
	cmd.Flags().BoolVar(&archive, "archive", false, "upload to the export bucket")
	cmd.MarkFlagRequired("ids")
	return cmd
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid record id %q", s)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("at least one record id is required")
	}
	return ids, nil
}

func formsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forms",
		Short: "Manage stored forms",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored forms",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, closeDB, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			forms, err := repository.NewFormRepo(db).List(cmd.Context())
			if err != nil {
				return err
			}
			for _, f := range forms {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d fields\t%s\n", f.ID, f.Title, len(f.Fields), f.To)
			}
			return nil
		},
	})

	var (
		title, contentFile, to, subject, url string
	)
	set := &cobra.Command{
		Use:   "set ID",
		Short: "Create or replace a form from field tag content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content := ""
			if contentFile != "" {
				b, err := os.ReadFile(contentFile)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", contentFile, err)
				}
				content = string(b)
			}

			f, err := form.New(args[0], title, content)
			if err != nil {
				return err
			}
			f.To, f.Subject, f.URL = to, subject, url

			db, closeDB, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			if err := repository.NewFormRepo(db).Upsert(cmd.Context(), f); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved form %s with %d fields\n", f.ID, len(f.Fields))
			return nil
		},
	}
	set.Flags().StringVar(&title, "title", "", "form title")
	set.Flags().StringVar(&contentFile, "content", "", "file holding the field tags (default field set when empty)")
	set.Flags().StringVar(&to, "to", "", "comma separated recipients")
	set.Flags().StringVar(&subject, "subject", "", "subject template, may reference {Field Label}")
	set.Flags().StringVar(&url, "url", "", "page the form is embedded in")
	cmd.AddCommand(set)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete ID",
		Short: "Delete a stored form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, closeDB, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()
			return repository.NewFormRepo(db).Delete(cmd.Context(), args[0])
		},
	})

	return cmd
}

func tokenCmd() *cobra.Command {
	var operator string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens := auth.NewTokenService(cfg.JWT)
			token, err := tokens.GenerateAdminToken(operator)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires in %s\n", tokens.Expiry())
			return nil
		},
	}

	cmd.Flags().StringVar(&operator, "operator", "", "operator name recorded in the token subject")
	cmd.MarkFlagRequired("operator")
	return cmd
}
