// Package main provides a CLI tool for database migrations. Migrations are
// embedded in the binary; create writes new files into the source tree.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"

	"github.com/welldanyogia/feedback-forms/internal/config"
	"github.com/welldanyogia/feedback-forms/internal/database"
	"github.com/welldanyogia/feedback-forms/internal/logger"
)

// Version is set at build time
var Version = "dev"

const defaultSourcePath = "internal/database/migrations"

type options struct {
	db         config.DatabaseConfig
	sourcePath string
	timeout    time.Duration
	dryRun     bool
	log        *slog.Logger
}

func main() {
	cfg := config.Load()

	var (
		dbName   = flag.String("db-name", cfg.Database.DBName, "Database name")
		dbHost   = flag.String("db-host", cfg.Database.Host, "Database host")
		srcPath  = flag.String("path", defaultSourcePath, "Migrations directory used by create")
		timeout  = flag.Duration("timeout", database.DefaultMigrationTimeout, "Lock timeout per migration")
		dryRun   = flag.Bool("dry-run", false, "Show what would be done without executing")
		version  = flag.Bool("version", false, "Print version and exit")
		logLevel = flag.String("log-level", "info", "Log level")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <command> [args]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Database migration tool for the feedback service\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  up [N]       Apply all or N up migrations\n")
		fmt.Fprintf(os.Stderr, "  down [N]     Apply all or N down migrations\n")
		fmt.Fprintf(os.Stderr, "  goto V       Migrate to version V\n")
		fmt.Fprintf(os.Stderr, "  force V      Set version V without running migrations\n")
		fmt.Fprintf(os.Stderr, "  version      Print current migration version\n")
		fmt.Fprintf(os.Stderr, "  list         List embedded migrations\n")
		fmt.Fprintf(os.Stderr, "  create NAME  Create a new migration file pair\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nConnection settings are read from DB_* environment variables or .env.\n")
	}

	flag.Parse()

	if *version {
		fmt.Printf("migrate version %s\n", Version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(1)
	}

	cfg.Database.DBName = *dbName
	cfg.Database.Host = *dbHost
	opts := &options{
		db:         cfg.Database,
		sourcePath: *srcPath,
		timeout:    *timeout,
		dryRun:     *dryRun,
		log:        logger.New(logger.Config{Level: *logLevel, Format: "text", Output: "stderr"}),
	}

	if err := runCommand(opts, args[0], args[1:]); err != nil {
		opts.log.Error("migration command failed", slog.String("command", args[0]), slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func runCommand(opts *options, cmd string, args []string) error {
	switch cmd {
	case "create":
		if len(args) < 1 {
			return fmt.Errorf("create requires a migration name")
		}
		return createMigration(opts, args[0])
	case "list":
		names, err := database.Migrations()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	case "version":
		return showVersion(opts)
	case "up", "down":
		steps, err := optionalInt(args)
		if err != nil {
			return err
		}
		if cmd == "down" {
			steps = -steps
		}
		return step(opts, cmd, steps)
	case "goto":
		v, err := requiredInt(cmd, args)
		if err != nil {
			return err
		}
		return withMigrate(opts, fmt.Sprintf("migrate to version %d", v), func(m *migrate.Migrate) error {
			return m.Migrate(uint(v))
		})
	case "force":
		v, err := requiredInt(cmd, args)
		if err != nil {
			return err
		}
		return withMigrate(opts, fmt.Sprintf("force version %d", v), func(m *migrate.Migrate) error {
			return m.Force(v)
		})
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func optionalInt(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid number of steps: %s", args[0])
	}
	return n, nil
}

func requiredInt(cmd string, args []string) (int, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("%s requires a version number", cmd)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid version: %s", args[0])
	}
	return n, nil
}

// step applies steps migrations; zero means all of them in the direction
// named by cmd.
func step(opts *options, cmd string, steps int) error {
	action := fmt.Sprintf("apply %s migrations (steps=%d, 0 = all)", cmd, steps)
	return withMigrate(opts, action, func(m *migrate.Migrate) error {
		switch {
		case steps != 0:
			return m.Steps(steps)
		case cmd == "down":
			return m.Down()
		default:
			return m.Up()
		}
	})
}

// withMigrate opens a migrate instance, runs fn and logs the version change.
func withMigrate(opts *options, action string, fn func(m *migrate.Migrate) error) error {
	if opts.dryRun {
		opts.log.Info("dry run", slog.String("would", action))
		return nil
	}

	m, err := database.NewMigrate(opts.db, opts.timeout)
	if err != nil {
		return err
	}
	defer m.Close()

	from, _, _ := m.Version()
	opts.log.Info("starting", slog.String("action", action), slog.Uint64("from", uint64(from)))

	if err := fn(m); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			opts.log.Info("no change")
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}

	to, dirty, _ := m.Version()
	opts.log.Info("migration completed",
		slog.Uint64("from", uint64(from)),
		slog.Uint64("to", uint64(to)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

func showVersion(opts *options) error {
	m, err := database.NewMigrate(opts.db, opts.timeout)
	if err != nil {
		return err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("no migrations applied")
			return nil
		}
		return fmt.Errorf("failed to get version: %w", err)
	}

	status := ""
	if dirty {
		status = " (dirty)"
	}
	fmt.Printf("%d%s\n", version, status)
	return nil
}

// createMigration writes an empty up/down pair numbered after the highest
// existing migration.
func createMigration(opts *options, name string) error {
	name = strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
	next, err := nextMigrationNumber(opts.sourcePath)
	if err != nil {
		return fmt.Errorf("failed to determine next migration number: %w", err)
	}

	up := filepath.Join(opts.sourcePath, fmt.Sprintf("%06d_%s.up.sql", next, name))
	down := filepath.Join(opts.sourcePath, fmt.Sprintf("%06d_%s.down.sql", next, name))

	if opts.dryRun {
		opts.log.Info("dry run", slog.String("would_create", up), slog.String("and", down))
		return nil
	}

	if err := os.MkdirAll(opts.sourcePath, 0755); err != nil {
		return fmt.Errorf("failed to create migrations directory: %w", err)
	}

	created := time.Now().Format(time.RFC3339)
	if err := os.WriteFile(up, []byte(fmt.Sprintf("-- Migration: %s\n-- Created: %s\n", name, created)), 0644); err != nil {
		return fmt.Errorf("failed to create up migration: %w", err)
	}
	if err := os.WriteFile(down, []byte(fmt.Sprintf("-- Migration: %s (rollback)\n-- Created: %s\n", name, created)), 0644); err != nil {
		return fmt.Errorf("failed to create down migration: %w", err)
	}

	opts.log.Info("created migration files", slog.String("up", up), slog.String("down", down))
	return nil
}

func nextMigrationNumber(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, err
	}

	highest := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &n); err == nil && n > highest {
			highest = n
		}
	}
	return highest + 1, nil
}
