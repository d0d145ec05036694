// Package cli wires the sprintboard commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"sprintboard/internal/config"
	"sprintboard/internal/scrum"
	"sprintboard/internal/storage/memory"
	"sprintboard/internal/storage/postgres"
	"sprintboard/internal/storage/sqlite"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var settings = config.New()

var rootCmd = &cobra.Command{
	Use:   "sprintboard",
	Short: "Scrum sprint lifecycle and kanban board service",
	Long: `sprintboard tracks projects, backlogs and sprints and serves a kanban
board over the active sprint of each project.

Settings come from flags, SPRINTBOARD_* environment variables and an
optional sprintboard.yaml in the working directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sprintboard %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("driver", config.DriverSQLite, "Storage driver: sqlite, postgres or memory")
	flags.String("db", "data/sprintboard.db", "Path to sqlite database file")
	flags.String("database-url", "", "PostgreSQL connection string (defaults to DATABASE_URL)")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	bindFlag("driver", flags.Lookup("driver"))
	bindFlag("db_path", flags.Lookup("db"))
	bindFlag("database_url", flags.Lookup("database-url"))
	bindFlag("log_level", flags.Lookup("log-level"))

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// bindFlag lets a flag override the config file and environment when set.
func bindFlag(key string, flag *pflag.Flag) {
	if err := settings.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", key, err))
	}
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	level, _ := config.ParseLevel(cfg.LogLevel)
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openStore opens the backend selected by cfg.Driver.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (scrum.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return sqlite.Open(cfg.DBPath, logger)
	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.DatabaseURL, logger)
	case config.DriverMemory:
		return memory.New(logger), nil
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
	}
}

// session is the state shared by commands that talk to the store directly.
type session struct {
	cfg     config.Config
	logger  *slog.Logger
	store   scrum.Store
	manager *scrum.Manager
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load(settings)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg)
	store, err := openStore(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	return &session{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		manager: scrum.NewManager(store, logger),
	}, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Error("unable to close store", slog.String("error", err.Error()))
	}
}
