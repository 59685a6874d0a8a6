// Package cli implements the taskboard command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nhle/taskboard/internal/model"
	"github.com/nhle/taskboard/internal/reorder"
	"github.com/nhle/taskboard/internal/store"
)

// app is the state shared by every subcommand of one invocation.
type app struct {
	configPath string
	dbPath     string
	verbose    bool

	cfg    *model.AppConfig
	logger *log.Logger
}

// NewRootCommand builds the full command tree.
func NewRootCommand() *cobra.Command {
	a := &app{logger: log.New()}

	root := &cobra.Command{
		Use:   "taskboard",
		Short: "Ranked task board columns",
		Long: `taskboard keeps the tasks of each project column in a user-defined order.

Moves assign a single new rank; columns are rewritten only when ranks collide
or grow too long.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", model.DefaultConfigPath(), "config file")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "database path (overrides database.path)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(a),
		newProjectCmd(a),
		newTaskCmd(a),
		newMoveCmd(a),
		newColumnCmd(a),
		newRebalanceCmd(a),
		newConfigCmd(a),
	)
	return root
}

// Execute runs the command tree with os.Args.
func Execute(version string) error {
	root := NewRootCommand()
	root.Version = version
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// setup loads configuration and configures logging.
func (a *app) setup(logOut io.Writer) error {
	cfg, err := model.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Database.Path = a.dbPath
	}
	a.cfg = cfg
	a.logger.SetOutput(logOut)
	return configureLogging(a.logger, cfg.Log, a.verbose)
}

// withStore opens the configured database for the duration of fn,
// creating its directory if needed.
func (a *app) withStore(fn func(s *store.SQLiteStore) error) (err error) {
	path := a.cfg.Database.Path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
	}
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return err
	}
	a.logger.WithField("path", path).Debug("opened database")
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing database: %w", cerr)
		}
	}()
	return fn(s)
}

func (a *app) coordinator(s reorder.Store) *reorder.Coordinator {
	return reorder.New(s,
		reorder.WithMaxRankLength(a.cfg.Ranking.MaxLength),
		reorder.WithRebalanceConcurrency(a.cfg.Ranking.RebalanceConcurrency),
		reorder.WithLogger(a.logger),
	)
}

func configureLogging(logger *log.Logger, cfg model.LogConfig, verbose bool) error {
	level := log.InfoLevel
	if cfg.Level != "" {
		parsed, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		level = parsed
	}
	if verbose {
		level = log.DebugLevel
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return nil
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }
