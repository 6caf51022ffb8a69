// Command attackdb manages a heap file of cyber attack reports and its
// B-tree index on record ids.
//
// Record values are given positionally; the word NULO stands for an absent
// value. Arguments that start with '-' (negative numbers) must follow "--".
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/renatospessotto/Trabalho-arquivos/config"
	"github.com/renatospessotto/Trabalho-arquivos/internal/console"
	"github.com/renatospessotto/Trabalho-arquivos/pkg/logger"
	"github.com/renatospessotto/Trabalho-arquivos/pkg/telemetry"
)

type rootFlags struct {
	configPath string
	dataFile   string
	indexFile  string
	logLevel   string
}

// session is the state built once per process by the root command.
type session struct {
	app      *app
	shutdown telemetry.ShutdownFunc
}

// finish closes the files and flushes telemetry and logs. It runs whether
// or not the command failed.
func (s *session) finish(ctx context.Context) error {
	if s.app == nil {
		return nil
	}
	err := s.app.close()
	if serr := s.shutdown(ctx); err == nil {
		err = serr
	}
	_ = s.app.logger.Sync()
	return err
}

func main() {
	root, s := newRootCmd()
	err := root.Execute()
	if ferr := s.finish(context.Background()); err == nil {
		err = ferr
	}
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() (*cobra.Command, *session) {
	var (
		flags rootFlags
		s     = &session{}
	)

	root := &cobra.Command{
		Use:           "attackdb",
		Short:         "Store and index cyber attack reports",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			s.app, s.shutdown, err = setup(cmd, flags)
			return err
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "YAML configuration file")
	pf.StringVar(&flags.dataFile, "data", "", "data file (overrides data_file)")
	pf.StringVar(&flags.indexFile, "index", "", "index file (overrides index_file)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (overrides logger.level)")

	// The app only exists once PersistentPreRunE ran, so handlers are picked lazily.
	run := func(name string, pick func(*app) handler) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return s.app.run(cmd.Context(), name, pick(s.app), console.Words(args))
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "build <csv>",
			Short: "Create the data file from a CSV file",
			Args:  cobra.ExactArgs(1),
			RunE:  run("build", func(a *app) handler { return a.build }),
		},
		&cobra.Command{
			Use:   "list",
			Short: "Print every active record",
			Args:  cobra.NoArgs,
			RunE:  run("list", func(a *app) handler { return a.list }),
		},
		&cobra.Command{
			Use:   "find <n> [field value]... ...",
			Short: "Print the records matching each criteria group",
			Args:  cobra.MinimumNArgs(1),
			RunE:  run("find", func(a *app) handler { return a.find }),
		},
		&cobra.Command{
			Use:   "delete <n> [field value]... ...",
			Short: "Remove the records matching each criteria group",
			Args:  cobra.MinimumNArgs(1),
			RunE:  run("delete", func(a *app) handler { return a.delete }),
		},
		&cobra.Command{
			Use:   "insert <id> <year> <loss> <country> <attackType> <targetIndustry> <defense>...",
			Short: "Insert records, reusing removed space first",
			Args:  cobra.MinimumNArgs(7),
			RunE:  run("insert", func(a *app) handler { return a.insert }),
		},
		&cobra.Command{
			Use:   "update <n> [field value]... <m> [field value]... ...",
			Short: "Apply assignments to the records matching each criteria group",
			Args:  cobra.MinimumNArgs(2),
			RunE:  run("update", func(a *app) handler { return a.update }),
		},
		&cobra.Command{
			Use:   "freelist",
			Short: "Print the removed slots available for reuse",
			Args:  cobra.NoArgs,
			RunE:  run("freelist", func(a *app) handler { return a.freeList }),
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Print file headers and operation metrics",
			Args:  cobra.NoArgs,
			RunE:  run("stats", func(a *app) handler { return a.stats }),
		},
		&cobra.Command{
			Use:   "backup <dir>",
			Short: "Copy the data and index files into a new snapshot directory",
			Args:  cobra.ExactArgs(1),
			RunE:  run("backup", func(a *app) handler { return a.backup }),
		},
		&cobra.Command{
			Use:   "shell",
			Short: "Run commands interactively",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runShell(cmd.Context(), s.app)
			},
		},
		newIndexCmd(run),
	)
	return root, s
}

func newIndexCmd(run func(string, func(*app) handler) func(*cobra.Command, []string) error) *cobra.Command {
	index := &cobra.Command{
		Use:   "index",
		Short: "Manage the B-tree index on record ids",
	}
	sub := func(use, short string, args cobra.PositionalArgs) *cobra.Command {
		name := strings.Fields(use)[0]
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  args,
			RunE: run("index "+name, func(a *app) handler {
				return func(ctx context.Context, rest []string) error {
					return a.index(ctx, append([]string{name}, rest...))
				}
			}),
		}
	}
	index.AddCommand(
		sub("build", "Rebuild the index from the data file", cobra.NoArgs),
		sub("get <id>...", "Print the records indexed under each id", cobra.MinimumNArgs(1)),
		sub("check", "Verify the index structure", cobra.NoArgs),
		sub("dump", "Print the index header and every page", cobra.NoArgs),
	)
	return index
}

// setup loads configuration, applies flag overrides and builds the shared
// logger and telemetry.
func setup(cmd *cobra.Command, flags rootFlags) (*app, telemetry.ShutdownFunc, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, nil, err
	}
	if flags.dataFile != "" {
		cfg.DataFile = flags.dataFile
	}
	if flags.indexFile != "" {
		cfg.IndexFile = flags.indexFile
	}
	if flags.logLevel != "" {
		cfg.Logger.Level = flags.logLevel
	}

	log, err := logger.New(cfg.Logger, zap.String("run_id", uuid.NewString()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	tel, shutdown, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	log.Debug("Configuration loaded", zap.String("data_file", cfg.DataFile), zap.String("index_file", cfg.IndexFile))
	return newApp(cfg, log, tel, cmd.OutOrStdout()), shutdown, nil
}
