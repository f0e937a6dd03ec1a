package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"crmimport/internal/config"
	"crmimport/internal/database"
	"crmimport/internal/logging"

	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	logLevel   string
	logFormat  string
	dbURI      string
	dbName     string
	collection string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "crmimport",
	Short: "Reconcile and import contact spreadsheets into the CRM",
	Long: `crmimport maps the columns of a contact CSV or workbook onto the CRM schema,
normalizes and validates every row, removes duplicates and imports the result
in chunks with insert-or-update semantics.

Running it without a command starts the interactive TUI.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
	RunE:              runTUI,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Default().Error().Err(err).Msg("command failed")
		stop()
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default .crmimport.yaml in the working or home directory)")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&logFormat, "log-format", "", "log format: auto, console or json")
	flags.StringVarP(&dbURI, "db-uri", "u", "", "MongoDB connection URI")
	flags.StringVarP(&dbName, "database", "d", "", "database name")
	flags.StringVarP(&collection, "collection", "c", "", "contact collection name")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mappingCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
}

// initConfig loads settings and lets explicitly set flags win over them.
func initConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	override := func(name string, dst *string, value string) {
		if flags.Changed(name) {
			*dst = value
		}
	}
	override("log-level", &loaded.LogLevel, logLevel)
	override("log-format", &loaded.LogFormat, logFormat)
	override("db-uri", &loaded.DBURI, dbURI)
	override("database", &loaded.DBName, dbName)
	override("collection", &loaded.Collection, collection)
	cfg = loaded

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if cfg.ConfigFile != "" {
		logger.Debug().Str("file", cfg.ConfigFile).Msg("loaded config file")
	}
	cmd.SetContext(logging.WithLogger(cmd.Context(), logger))
	return nil
}

func connect(ctx context.Context) (*database.MongoDB, error) {
	return database.NewMongoDB(ctx, cfg.DBURI, cfg.DBName, cfg.Collection)
}
