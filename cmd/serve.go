package cmd

import (
	"crmimport/internal/logging"
	"crmimport/internal/server"

	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the insert-or-update endpoint over MongoDB",
	Long: `Serve exposes POST ` + server.ImportPath + ` backed by the contact collection,
so imports can be sent with --endpoint from another machine. Prometheus
metrics are served on /metrics and a liveness probe on /healthz.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from SERVER_ADDR)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if cmd.Flags().Changed("addr") {
		cfg.ServerAddr = serveAddr
	}

	db, err := connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.EnsureIndexes(ctx); err != nil {
		return err
	}
	logging.FromContext(ctx).Info().Strs("cors_origins", cfg.CORSOrigins).Msg("starting server")
	return server.New(db, cfg.CORSOrigins).Run(ctx, cfg.ServerAddr)
}
