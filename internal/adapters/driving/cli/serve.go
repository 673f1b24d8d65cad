package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/homeqa/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/homeqa/internal/adapters/driving/mcp"
	"github.com/custodia-labs/homeqa/internal/logger"
)

var (
	serveAddr     string
	serveSchedule bool
	serveJSONLogs bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the JSON HTTP API (connectors, chat, search, stats), Prometheus
metrics at /metrics and MCP over streamable HTTP at /mcp.

With the scheduler enabled, every connected source is synced periodically.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from server.addr)")
	serveCmd.Flags().BoolVar(&serveSchedule, "schedule", false, "run periodic syncs (also scheduler.enabled)")
	serveCmd.Flags().BoolVar(&serveJSONLogs, "json-logs", false, "log as JSON (also log.json)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if syncOrchestrator == nil {
		return errSyncNotConfigured
	}
	if answerService == nil {
		return errAnswerNotConfigured
	}

	opts := httpapi.Options{Addr: serveAddr}
	scheduleOn := serveSchedule
	if appConfig != nil {
		if opts.Addr == "" {
			opts.Addr = appConfig.Server.Addr
		}
		opts.ReadTimeout = appConfig.Server.ReadTimeout
		opts.WriteTimeout = appConfig.Server.WriteTimeout
		scheduleOn = scheduleOn || appConfig.Scheduler.Enabled
		serveJSONLogs = serveJSONLogs || appConfig.Log.JSON
	}
	if serveJSONLogs {
		logger.SetJSON(true)
	}
	// A server is useless without request logs.
	logger.SetVerbose(true)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mcpServer, err := mcp.NewServer(&mcp.Ports{Answers: answerService, Sync: syncOrchestrator})
	if err != nil {
		return err
	}

	server, err := httpapi.NewServer(httpapi.Ports{
		Sync:        syncOrchestrator,
		Answers:     answerService,
		Scheduler:   scheduler,
		Metrics:     appMetrics,
		SourceTypes: sourceTypes,
		MCP:         mcpServer.Handler(),
	}, opts)
	if err != nil {
		return err
	}

	if scheduleOn {
		if scheduler == nil {
			return errors.New("scheduler not configured")
		}
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
		defer func() {
			if err := scheduler.Stop(); err != nil {
				logger.Warn("Stopping scheduler: %v", err)
			}
		}()
	}

	return server.Run(ctx)
}
