// Package cli is the cobra command-line adapter for homeqa.
package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/homeqa/internal/config"
	"github.com/custodia-labs/homeqa/internal/core/domain"
	"github.com/custodia-labs/homeqa/internal/core/ports/driven"
	"github.com/custodia-labs/homeqa/internal/core/ports/driving"
	"github.com/custodia-labs/homeqa/internal/logger"
	"github.com/custodia-labs/homeqa/internal/metrics"
)

// version is overridden at build time with -ldflags "-X ...cli.version=...".
var version = "dev"

// Services the commands call into. Set by SetServices before Execute.
var (
	syncOrchestrator driving.SyncOrchestrator
	answerService    driving.AnswerService
	scheduler        driving.Scheduler
	configStore      driven.ConfigStore
	appMetrics       *metrics.Metrics
	appConfig        *config.Config
	sourceTypes      []domain.SourceType
)

var (
	errSyncNotConfigured   = errors.New("sync service not configured")
	errAnswerNotConfigured = errors.New("answer service not configured")
	errConfigNotConfigured = errors.New("config store not configured")
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "homeqa",
	Short: "Ask questions about your email",
	Long: `homeqa syncs messages from your mail accounts into a local semantic
index and answers natural-language questions about them, citing the
messages each answer came from.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if verbose {
			logger.SetVerbose(true)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

// Services bundles the dependencies of the commands.
type Services struct {
	Sync        driving.SyncOrchestrator
	Answers     driving.AnswerService
	Scheduler   driving.Scheduler
	ConfigStore driven.ConfigStore
	Metrics     *metrics.Metrics
	Config      *config.Config
	SourceTypes []domain.SourceType
}

// SetServices injects the services used by the commands.
func SetServices(s Services) {
	syncOrchestrator = s.Sync
	answerService = s.Answers
	scheduler = s.Scheduler
	configStore = s.ConfigStore
	appMetrics = s.Metrics
	appConfig = s.Config
	sourceTypes = s.SourceTypes
}

// SetVersion sets the version printed by "homeqa version".
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
