package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if answerService == nil {
			return errAnswerNotConfigured
		}
		stats := answerService.IndexStats(cmd.Context())

		if statsJSON {
			data, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal stats: %w", err)
			}
			cmd.Println(string(data))
			return nil
		}

		cmd.Printf("Documents:   %d\n", stats.TotalDocuments)
		cmd.Printf("Collection:  %s\n", stats.CollectionName)
		cmd.Printf("Backend:     %s\n", stats.Backend)
		cmd.Printf("Embeddings:  %s (%d dimensions)\n", stats.EmbeddingModel, stats.Dimensions)
		cmd.Printf("Initialised: %t\n", stats.Initialized)
		if stats.Error != "" {
			cmd.Printf("Error:       %s\n", stats.Error)
		}
		if syncOrchestrator != nil {
			cmd.Printf("Sources:     %d\n", len(syncOrchestrator.ListSources(cmd.Context())))
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statsCmd)
}
