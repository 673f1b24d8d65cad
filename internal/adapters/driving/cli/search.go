package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/homeqa/internal/core/domain"
)

var (
	searchLimit int
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed messages",
	Long: `Finds the messages most semantically similar to the query, without
composing an answer. Scores range from 0 to 1, higher is closer.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if answerService == nil {
		return errAnswerNotConfigured
	}

	results, err := answerService.Search(cmd.Context(), strings.Join(args, " "), searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, r := range results {
		subject := r.Metadata[domain.MetaSubject]
		if subject == "" {
			subject = r.DocID
		}
		cmd.Printf("  [%d] %s (%.3f)\n", i+1, subject, r.Score)
		if sender := r.Metadata[domain.MetaSender]; sender != "" {
			cmd.Printf("      From: %s\n", sender)
		}
		if date := r.Metadata[domain.MetaDate]; date != "" {
			cmd.Printf("      Date: %s\n", date)
		}
		cmd.Println()
	}
	return nil
}
