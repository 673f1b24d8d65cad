package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/homeqa/internal/adapters/driving/tui"
	"github.com/custodia-labs/homeqa/internal/core/domain"
)

var (
	askFilters []string
	askJSON    bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about your messages",
	Long: `Answers a natural-language question from the indexed messages and
lists the messages the answer was drawn from.

Examples:
  homeqa ask "what am I doing this weekend?"
  homeqa ask "where is the meeting" --filter sender=boss@work.com`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringArrayVar(&askFilters, "filter", nil, "restrict to messages whose metadata matches key=value (repeatable)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if answerService == nil {
		return errAnswerNotConfigured
	}

	filter, err := domain.ParseFilter(askFilters)
	if err != nil {
		return err
	}

	answer := answerService.Ask(cmd.Context(), strings.Join(args, " "), filter)

	if askJSON {
		data, err := json.MarshalIndent(struct {
			domain.Answer
			ProcessingTime float64 `json:"processing_time"`
		}{answer, answer.ProcessingSeconds()}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal answer: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if isTerminal(cmd.OutOrStdout()) {
		cmd.Print(tui.RenderAnswer(answer, nil))
		return nil
	}

	cmd.Println(answer.Response)
	if len(answer.Sources) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for i, c := range answer.Sources {
			cmd.Printf("  [%d] %s from %s (%.3f)\n", i+1,
				c.Metadata[domain.MetaSubject], c.Metadata[domain.MetaSender], c.Score)
		}
	}
	return nil
}
