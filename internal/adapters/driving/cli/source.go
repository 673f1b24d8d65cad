package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/homeqa/internal/core/domain"
)

var (
	sourceAddName    string
	sourceAddSet     []string
	sourceAddConnect bool
	historyLimit     int
)

// stdinIsTerminal and readSecret are swapped out in tests.
var (
	stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	readSecret      = func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) }
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Manage message sources",
	Long:  `Register, connect and remove the mail accounts homeqa syncs from.`,
}

var sourceAddCmd = &cobra.Command{
	Use:   "add <type>",
	Short: "Register a new source",
	Long: `Register a new message source of the given type.

Configuration is passed as repeated --set key=value flags. When run in a
terminal, required values that were not given are prompted for, and
secrets such as passwords are read without echo.

Examples:
  homeqa source add fixture --name Demo
  homeqa source add imap --name Work --set host=imap.example.com --set username=me@example.com`,
	Args: cobra.ExactArgs(1),
	RunE: runSourceAdd,
}

var sourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered sources",
	Args:  cobra.NoArgs,
	RunE:  runSourceList,
}

var sourceTypesCmd = &cobra.Command{
	Use:   "types",
	Short: "List supported source types and their settings",
	Args:  cobra.NoArgs,
	RunE:  runSourceTypes,
}

var sourceConnectCmd = &cobra.Command{
	Use:   "connect <source-id>",
	Short: "Connect a source",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourceConnect,
}

var sourceDisconnectCmd = &cobra.Command{
	Use:   "disconnect <source-id>",
	Short: "Disconnect a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncOrchestrator == nil {
			return errSyncNotConfigured
		}
		if _, err := syncOrchestrator.Disconnect(cmd.Context(), args[0]); err != nil {
			return err
		}
		cmd.Printf("Source %s disconnected.\n", args[0])
		return nil
	},
}

var sourceTestCmd = &cobra.Command{
	Use:   "test <source-id>",
	Short: "Check a connected source is reachable",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourceTest,
}

var sourceRemoveCmd = &cobra.Command{
	Use:   "remove <source-id>",
	Short: "Remove a source",
	Long:  `Disconnect and forget a source. Messages already indexed stay searchable.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncOrchestrator == nil {
			return errSyncNotConfigured
		}
		if err := syncOrchestrator.RemoveSource(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("removing source: %w", err)
		}
		cmd.Printf("Source %s removed.\n", args[0])
		return nil
	},
}

var sourceHistoryCmd = &cobra.Command{
	Use:   "history <source-id>",
	Short: "Show recent sync runs of a source",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourceHistory,
}

func init() {
	sourceAddCmd.Flags().StringVar(&sourceAddName, "name", "", "display name (defaults to the type)")
	sourceAddCmd.Flags().StringArrayVar(&sourceAddSet, "set", nil, "configuration value as key=value (repeatable)")
	sourceAddCmd.Flags().BoolVar(&sourceAddConnect, "connect", false, "connect the source after registering it")
	sourceHistoryCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "maximum number of runs to show")

	sourceCmd.AddCommand(sourceAddCmd, sourceListCmd, sourceTypesCmd, sourceConnectCmd,
		sourceDisconnectCmd, sourceTestCmd, sourceRemoveCmd, sourceHistoryCmd)
	rootCmd.AddCommand(sourceCmd)
}

func runSourceAdd(cmd *cobra.Command, args []string) error {
	if syncOrchestrator == nil {
		return errSyncNotConfigured
	}
	sourceType := args[0]

	cfg, err := parseKeyValues(sourceAddSet)
	if err != nil {
		return err
	}
	if err := promptMissing(cmd, sourceType, cfg); err != nil {
		return err
	}

	ctx := cmd.Context()
	id, err := syncOrchestrator.RegisterSource(ctx, sourceType, sourceAddName, cfg)
	if err != nil {
		return fmt.Errorf("adding source: %w", err)
	}
	cmd.Printf("Source added: %s\n", id)

	if sourceAddConnect {
		return connectAndReport(ctx, cmd, id)
	}
	return nil
}

// parseKeyValues turns ["k=v", ...] into a map.
func parseKeyValues(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, domain.Validationf("expected key=value, got %q", pair)
		}
		out[k] = v
	}
	return out, nil
}

// promptMissing asks for required settings that were not supplied when
// stdin is a terminal. Secrets are read without echo.
func promptMissing(cmd *cobra.Command, sourceType string, cfg map[string]string) error {
	if !stdinIsTerminal() {
		return nil
	}
	var st *domain.SourceType
	for i := range sourceTypes {
		if sourceTypes[i].ID == sourceType {
			st = &sourceTypes[i]
			break
		}
	}
	if st == nil {
		return nil
	}

	reader := bufio.NewReader(cmd.InOrStdin())
	for _, k := range st.ConfigKeys {
		if !k.Required || cfg[k.Key] != "" {
			continue
		}
		label := k.Label
		if label == "" {
			label = k.Key
		}
		cmd.Printf("%s: ", label)

		var value string
		if k.Secret {
			raw, err := readSecret()
			cmd.Println()
			if err != nil {
				return fmt.Errorf("reading %s: %w", k.Key, err)
			}
			value = string(raw)
		} else {
			line, err := reader.ReadString('\n')
			if err != nil && err != io.EOF {
				return fmt.Errorf("reading %s: %w", k.Key, err)
			}
			value = strings.TrimSpace(line)
		}
		if value != "" {
			cfg[k.Key] = value
		}
	}
	return nil
}

func runSourceList(cmd *cobra.Command, _ []string) error {
	if syncOrchestrator == nil {
		return errSyncNotConfigured
	}

	sources := syncOrchestrator.ListSources(cmd.Context())
	if len(sources) == 0 {
		cmd.Println("No sources configured. Add one with: homeqa source add <type>")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATE\tNAME\tLAST SYNC")
	for _, src := range sources {
		lastSync := "never"
		if p, err := syncOrchestrator.GetProgress(src.SourceID); err == nil && p.LastCompletedAt != nil {
			lastSync = p.LastCompletedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", src.SourceID, src.Type, src.State, src.Name, lastSync)
		if src.LastError != "" {
			fmt.Fprintf(w, "\t\t\t  error: %s\t\n", src.LastError)
		}
	}
	return w.Flush()
}

func runSourceTypes(cmd *cobra.Command, _ []string) error {
	if len(sourceTypes) == 0 {
		cmd.Println("No source types available.")
		return nil
	}
	for _, t := range sourceTypes {
		cmd.Printf("%s - %s\n", t.ID, t.Name)
		if t.Description != "" {
			cmd.Printf("  %s\n", t.Description)
		}
		for _, k := range t.ConfigKeys {
			flags := ""
			if k.Required {
				flags += " (required)"
			}
			if k.Default != "" {
				flags += fmt.Sprintf(" [default %s]", k.Default)
			}
			cmd.Printf("    %-16s %s%s\n", k.Key, k.Label, flags)
		}
		cmd.Println()
	}
	return nil
}

func runSourceConnect(cmd *cobra.Command, args []string) error {
	if syncOrchestrator == nil {
		return errSyncNotConfigured
	}
	return connectAndReport(cmd.Context(), cmd, args[0])
}

func connectAndReport(ctx context.Context, cmd *cobra.Command, id string) error {
	ok, err := syncOrchestrator.Connect(ctx, id)
	if err != nil {
		return fmt.Errorf("connecting source: %w", err)
	}
	if !ok {
		reason := "connection failed"
		if src, err := syncOrchestrator.GetSource(ctx, id); err == nil && src.LastError != "" {
			reason = src.LastError
		}
		return fmt.Errorf("connecting source %s: %s", id, reason)
	}
	cmd.Printf("Source %s connected.\n", id)
	return nil
}

func runSourceTest(cmd *cobra.Command, args []string) error {
	if syncOrchestrator == nil {
		return errSyncNotConfigured
	}
	ok, err := syncOrchestrator.TestConnection(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("source %s is not reachable", args[0])
	}
	cmd.Printf("Source %s is reachable.\n", args[0])
	return nil
}

func runSourceHistory(cmd *cobra.Command, args []string) error {
	if syncOrchestrator == nil {
		return errSyncNotConfigured
	}
	runs, err := syncOrchestrator.History(cmd.Context(), args[0], historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		cmd.Println("No sync runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tDURATION\tFETCHED\tADDED\tRESULT")
	for _, r := range runs {
		result := "ok"
		if !r.Success {
			result = "failed: " + r.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.Duration().Round(time.Millisecond), r.Fetched, r.Added, result)
	}
	return w.Flush()
}
