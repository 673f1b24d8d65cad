package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/homeqa/internal/adapters/driving/tui"
	"github.com/custodia-labs/homeqa/internal/core/domain"
)

// pollInterval is how often plain output checks progress.
var pollInterval = 200 * time.Millisecond

var (
	syncPlain  bool
	syncNoWait bool
)

var syncCmd = &cobra.Command{
	Use:   "sync [source-id]",
	Short: "Sync messages from sources into the index",
	Long: `Fetches new messages from a source and adds them to the index.
If a source ID is provided, only that source is synced, connecting it
first if needed. Otherwise every connected source is synced.

On a terminal a live progress view is shown; press q to stop watching
while the sync carries on.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncPlain, "plain", false, "print progress lines instead of the live view")
	syncCmd.Flags().BoolVar(&syncNoWait, "no-wait", false, "start the sync and return immediately")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	if syncOrchestrator == nil {
		return errSyncNotConfigured
	}
	ctx := cmd.Context()

	if len(args) == 0 {
		return syncAll(ctx, cmd)
	}

	id := args[0]
	src, err := syncOrchestrator.GetSource(ctx, id)
	if err != nil {
		return err
	}
	if src.State != domain.StateConnected {
		if err := connectAndReport(ctx, cmd, id); err != nil {
			return err
		}
	}

	if _, err := syncOrchestrator.StartSync(ctx, id); err != nil {
		return fmt.Errorf("starting sync: %w", err)
	}
	if syncNoWait {
		cmd.Printf("Sync of %s started.\n", id)
		return nil
	}

	var final domain.SyncProgress
	if !syncPlain && isTerminal(cmd.OutOrStdout()) {
		p, detached, err := tui.RunSyncView(ctx, syncOrchestrator, id, src.DisplayName(), cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if detached {
			cmd.Println("Sync continues in the background.")
			return nil
		}
		final = p
	} else {
		p, err := waitPlain(ctx, cmd, id)
		if err != nil {
			return err
		}
		final = p
	}

	if final.Failed() {
		return errors.New(final.StatusMessage)
	}
	return nil
}

func syncAll(ctx context.Context, cmd *cobra.Command) error {
	if err := syncOrchestrator.SyncAll(ctx); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	var ids []string
	for _, src := range syncOrchestrator.ListSources(ctx) {
		if src.State == domain.StateConnected {
			ids = append(ids, src.SourceID)
		}
	}
	if len(ids) == 0 {
		cmd.Println("No connected sources to sync.")
		return nil
	}
	if syncNoWait {
		cmd.Printf("Started sync of %d sources.\n", len(ids))
		return nil
	}

	var failed []string
	for _, id := range ids {
		p, err := waitPlain(ctx, cmd, id)
		if err != nil {
			return err
		}
		if p.Failed() {
			failed = append(failed, id)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("sync failed for %d of %d sources: %v", len(failed), len(ids), failed)
	}
	cmd.Println("All sources synced.")
	return nil
}

// waitPlain prints a line whenever the status of id changes and returns
// the final snapshot.
func waitPlain(ctx context.Context, cmd *cobra.Command, id string) (domain.SyncProgress, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	last := ""
	for {
		p, err := syncOrchestrator.GetProgress(id)
		if err != nil {
			return domain.SyncProgress{}, err
		}
		if p.StatusMessage != last {
			cmd.Printf("[%s %3d%%] %s\n", id, p.Percent, p.StatusMessage)
			last = p.StatusMessage
		}
		if p.Idle() {
			return p, nil
		}

		select {
		case <-ctx.Done():
			return p, ctx.Err()
		case <-ticker.C:
		}
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
