package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/homeqa/internal/adapters/driven/config/file"
	"github.com/custodia-labs/homeqa/internal/adapters/driven/embedding/hashing"
	"github.com/custodia-labs/homeqa/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/homeqa/internal/config"
	"github.com/custodia-labs/homeqa/internal/core/services"
	"github.com/custodia-labs/homeqa/internal/metrics"
)

type testEnv struct {
	orch  *services.SyncOrchestrator
	store *file.ConfigStore
}

// setupTestServices wires in-memory services behind the commands.
func setupTestServices(t *testing.T) *testEnv {
	t.Helper()

	m := metrics.New()
	index := services.NewVectorIndex(memory.NewVectorStore("messages"), hashing.NewEmbeddingService(hashing.Config{}), "messages", m)
	factory := services.NewDefaultSourceFactory()
	orch := services.NewSyncOrchestrator(factory, memory.NewSourceStore(), memory.NewSyncHistoryStore(), index, m, services.SyncOptions{})
	store, err := file.NewConfigStore(t.TempDir())
	require.NoError(t, err)

	SetServices(Services{
		Sync:        orch,
		Answers:     services.NewSynthesizer(index, 5, m),
		Scheduler:   services.NewScheduler("", orch),
		ConfigStore: store,
		Metrics:     m,
		Config:      config.Default(t.TempDir()),
		SourceTypes: factory.SupportedTypes(),
	})

	oldTerminal, oldPoll := stdinIsTerminal, pollInterval
	stdinIsTerminal = func() bool { return false }
	pollInterval = 5 * time.Millisecond

	t.Cleanup(func() {
		_ = orch.Close()
		SetServices(Services{})
		stdinIsTerminal, pollInterval = oldTerminal, oldPoll
	})
	return &testEnv{orch: orch, store: store}
}

// runCLI executes the root command and resets flag state afterwards.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		resetFlags()
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

func resetFlags() {
	sourceAddName, sourceAddSet, sourceAddConnect, historyLimit = "", nil, false, 10
	syncPlain, syncNoWait = false, false
	askFilters, askJSON = nil, false
	searchLimit, searchJSON = 5, false
	statsJSON = false
}

// addDemo registers the built-in demo corpus and returns its id.
func addDemo(t *testing.T, extra ...string) string {
	t.Helper()
	out, err := runCLI(t, append([]string{"source", "add", "fixture", "--name", "Family"}, extra...)...)
	require.NoError(t, err, out)
	line := strings.SplitN(strings.TrimSpace(out), "\n", 2)[0]
	return strings.TrimSpace(strings.TrimPrefix(line, "Source added:"))
}
