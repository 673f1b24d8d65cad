package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	stdsync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/homeqa/internal/adapters/driven/embedding/hashing"
	"github.com/custodia-labs/homeqa/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/homeqa/internal/connectors"
	"github.com/custodia-labs/homeqa/internal/core/domain"
	"github.com/custodia-labs/homeqa/internal/core/ports/driven"
	"github.com/custodia-labs/homeqa/internal/core/ports/driving"
	"github.com/custodia-labs/homeqa/internal/metrics"
)

// --- Test doubles for sync testing ---

// syncFakeSource is a scriptable MessageSource.
type syncFakeSource struct {
	connectors.StateMachine

	id       string
	dialErr  error
	msgs     []domain.Message
	fetchErr error
	panics   bool
	gate     chan struct{}
	fetches  atomic.Int32
	closed   atomic.Bool
	watchers chan struct{}
}

func (s *syncFakeSource) ID() string   { return s.id }
func (s *syncFakeSource) Type() string { return "fake" }

func (s *syncFakeSource) Connect(ctx context.Context) bool {
	return s.StateMachine.Connect(ctx, func(context.Context) error { return s.dialErr })
}

func (s *syncFakeSource) Disconnect(ctx context.Context) bool {
	return s.StateMachine.Disconnect(ctx, nil)
}

func (s *syncFakeSource) TestConnection(ctx context.Context) bool {
	return s.StateMachine.Test(ctx, nil)
}

func (s *syncFakeSource) FetchMessages(ctx context.Context, limit int) ([]domain.Message, error) {
	if err := s.RequireConnected(); err != nil {
		return nil, err
	}
	s.fetches.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.panics {
		panic("provider exploded")
	}
	if s.fetchErr != nil {
		return nil, domain.NewSourceError(s.id, "fetch", s.fetchErr)
	}
	out := make([]domain.Message, 0, min(limit, len(s.msgs)))
	for _, m := range s.msgs[:min(limit, len(s.msgs))] {
		m.SourceID = s.id
		out = append(out, m)
	}
	return out, nil
}

func (s *syncFakeSource) Close() error {
	s.closed.Store(true)
	return nil
}

// syncWatchingSource adds driven.Watcher.
type syncWatchingSource struct {
	*syncFakeSource
}

func (s *syncWatchingSource) Watch(ctx context.Context) (<-chan struct{}, error) {
	out := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-s.watchers:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// syncHarness wires an orchestrator to in-memory stores and a factory
// whose "fake" sources are configured by the next template.
type syncHarness struct {
	orch    *SyncOrchestrator
	index   *VectorIndex
	store   *memory.SourceStore
	history *memory.SyncHistoryStore

	mu      stdsync.Mutex
	next    func(*syncFakeSource)
	watch   bool
	sources map[string]*syncFakeSource
}

func newSyncHarness(t *testing.T, opts SyncOptions) *syncHarness {
	t.Helper()
	h := &syncHarness{
		index:   NewVectorIndex(memory.NewVectorStore("messages"), hashing.NewEmbeddingService(hashing.Config{}), "messages", nil),
		store:   memory.NewSourceStore(),
		history: memory.NewSyncHistoryStore(),
		sources: make(map[string]*syncFakeSource),
	}

	factory := NewSourceFactory()
	factory.Register(domain.SourceType{ID: "fake", Name: "Fake"}, func(_ context.Context, def domain.SourceDefinition) (driven.MessageSource, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		src := &syncFakeSource{id: def.ID, watchers: make(chan struct{}, 4)}
		if h.next != nil {
			h.next(src)
		}
		h.sources[def.ID] = src
		if h.watch {
			return &syncWatchingSource{src}, nil
		}
		return src, nil
	})

	h.orch = NewSyncOrchestrator(factory, h.store, h.history, h.index, metrics.New(), opts)
	t.Cleanup(func() { _ = h.orch.Close() })
	return h
}

func (h *syncHarness) register(t *testing.T, configure func(*syncFakeSource)) (string, *syncFakeSource) {
	t.Helper()
	h.mu.Lock()
	h.next = configure
	h.mu.Unlock()

	id, err := h.orch.RegisterSource(context.Background(), "fake", "Test source", map[string]string{"k": "v"})
	require.NoError(t, err)

	h.mu.Lock()
	defer h.mu.Unlock()
	return id, h.sources[id]
}

func (h *syncHarness) connected(t *testing.T, configure func(*syncFakeSource)) (string, *syncFakeSource) {
	t.Helper()
	id, src := h.register(t, configure)
	ok, err := h.orch.Connect(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	return id, src
}

func waitDone(t *testing.T, handle *driving.SyncHandle) domain.SyncProgress {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p, err := handle.Wait(ctx)
	require.NoError(t, err)
	return p
}

func withMessages(msgs ...domain.Message) func(*syncFakeSource) {
	return func(s *syncFakeSource) { s.msgs = msgs }
}

// --- Tests ---

func TestSyncOrchestrator_RegisterSource(t *testing.T) {
	h := newSyncHarness(t, SyncOptions{})

	id, _ := h.register(t, nil)

	assert.Len(t, id, 8)
	p, err := h.orch.GetProgress(id)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncProgress{SourceID: id, StatusMessage: domain.SyncStatusCreated}, p)

	def, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "fake", def.Type)
	assert.Equal(t, map[string]string{"k": "v"}, def.Config)

	conn, err := h.orch.GetSource(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StateDisconnected, conn.State)
	assert.Equal(t, "Test source", conn.Name)
}

func TestSyncOrchestrator_RegisterUnknownType(t *testing.T) {
	h := newSyncHarness(t, SyncOptions{})

	_, err := h.orch.RegisterSource(context.Background(), "nope", "", nil)

	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
	assert.Empty(t, h.orch.ListSources(context.Background()))
}

func TestSyncOrchestrator_UnknownSource(t *testing.T) {
	h := newSyncHarness(t, SyncOptions{})
	ctx := context.Background()

	_, err := h.orch.Connect(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.orch.StartSync(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.orch.GetProgress("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, h.orch.RemoveSource(ctx, "missing"), domain.ErrNotFound)
	_, err = h.orch.History(ctx, "missing", 5)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSyncOrchestrator_ConnectFailure(t *testing.T) {
	h := newSyncHarness(t, SyncOptions{})
	id, _ := h.register(t, func(s *syncFakeSource) { s.dialErr = errors.New("bad credentials") })

	ok, err := h.orch.Connect(context.Background(), id)

	require.NoError(t, err)
	assert.False(t, ok)
	p, _ := h.orch.GetProgress(id)
	assert.Equal(t, "Connection failed: bad credentials", p.StatusMessage)
	conn, _ := h.orch.GetSource(context.Background(), id)
	assert.Equal(t, domain.StateError, conn.State)
	assert.Equal(t, "bad credentials", conn.LastError)

	_, err = h.orch.StartSync(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestSyncOrchestrator_StartSyncRequiresConnection(t *testing.T) {
	h := newSyncHarness(t, SyncOptions{})
	id, src := h.register(t, withMessages(msgA))

	_, err := h.orch.StartSync(context.Background(), id)

	assert.ErrorIs(t, err, domain.ErrNotConnected)
	assert.Zero(t, src.fetches.Load(), "no fetch while disconnected")
}

func TestSyncOrchestrator_SyncCompletes(t *testing.T) {
	h := newSyncHarness(t, SyncOptions{})
	id, _ := h.connected(t, withMessages(msgA, msgB))

	handle, err := h.orch.StartSync(context.Background(), id)
	require.NoError(t, err)
	p := waitDone(t, handle)

	assert.False(t, p.IsSyncing)
	assert.Equal(t, 100, p.Percent)
	assert.Equal(t, 2, p.MessagesSeen)
	assert.Equal(t, 2, p.MessagesTotal)
	assert.Equal(t, "Sync complete! Added 2 new messages to knowledge base.", p.StatusMessage)
	require.NotNil(t, p.LastCompletedAt)
	assert.GreaterOrEqual(t, p.DurationSeconds, 0.0)
	assert.Equal(t, 2, h.index.Stats(context.Background()).TotalDocuments)
}

func TestSyncOrchestrator_ResyncCountsOnlyNewMessages(t *testing.T) {
	h := newSyncHarness(t, SyncOptions{})
	id, src := h.connected(t, withMessages(msgA, msgB))

	handle, err := h.orch.StartSync(context.Background(), id)
	require.NoError(t, err)
	waitDone(t, handle)

	src.msgs = []domain.Message{msgB, msgC}
	handle, err = h.orch.StartSync(context.Background(), id)
	require.NoError(t, err)
	p := waitDone(t, handle)

	assert.Equal(t, 1, p.MessagesSeen)
	assert.Equal(t, 2, p.MessagesTotal)
	assert.Equal(t, 3, h.index.Stats(context.Background()).TotalDocuments)
}

func TestSyncOrchestrator_NoMessages(t *testing.T) {
	h := newSyncHarness(t, SyncOptions{})
	id, _ := h.connected(t, nil)

	handle, err := h.orch.StartSync(context.Background(), id)
	require.NoError(t, err)
	p := waitDone(t, handle)

	assert.Equal(t, 100, p.Percent)
	assert.Equal(t, domain.SyncStatusNoNew, p.StatusMessage)
	assert.NotNil(t, p.LastCompletedAt)
}

func TestSyncOrchestrator_FetchFailure(t *testing.T) {
	h := newSyncHarness(t, SyncOptions{})
	id, _ := h.connected(t, func(s *syncFakeSource) { s.fetchErr = errors.New("mailbox locked") })

	handle, err := h.orch.StartSync(context.Background(), id)
	require.NoError(t, err)
	p := waitDone(t, handle)

	assert.False(t, p.IsSyncing)
	assert.Equal(t, 0, p.Percent)
	assert.True(t, p.Failed())
	assert.Contains(t, p.StatusMessage, "mailbox locked")
	assert.Nil(t, p.LastCompletedAt)
}

func TestSyncOrchestrator_PanicBecomesFailure(t *testing.T) {
	h := newSyncHarness(t, SyncOptions{})
	id, _ := h.connected(t, func(s *syncFakeSource) { s.panics = true })

	handle, err := h.orch.StartSync(context.Background(), id)
	require.NoError(t, err)
	p := waitDone(t, handle)

	assert.True(t, p.Failed())
	assert.Contains(t, p.StatusMessage, "provider exploded")

	// The source is usable again afterwards.
	_, err = h.orch.StartSync(context.Background(), id)
	assert.NoError(t, err)
}

func TestSyncOrchestrator_SingleFlight(t *testing.T) {
	h := newSyncHarness(t, SyncOptions{})
	gate := make(chan struct{})
	id, _ := h.connected(t, func(s *syncFakeSource) {
		s.msgs = []domain.Message{msgA}
		s.gate = gate
	})

	first, err := h.orch.StartSync(context.Background(), id)
	require.NoError(t, err)

	_, err = h.orch.StartSync(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrAlreadySyncing)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	p, err := h.orch.GetProgress(id)
	require.NoError(t, err)
	assert.True(t, p.IsSyncing)
	assert.Equal(t, domain.SyncStatusFetching, p.StatusMessage)

	assert.ErrorIs(t, h.orch.RemoveSource(context.Background(), id), domain.ErrAlreadySyncing)

	close(gate)
	assert.Equal(t, 100, waitDone(t, first).Percent)
}

func TestSyncOrchestrator_DifferentSourcesSyncConcurrently(t *testing.T) {
	h := newSyncHarness(t, SyncOptions{})
	gate := make(chan struct{})
	id1, _ := h.connected(t, func(s *syncFakeSource) { s.msgs = []domain.Message{msgA}; s.gate = gate })
	id2, _ := h.connected(t, func(s *syncFakeSource) { s.msgs = []domain.Message{msgB}; s.gate = gate })

	h1, err := h.orch.StartSync(context.Background(), id1)
	require.NoError(t, err)
	h2, err := h.orch.StartSync(context.Background(), id2)
	require.NoError(t, err)

	close(gate)
	waitDone(t, h1)
	waitDone(t, h2)
	assert.Equal(t, 2, h.index.Stats(context.Background()).TotalDocuments)
}

func TestSyncOrchestrator_ProgressInvariant(t *testing.T) {
	h := newSyncHarness(t, SyncOptions{})
	msgs := make([]domain.Message, 50)
	for i := range msgs {
		msgs[i] = msg(fmt.Sprintf("p%d", i), fmt.Sprintf("Subject %d", i), "s@example.com", "body text")
	}
	id, _ := h.connected(t, withMessages(msgs...))

	handle, err := h.orch.StartSync(context.Background(), id)
	require.NoError(t, err)

	for {
		p, err := h.orch.GetProgress(id)
		require.NoError(t, err)
		if !p.IsSyncing {
			assert.Contains(t, []int{0, 100}, p.Percent)
		}
		select {
		case <-handle.Done():
			assert.Equal(t, 100, handle.Progress().Percent)
			return
		default:
		}
	}
}

func TestSyncOrchestrator_Timeout(t *testing.T) {
	h := newSyncHarness(t, SyncOptions{Timeout: 20 * time.Millisecond})
	id, _ := h.connected(t, func(s *syncFakeSource) { s.gate = make(chan struct{}) })

	handle, err := h.orch.StartSync(context.Background(), id)
	require.NoError(t, err)
	p := waitDone(t, handle)

	assert.True(t, p.Failed())
	assert.Contains(t, p.StatusMessage, context.DeadlineExceeded.Error())
}

func TestSyncOrchestrator_TaskOutlivesRequestContext(t *testing.T) {
	h := newSyncHarness(t, SyncOptions{})
	gate := make(chan struct{})
	id, _ := h.connected(t, func(s *syncFakeSource) { s.msgs = []domain.Message{msgA}; s.gate = gate })

	ctx, cancel := context.WithCancel(context.Background())
	handle, err := h.orch.StartSync(ctx, id)
	require.NoError(t, err)
	cancel()
	close(gate)

	assert.Equal(t, 100, waitDone(t, handle).Percent)
}

func TestSyncOrchestrator_FetchLimit(t *testing.T) {
	h := newSyncHarness(t, SyncOptions{FetchLimit: 1})
	id, _ := h.connected(t, withMessages(msgA, msgB, msgC))

	handle, err := h.orch.StartSync(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, 1, waitDone(t, handle).MessagesTotal)
}

func TestSyncOrchestrator_History(t *testing.T) {
	h := newSyncHarness(t, SyncOptions{HistoryKeep: 2})
	id, src := h.connected(t, withMessages(msgA))
	ctx := context.Background()

	for range 3 {
		handle, err := h.orch.StartSync(ctx, id)
		require.NoError(t, err)
		waitDone(t, handle)
	}
	src.fetchErr = errors.New("gone")
	handle, err := h.orch.StartSync(ctx, id)
	require.NoError(t, err)
	waitDone(t, handle)

	runs, err := h.orch.History(ctx, id, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.False(t, runs[0].Success)
	assert.Contains(t, runs[0].Error, "gone")
	assert.True(t, runs[1].Success)
	assert.Equal(t, 1, runs[1].Fetched)
	assert.Equal(t, 0, runs[1].Added)
}

func TestSyncOrchestrator_RemoveSource(t *testing.T) {
	h := newSyncHarness(t, SyncOptions{})
	id, src := h.connected(t, withMessages(msgA))
	ctx := context.Background()
	handle, err := h.orch.StartSync(ctx, id)
	require.NoError(t, err)
	waitDone(t, handle)

	require.NoError(t, h.orch.RemoveSource(ctx, id))

	assert.Equal(t, domain.StateDisconnected, src.State())
	assert.True(t, src.closed.Load())
	_, err = h.store.Get(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	runs, err := h.history.ListRuns(ctx, id, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
	_, err = h.orch.GetProgress(id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSyncOrchestrator_DisconnectAndTest(t *testing.T) {
	h := newSyncHarness(t, SyncOptions{})
	id, _ := h.connected(t, nil)
	ctx := context.Background()

	ok, err := h.orch.TestConnection(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.orch.Disconnect(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.orch.TestConnection(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
	p, _ := h.orch.GetProgress(id)
	assert.Equal(t, "Disconnected", p.StatusMessage)
}

func TestSyncOrchestrator_LoadSources(t *testing.T) {
	h := newSyncHarness(t, SyncOptions{})
	ctx := context.Background()
	created := time.Now().Add(-time.Hour)
	require.NoError(t, h.store.Save(ctx, domain.SourceDefinition{ID: "saved1", Type: "fake", Name: "Saved", CreatedAt: created}))
	require.NoError(t, h.store.Save(ctx, domain.SourceDefinition{ID: "saved2", Type: "gone", Name: "Old type", CreatedAt: created}))
	id, _ := h.register(t, nil)

	err := h.orch.LoadSources(ctx)

	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
	sources := h.orch.ListSources(ctx)
	require.Len(t, sources, 2)
	assert.Equal(t, "saved1", sources[0].SourceID)
	assert.Equal(t, domain.StateDisconnected, sources[0].State)
	assert.Equal(t, id, sources[1].SourceID)

	require.NoError(t, h.store.Delete(ctx, "saved2"))
	assert.NoError(t, h.orch.LoadSources(ctx), "already loaded sources are skipped")
}

func TestSyncOrchestrator_SyncAll(t *testing.T) {
	h := newSyncHarness(t, SyncOptions{})
	ctx := context.Background()
	id1, _ := h.connected(t, withMessages(msgA))
	id2, _ := h.connected(t, withMessages(msgB))
	_, idle := h.register(t, withMessages(msgC))

	require.NoError(t, h.orch.SyncAll(ctx))

	for _, id := range []string{id1, id2} {
		require.Eventually(t, func() bool {
			p, err := h.orch.GetProgress(id)
			return err == nil && !p.IsSyncing && p.Percent == 100
		}, 5*time.Second, 5*time.Millisecond)
	}
	assert.Zero(t, idle.fetches.Load())
}

func TestSyncOrchestrator_AutoWatch(t *testing.T) {
	h := newSyncHarness(t, SyncOptions{AutoWatch: true})
	h.watch = true
	id, src := h.connected(t, withMessages(msgA))

	src.watchers <- struct{}{}

	require.Eventually(t, func() bool {
		p, err := h.orch.GetProgress(id)
		return err == nil && p.Percent == 100 && strings.HasPrefix(p.StatusMessage, "Sync complete")
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.index.Stats(context.Background()).TotalDocuments)
}

func TestSyncOrchestrator_CloseWaitsForTasks(t *testing.T) {
	h := newSyncHarness(t, SyncOptions{})
	gate := make(chan struct{})
	id, src := h.connected(t, func(s *syncFakeSource) { s.msgs = []domain.Message{msgA}; s.gate = gate })
	handle, err := h.orch.StartSync(context.Background(), id)
	require.NoError(t, err)

	closed := make(chan struct{})
	go func() {
		_ = h.orch.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a sync was running")
	case <-time.After(20 * time.Millisecond):
	}
	close(gate)
	<-closed

	assert.Equal(t, 100, handle.Progress().Percent)
	assert.True(t, src.closed.Load())
	_, err = h.orch.StartSync(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}
