package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/homeqa/internal/core/domain"
	"github.com/custodia-labs/homeqa/internal/core/ports/driven"
	"github.com/custodia-labs/homeqa/internal/core/ports/driving"
	"github.com/custodia-labs/homeqa/internal/logger"
	"github.com/custodia-labs/homeqa/internal/metrics"
)

// Ensure SyncOrchestrator implements the interface.
var _ driving.SyncOrchestrator = (*SyncOrchestrator)(nil)

// DefaultFetchLimit is how many messages one sync asks a source for.
const DefaultFetchLimit = 100

// SyncOptions tunes sync tasks.
type SyncOptions struct {
	// FetchLimit bounds each fetch. Defaults to DefaultFetchLimit.
	FetchLimit int
	// Timeout bounds a whole sync task. Zero means no limit.
	Timeout time.Duration
	// AutoWatch starts a sync whenever a connected Watcher source
	// reports new messages.
	AutoWatch bool
	// HistoryKeep is how many finished runs are kept per source.
	HistoryKeep int
}

// sourceEntry is the registry record for one source. Fields other than
// def and source are guarded by SyncOrchestrator.mu.
type sourceEntry struct {
	def    domain.SourceDefinition
	source driven.MessageSource

	progress  domain.SyncProgress
	running   bool
	stopWatch context.CancelFunc
}

// SyncOrchestrator owns registered sources and runs their sync tasks.
// At most one task runs per source; different sources sync concurrently.
type SyncOrchestrator struct {
	factory driven.SourceFactory
	store   driven.SourceStore
	history driven.SyncHistoryStore
	index   driving.IndexService
	metrics *metrics.Metrics
	opts    SyncOptions

	mu      sync.RWMutex
	entries map[string]*sourceEntry
	closed  bool

	wg sync.WaitGroup
}

// NewSyncOrchestrator creates an orchestrator. store and history may be
// nil, in which case registrations and run history are not persisted.
func NewSyncOrchestrator(
	factory driven.SourceFactory,
	store driven.SourceStore,
	history driven.SyncHistoryStore,
	index driving.IndexService,
	m *metrics.Metrics,
	opts SyncOptions,
) *SyncOrchestrator {
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = DefaultFetchLimit
	}
	if opts.HistoryKeep <= 0 {
		opts.HistoryKeep = domain.DefaultHistoryKeep
	}
	return &SyncOrchestrator{
		factory: factory,
		store:   store,
		history: history,
		index:   index,
		metrics: m,
		opts:    opts,
		entries: make(map[string]*sourceEntry),
	}
}

// RegisterSource validates, builds and persists a new source.
func (o *SyncOrchestrator) RegisterSource(
	ctx context.Context,
	sourceType, name string,
	config map[string]string,
) (string, error) {
	if err := o.factory.Validate(sourceType, config); err != nil {
		return "", err
	}

	now := time.Now()
	def := domain.SourceDefinition{
		ID:        o.newID(),
		Type:      sourceType,
		Name:      name,
		Config:    cloneConfig(config),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if def.Name == "" {
		def.Name = sourceType
	}

	src, err := o.factory.Create(ctx, def)
	if err != nil {
		return "", err
	}

	if o.store != nil {
		if err := o.store.Save(ctx, def); err != nil {
			_ = src.Close() //nolint:errcheck // registration already failed
			return "", fmt.Errorf("saving source: %w", err)
		}
	}

	if err := o.add(def, src); err != nil {
		_ = src.Close() //nolint:errcheck // registration already failed
		return "", err
	}
	logger.Info("Registered %s source %s (%s)", sourceType, def.ID, def.Name)
	return def.ID, nil
}

// LoadSources registers every persisted definition not already known.
// Sources come back disconnected. Definitions that no longer build are
// skipped and reported together.
func (o *SyncOrchestrator) LoadSources(ctx context.Context) error {
	if o.store == nil {
		return nil
	}
	defs, err := o.store.List(ctx)
	if err != nil {
		return fmt.Errorf("listing sources: %w", err)
	}

	var errs []error
	for _, def := range defs {
		if _, err := o.lookup(def.ID); err == nil {
			continue
		}
		src, err := o.factory.Create(ctx, def)
		if err != nil {
			logger.Warn("Skipping source %s: %v", def.ID, err)
			errs = append(errs, fmt.Errorf("load %s: %w", def.ID, err))
			continue
		}
		if err := o.add(def, src); err != nil {
			_ = src.Close() //nolint:errcheck // not registered
			errs = append(errs, err)
		}
	}
	logger.Debug("Loaded %d of %d saved sources", len(defs)-len(errs), len(defs))
	return errors.Join(errs...)
}

func (o *SyncOrchestrator) add(def domain.SourceDefinition, src driven.MessageSource) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return fmt.Errorf("%w: orchestrator closed", domain.ErrInvalidState)
	}
	if _, ok := o.entries[def.ID]; ok {
		return fmt.Errorf("%w: source %s", domain.ErrAlreadyExists, def.ID)
	}
	o.entries[def.ID] = &sourceEntry{
		def:    def,
		source: src,
		progress: domain.SyncProgress{
			SourceID:      def.ID,
			StatusMessage: domain.SyncStatusCreated,
		},
	}
	return nil
}

// newID returns the first eight characters of a fresh UUID, retrying on
// the unlikely clash with a registered source.
func (o *SyncOrchestrator) newID() string {
	for {
		id := uuid.NewString()[:8]
		if _, err := o.lookup(id); err != nil {
			return id
		}
	}
}

func (o *SyncOrchestrator) lookup(sourceID string) (*sourceEntry, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.entries[sourceID]
	if !ok {
		return nil, fmt.Errorf("%w: source %s", domain.ErrNotFound, sourceID)
	}
	return e, nil
}

// ListSources returns all registered sources ordered by creation time.
func (o *SyncOrchestrator) ListSources(_ context.Context) []domain.SourceConnection {
	o.mu.RLock()
	out := make([]domain.SourceConnection, 0, len(o.entries))
	for _, e := range o.entries {
		out = append(out, connectionOf(e))
	}
	o.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SourceID < out[j].SourceID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// GetSource returns one registered source.
func (o *SyncOrchestrator) GetSource(_ context.Context, sourceID string) (domain.SourceConnection, error) {
	e, err := o.lookup(sourceID)
	if err != nil {
		return domain.SourceConnection{}, err
	}
	return connectionOf(e), nil
}

func connectionOf(e *sourceEntry) domain.SourceConnection {
	return domain.SourceConnection{
		SourceID:  e.def.ID,
		Type:      e.def.Type,
		Name:      e.def.Name,
		Config:    cloneConfig(e.def.Config),
		State:     e.source.State(),
		LastError: e.source.LastError(),
		CreatedAt: e.def.CreatedAt,
	}
}

// Connect connects a source and reports the source's own result.
func (o *SyncOrchestrator) Connect(ctx context.Context, sourceID string) (bool, error) {
	e, err := o.lookup(sourceID)
	if err != nil {
		return false, err
	}

	ok := e.source.Connect(ctx)
	if ok {
		o.setStatus(e, "Connected")
		logger.Info("Connected source %s", sourceID)
		if o.opts.AutoWatch {
			o.startWatch(e)
		}
	} else {
		o.setStatus(e, "Connection failed: "+e.source.LastError())
		logger.Warn("Connecting source %s failed: %s", sourceID, e.source.LastError())
	}
	return ok, nil
}

// Disconnect stops any watcher and disconnects the source.
func (o *SyncOrchestrator) Disconnect(ctx context.Context, sourceID string) (bool, error) {
	e, err := o.lookup(sourceID)
	if err != nil {
		return false, err
	}
	o.stopWatch(e)
	ok := e.source.Disconnect(ctx)
	o.setStatus(e, "Disconnected")
	return ok, nil
}

// TestConnection checks a connected source.
func (o *SyncOrchestrator) TestConnection(ctx context.Context, sourceID string) (bool, error) {
	e, err := o.lookup(sourceID)
	if err != nil {
		return false, err
	}
	return e.source.TestConnection(ctx), nil
}

// setStatus replaces the status message of an idle source.
func (o *SyncOrchestrator) setStatus(e *sourceEntry, msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e.running {
		return
	}
	p := e.progress
	p.StatusMessage = msg
	e.progress = p
}

// StartSync launches a sync task for a connected source and returns
// without waiting for it. The task outlives ctx.
func (o *SyncOrchestrator) StartSync(ctx context.Context, sourceID string) (*driving.SyncHandle, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: orchestrator closed", domain.ErrInvalidState)
	}
	e, ok := o.entries[sourceID]
	if !ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: source %s", domain.ErrNotFound, sourceID)
	}
	if e.running {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: source %s", domain.ErrAlreadySyncing, sourceID)
	}
	if state := e.source.State(); state != domain.StateConnected {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: source %s is %s", domain.ErrNotConnected, sourceID, state)
	}

	e.running = true
	p := e.progress
	p.IsSyncing = true
	p.Percent = 0
	p.StatusMessage = domain.SyncStatusFetching
	p.MessagesSeen = 0
	p.MessagesTotal = 0
	e.progress = p

	done := make(chan struct{})
	o.wg.Add(1)
	o.mu.Unlock()

	taskCtx := context.WithoutCancel(ctx)
	go o.run(taskCtx, e, done)

	return driving.NewSyncHandle(sourceID, done, func() domain.SyncProgress {
		return o.progressOf(e)
	}), nil
}

// run executes one sync task. Errors and panics end in the failed state.
func (o *SyncOrchestrator) run(ctx context.Context, e *sourceEntry, done chan struct{}) {
	defer o.wg.Done()
	defer close(done)

	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}

	run := domain.SyncRun{SourceID: e.def.ID, StartedAt: time.Now()}
	o.metrics.SyncStarted(e.def.Type)
	logger.Section("Sync " + e.def.ID)

	err := o.safeSync(ctx, e, &run)
	run.EndedAt = time.Now()
	if err != nil {
		run.Error = err.Error()
		o.finish(e, func(p *domain.SyncProgress) {
			p.Percent = 0
			p.StatusMessage = domain.SyncFailedPrefix + err.Error()
		})
		logger.Warn("Sync of %s failed: %v", e.def.ID, err)
	} else {
		run.Success = true
		logger.Info("Sync of %s complete: %d fetched, %d new", e.def.ID, run.Fetched, run.Added)
	}

	o.metrics.SyncFinished(e.def.Type, run.Fetched, run.Added, run.Duration(), err)
	o.recordRun(run)
}

func (o *SyncOrchestrator) safeSync(ctx context.Context, e *sourceEntry, run *domain.SyncRun) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected error: %v", r)
		}
	}()
	return o.sync(ctx, e, run)
}

// sync is the body of a task. The final successful transition clears
// running; failures are finished by run.
func (o *SyncOrchestrator) sync(ctx context.Context, e *sourceEntry, run *domain.SyncRun) error {
	start := run.StartedAt

	msgs, err := e.source.FetchMessages(ctx, o.opts.FetchLimit)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	run.Fetched = len(msgs)

	if len(msgs) == 0 {
		o.finish(e, func(p *domain.SyncProgress) {
			completeProgress(p, start, domain.SyncStatusNoNew)
		})
		return nil
	}

	o.update(e, func(p *domain.SyncProgress) {
		p.Percent = 25
		p.MessagesTotal = len(msgs)
		p.StatusMessage = fmt.Sprintf("Processing %d messages...", len(msgs))
	})

	added, err := o.index.AddDocuments(ctx, msgs)
	if err != nil {
		return err
	}
	run.Added = added

	o.update(e, func(p *domain.SyncProgress) {
		p.Percent = 75
		p.MessagesSeen = added
		p.StatusMessage = domain.SyncStatusFinishing
	})

	o.finish(e, func(p *domain.SyncProgress) {
		completeProgress(p, start, fmt.Sprintf("Sync complete! Added %d new messages to knowledge base.", added))
	})
	return nil
}

func completeProgress(p *domain.SyncProgress, start time.Time, msg string) {
	now := time.Now()
	p.Percent = 100
	p.LastCompletedAt = &now
	p.DurationSeconds = now.Sub(start).Seconds()
	p.StatusMessage = msg
}

// update replaces the progress of a running task.
func (o *SyncOrchestrator) update(e *sourceEntry, fn func(p *domain.SyncProgress)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := e.progress
	fn(&p)
	e.progress = p
}

// finish applies the terminal transition and releases the source for
// the next task.
func (o *SyncOrchestrator) finish(e *sourceEntry, fn func(p *domain.SyncProgress)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := e.progress
	fn(&p)
	p.IsSyncing = false
	e.progress = p
	e.running = false
}

func (o *SyncOrchestrator) progressOf(e *sourceEntry) domain.SyncProgress {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return e.progress
}

func (o *SyncOrchestrator) recordRun(run domain.SyncRun) {
	if o.history == nil {
		return
	}
	ctx := context.Background()
	if err := o.history.RecordRun(ctx, run); err != nil {
		logger.Warn("Recording sync run for %s: %v", run.SourceID, err)
		return
	}
	if err := o.history.PruneRuns(ctx, o.opts.HistoryKeep); err != nil {
		logger.Warn("Pruning sync history: %v", err)
	}
}

// GetProgress returns the latest progress snapshot.
func (o *SyncOrchestrator) GetProgress(sourceID string) (domain.SyncProgress, error) {
	e, err := o.lookup(sourceID)
	if err != nil {
		return domain.SyncProgress{}, err
	}
	return o.progressOf(e), nil
}

// SyncAll starts a task for every connected, idle source.
func (o *SyncOrchestrator) SyncAll(ctx context.Context) error {
	var errs []error
	started := 0
	for _, conn := range o.ListSources(ctx) {
		if conn.State != domain.StateConnected {
			continue
		}
		if _, err := o.StartSync(ctx, conn.SourceID); err != nil {
			if errors.Is(err, domain.ErrAlreadySyncing) {
				continue
			}
			errs = append(errs, fmt.Errorf("sync %s: %w", conn.SourceID, err))
			continue
		}
		started++
	}
	logger.Debug("SyncAll started %d tasks", started)
	return errors.Join(errs...)
}

// RemoveSource disconnects, closes and forgets a source. A source with a
// running task cannot be removed.
func (o *SyncOrchestrator) RemoveSource(ctx context.Context, sourceID string) error {
	o.mu.Lock()
	e, ok := o.entries[sourceID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: source %s", domain.ErrNotFound, sourceID)
	}
	if e.running {
		o.mu.Unlock()
		return fmt.Errorf("%w: source %s", domain.ErrAlreadySyncing, sourceID)
	}
	delete(o.entries, sourceID)
	stop := e.stopWatch
	e.stopWatch = nil
	o.mu.Unlock()

	if stop != nil {
		stop()
	}
	e.source.Disconnect(ctx)
	if err := e.source.Close(); err != nil {
		logger.Warn("Closing source %s: %v", sourceID, err)
	}

	if o.store != nil {
		if err := o.store.Delete(ctx, sourceID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("deleting source: %w", err)
		}
	}
	if o.history != nil {
		if err := o.history.DeleteRuns(ctx, sourceID); err != nil {
			logger.Warn("Deleting sync history for %s: %v", sourceID, err)
		}
	}
	logger.Info("Removed source %s", sourceID)
	return nil
}

// History returns recent finished runs for a source.
func (o *SyncOrchestrator) History(ctx context.Context, sourceID string, limit int) ([]domain.SyncRun, error) {
	if _, err := o.lookup(sourceID); err != nil {
		return nil, err
	}
	if o.history == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = o.opts.HistoryKeep
	}
	return o.history.ListRuns(ctx, sourceID, limit)
}

// startWatch subscribes to a Watcher source and starts a sync on every
// notification. Notifications during a running task are dropped.
func (o *SyncOrchestrator) startWatch(e *sourceEntry) {
	w, ok := e.source.(driven.Watcher)
	if !ok {
		return
	}

	o.mu.Lock()
	if o.closed || e.stopWatch != nil {
		o.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.stopWatch = cancel
	o.mu.Unlock()

	events, err := w.Watch(ctx)
	if err != nil {
		logger.Warn("Watching source %s: %v", e.def.ID, err)
		o.stopWatch(e)
		return
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		o.stopWatch(e)
		return
	}
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		for range events {
			if _, err := o.StartSync(ctx, e.def.ID); err != nil && !errors.Is(err, domain.ErrAlreadySyncing) {
				logger.Debug("Watch sync of %s not started: %v", e.def.ID, err)
			}
		}
	}()
	logger.Debug("Watching source %s for new messages", e.def.ID)
}

func (o *SyncOrchestrator) stopWatch(e *sourceEntry) {
	o.mu.Lock()
	stop := e.stopWatch
	e.stopWatch = nil
	o.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Close stops watchers, waits for running tasks and closes every source.
func (o *SyncOrchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	entries := make([]*sourceEntry, 0, len(o.entries))
	for _, e := range o.entries {
		entries = append(entries, e)
	}
	o.mu.Unlock()

	for _, e := range entries {
		o.stopWatch(e)
	}
	o.wg.Wait()

	var errs []error
	for _, e := range entries {
		e.source.Disconnect(context.Background())
		if err := e.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", e.def.ID, err))
		}
	}
	return errors.Join(errs...)
}

func cloneConfig(config map[string]string) map[string]string {
	if config == nil {
		return nil
	}
	out := make(map[string]string, len(config))
	for k, v := range config {
		out[k] = v
	}
	return out
}
