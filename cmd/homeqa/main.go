// Command homeqa answers questions about synced email messages.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/custodia-labs/homeqa/internal/adapters/driven/config/file"
	"github.com/custodia-labs/homeqa/internal/adapters/driven/embedding/hashing"
	"github.com/custodia-labs/homeqa/internal/adapters/driven/embedding/ollama"
	"github.com/custodia-labs/homeqa/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/homeqa/internal/adapters/driven/storage/chroma"
	"github.com/custodia-labs/homeqa/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/homeqa/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/homeqa/internal/adapters/driving/cli"
	"github.com/custodia-labs/homeqa/internal/config"
	"github.com/custodia-labs/homeqa/internal/core/ports/driven"
	"github.com/custodia-labs/homeqa/internal/core/services"
	"github.com/custodia-labs/homeqa/internal/logger"
	"github.com/custodia-labs/homeqa/internal/metrics"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	configDir, err := config.DefaultDir()
	if err != nil {
		return err
	}
	cfg, err := config.Load(config.Options{ConfigDir: configDir})
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	logger.SetVerbose(cfg.Log.Verbose)
	logger.SetJSON(cfg.Log.JSON)

	var configStore driven.ConfigStore
	if fs, err := file.NewConfigStore(configDir); err == nil {
		configStore = fs
	} else {
		logger.Warn("Settings file unavailable, changes will not persist: %v", err)
		configStore = memory.NewConfigStore()
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	stores, err := openStores(cfg)
	if err != nil {
		_ = embedder.Close()
		return err
	}
	defer stores.Close()

	m := metrics.New()
	index := services.NewVectorIndex(stores.vectors, embedder, cfg.Index.Collection, m)
	defer index.Close()

	factory := services.NewDefaultSourceFactory()
	orch := services.NewSyncOrchestrator(factory, stores.sources, stores.history, index, m, services.SyncOptions{
		FetchLimit: cfg.Sync.FetchLimit,
		Timeout:    cfg.Sync.Timeout,
		AutoWatch:  cfg.Sync.AutoWatch,
	})
	defer orch.Close()

	if err := orch.LoadSources(context.Background()); err != nil {
		logger.Warn("Restoring sources: %v", err)
	}

	cli.SetVersion(version)
	cli.SetServices(cli.Services{
		Sync:        orch,
		Answers:     services.NewSynthesizer(index, cfg.Index.TopK, m),
		Scheduler:   services.NewScheduler(cfg.Scheduler.Spec, orch),
		ConfigStore: configStore,
		Metrics:     m,
		Config:      cfg,
		SourceTypes: factory.SupportedTypes(),
	})
	return cli.Execute()
}

func newEmbedder(cfg *config.Config) (driven.EmbeddingService, error) {
	e := cfg.Embedding
	switch e.Provider {
	case config.ProviderOllama:
		return ollama.NewEmbeddingService(ollama.Config{
			BaseURL:    e.BaseURL,
			Model:      e.Model,
			Timeout:    e.Timeout,
			Dimensions: e.Dimensions,
		}), nil
	case config.ProviderOpenAI:
		svc, err := openai.NewEmbeddingService(openai.Config{
			APIKey:     e.APIKey,
			BaseURL:    e.BaseURL,
			Model:      e.Model,
			Timeout:    e.Timeout,
			Dimensions: e.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("creating openai embedder: %w", err)
		}
		return svc, nil
	default:
		return hashing.NewEmbeddingService(hashing.Config{Dimensions: e.Dimensions}), nil
	}
}

// backing holds the persistence adapters selected by index.backend.
type backing struct {
	vectors driven.VectorStore
	sources driven.SourceStore
	history driven.SyncHistoryStore
	closer  io.Closer
}

func (b *backing) Close() {
	if b.closer != nil {
		if err := b.closer.Close(); err != nil {
			logger.Warn("Closing storage: %v", err)
		}
	}
}

// openStores builds the stores for the configured backend. Chroma holds
// only vectors, so source registrations still live in SQLite.
func openStores(cfg *config.Config) (*backing, error) {
	switch cfg.Index.Backend {
	case config.BackendMemory:
		return &backing{
			vectors: memory.NewVectorStore(cfg.Index.Collection),
			sources: memory.NewSourceStore(),
			history: memory.NewSyncHistoryStore(),
		}, nil
	case config.BackendChroma, config.BackendSQLite:
		db, err := sqlite.NewStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		b := &backing{
			vectors: db.VectorStore(cfg.Index.Collection),
			sources: db.SourceStore(),
			history: db.SyncHistoryStore(),
			closer:  db,
		}
		if cfg.Index.Backend == config.BackendChroma {
			b.vectors = chroma.New(cfg.Chroma.URL, cfg.Index.Collection)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
	}
}
