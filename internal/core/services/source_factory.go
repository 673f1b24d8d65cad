package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/homeqa/internal/connectors/fixture"
	"github.com/custodia-labs/homeqa/internal/connectors/google/gmail"
	"github.com/custodia-labs/homeqa/internal/connectors/imap"
	"github.com/custodia-labs/homeqa/internal/connectors/maildir"
	"github.com/custodia-labs/homeqa/internal/core/domain"
	"github.com/custodia-labs/homeqa/internal/core/ports/driven"
)

// Ensure SourceFactory implements the interface.
var _ driven.SourceFactory = (*SourceFactory)(nil)

type registration struct {
	info    domain.SourceType
	builder driven.SourceBuilder
}

// SourceFactory dispatches source definitions to the builder registered
// for their type.
type SourceFactory struct {
	mu    sync.RWMutex
	types map[string]registration
}

// NewSourceFactory creates an empty factory.
func NewSourceFactory() *SourceFactory {
	return &SourceFactory{types: make(map[string]registration)}
}

// NewDefaultSourceFactory creates a factory with the built-in source types.
func NewDefaultSourceFactory() *SourceFactory {
	f := NewSourceFactory()
	f.Register(fixture.Descriptor, fixture.Build)
	f.Register(imap.Descriptor, imap.Build)
	f.Register(gmail.Descriptor, gmail.Build)
	f.Register(maildir.Descriptor, maildir.Build)
	return f
}

// Register adds or replaces the builder for a source type.
func (f *SourceFactory) Register(sourceType domain.SourceType, builder driven.SourceBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types[sourceType.ID] = registration{info: sourceType, builder: builder}
}

// Create builds a MessageSource for def.
func (f *SourceFactory) Create(ctx context.Context, def domain.SourceDefinition) (driven.MessageSource, error) {
	reg, err := f.lookup(def.Type)
	if err != nil {
		return nil, err
	}
	src, err := reg.builder(ctx, def)
	if err != nil {
		return nil, fmt.Errorf("building %s source: %w", def.Type, err)
	}
	return src, nil
}

// SupportedTypes returns all registered types sorted by ID.
func (f *SourceFactory) SupportedTypes() []domain.SourceType {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]domain.SourceType, 0, len(f.types))
	for _, reg := range f.types {
		out = append(out, reg.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Validate checks the type is known and required keys are present.
// Source-specific parsing errors surface later from Create.
func (f *SourceFactory) Validate(sourceType string, config map[string]string) error {
	reg, err := f.lookup(sourceType)
	if err != nil {
		return err
	}

	var missing []string
	for _, key := range reg.info.RequiredKeys() {
		if strings.TrimSpace(config[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return domain.Validationf("%s source missing required config: %s", sourceType, strings.Join(missing, ", "))
	}
	return nil
}

func (f *SourceFactory) lookup(sourceType string) (registration, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	reg, ok := f.types[sourceType]
	if !ok {
		return registration{}, fmt.Errorf("%w: source type %q", domain.ErrUnsupportedType, sourceType)
	}
	return reg, nil
}
