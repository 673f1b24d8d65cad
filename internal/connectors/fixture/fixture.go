// Package fixture provides a message source backed by a canned corpus.
// The built-in demo corpus needs no credentials; a YAML file can be
// supplied instead for local experiments and tests.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/homeqa/internal/connectors"
	"github.com/custodia-labs/homeqa/internal/core/domain"
	"github.com/custodia-labs/homeqa/internal/core/ports/driven"
)

// Type is the source type identifier.
const Type = "fixture"

// Ensure Source implements the interface.
var _ driven.MessageSource = (*Source)(nil)

// Descriptor describes the fixture source type and its configuration.
var Descriptor = domain.SourceType{
	ID:          Type,
	Name:        "Fixture",
	Description: "Canned messages from the demo set or a YAML file",
	ConfigKeys: []domain.ConfigKey{
		{Key: "path", Label: "Corpus file", Description: "YAML file with a messages list (empty for the demo set)"},
		{Key: "fail_connect", Label: "Fail connect", Description: "Simulate a connection failure", Default: "false"},
		{Key: "fail_fetch", Label: "Fail fetch", Description: "Simulate a provider failure on fetch", Default: "false"},
		{Key: "fetch_delay", Label: "Fetch delay", Description: "Artificial latency per fetch, e.g. 500ms"},
	},
}

// ErrSimulated is returned when a failure is requested through config.
var ErrSimulated = errors.New("simulated provider failure")

// Config holds fixture source configuration.
type Config struct {
	Path        string
	FailConnect bool
	FailFetch   bool
	FetchDelay  time.Duration
}

// ParseConfig extracts configuration from a source definition.
func ParseConfig(def domain.SourceDefinition) (*Config, error) {
	cfg := &Config{Path: def.Config["path"]}

	for key, dst := range map[string]*bool{"fail_connect": &cfg.FailConnect, "fail_fetch": &cfg.FailFetch} {
		if val := def.Config[key]; val != "" {
			b, err := strconv.ParseBool(val)
			if err != nil {
				return nil, domain.Validationf("%s must be true or false, got %q", key, val)
			}
			*dst = b
		}
	}

	if val := def.Config["fetch_delay"]; val != "" {
		d, err := time.ParseDuration(val)
		if err != nil || d < 0 {
			return nil, domain.Validationf("fetch_delay must be a duration, got %q", val)
		}
		cfg.FetchDelay = d
	}
	return cfg, nil
}

// Source serves a fixed corpus.
type Source struct {
	connectors.StateMachine

	id  string
	cfg *Config

	corpusMu sync.RWMutex
	corpus   []domain.Message
}

// New creates a fixture source.
func New(def domain.SourceDefinition) (*Source, error) {
	cfg, err := ParseConfig(def)
	if err != nil {
		return nil, err
	}
	return &Source{id: def.ID, cfg: cfg}, nil
}

// Build is the SourceBuilder for fixture sources.
func Build(_ context.Context, def domain.SourceDefinition) (driven.MessageSource, error) {
	return New(def)
}

// ID returns the source ID.
func (s *Source) ID() string { return s.id }

// Type returns the source type.
func (s *Source) Type() string { return Type }

// Connect loads the corpus.
func (s *Source) Connect(ctx context.Context) bool {
	return s.StateMachine.Connect(ctx, func(context.Context) error {
		if s.cfg.FailConnect {
			return fmt.Errorf("fixture %s: %w", s.id, ErrSimulated)
		}
		corpus, err := s.load()
		if err != nil {
			return err
		}
		s.corpusMu.Lock()
		s.corpus = corpus
		s.corpusMu.Unlock()
		return nil
	})
}

// Disconnect forgets the corpus.
func (s *Source) Disconnect(ctx context.Context) bool {
	return s.StateMachine.Disconnect(ctx, func(context.Context) error {
		s.corpusMu.Lock()
		s.corpus = nil
		s.corpusMu.Unlock()
		return nil
	})
}

// TestConnection reports whether the source is connected.
func (s *Source) TestConnection(ctx context.Context) bool {
	return s.StateMachine.Test(ctx, nil)
}

// FetchMessages returns up to limit messages, newest first.
func (s *Source) FetchMessages(ctx context.Context, limit int) ([]domain.Message, error) {
	if err := s.RequireConnected(); err != nil {
		return nil, err
	}
	if err := connectors.CheckLimit(limit); err != nil {
		return nil, err
	}

	if s.cfg.FetchDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.FetchDelay):
		}
	}
	if s.cfg.FailFetch {
		return nil, domain.NewSourceError(s.id, "fetch", ErrSimulated)
	}

	s.corpusMu.RLock()
	defer s.corpusMu.RUnlock()

	n := min(limit, len(s.corpus))
	out := make([]domain.Message, n)
	for i := range n {
		msg := s.corpus[i]
		msg.SourceID = s.id
		out[i] = msg
	}
	return out, nil
}

// Close releases resources.
func (s *Source) Close() error {
	return nil
}

func (s *Source) load() ([]domain.Message, error) {
	var msgs []domain.Message
	if s.cfg.Path == "" {
		msgs = DemoMessages()
	} else {
		loaded, err := LoadFile(s.cfg.Path)
		if err != nil {
			return nil, err
		}
		msgs = loaded
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].Timestamp.After(msgs[j].Timestamp)
	})
	return msgs, nil
}

// corpusFile is the YAML layout of a fixture file.
type corpusFile struct {
	Messages []corpusMessage `yaml:"messages"`
}

type corpusMessage struct {
	ID         string    `yaml:"id"`
	Subject    string    `yaml:"subject"`
	Sender     string    `yaml:"sender"`
	Recipients []string  `yaml:"recipients"`
	Timestamp  time.Time `yaml:"timestamp"`
	Body       string    `yaml:"body"`
	Labels     []string  `yaml:"labels"`
}

// LoadFile reads a YAML corpus.
func LoadFile(path string) ([]domain.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading corpus: %w", err)
	}

	var f corpusFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing corpus %s: %w", path, err)
	}

	msgs := make([]domain.Message, 0, len(f.Messages))
	for i, m := range f.Messages {
		msg := domain.NewMessage(m.ID, m.Subject, m.Sender, m.Recipients, m.Timestamp, m.Body, m.Labels, "")
		if err := msg.Validate(); err != nil {
			return nil, fmt.Errorf("corpus message %d: %w", i, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// DemoMessages returns the built-in demo corpus.
func DemoMessages() []domain.Message {
	return []domain.Message{
		domain.NewMessage(
			"gmail_demo_1",
			"Emma's Birthday Party Invitation",
			"sarah.jones@gmail.com",
			[]string{"you@gmail.com"},
			time.Date(2024, time.June, 3, 18, 30, 0, 0, time.UTC),
			"Hi! You're invited to Emma's 8th birthday party this Saturday at 2pm at Riverside Park. "+
				"Please bring a gift - she loves unicorns! Let me know if you can make it. Sarah",
			[]string{"Important"},
			"",
		),
		domain.NewMessage(
			"gmail_demo_2",
			"Football Practice - This Weekend",
			"coach.mike@sportsclub.com",
			[]string{"you@gmail.com"},
			time.Date(2024, time.June, 4, 8, 15, 0, 0, time.UTC),
			"Reminder: Football practice is this Sunday at 10am at the sports center. "+
				"Please bring football boots, water bottle, and team kit. "+
				"We'll have warm-ups starting at 9:45am. Coach Mike",
			[]string{"Sports"},
			"",
		),
	}
}
