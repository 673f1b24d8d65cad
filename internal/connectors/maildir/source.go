// Package maildir provides a message source over a local directory of
// RFC 5322 files: a Maildir (cur/ and new/) or a flat folder of .eml files.
package maildir

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/homeqa/internal/connectors"
	"github.com/custodia-labs/homeqa/internal/core/domain"
	"github.com/custodia-labs/homeqa/internal/core/ports/driven"
	"github.com/custodia-labs/homeqa/internal/logger"
)

// Type is the source type identifier.
const Type = "maildir"

// IDPrefix prefixes message IDs.
const IDPrefix = "maildir_"

// DefaultDebounce coalesces bursts of file events into one notification.
const DefaultDebounce = 500 * time.Millisecond

// Ensure Source implements the interfaces.
var (
	_ driven.MessageSource = (*Source)(nil)
	_ driven.Watcher       = (*Source)(nil)
)

// Descriptor describes the maildir source type and its configuration.
var Descriptor = domain.SourceType{
	ID:          Type,
	Name:        "Maildir",
	Description: "Local Maildir or folder of .eml files (watched for changes)",
	ConfigKeys: []domain.ConfigKey{
		{Key: "path", Label: "Directory", Required: true},
	},
}

// Source reads messages from disk.
type Source struct {
	connectors.StateMachine

	id       string
	root     string
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// New creates a maildir source.
func New(def domain.SourceDefinition) (*Source, error) {
	root := strings.TrimSpace(def.Config["path"])
	if root == "" {
		return nil, domain.Validationf("path is required")
	}
	if strings.HasPrefix(root, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			root = filepath.Join(home, root[2:])
		}
	}
	return &Source{id: def.ID, root: root, debounce: DefaultDebounce}, nil
}

// Build is the SourceBuilder for maildir sources.
func Build(_ context.Context, def domain.SourceDefinition) (driven.MessageSource, error) {
	return New(def)
}

// ID returns the source ID.
func (s *Source) ID() string { return s.id }

// Type returns the source type.
func (s *Source) Type() string { return Type }

// Connect checks the directory exists.
func (s *Source) Connect(ctx context.Context) bool {
	return s.StateMachine.Connect(ctx, func(context.Context) error {
		return s.checkRoot()
	})
}

// Disconnect stops any watcher.
func (s *Source) Disconnect(ctx context.Context) bool {
	return s.StateMachine.Disconnect(ctx, func(context.Context) error {
		return s.stopWatcher()
	})
}

// TestConnection re-checks the directory.
func (s *Source) TestConnection(ctx context.Context) bool {
	return s.StateMachine.Test(ctx, func(context.Context) error {
		return s.checkRoot()
	})
}

func (s *Source) checkRoot() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("maildir %s: %w", s.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("maildir %s: not a directory", s.root)
	}
	return nil
}

// dirs returns the directories holding messages.
func (s *Source) dirs() []string {
	var out []string
	for _, sub := range []string{"new", "cur"} {
		dir := filepath.Join(s.root, sub)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			out = append(out, dir)
		}
	}
	if len(out) == 0 {
		out = append(out, s.root)
	}
	return out
}

func isMessageFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	// Everything in a Maildir new/ or cur/ is a message.
	if parent := filepath.Base(filepath.Dir(path)); parent == "new" || parent == "cur" {
		return true
	}
	ext := strings.ToLower(filepath.Ext(base))
	return ext == ".eml" || ext == ""
}

// messageID derives a stable ID from the file name, dropping Maildir flags
// so a message keeps its ID when it moves from new/ to cur/.
func messageID(path string) string {
	base := filepath.Base(path)
	if i := strings.Index(base, ":2,"); i >= 0 {
		base = base[:i]
	}
	if strings.EqualFold(filepath.Ext(base), ".eml") {
		base = base[:len(base)-len(".eml")]
	}
	return IDPrefix + base
}

// FetchMessages returns up to limit messages, newest first.
func (s *Source) FetchMessages(ctx context.Context, limit int) ([]domain.Message, error) {
	if err := s.RequireConnected(); err != nil {
		return nil, err
	}
	if err := connectors.CheckLimit(limit); err != nil {
		return nil, err
	}

	var msgs []domain.Message
	for _, dir := range s.dirs() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, domain.NewSourceError(s.id, "read", err)
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if e.IsDir() || !isMessageFile(filepath.Join(dir, e.Name())) {
				continue
			}
			msg, err := s.readFile(filepath.Join(dir, e.Name()))
			if err != nil {
				logger.Warn("maildir %s: skipping %s: %v", s.id, e.Name(), err)
				continue
			}
			msgs = append(msgs, msg)
		}
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].Timestamp.After(msgs[j].Timestamp)
		}
		return msgs[i].ID < msgs[j].ID
	})
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}

func (s *Source) readFile(path string) (domain.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Message{}, err
	}
	defer f.Close()

	parsed, err := connectors.ParseMail(f)
	if err != nil {
		return domain.Message{}, err
	}
	ts := parsed.Date
	if ts.IsZero() {
		if info, err := f.Stat(); err == nil {
			ts = info.ModTime()
		}
	}
	var labels []string
	if filepath.Base(filepath.Dir(path)) == "new" {
		labels = []string{"Unread"}
	}
	return domain.NewMessage(messageID(path), parsed.Subject, parsed.From, parsed.To, ts.UTC(), parsed.Body, labels, s.id), nil
}

// Watch emits a notification whenever messages are added or changed.
// Bursts of events within the debounce window produce one notification.
// The channel closes when ctx is cancelled or the source disconnects.
func (s *Source) Watch(ctx context.Context) (<-chan struct{}, error) {
	if err := s.RequireConnected(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	for _, dir := range s.dirs() {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	s.mu.Lock()
	if s.watcher != nil {
		s.watcher.Close()
	}
	s.watcher = w
	s.mu.Unlock()

	out := make(chan struct{}, 1)
	go s.loop(ctx, w, out)
	logger.Debug("maildir %s: watching %s", s.id, s.root)
	return out, nil
}

func (s *Source) loop(ctx context.Context, w *fsnotify.Watcher, out chan<- struct{}) {
	defer close(out)
	defer w.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				timer.Reset(s.debounce)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Warn("maildir %s: watcher error: %v", s.id, err)
		case <-fire:
			fire = nil
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	if !isMessageFile(ev.Name) {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename)
}

func (s *Source) stopWatcher() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	s.watcher = nil
	return err
}

// Close stops the watcher.
func (s *Source) Close() error {
	s.Disconnect(context.Background())
	return nil
}
