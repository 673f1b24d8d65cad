// Package gmail provides a message source backed by the Gmail API.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/custodia-labs/homeqa/internal/connectors"
	"github.com/custodia-labs/homeqa/internal/connectors/google"
	"github.com/custodia-labs/homeqa/internal/core/domain"
	"github.com/custodia-labs/homeqa/internal/core/ports/driven"
	"github.com/custodia-labs/homeqa/internal/logger"
)

// Type is the source type identifier.
const Type = "gmail"

// Ensure Source implements the interface.
var _ driven.MessageSource = (*Source)(nil)

// Descriptor describes the Gmail source type and its configuration.
var Descriptor = domain.SourceType{
	ID:          Type,
	Name:        "Gmail",
	Description: "Gmail via OAuth refresh token (read-only)",
	ConfigKeys: []domain.ConfigKey{
		{Key: "client_id", Label: "OAuth client ID", Required: true},
		{Key: "client_secret", Label: "OAuth client secret", Required: true, Secret: true},
		{Key: "refresh_token", Label: "Refresh token", Required: true, Secret: true},
		{Key: "label_ids", Label: "Label IDs", Default: "INBOX"},
		{Key: "query", Label: "Search query"},
		{Key: "include_spam_trash", Label: "Include spam and trash", Default: "false"},
	},
}

// api is the subset of the Gmail API used by the source.
type api interface {
	Profile(ctx context.Context) (string, error)
	List(ctx context.Context, cfg *Config, limit int) ([]string, error)
	Get(ctx context.Context, id string) (*gmail.Message, error)
}

// serviceAPI implements api on a *gmail.Service.
type serviceAPI struct {
	svc *gmail.Service
}

func (a *serviceAPI) Profile(ctx context.Context) (string, error) {
	p, err := a.svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return p.EmailAddress, nil
}

func (a *serviceAPI) List(ctx context.Context, cfg *Config, limit int) ([]string, error) {
	call := a.svc.Users.Messages.List("me").
		MaxResults(int64(limit)).
		IncludeSpamTrash(cfg.IncludeSpamTrash).
		Context(ctx)
	if len(cfg.LabelIDs) > 0 {
		call = call.LabelIds(cfg.LabelIDs...)
	}
	if cfg.Query != "" {
		call = call.Q(cfg.Query)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

func (a *serviceAPI) Get(ctx context.Context, id string) (*gmail.Message, error) {
	return a.svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
}

// Source fetches messages from Gmail.
type Source struct {
	connectors.StateMachine

	id      string
	cfg     *Config
	limiter *google.RateLimiter
	opts    []option.ClientOption

	// newAPI is replaced in tests.
	newAPI func(ctx context.Context) (api, error)

	mu     sync.Mutex
	client api
}

// New creates a Gmail source.
func New(def domain.SourceDefinition, opts ...option.ClientOption) (*Source, error) {
	cfg, err := ParseConfig(def)
	if err != nil {
		return nil, err
	}
	s := &Source{
		id:      def.ID,
		cfg:     cfg,
		limiter: google.NewRateLimiter(google.GmailRateLimit),
		opts:    opts,
	}
	s.newAPI = s.dialAPI
	return s, nil
}

// Build is the SourceBuilder for Gmail sources.
func Build(_ context.Context, def domain.SourceDefinition) (driven.MessageSource, error) {
	return New(def)
}

func (s *Source) dialAPI(ctx context.Context) (api, error) {
	// The token source outlives Connect's context.
	ts := google.RefreshTokenSource(context.Background(), s.cfg.ClientID, s.cfg.ClientSecret, s.cfg.RefreshToken)
	svc, err := google.NewGmailService(ctx, ts, s.opts...)
	if err != nil {
		return nil, err
	}
	return &serviceAPI{svc: svc}, nil
}

// ID returns the source ID.
func (s *Source) ID() string { return s.id }

// Type returns the source type.
func (s *Source) Type() string { return Type }

// Connect builds the API client and verifies the credentials.
func (s *Source) Connect(ctx context.Context) bool {
	return s.StateMachine.Connect(ctx, func(ctx context.Context) error {
		client, err := s.newAPI(ctx)
		if err != nil {
			return fmt.Errorf("creating gmail client: %w", err)
		}
		email, err := s.call(ctx, func() (string, error) { return client.Profile(ctx) })
		if err != nil {
			return err
		}

		s.mu.Lock()
		s.client = client
		s.mu.Unlock()
		logger.Info("Gmail source %s connected as %s", s.id, email)
		return nil
	})
}

// Disconnect drops the API client.
func (s *Source) Disconnect(ctx context.Context) bool {
	return s.StateMachine.Disconnect(ctx, func(context.Context) error {
		s.mu.Lock()
		s.client = nil
		s.mu.Unlock()
		return nil
	})
}

// TestConnection fetches the user profile.
func (s *Source) TestConnection(ctx context.Context) bool {
	return s.StateMachine.Test(ctx, func(ctx context.Context) error {
		client := s.current()
		if client == nil {
			return errors.New("no client")
		}
		_, err := s.call(ctx, func() (string, error) { return client.Profile(ctx) })
		return err
	})
}

// FetchMessages returns up to limit messages, newest first.
func (s *Source) FetchMessages(ctx context.Context, limit int) ([]domain.Message, error) {
	if err := s.RequireConnected(); err != nil {
		return nil, err
	}
	if err := connectors.CheckLimit(limit); err != nil {
		return nil, err
	}
	client := s.current()
	if client == nil {
		return nil, domain.ErrNotConnected
	}

	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	ids, err := client.List(ctx, s.cfg, limit)
	if err != nil {
		return nil, s.fail("list", err)
	}

	msgs := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		if err := s.wait(ctx); err != nil {
			return nil, err
		}
		raw, err := client.Get(ctx, id)
		if err != nil {
			if google.IsNotFound(err) {
				logger.Debug("Gmail message %s vanished, skipping", id)
				continue
			}
			return nil, s.fail("get", err)
		}
		if !ShouldInclude(raw, s.cfg) {
			continue
		}
		msgs = append(msgs, ToMessage(raw, s.id))
	}

	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Timestamp.After(msgs[j].Timestamp) })
	logger.Debug("Gmail source %s fetched %d messages", s.id, len(msgs))
	return msgs, nil
}

// Close drops the client.
func (s *Source) Close() error {
	s.Disconnect(context.Background())
	return nil
}

func (s *Source) current() api {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *Source) wait(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

func (s *Source) call(ctx context.Context, fn func() (string, error)) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	out, err := fn()
	if err != nil {
		return "", s.fail("profile", err)
	}
	return out, nil
}

func (s *Source) fail(op string, err error) error {
	if google.IsRateLimited(err) {
		s.limiter.RecordRateLimitError(0)
		err = fmt.Errorf("%w: %w", domain.ErrRateLimited, err)
	}
	return domain.NewSourceError(s.id, op, google.WrapError(err))
}
