// Package imap provides a message source for any IMAP mailbox.
package imap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/custodia-labs/homeqa/internal/connectors"
	"github.com/custodia-labs/homeqa/internal/core/domain"
	"github.com/custodia-labs/homeqa/internal/core/ports/driven"
	"github.com/custodia-labs/homeqa/internal/logger"
)

// Type is the source type identifier.
const Type = "imap"

// Ensure Source implements the interface.
var _ driven.MessageSource = (*Source)(nil)

// Descriptor describes the IMAP source type and its configuration.
var Descriptor = domain.SourceType{
	ID:          Type,
	Name:        "IMAP",
	Description: "Any IMAP mailbox (BT Internet by default)",
	ConfigKeys: []domain.ConfigKey{
		{Key: "imap_server", Label: "Server", Default: DefaultServer},
		{Key: "port", Label: "Port", Default: strconv.Itoa(DefaultPort)},
		{Key: "username", Label: "Username", Required: true},
		{Key: "password", Label: "Password", Required: true, Secret: true},
		{Key: "mailbox", Label: "Mailbox", Default: DefaultMailbox},
		{Key: "tls", Label: "Use TLS", Default: "true"},
		{Key: "id_prefix", Label: "Message ID prefix", Default: DefaultPrefix},
	},
}

// mailClient is the subset of *client.Client used by the source.
type mailClient interface {
	Login(username, password string) error
	Select(name string, readOnly bool) (*goimap.MailboxStatus, error)
	Fetch(seqset *goimap.SeqSet, items []goimap.FetchItem, ch chan *goimap.Message) error
	Noop() error
	Logout() error
}

// Dialer opens a connection to addr.
type Dialer func(addr string, useTLS bool) (mailClient, error)

func defaultDialer(addr string, useTLS bool) (mailClient, error) {
	if useTLS {
		return client.DialTLS(addr, nil)
	}
	return client.Dial(addr)
}

// Source fetches messages over IMAP.
type Source struct {
	connectors.StateMachine

	id   string
	cfg  *Config
	dial Dialer

	mu sync.Mutex
	c  mailClient
}

// New creates an IMAP source.
func New(def domain.SourceDefinition) (*Source, error) {
	cfg, err := ParseConfig(def)
	if err != nil {
		return nil, err
	}
	return &Source{id: def.ID, cfg: cfg, dial: defaultDialer}, nil
}

// Build is the SourceBuilder for IMAP sources.
func Build(_ context.Context, def domain.SourceDefinition) (driven.MessageSource, error) {
	return New(def)
}

// ID returns the source ID.
func (s *Source) ID() string { return s.id }

// Type returns the source type.
func (s *Source) Type() string { return Type }

// Connect dials the server and logs in.
func (s *Source) Connect(ctx context.Context) bool {
	return s.StateMachine.Connect(ctx, func(context.Context) error {
		c, err := s.dial(s.cfg.Addr(), s.cfg.TLS)
		if err != nil {
			return fmt.Errorf("connecting to %s: %w", s.cfg.Addr(), err)
		}
		if err := c.Login(s.cfg.Username, s.cfg.Password); err != nil {
			_ = c.Logout() //nolint:errcheck // best effort after failed login
			return fmt.Errorf("login failed: %w", err)
		}

		s.mu.Lock()
		s.c = c
		s.mu.Unlock()
		logger.Info("IMAP source %s connected to %s", s.id, s.cfg.Addr())
		return nil
	})
}

// Disconnect logs out.
func (s *Source) Disconnect(ctx context.Context) bool {
	return s.StateMachine.Disconnect(ctx, func(context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.c == nil {
			return nil
		}
		err := s.c.Logout()
		s.c = nil
		return err
	})
}

// TestConnection issues a NOOP.
func (s *Source) TestConnection(ctx context.Context) bool {
	return s.StateMachine.Test(ctx, func(context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.c == nil {
			return errors.New("no session")
		}
		return s.c.Noop()
	})
}

// FetchMessages returns the most recent limit messages, newest first.
func (s *Source) FetchMessages(ctx context.Context, limit int) ([]domain.Message, error) {
	if err := s.RequireConnected(); err != nil {
		return nil, err
	}
	if err := connectors.CheckLimit(limit); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return nil, domain.ErrNotConnected
	}

	mbox, err := s.c.Select(s.cfg.Mailbox, true)
	if err != nil {
		return nil, domain.NewSourceError(s.id, "select", err)
	}
	if mbox.Messages == 0 {
		return []domain.Message{}, nil
	}

	to := mbox.Messages
	from := uint32(1)
	if to > uint32(limit) {
		from = to - uint32(limit) + 1
	}
	seqset := new(goimap.SeqSet)
	seqset.AddRange(from, to)

	section := &goimap.BodySectionName{Peek: true}
	items := []goimap.FetchItem{goimap.FetchEnvelope, goimap.FetchUid, section.FetchItem()}

	ch := make(chan *goimap.Message, limit)
	done := make(chan error, 1)
	go func() {
		done <- s.c.Fetch(seqset, items, ch)
	}()

	type fetched struct {
		seq uint32
		msg domain.Message
	}
	var out []fetched
	for raw := range ch {
		msg, err := s.parse(raw, section)
		if err != nil {
			logger.Warn("IMAP source %s: skipping message %d: %v", s.id, raw.SeqNum, err)
			continue
		}
		out = append(out, fetched{seq: raw.SeqNum, msg: msg})
	}
	if err := <-done; err != nil {
		return nil, domain.NewSourceError(s.id, "fetch", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].seq > out[j].seq })
	msgs := make([]domain.Message, len(out))
	for i := range out {
		msgs[i] = out[i].msg
	}
	logger.Debug("IMAP source %s fetched %d messages", s.id, len(msgs))
	return msgs, nil
}

// Close logs out if still connected.
func (s *Source) Close() error {
	s.Disconnect(context.Background())
	return nil
}

func (s *Source) parse(raw *goimap.Message, section *goimap.BodySectionName) (domain.Message, error) {
	var (
		subject    string
		sender     string
		recipients []string
		ts         time.Time
	)
	if env := raw.Envelope; env != nil {
		subject = env.Subject
		ts = env.Date
		if len(env.From) > 0 {
			sender = env.From[0].Address()
		}
		for _, addr := range env.To {
			recipients = append(recipients, addr.Address())
		}
	}

	body := ""
	if r := raw.GetBody(section); r != nil {
		parsed, err := connectors.ParseMail(r)
		if err != nil {
			return domain.Message{}, err
		}
		body = parsed.Body
		if subject == "" {
			subject = parsed.Subject
		}
		if ts.IsZero() {
			ts = parsed.Date
		}
	}

	id := fmt.Sprintf("%s_%d", s.cfg.IDPrefix, raw.Uid)
	if raw.Uid == 0 {
		id = fmt.Sprintf("%s_seq%d", s.cfg.IDPrefix, raw.SeqNum)
	}
	return domain.NewMessage(id, subject, sender, recipients, ts, body, []string{s.cfg.Mailbox}, s.id), nil
}
