package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/custodia-labs/homeqa/internal/connectors/google"
	"github.com/custodia-labs/homeqa/internal/core/domain"
)

type fakeAPI struct {
	profileErr error
	listErr    error
	messages   map[string]*gmail.Message
	order      []string
	listed     int
}

func (f *fakeAPI) Profile(context.Context) (string, error) {
	return "family@gmail.com", f.profileErr
}

func (f *fakeAPI) List(_ context.Context, _ *Config, limit int) ([]string, error) {
	f.listed = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.order) > limit {
		return f.order[:limit], nil
	}
	return f.order, nil
}

func (f *fakeAPI) Get(_ context.Context, id string) (*gmail.Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return nil, &googleapi.Error{Code: http.StatusNotFound}
	}
	return m, nil
}

func b64(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }

func gmailMessage(id, subject, body string, at time.Time, labels ...string) *gmail.Message {
	return &gmail.Message{
		Id:           id,
		LabelIds:     labels,
		InternalDate: at.UnixMilli(),
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: subject},
				{Name: "From", Value: "Coach Mike <coach.mike@sportsclub.com>"},
				{Name: "To", Value: "parent@example.com, other@example.com"},
			},
			Parts: []*gmail.MessagePart{
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64("<p>html</p>")}},
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64(body)}},
			},
		},
	}
}

func newTestSource(t *testing.T, fake *fakeAPI) *Source {
	t.Helper()
	src, err := New(domain.SourceDefinition{ID: "gm1", Type: Type, Config: map[string]string{
		"client_id": "id", "client_secret": "secret", "refresh_token": "refresh",
	}})
	require.NoError(t, err)
	src.limiter = google.NewRateLimiter(google.RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 100})
	src.newAPI = func(context.Context) (api, error) { return fake, nil }
	return src
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(domain.SourceDefinition{Config: map[string]string{
		"client_id": "id", "client_secret": "s", "refresh_token": "r",
		"label_ids": "INBOX, IMPORTANT,", "include_spam_trash": "true",
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"INBOX", "IMPORTANT"}, cfg.LabelIDs)
	assert.True(t, cfg.IncludeSpamTrash)

	_, err = ParseConfig(domain.SourceDefinition{Config: map[string]string{"client_id": "id"}})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), "client_secret, refresh_token")
}

func TestToMessage(t *testing.T) {
	at := time.Date(2024, 6, 4, 8, 0, 0, 0, time.UTC)
	raw := gmailMessage("abc", "Football Practice", "Sunday at 10am", at, "INBOX", "Sports")

	msg := ToMessage(raw, "gm1")

	assert.Equal(t, "gmail_abc", msg.ID)
	assert.Equal(t, "Football Practice", msg.Subject)
	assert.Equal(t, "coach.mike@sportsclub.com", msg.Sender)
	assert.Equal(t, []string{"parent@example.com", "other@example.com"}, msg.Recipients)
	assert.Equal(t, "Sunday at 10am", msg.Body)
	assert.True(t, at.Equal(msg.Timestamp))
	assert.Equal(t, []string{"INBOX", "Sports"}, msg.Labels)
	assert.Equal(t, "gm1", msg.SourceID)
}

func TestToMessage_HTMLFallback(t *testing.T) {
	raw := &gmail.Message{Id: "h", Snippet: "snippet", Payload: &gmail.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmail.MessagePart{
			{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64("<p>Pickup at <b>4pm</b> &amp; snacks</p>")}},
		},
	}}

	assert.Equal(t, "Pickup at 4pm & snacks", ToMessage(raw, "s").Body)
}

func TestToMessage_SnippetFallback(t *testing.T) {
	raw := &gmail.Message{Id: "x", Snippet: "just a snippet", Payload: &gmail.MessagePart{MimeType: "text/html"}}

	assert.Equal(t, "just a snippet", ToMessage(raw, "s").Body)
}

func TestFetchMessages(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	fake := &fakeAPI{
		order: []string{"a", "gone", "spam", "b"},
		messages: map[string]*gmail.Message{
			"a":    gmailMessage("a", "Older", "x", base),
			"b":    gmailMessage("b", "Newer", "y", base.Add(time.Hour)),
			"spam": gmailMessage("spam", "Win", "z", base, "SPAM"),
		},
	}
	src := newTestSource(t, fake)
	ctx := context.Background()
	require.True(t, src.Connect(ctx))

	msgs, err := src.FetchMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "gmail_b", msgs[0].ID)
	assert.Equal(t, "gmail_a", msgs[1].ID)
	assert.Equal(t, 10, fake.listed)
}

func TestFetchMessages_NotConnected(t *testing.T) {
	src := newTestSource(t, &fakeAPI{})

	_, err := src.FetchMessages(context.Background(), 5)

	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestConnect_BadCredentials(t *testing.T) {
	src := newTestSource(t, &fakeAPI{profileErr: &googleapi.Error{Code: http.StatusUnauthorized}})

	assert.False(t, src.Connect(context.Background()))
	assert.Equal(t, domain.StateError, src.State())
}

func TestFetchMessages_RateLimited(t *testing.T) {
	src := newTestSource(t, &fakeAPI{listErr: &googleapi.Error{Code: http.StatusTooManyRequests}})
	ctx := context.Background()
	require.True(t, src.Connect(ctx))

	_, err := src.FetchMessages(ctx, 5)

	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.ErrorIs(t, err, domain.ErrSourceFailure)
	assert.ErrorIs(t, err, google.ErrRateLimited)
	assert.False(t, src.limiter.Allow(), "backoff recorded")
}

func TestFetchMessages_ListError(t *testing.T) {
	src := newTestSource(t, &fakeAPI{listErr: errors.New("network down")})
	ctx := context.Background()
	require.True(t, src.Connect(ctx))

	_, err := src.FetchMessages(ctx, 5)

	var srcErr *domain.SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, "gm1", srcErr.SourceID)
	assert.Equal(t, "list", srcErr.Op)
}
