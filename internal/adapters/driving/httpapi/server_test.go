package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/homeqa/internal/adapters/driven/embedding/hashing"
	"github.com/custodia-labs/homeqa/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/homeqa/internal/core/domain"
	"github.com/custodia-labs/homeqa/internal/core/services"
	"github.com/custodia-labs/homeqa/internal/metrics"
)

type apiHarness struct {
	t      *testing.T
	server *Server
	orch   *services.SyncOrchestrator
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	m := metrics.New()
	index := services.NewVectorIndex(
		memory.NewVectorStore("messages"),
		hashing.NewEmbeddingService(hashing.Config{}),
		"messages", m,
	)
	factory := services.NewDefaultSourceFactory()
	orch := services.NewSyncOrchestrator(factory, memory.NewSourceStore(), memory.NewSyncHistoryStore(), index, m, services.SyncOptions{})
	t.Cleanup(func() { _ = orch.Close() })

	server, err := NewServer(Ports{
		Sync:        orch,
		Answers:     services.NewSynthesizer(index, 5, m),
		Scheduler:   services.NewScheduler("", orch),
		Metrics:     m,
		SourceTypes: factory.SupportedTypes(),
	}, Options{})
	require.NoError(t, err)
	return &apiHarness{t: t, server: server, orch: orch}
}

func (h *apiHarness) do(method, path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// createDemo registers the built-in demo corpus and returns its id.
func (h *apiHarness) createDemo(config map[string]string) string {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/connectors", CreateConnectorRequest{Type: "fixture", Name: "Family", Config: config})
	require.Equal(h.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[map[string]string](h.t, rec)["connector_id"]
}

func (h *apiHarness) syncAndWait(id string) SyncStatusResponse {
	h.t.Helper()
	require.Equal(h.t, http.StatusOK, h.do(http.MethodPost, "/connectors/"+id+"/connect", nil).Code)
	rec := h.do(http.MethodPost, "/connectors/"+id+"/sync", nil)
	require.Equal(h.t, http.StatusAccepted, rec.Code, rec.Body.String())

	var status SyncStatusResponse
	require.Eventually(h.t, func() bool {
		status = decode[SyncStatusResponse](h.t, h.do(http.MethodGet, "/connectors/"+id+"/sync-status", nil))
		return !status.IsSyncing
	}, 5*time.Second, 10*time.Millisecond)
	return status
}

func TestNewServer_RequiresServices(t *testing.T) {
	_, err := NewServer(Ports{}, Options{})
	assert.ErrorIs(t, err, ErrMissingService)
}

func TestHealth(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "memory:messages", body["vector_db"])
}

func TestRoot(t *testing.T) {
	rec := newAPIHarness(t).do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"chat":"/chat"`)
}

func TestConnectorTypes(t *testing.T) {
	rec := newAPIHarness(t).do(http.MethodGet, "/connectors/types", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	types := decode[[]ConnectorTypeResponse](t, rec)
	ids := make([]string, len(types))
	for i, ty := range types {
		ids[i] = ty.ID
	}
	assert.Contains(t, ids, "fixture")
	assert.Contains(t, ids, "imap")
}

func TestCreateConnector_Errors(t *testing.T) {
	h := newAPIHarness(t)

	tests := []struct {
		name string
		body any
		code int
	}{
		{"missing type", map[string]string{"name": "x"}, http.StatusBadRequest},
		{"unknown type", CreateConnectorRequest{Type: "carrier-pigeon"}, http.StatusBadRequest},
		{"missing required config", CreateConnectorRequest{Type: "imap", Config: map[string]string{}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(http.MethodPost, "/connectors", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestConnectorLifecycle(t *testing.T) {
	h := newAPIHarness(t)
	id := h.createDemo(nil)

	list := decode[[]ConnectorResponse](t, h.do(http.MethodGet, "/connectors", nil))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, "disconnected", list[0].Status)

	rec := h.do(http.MethodPost, "/connectors/"+id+"/sync", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "sync requires a connection")

	status := h.syncAndWait(id)
	assert.Equal(t, 100, status.Progress)
	assert.Equal(t, 2, status.MessagesProcessed)
	assert.Equal(t, 2, status.TotalMessages)
	assert.Contains(t, status.StatusMessage, "Added 2 new messages")
	assert.NotNil(t, status.LastSync)

	list = decode[[]ConnectorResponse](t, h.do(http.MethodGet, "/connectors", nil))
	assert.Equal(t, "connected", list[0].Status)
	assert.Equal(t, 2, list[0].MessageCount)

	runs := decode[[]domain.SyncRun](t, h.do(http.MethodGet, "/connectors/"+id+"/history", nil))
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Success)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/connectors/"+id+"/history?limit=x", nil).Code)

	assert.Equal(t, http.StatusOK, h.do(http.MethodPost, "/connectors/"+id+"/disconnect", nil).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodDelete, "/connectors/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, "/connectors/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/connectors/"+id+"/sync-status", nil).Code)
}

func TestConnect_Failure(t *testing.T) {
	h := newAPIHarness(t)
	id := h.createDemo(map[string]string{"fail_connect": "true"})

	rec := h.do(http.MethodPost, "/connectors/"+id+"/connect", nil)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Message, "simulated")

	list := decode[[]ConnectorResponse](t, h.do(http.MethodGet, "/connectors", nil))
	assert.Equal(t, "error", list[0].Status)
	assert.NotEmpty(t, list[0].ErrorMessage)
}

func TestConnect_UnknownSource(t *testing.T) {
	rec := newAPIHarness(t).do(http.MethodPost, "/connectors/missing/connect", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatAndSearch(t *testing.T) {
	h := newAPIHarness(t)
	h.syncAndWait(h.createDemo(nil))

	rec := h.do(http.MethodPost, "/chat", ChatRequest{Message: "Tell me about the birthday party"})
	require.Equal(t, http.StatusOK, rec.Code)
	chat := decode[ChatResponse](t, rec)
	assert.Equal(t, domain.IntentEvent, chat.Intent)
	assert.Contains(t, chat.Response, "Riverside Park")
	require.NotEmpty(t, chat.Sources)
	assert.Equal(t, "sarah.jones@gmail.com", chat.Sources[0].Metadata[domain.MetaSender])
	assert.Contains(t, rec.Body.String(), `"relevance_score"`)

	rec = h.do(http.MethodPost, "/search", SearchRequest{Query: "football boots", Limit: 1})
	require.Equal(t, http.StatusOK, rec.Code)
	search := decode[SearchResponse](t, rec)
	assert.Equal(t, 1, search.TotalResults)
	assert.Equal(t, "Football Practice - This Weekend", search.Results[0].Metadata[domain.MetaSubject])

	rec = h.do(http.MethodPost, "/search", SearchRequest{Query: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat_EmptyIndexFallsBack(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(http.MethodPost, "/chat", ChatRequest{Message: "any football this weekend?"})

	require.Equal(t, http.StatusOK, rec.Code)
	chat := decode[ChatResponse](t, rec)
	assert.Equal(t, services.FallbackResponse("any football this weekend?"), chat.Response)
	assert.Empty(t, chat.Sources)
}

func TestChat_BadBody(t *testing.T) {
	h := newAPIHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsAndMetrics(t *testing.T) {
	h := newAPIHarness(t)
	h.syncAndWait(h.createDemo(nil))

	rec := h.do(http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	vdb := body["vector_database"].(map[string]any)
	assert.EqualValues(t, 2, vdb["total_documents"])
	connectors := body["connectors"].(map[string]any)
	assert.EqualValues(t, 1, connectors["connected_connectors"])
	assert.Contains(t, body, "scheduler")

	rec = h.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "homeqa_")
}

func TestSchedulerRun(t *testing.T) {
	h := newAPIHarness(t)
	id := h.createDemo(nil)
	require.Equal(t, http.StatusOK, h.do(http.MethodPost, "/connectors/"+id+"/connect", nil).Code)

	rec := h.do(http.MethodPost, "/scheduler/run", nil)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Eventually(t, func() bool {
		p, err := h.orch.GetProgress(id)
		return err == nil && p.Percent == 100
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{domain.Validationf("bad"), http.StatusBadRequest},
		{domain.ErrUnsupportedType, http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrAlreadySyncing, http.StatusConflict},
		{domain.ErrNotConnected, http.StatusConflict},
		{domain.ErrAlreadyExists, http.StatusConflict},
		{domain.ErrBackendUnavailable, http.StatusServiceUnavailable},
		{domain.NewSourceError("s", "fetch", errors.New("x")), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		code, _ := statusFor(tt.err)
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}
