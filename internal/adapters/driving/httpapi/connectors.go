package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/homeqa/internal/core/domain"
)

// CreateConnectorRequest registers a new source.
type CreateConnectorRequest struct {
	Type   string            `json:"type" binding:"required"`
	Name   string            `json:"name"`
	Config map[string]string `json:"config"`
}

// ConnectorResponse describes a registered source.
type ConnectorResponse struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	Name         string     `json:"name"`
	Status       string     `json:"status"`
	LastSync     *time.Time `json:"last_sync,omitempty"`
	MessageCount int        `json:"message_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// SyncStatusResponse is the latest progress snapshot of a source.
type SyncStatusResponse struct {
	ConnectorID       string     `json:"connector_id"`
	IsSyncing         bool       `json:"is_syncing"`
	Progress          int        `json:"progress"`
	StatusMessage     string     `json:"status_message"`
	MessagesProcessed int        `json:"messages_processed"`
	TotalMessages     int        `json:"total_messages"`
	LastSync          *time.Time `json:"last_sync,omitempty"`
	SyncDuration      float64    `json:"sync_duration"`
}

// ConnectorTypeResponse describes a supported source type.
type ConnectorTypeResponse struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	ConfigKeys  []ConfigKeyPayload `json:"config_keys"`
}

// ConfigKeyPayload describes one configuration field.
type ConfigKeyPayload struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Default     string `json:"default,omitempty"`
	Required    bool   `json:"required"`
	Secret      bool   `json:"secret"`
}

func toSyncStatus(id string, p domain.SyncProgress) SyncStatusResponse {
	return SyncStatusResponse{
		ConnectorID:       id,
		IsSyncing:         p.IsSyncing,
		Progress:          p.Percent,
		StatusMessage:     p.StatusMessage,
		MessagesProcessed: p.MessagesSeen,
		TotalMessages:     p.MessagesTotal,
		LastSync:          p.LastCompletedAt,
		SyncDuration:      p.DurationSeconds,
	}
}

func (s *Server) listConnectors(c *gin.Context) {
	sources := s.ports.Sync.ListSources(c.Request.Context())
	out := make([]ConnectorResponse, 0, len(sources))
	for _, src := range sources {
		resp := ConnectorResponse{
			ID:           src.SourceID,
			Type:         src.Type,
			Name:         src.Name,
			Status:       src.State.String(),
			ErrorMessage: src.LastError,
		}
		if p, err := s.ports.Sync.GetProgress(src.SourceID); err == nil {
			resp.LastSync = p.LastCompletedAt
			resp.MessageCount = p.MessagesTotal
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) connectorTypes(c *gin.Context) {
	out := make([]ConnectorTypeResponse, 0, len(s.ports.SourceTypes))
	for _, t := range s.ports.SourceTypes {
		keys := make([]ConfigKeyPayload, 0, len(t.ConfigKeys))
		for _, k := range t.ConfigKeys {
			keys = append(keys, ConfigKeyPayload(k))
		}
		out = append(out, ConnectorTypeResponse{ID: t.ID, Name: t.Name, Description: t.Description, ConfigKeys: keys})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createConnector(c *gin.Context) {
	var req CreateConnectorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.Validationf("invalid request body: %v", err))
		return
	}

	id, err := s.ports.Sync.RegisterSource(c.Request.Context(), req.Type, req.Name, req.Config)
	if err != nil {
		writeError(c, err)
		return
	}

	name := req.Name
	if name == "" {
		name = req.Type
	}
	c.JSON(http.StatusCreated, gin.H{
		"connector_id": id,
		"status":       "created",
		"message":      "Connector " + name + " created successfully",
	})
}

func (s *Server) connectConnector(c *gin.Context) {
	id := c.Param("id")
	ok, err := s.ports.Sync.Connect(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		reason := "connection failed"
		if src, err := s.ports.Sync.GetSource(c.Request.Context(), id); err == nil && src.LastError != "" {
			reason = src.LastError
		}
		c.AbortWithStatusJSON(http.StatusBadGateway, ErrorResponse{
			Error:   "connection_failed",
			Message: reason,
			Code:    http.StatusBadGateway,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "connected", "message": "Connector connected successfully"})
}

func (s *Server) disconnectConnector(c *gin.Context) {
	if _, err := s.ports.Sync.Disconnect(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "disconnected", "message": "Connector disconnected"})
}

func (s *Server) syncConnector(c *gin.Context) {
	if _, err := s.ports.Sync.StartSync(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "syncing", "message": "Sync started"})
}

func (s *Server) syncStatus(c *gin.Context) {
	id := c.Param("id")
	p, err := s.ports.Sync.GetProgress(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSyncStatus(id, p))
}

func (s *Server) syncHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(c, domain.Validationf("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	runs, err := s.ports.Sync.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if runs == nil {
		runs = []domain.SyncRun{}
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Server) deleteConnector(c *gin.Context) {
	if err := s.ports.Sync.RemoveSource(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "message": "Connector deleted successfully"})
}
