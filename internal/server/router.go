package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/contribcast/backend/internal/contributions"
	"github.com/MarcoPoloResearchLab/contribcast/backend/internal/metrics"
)

const (
	defaultHeartbeatInterval = 25 * time.Second
	defaultResonanceDelta    = 1
	defaultMetricsPath       = "/metrics"
)

var (
	errMissingStore = errors.New("contribution store dependency required")
	errInvalidTags  = errors.New("tags must be a string or an array of strings")
)

type Dependencies struct {
	Store             *contributions.Store
	Logger            *zap.Logger
	Realtime          *RealtimeDispatcher
	Metrics           *metrics.Collector
	MetricsPath       string
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Store == nil {
		return nil, errMissingStore
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
		metricsPath := deps.MetricsPath
		if metricsPath == "" {
			metricsPath = defaultMetricsPath
		}
		router.GET(metricsPath, gin.WrapH(deps.Metrics.Handler()))
	}

	handler := &httpHandler{
		store:     deps.Store,
		realtime:  realtime,
		logger:    logger,
		heartbeat: heartbeat,
	}

	router.GET("/contributions", handler.handleList)
	router.POST("/contributions", handler.handleCreate)
	router.GET("/contributions/stream", handler.handleStream)
	router.GET("/contributions/:id", handler.handleGet)
	router.POST("/contributions/:id/resonance", handler.handleResonance)
	router.GET("/contributions/:id/chain", handler.handleChain)
	router.GET("/contributions/:id/depth", handler.handleDepth)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Last-Event-ID"},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
	}
	return cors.New(cfg)
}

type httpHandler struct {
	store     *contributions.Store
	realtime  *RealtimeDispatcher
	logger    *zap.Logger
	heartbeat time.Duration
}

type listResponsePayload struct {
	Contributions []contributions.Contribution `json:"contributions"`
}

func (h *httpHandler) handleList(c *gin.Context) {
	var contributionType contributions.ContributionType
	if rawType := strings.TrimSpace(c.Query("type")); rawType != "" {
		parsed, err := contributions.ParseContributionType(rawType)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_type"})
			return
		}
		contributionType = parsed
	}

	ctx := c.Request.Context()
	projectID, hasProject := c.GetQuery("project")
	if !hasProject {
		c.JSON(http.StatusOK, listResponsePayload{Contributions: h.store.ListByType(ctx, contributionType)})
		return
	}

	matches := h.store.GetByProject(ctx, projectID)
	if contributionType != "" {
		filtered := make([]contributions.Contribution, 0, len(matches))
		for _, item := range matches {
			if item.Type == contributionType {
				filtered = append(filtered, item)
			}
		}
		matches = filtered
	}
	c.JSON(http.StatusOK, listResponsePayload{Contributions: matches})
}

func (h *httpHandler) handleGet(c *gin.Context) {
	contribution, ok := h.store.GetByID(c.Request.Context(), c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, contribution)
}

type createRequestPayload struct {
	Contributor          string          `json:"contributor"`
	ProjectID            string          `json:"projectId"`
	Type                 string          `json:"type"`
	Description          string          `json:"description"`
	ParentContributionID string          `json:"parentContributionId"`
	Tags                 json.RawMessage `json:"tags"`
}

// Tags arrive either as the form's comma-separated string or as an array.
func (p createRequestPayload) tags() ([]string, error) {
	raw := strings.TrimSpace(string(p.Tags))
	if raw == "" || raw == "null" {
		return []string{}, nil
	}
	var joined string
	if err := json.Unmarshal(p.Tags, &joined); err == nil {
		return contributions.ParseTags(joined), nil
	}
	var list []string
	if err := json.Unmarshal(p.Tags, &list); err != nil {
		return nil, errInvalidTags
	}
	return list, nil
}

func (h *httpHandler) handleCreate(c *gin.Context) {
	var request createRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	tags, err := request.tags()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	created, err := h.store.Create(c.Request.Context(), contributions.Draft{
		Contributor:          request.Contributor,
		ProjectID:            request.ProjectID,
		Type:                 contributions.ContributionType(request.Type),
		Description:          request.Description,
		ParentContributionID: request.ParentContributionID,
		Tags:                 tags,
	})
	if err != nil {
		var validationErr *contributions.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_contribution", "fields": validationErr.Fields})
			return
		}
		h.respondServiceError(c, "failed to create contribution", err)
		return
	}

	h.realtime.Publish(RealtimeMessage{
		EventType:       RealtimeEventContributionAdded,
		ProjectID:       created.ProjectID,
		ContributionIDs: []string{created.ID},
	})
	c.JSON(http.StatusCreated, created)
}

type resonanceRequestPayload struct {
	Delta *int `json:"delta"`
}

func (h *httpHandler) handleResonance(c *gin.Context) {
	var request resonanceRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	delta := defaultResonanceDelta
	if request.Delta != nil {
		delta = *request.Delta
	}

	updated, ok := h.store.UpdateResonance(c.Request.Context(), c.Param("id"), delta)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	h.realtime.Publish(RealtimeMessage{
		EventType:       RealtimeEventResonanceUpdated,
		ProjectID:       updated.ProjectID,
		ContributionIDs: []string{updated.ID},
	})
	c.JSON(http.StatusOK, updated)
}

type chainSummaryPayload struct {
	Total        int `json:"total"`
	MaxDepth     int `json:"max_depth"`
	Contributors int `json:"contributors"`
}

type chainResponsePayload struct {
	RootID       string                    `json:"root_id"`
	Nodes        []contributions.ChainNode `json:"nodes"`
	Summary      chainSummaryPayload       `json:"summary"`
	SkippedEdges int                       `json:"skipped_edges"`
}

func (h *httpHandler) handleChain(c *gin.Context) {
	chain := h.store.GetChain(c.Request.Context(), c.Param("id"))
	summary := chain.Summary()
	nodes := chain.Nodes
	if nodes == nil {
		nodes = []contributions.ChainNode{}
	}
	c.JSON(http.StatusOK, chainResponsePayload{
		RootID: chain.RootID,
		Nodes:  nodes,
		Summary: chainSummaryPayload{
			Total:        summary.Total,
			MaxDepth:     summary.MaxDepth,
			Contributors: summary.Contributors,
		},
		SkippedEdges: chain.SkippedEdges,
	})
}

func (h *httpHandler) handleDepth(c *gin.Context) {
	id := c.Param("id")
	depth, ok := h.store.AncestryDepth(c.Request.Context(), id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "depth": depth})
}

type streamEventPayload struct {
	ContributionIDs []string `json:"contributionIds"`
	ProjectID       string   `json:"projectId,omitempty"`
	Source          string   `json:"source"`
	Timestamp       string   `json:"timestamp"`
}

func (h *httpHandler) handleStream(c *gin.Context) {
	topic := RealtimeTopicAll
	if projectID := c.Query("project"); projectID != "" {
		topic = ProjectTopic(projectID)
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, topic)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent(realtimeEventHeartbeat, h.streamPayload(RealtimeMessage{Timestamp: time.Now().UTC()}))
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, h.streamPayload(message))
			return true
		case tick := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, h.streamPayload(RealtimeMessage{Timestamp: tick.UTC()}))
			return true
		}
	})
}

func (h *httpHandler) streamPayload(message RealtimeMessage) streamEventPayload {
	ids := message.ContributionIDs
	if ids == nil {
		ids = []string{}
	}
	return streamEventPayload{
		ContributionIDs: ids,
		ProjectID:       message.ProjectID,
		Source:          realtimeSourceBackend,
		Timestamp:       message.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func (h *httpHandler) respondServiceError(c *gin.Context, message string, err error) {
	code := "internal_error"
	var serviceErr *contributions.ServiceError
	if errors.As(err, &serviceErr) {
		code = serviceErr.Code()
	}
	h.logger.Error(message, zap.String("code", code), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": code})
}
