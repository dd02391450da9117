// Package api is the thin HTTP boundary over the scheduler and store. Every
// trigger returns a job id immediately; failure detail is retrievable via
// the job endpoint, never only via logs.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"painscope/internal/fault"
	"painscope/internal/model"
	"painscope/internal/reddit"
	"painscope/internal/storage"
	"painscope/worker"
)

const communityCacheTTL = 24 * time.Hour

type Handler struct {
	store  *storage.Store
	side   *storage.RedisStore
	sched  *worker.Scheduler
	source *reddit.Client
}

func NewHandler(store *storage.Store, side *storage.RedisStore, sched *worker.Scheduler, source *reddit.Client) *Handler {
	return &Handler{store: store, side: side, sched: sched, source: source}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "painscope"})
	})
	api := r.Group("/api")
	{
		api.POST("/scrape/reddit", h.TriggerIngest)
		api.POST("/process/sentiment", h.TriggerSentiment)
		api.POST("/extract/pain-points", h.TriggerExtraction)
		api.GET("/pain-points", h.ListPainPoints)
		api.GET("/stats", h.GetStats)
		api.GET("/jobs/:id", h.GetJob)
		api.GET("/communities/:name/metadata", h.CommunityMetadata)
	}
}

// bindStrict decodes the request body rejecting unknown fields, so loosely
// typed trigger parameters never pass through silently. An empty body leaves
// out at its zero value.
func bindStrict(c *gin.Context, out any) error {
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil && err != io.EOF {
		return err
	}
	return nil
}

type ingestRequest struct {
	Community       string   `json:"community"`
	SortMode        string   `json:"sort_mode"`
	Keywords        []string `json:"keywords"`
	Limit           int      `json:"limit"`
	TimeWindow      string   `json:"time_window"`
	IncludeComments bool     `json:"include_comments"`
	CommentsPerPost int      `json:"comments_per_post"`
	MinCommentScore int      `json:"min_comment_score"`
}

// TriggerIngest starts an ingest job for one community.
func (h *Handler) TriggerIngest(c *gin.Context) {
	var req ingestRequest
	if err := bindStrict(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	sort, err := model.ParseSortMode(req.SortMode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	window, err := model.ParseTimeWindow(req.TimeWindow)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Community == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "community is required"})
		return
	}
	job, err := h.sched.TriggerIngest(worker.IngestParams{
		Community:       req.Community,
		SortMode:        sort,
		Keywords:        req.Keywords,
		Limit:           req.Limit,
		TimeWindow:      window,
		IncludeComments: req.IncludeComments,
		CommentsPerPost: req.CommentsPerPost,
		MinCommentScore: req.MinCommentScore,
	})
	h.respondTrigger(c, job, err)
}

type limitRequest struct {
	Limit int `json:"limit"`
}

// TriggerSentiment starts a sentiment pass.
func (h *Handler) TriggerSentiment(c *gin.Context) {
	var req limitRequest
	if err := bindStrict(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	job, err := h.sched.TriggerSentiment(req.Limit)
	h.respondTrigger(c, job, err)
}

// TriggerExtraction starts an extraction pass.
func (h *Handler) TriggerExtraction(c *gin.Context) {
	var req limitRequest
	if err := bindStrict(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	job, err := h.sched.TriggerExtraction(req.Limit)
	h.respondTrigger(c, job, err)
}

func (h *Handler) respondTrigger(c *gin.Context, job *model.Job, err error) {
	if errors.Is(err, fault.ErrJobRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "status": job.Status})
}

// ListPainPoints returns one filtered page of pain points.
func (h *Handler) ListPainPoints(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))
	minScore, _ := strconv.Atoi(c.DefaultQuery("min_score", "0"))

	filter := storage.PainPointFilter{
		Category: c.Query("category"),
		Severity: c.Query("severity"),
		MinScore: minScore,
	}
	if filter.Category != "" && !model.ValidCategory(filter.Category) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category"})
		return
	}
	if filter.Severity != "" && !model.ValidSeverity(filter.Severity) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown severity"})
		return
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		filter.Since = t
	}

	points, err := h.store.ListPainPoints(c.Request.Context(), filter, page, perPage)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pain_points": points,
		"count":       len(points),
		"page":        page,
	})
}

// GetStats returns aggregate counts by category and severity.
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetJob returns one job's audit record.
func (h *Handler) GetJob(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	job, err := h.store.GetJob(c.Request.Context(), uint(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// CommunityMetadata returns community details, served from the redis cache
// when fresh.
func (h *Handler) CommunityMetadata(c *gin.Context) {
	name := c.Param("name")
	ctx := c.Request.Context()

	if h.side != nil {
		if md, err := h.side.CommunityMetadata(ctx, name); err == nil && md != nil {
			c.JSON(http.StatusOK, md)
			return
		}
	}

	md, err := h.source.CommunityMetadata(ctx, name)
	if err != nil {
		switch {
		case fault.IsNotFound(err):
			c.JSON(http.StatusNotFound, gin.H{"error": "community not found"})
		case fault.IsAuth(err):
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		}
		return
	}
	if h.side != nil {
		_ = h.side.SetCommunityMetadata(ctx, md, communityCacheTTL)
	}
	c.JSON(http.StatusOK, md)
}
