package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"arbscan/internal/analyzer"
	"arbscan/internal/repository"
	"arbscan/internal/stake"
)

// OpportunityAnalyzer is the slice of the analyzer the handlers need.
type OpportunityAnalyzer interface {
	Analyze(ctx context.Context, opportunityID string) (analyzer.Verdict, error)
}

type OpportunityHandler struct {
	Repo      repository.Repository
	Analyzer  OpportunityAnalyzer
	Allocator stake.Allocator
	Logger    *zap.Logger

	// Now is overridable for tests.
	Now func() time.Time
}

func (h *OpportunityHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

func (h *OpportunityHandler) Register(r *gin.Engine, middleware ...gin.HandlerFunc) {
	group := r.Group("/api/v1/opportunities", middleware...)
	group.GET("", h.listOpportunities)
	group.GET("/:id", h.getOpportunity)
	group.POST("/:id/analyze", h.analyzeOpportunity)
	group.POST("/:id/allocate", h.allocateStakes)
	group.GET("/stats/summary", h.summary)
}

func (h *OpportunityHandler) listOpportunities(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	status := c.DefaultQuery("status", "detected")
	var statusFilter *string
	if status != "" {
		statusFilter = &status
	}
	params := repository.ListOpportunitiesParams{
		Status:    statusFilter,
		Sport:     strQueryPtr(c, "sport"),
		MinProfit: floatQueryPtr(c, "min_profit"),
		MaxRisk:   floatQueryPtr(c, "max_risk"),
		Unexpired: c.Query("include_expired") != "true",
		Now:       h.now(),
		Limit:     intQuery(c, "limit", 50),
		Offset:    intQuery(c, "offset", 0),
	}
	items, err := h.Repo.ListOpportunities(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountOpportunities(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(params.Limit, params.Offset, total))
}

func (h *OpportunityHandler) getOpportunity(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Repo.GetOpportunityByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "opportunity not found", nil)
		return
	}
	Ok(c, item, nil)
}

// analyzeOpportunity queues a model analysis for one opportunity. The call
// returns immediately; the verdict lands on the row when the analysis
// finishes.
func (h *OpportunityHandler) analyzeOpportunity(c *gin.Context) {
	if h.Repo == nil || h.Analyzer == nil {
		Error(c, http.StatusInternalServerError, "analyzer unavailable", nil)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	item, err := h.Repo.GetOpportunityByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "opportunity not found", nil)
		return
	}
	if !item.ExpiresAt.After(h.now()) {
		Error(c, http.StatusBadRequest, "opportunity expired", nil)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := h.Analyzer.Analyze(ctx, id); err != nil && h.Logger != nil {
			h.Logger.Warn("queued analysis failed",
				zap.String("opportunity_id", id),
				zap.Error(err),
			)
		}
	}()

	Ok(c, map[string]any{"id": id, "status": "analysis_queued"}, nil)
}

type allocateRequest struct {
	Bankroll float64 `json:"bankroll"`
}

func (h *OpportunityHandler) allocateStakes(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	item, err := h.Repo.GetOpportunityByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "opportunity not found", nil)
		return
	}

	var req allocateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			Error(c, http.StatusBadRequest, "invalid request body", nil)
			return
		}
	}
	bankroll := req.Bankroll
	if bankroll <= 0 {
		bankroll = h.Allocator.Config.DefaultBankroll
	}

	allocation, err := h.Allocator.Allocate(item, bankroll)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	Ok(c, allocation, map[string]any{"bankroll": bankroll})
}

func (h *OpportunityHandler) summary(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	days := intQuery(c, "days", 7)
	if days <= 0 || days > 90 {
		days = 7
	}
	now := h.now()
	summary, err := h.Repo.SummarizeOpportunities(c.Request.Context(), now.Add(-time.Duration(days)*24*time.Hour), now)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, summary, map[string]any{"days": days})
}
