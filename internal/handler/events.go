package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"arbscan/internal/repository"
)

type EventHandler struct {
	Repo repository.Repository

	Now func() time.Time
}

func (h *EventHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

func (h *EventHandler) Register(r *gin.Engine, middleware ...gin.HandlerFunc) {
	group := r.Group("/api/v1/events", middleware...)
	group.GET("", h.listEvents)
}

func (h *EventHandler) listEvents(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := repository.ListEventsParams{
		Sport:  strQueryPtr(c, "sport"),
		Status: strQueryPtr(c, "status"),
		Limit:  intQuery(c, "limit", 50),
		Offset: intQuery(c, "offset", 0),
	}
	if c.Query("upcoming") == "true" {
		now := h.now()
		params.After = &now
	}
	items, err := h.Repo.ListEvents(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}
