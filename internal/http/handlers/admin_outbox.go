package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/eventhub/internal/config"
	"github.com/geocoder89/eventhub/internal/domain/outbox"
	"github.com/geocoder89/eventhub/internal/utils"
	"github.com/gin-gonic/gin"
)

// AdminOutboxRepo is the slice of OutboxRepo the dead-letter admin
// surface needs - inspecting and retrying messages the worker gave up
// on after exhausting their retry budget.
type AdminOutboxRepo interface {
	ListDeadLetters(ctx context.Context, limit int) ([]outbox.Message, error)
	Retry(ctx context.Context, id string) error
}

type AdminOutboxHandler struct {
	repo AdminOutboxRepo
}

func NewAdminOutboxHandler(repo AdminOutboxRepo) *AdminOutboxHandler {
	return &AdminOutboxHandler{repo: repo}
}

// GET /admin/outbox/dead-letters?limit=100
func (h *AdminOutboxHandler) ListDeadLetters(ctx *gin.Context) {
	limit := parseIntDefault(ctx.Query("limit"), 100)
	if limit < 1 || limit > 500 {
		RespondBadRequest(ctx, "invalid_query", "limit must be between 1 and 500")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	items, err := h.repo.ListDeadLetters(cctx, limit)
	if err != nil {
		RespondInternal(ctx, "Could not list dead letters")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"count": len(items),
		"items": items,
	})
}

// POST /admin/outbox/dead-letters/:id/retry
func (h *AdminOutboxHandler) Retry(ctx *gin.Context) {
	id := ctx.Param("id")
	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "invalid_id", "id must be a valid UUID")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	if err := h.repo.Retry(cctx, id); err != nil {
		if errors.Is(err, outbox.ErrNotFound) {
			RespondNotFound(ctx, "Dead letter not found")
			return
		}
		RespondInternal(ctx, "Could not retry message")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"id":     id,
		"status": "pending",
	})
}
