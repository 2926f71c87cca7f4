package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pollboard/internal/models"
	"pollboard/internal/repository"
	"pollboard/internal/settlement"
)

// SettlementHandler is the administrative trigger surface for the
// settlement engine.
type SettlementHandler struct {
	Repo    repository.Repository
	Driver  *settlement.Driver
	Tracker *settlement.Tracker
	Reader  *settlement.Reader
	Logger  *zap.Logger
}

func (h *SettlementHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v2/polls/:id/settlement")
	group.POST("", h.settle)
	group.POST("/resume", h.resume)
	group.GET("/progress", h.progress)
	group.GET("/logs", h.logs)
	group.GET("/options", h.options)
	group.GET("/players", h.players)
}

type settleRequest struct {
	// Optional explicit draw; when empty the poll's stored set (or the
	// auto-detect fallback) is used.
	WinningOptionIDs []string `json:"winning_option_ids"`
	// Budget in milliseconds for this call; default 30000.
	TimeoutMs int `json:"timeout_ms"`
}

// @Summary Trigger betting poll settlement
// @Tags settlement
// @Param id path string true "poll id"
// @Success 200 {object} map[string]any
// @Router /api/v2/polls/{id}/settlement [post]
func (h *SettlementHandler) settle(c *gin.Context) {
	pollID := strings.TrimSpace(c.Param("id"))
	if pollID == "" {
		Error(c, http.StatusBadRequest, "poll id required", nil)
		return
	}
	var req settleRequest
	// Empty body is fine for a plain trigger.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			Error(c, http.StatusBadRequest, "invalid body", nil)
			return
		}
	}
	ctx := c.Request.Context()
	if len(req.WinningOptionIDs) > 0 {
		if err := h.Repo.SetPollWinningOptions(ctx, pollID, req.WinningOptionIDs); err != nil {
			Error(c, http.StatusInternalServerError, err.Error(), nil)
			return
		}
	}
	result, err := h.Driver.Resume(ctx, pollID, settlement.ResumeOptions{
		Budget:         time.Duration(req.TimeoutMs) * time.Millisecond,
		SettlementType: models.SettlementTypeManual,
	})
	if err != nil {
		h.fail(c, pollID, err)
		return
	}
	Ok(c, result, nil)
}

// @Summary Resume an in-progress settlement
// @Tags settlement
// @Param id path string true "poll id"
// @Success 200 {object} map[string]any
// @Router /api/v2/polls/{id}/settlement/resume [post]
func (h *SettlementHandler) resume(c *gin.Context) {
	pollID := strings.TrimSpace(c.Param("id"))
	if pollID == "" {
		Error(c, http.StatusBadRequest, "poll id required", nil)
		return
	}
	budget := time.Duration(0)
	if raw := strings.TrimSpace(c.Query("timeout_ms")); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			budget = time.Duration(ms) * time.Millisecond
		}
	}
	result, err := h.Driver.Resume(c.Request.Context(), pollID, settlement.ResumeOptions{
		Budget:         budget,
		SettlementType: models.SettlementTypeManual,
	})
	if err != nil {
		h.fail(c, pollID, err)
		return
	}
	Ok(c, result, nil)
}

// @Summary Settlement progress for a poll
// @Tags settlement
// @Param id path string true "poll id"
// @Success 200 {object} map[string]any
// @Router /api/v2/polls/{id}/settlement/progress [get]
func (h *SettlementHandler) progress(c *gin.Context) {
	pollID := strings.TrimSpace(c.Param("id"))
	progress, err := h.Tracker.Progress(c.Request.Context(), pollID)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, progress, nil)
}

// @Summary Settlement log rows for a poll
// @Tags settlement
// @Param id path string true "poll id"
// @Success 200 {object} map[string]any
// @Router /api/v2/polls/{id}/settlement/logs [get]
func (h *SettlementHandler) logs(c *gin.Context) {
	pollID := strings.TrimSpace(c.Param("id"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	var status *string
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status = &raw
	}
	items, err := h.Repo.ListSettlementLogs(c.Request.Context(), pollID, repository.ListSettlementLogsParams{
		Limit:  limit,
		Offset: offset,
		Status: status,
	})
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"count": len(items)})
}

// @Summary Per-option wager aggregates
// @Tags settlement
// @Param id path string true "poll id"
// @Success 200 {object} map[string]any
// @Router /api/v2/polls/{id}/settlement/options [get]
func (h *SettlementHandler) options(c *gin.Context) {
	pollID := strings.TrimSpace(c.Param("id"))
	if _, err := h.Reader.PollForSettlement(c.Request.Context(), pollID); err != nil {
		h.fail(c, pollID, err)
		return
	}
	rows, err := h.Reader.OptionAggregates(c.Request.Context(), pollID)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, rows, map[string]any{"count": len(rows)})
}

// @Summary Per-player wager aggregates
// @Tags settlement
// @Param id path string true "poll id"
// @Success 200 {object} map[string]any
// @Router /api/v2/polls/{id}/settlement/players [get]
func (h *SettlementHandler) players(c *gin.Context) {
	pollID := strings.TrimSpace(c.Param("id"))
	if _, err := h.Reader.PollForSettlement(c.Request.Context(), pollID); err != nil {
		h.fail(c, pollID, err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	asc := strings.EqualFold(c.Query("order"), "asc")
	rows, err := h.Reader.PlayerAggregates(c.Request.Context(), pollID, repository.ListPlayerAggregatesParams{
		Limit:   limit,
		Offset:  offset,
		OrderBy: c.DefaultQuery("sort", "amount"),
		Asc:     boolPtr(asc),
	})
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, rows, map[string]any{"count": len(rows)})
}

func (h *SettlementHandler) fail(c *gin.Context, pollID string, err error) {
	switch {
	case errors.Is(err, settlement.ErrInvalidPoll):
		Error(c, http.StatusNotFound, "poll not found", nil)
	case errors.Is(err, settlement.ErrNotBettingMode):
		Error(c, http.StatusBadRequest, "poll is not betting mode", nil)
	default:
		if h.Logger != nil {
			h.Logger.Warn("settlement request failed",
				zap.String("poll_id", pollID), zap.Error(err))
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
	}
}

func boolPtr(v bool) *bool {
	return &v
}
