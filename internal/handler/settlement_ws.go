package handler

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"pollboard/internal/settlement"
)

// SettlementWSHandler streams settlement progress to the admin UI so a
// long-running bulk settle shows a live percentage instead of a spinner.
type SettlementWSHandler struct {
	Tracker *settlement.Tracker
	Logger  *zap.Logger
	// Poll interval for progress snapshots; default 1s.
	Interval time.Duration
}

func (h *SettlementWSHandler) Register(r *gin.Engine) {
	r.GET("/api/v2/polls/:id/settlement/ws", h.stream)
}

func (h *SettlementWSHandler) stream(c *gin.Context) {
	pollID := strings.TrimSpace(c.Param("id"))
	if pollID == "" {
		Error(c, 400, "poll id required", nil)
		return
	}
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ctx := c.Request.Context()
	interval := h.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := h.push(ctx, conn, pollID)
		if err != nil {
			if h.Logger != nil {
				h.Logger.Debug("progress stream write failed",
					zap.String("poll_id", pollID), zap.Error(err))
			}
			return
		}
		if done {
			conn.Close(websocket.StatusNormalClosure, "settled")
			return
		}
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "client gone")
			return
		case <-ticker.C:
		}
	}
}

func (h *SettlementWSHandler) push(ctx context.Context, conn *websocket.Conn, pollID string) (bool, error) {
	progress, err := h.Tracker.Progress(ctx, pollID)
	if err != nil {
		return false, err
	}
	payload, err := json.Marshal(progress)
	if err != nil {
		return false, err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, payload); err != nil {
		return false, err
	}
	return progress.IsFullySettled, nil
}
