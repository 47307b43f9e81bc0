package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"pkt.systems/pslog"

	apperrors "focusflow/backend/internal/errors"
	"focusflow/backend/internal/middleware"
	"focusflow/backend/internal/pomodoro"
	"focusflow/backend/internal/service"
)

const streamKeepAlive = 25 * time.Second

type PomodoroHandler struct {
	pomodoroService *service.PomodoroService
	now             func() time.Time
}

type versionRequest struct {
	BaseVersion int `json:"baseVersion"`
}

type updateSettingsRequest struct {
	BaseVersion             int `json:"baseVersion"`
	WorkMinutes             int `json:"workMinutes"`
	ShortBreakMinutes       int `json:"shortBreakMinutes"`
	LongBreakMinutes        int `json:"longBreakMinutes"`
	SessionsBeforeLongBreak int `json:"sessionsBeforeLongBreak"`
}

func NewPomodoroHandler(pomodoroService *service.PomodoroService) *PomodoroHandler {
	return &PomodoroHandler{pomodoroService: pomodoroService, now: pomodoroService.Now}
}

func (h *PomodoroHandler) GetState(c *gin.Context) {
	state, apiErr := h.pomodoroService.GetState(c.Request.Context(), middleware.UserID(c))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *PomodoroHandler) Start(c *gin.Context) {
	h.versioned(c, h.pomodoroService.Start)
}

func (h *PomodoroHandler) Pause(c *gin.Context) {
	h.versioned(c, h.pomodoroService.Pause)
}

func (h *PomodoroHandler) Reset(c *gin.Context) {
	h.versioned(c, h.pomodoroService.Reset)
}

func (h *PomodoroHandler) UpdateSettings(c *gin.Context) {
	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}
	if req.BaseVersion <= 0 {
		writeError(c, apperrors.BadRequest("invalid_base_version", "baseVersion is required"))
		return
	}

	state, apiErr := h.pomodoroService.UpdateSettings(c.Request.Context(), middleware.UserID(c), service.UpdateSettingsInput{
		BaseVersion: req.BaseVersion,
		Settings: pomodoro.Config{
			WorkMinutes:             req.WorkMinutes,
			ShortBreakMinutes:       req.ShortBreakMinutes,
			LongBreakMinutes:        req.LongBreakMinutes,
			SessionsBeforeLongBreak: req.SessionsBeforeLongBreak,
		},
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *PomodoroHandler) GetHistory(c *gin.Context) {
	limit := 0
	if rawLimit := c.Query("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil {
			writeError(c, apperrors.BadRequest("invalid_limit", "limit must be a number"))
			return
		}
		limit = parsed
	}

	sessions, apiErr := h.pomodoroService.GetHistory(c.Request.Context(), middleware.UserID(c), limit)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// GetStats uses the service clock's local day unless the client passes its
// UTC offset in minutes as tzOffset.
func (h *PomodoroHandler) GetStats(c *gin.Context) {
	now := h.now()
	if raw := c.Query("tzOffset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < -14*60 || offset > 14*60 {
			writeError(c, apperrors.BadRequest("invalid_tz_offset", "tzOffset must be minutes east of UTC"))
			return
		}
		now = now.In(time.FixedZone("client", offset*60))
	}

	stats, apiErr := h.pomodoroService.GetStats(c.Request.Context(), middleware.UserID(c), now)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// Events streams scheduler events as Server-Sent Events. The first event is
// the current state.
func (h *PomodoroHandler) Events(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.UserID(c)

	events, cancel, apiErr := h.pomodoroService.Subscribe(ctx, userID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	defer cancel()

	state, apiErr := h.pomodoroService.GetState(ctx, userID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	logger := pslog.Ctx(ctx).With("user_id", userID)
	logger.Debug("event stream opened")
	defer logger.Debug("event stream closed")

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("state", gin.H{"state": state})
	c.Writer.Flush()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{"serverTime": h.now().UTC()})
			return true
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(event.Type), h.pomodoroService.EventView(event))
			return true
		}
	})
}

func (h *PomodoroHandler) versioned(
	c *gin.Context,
	op func(ctx context.Context, userID string, baseVersion int) (*service.StateView, *apperrors.APIError),
) {
	var req versionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}
	if req.BaseVersion <= 0 {
		writeError(c, apperrors.BadRequest("invalid_base_version", "baseVersion is required"))
		return
	}

	state, apiErr := op(c.Request.Context(), middleware.UserID(c), req.BaseVersion)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}
