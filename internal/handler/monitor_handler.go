package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/examroom/internal/middleware"
	"github.com/stemsi/examroom/internal/realtime"
	"github.com/stemsi/examroom/internal/response"
	"github.com/stemsi/examroom/internal/service"
)

const keepAliveInterval = 30 * time.Second

// sseEventNames maps realtime event types to the SSE event names the monitor UI listens for.
var sseEventNames = map[realtime.EventType]string{
	realtime.EventAttemptJoined:    "joined",
	realtime.EventAttemptHeartbeat: "heartbeat",
	realtime.EventAttemptSubmitted: "submitted",
	realtime.EventSessionStatus:    "status",
}

// MonitorHandler streams a session's presence to its teacher over SSE.
type MonitorHandler struct {
	presenceService PresenceService
	keepAlive       time.Duration
	log             zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(presenceService PresenceService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		presenceService: presenceService,
		keepAlive:       keepAliveInterval,
		log:             log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorSessionSSE godoc
// GET /api/v1/teacher/sessions/:id/monitor
// Sends a "snapshot" event with everyone already joined, then live events.
func (h *MonitorHandler) MonitorSessionSSE(c *gin.Context) {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	reqCtx := c.Request.Context()

	// Subscribe before reading the snapshot so no join falls between the two.
	updates, err := h.presenceService.Watch(reqCtx, sessionID, caller.ID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	students, err := h.presenceService.Snapshot(reqCtx, sessionID, caller.ID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	if students == nil {
		students = []service.PresenceEntry{}
	}
	// A join that raced the snapshot is already listed there.
	listed := make(map[string]struct{}, len(students))
	for _, st := range students {
		listed[st.AttemptID] = struct{}{}
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.SSEvent("snapshot", gin.H{"session_id": sessionID, "students": students})
	c.Writer.Flush()

	h.log.Info().Str("session_id", sessionID.String()).Msg("Teacher attached to live monitor")

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("session_id", sessionID.String()).Msg("Teacher detached from live monitor")
			return

		case upd, ok := <-updates:
			if !ok {
				return
			}
			name, known := sseEventNames[upd.Type]
			if !known {
				continue
			}
			if upd.Type == realtime.EventAttemptJoined {
				if _, dup := listed[joinedAttemptID(upd)]; dup {
					continue
				}
			}
			c.SSEvent(name, upd)
			c.Writer.Flush()

		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			c.Writer.Flush()
		}
	}
}

func joinedAttemptID(upd service.PresenceUpdate) string {
	if upd.AttemptID != "" {
		return upd.AttemptID
	}
	if upd.Entry != nil {
		return upd.Entry.AttemptID
	}
	return ""
}
