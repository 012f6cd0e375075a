package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/examroom/internal/middleware"
	"github.com/stemsi/examroom/internal/model"
	"github.com/stemsi/examroom/internal/realtime"
	"github.com/stemsi/examroom/internal/response"
	ws "github.com/stemsi/examroom/internal/websocket"
)

// wsActionTimeout bounds one autosave or submit issued over the socket.
const wsActionTimeout = 10 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams one attempt over a WebSocket: the student pushes
// autosaves and the final submit, the server pushes session status changes
// and deadline auto-submits.
type WSHandler struct {
	attemptService AttemptService
	events         realtime.Subscriber
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. events may be nil, in which case
// nothing is pushed to the student.
func NewWSHandler(attemptService AttemptService, events realtime.Subscriber, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		events:         events,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/attempts/:id/stream
func (h *WSHandler) AttemptStream(c *gin.Context) {
	caller, ok := middleware.GetIdentity(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// Ownership is checked before the upgrade so failures get a normal HTTP error.
	view, err := h.attemptService.GetAttempt(c.Request.Context(), attemptID, caller.ID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.Wrap(raw)
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	// The read below only returns once the socket closes, so shutdown closes it.
	stopClose := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stopClose()

	wsLog := h.log.With().
		Str("student_id", caller.ID).
		Str("attempt_id", attemptID.String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	if h.events != nil {
		sub, err := h.events.Subscribe(ctx, view.Session.ID)
		if err != nil {
			wsLog.Warn().Err(err).Msg("Session events unavailable")
		} else {
			defer sub.Close()
			go h.forwardEvents(conn, sub, attemptID)
		}
	}

	for {
		req, err := conn.ReadRequest()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch req.Action {
		case ws.ActionAutosave:
			h.handleAutosave(ctx, conn, attemptID, caller.ID, req.Answers)
		case ws.ActionSubmit:
			h.handleSubmit(ctx, conn, wsLog, attemptID, caller.ID, req.Answers)
		case ws.ActionPing:
			_ = conn.WriteTyped(ws.NoticeResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(req.Action)).Msg("Unknown action")
			_ = conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(req.Action))
		}
	}
}

func (h *WSHandler) handleAutosave(ctx context.Context, conn *ws.Conn, attemptID uuid.UUID, callerID string, answers model.Answers) {
	if answers == nil {
		_ = conn.WriteError(string(response.ErrInvalidPayload), "answers is required")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, wsActionTimeout)
	defer cancel()

	savedAt, err := h.attemptService.SaveDraft(ctx, attemptID, callerID, answers)
	if err != nil {
		h.writeError(conn, err)
		return
	}
	_ = conn.WriteTyped(ws.SavedResponse{Event: ws.EventSaved, SavedAt: savedAt})
}

func (h *WSHandler) handleSubmit(ctx context.Context, conn *ws.Conn, wsLog zerolog.Logger, attemptID uuid.UUID, callerID string, answers model.Answers) {
	if answers == nil {
		answers = model.Answers{}
	}

	ctx, cancel := context.WithTimeout(ctx, wsActionTimeout)
	defer cancel()

	sub, err := h.attemptService.SubmitAttempt(ctx, attemptID, callerID, answers)
	if err != nil {
		h.writeError(conn, err)
		return
	}

	wsLog.Info().Bool("score_visible", sub.ScoreVisible).Msg("Attempt submitted over WebSocket")

	out := newSubmissionResponse(sub)
	_ = conn.WriteTyped(ws.SubmittedResponse{
		Event:        ws.EventSubmitted,
		SubmittedAt:  out.SubmittedAt,
		Score:        out.Score,
		ScoreVisible: out.ScoreVisible,
	})
}

func (h *WSHandler) writeError(conn *ws.Conn, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("WebSocket action failed")
	}
	_ = conn.WriteError(string(code), response.GetMessage(code))
}

// forwardEvents relays the session events a student cares about: status
// changes and the server finalizing this attempt.
func (h *WSHandler) forwardEvents(conn *ws.Conn, sub *realtime.Subscription, attemptID uuid.UUID) {
	for ev := range sub.C {
		switch {
		case ev.Type == realtime.EventSessionStatus:
			_ = conn.WriteTyped(ws.SessionStatusResponse{Event: ws.EventSessionStatus, Status: ev.Status})
		case ev.Type == realtime.EventAttemptSubmitted && ev.Auto && ev.AttemptID == attemptID.String():
			_ = conn.WriteTyped(ws.NoticeResponse{Event: ws.EventAutoSubmitted})
		}
	}
}
