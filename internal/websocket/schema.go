package websocket

import (
	"time"

	"github.com/stemsi/examroom/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// Request is any client message. Answers is the whole draft for autosave and
// the final answers for submit. An empty map is a cleared draft and must
// still be encoded; only a missing field is rejected.
type Request struct {
	Action  Action        `json:"action"`
	Answers model.Answers `json:"answers"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSaved     Event = "saved"
	EventSubmitted Event = "submitted"
	EventPong      Event = "pong"
	// EventSessionStatus tells the student the teacher started or ended the session.
	EventSessionStatus Event = "session_status"
	// EventAutoSubmitted tells the student the server finalized the attempt at the deadline.
	EventAutoSubmitted Event = "auto_submitted"
)

type SavedResponse struct {
	Event   Event     `json:"event"`
	SavedAt time.Time `json:"saved_at"`
}

// SubmittedResponse carries the score only when the session mode allows it.
type SubmittedResponse struct {
	Event        Event     `json:"event"`
	SubmittedAt  time.Time `json:"submitted_at"`
	Score        *int      `json:"score,omitempty"`
	ScoreVisible bool      `json:"score_visible"`
}

type SessionStatusResponse struct {
	Event  Event               `json:"event"`
	Status model.SessionStatus `json:"status"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

// NoticeResponse is an event without a payload (pong, auto_submitted).
type NoticeResponse struct {
	Event Event `json:"event"`
}
