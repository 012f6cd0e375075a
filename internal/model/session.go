package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates live session states.
type SessionStatus string

const (
	SessionStatusPending  SessionStatus = "PENDING"
	SessionStatusActive   SessionStatus = "ACTIVE"
	SessionStatusArchived SessionStatus = "ARCHIVED"
)

// CanTransitionTo reports whether moving from s to next is legal.
// PENDING -> ACTIVE -> ARCHIVED, nothing leaves ARCHIVED.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	switch s {
	case SessionStatusPending:
		return next == SessionStatusActive
	case SessionStatusActive:
		return next == SessionStatusArchived
	default:
		return false
	}
}

// SessionMode controls when students see their score.
type SessionMode string

const (
	// SessionModeExam withholds scores from students until the session is archived.
	SessionModeExam SessionMode = "EXAM"
	// SessionModePractice shows the score right after submission.
	SessionModePractice SessionMode = "PRACTICE"
)

// Session is one live administration of a quiz.
type Session struct {
	ID               uuid.UUID     `json:"id"`
	QuizID           uuid.UUID     `json:"quiz_id"`
	TeacherID        string        `json:"teacher_id"`
	Title            string        `json:"title"`
	AccessCode       string        `json:"access_code"`
	Status           SessionStatus `json:"status"`
	Mode             SessionMode   `json:"mode"`
	ScheduledStart   *time.Time    `json:"scheduled_start,omitempty"`
	DurationMinutes  *int          `json:"duration_minutes,omitempty"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	EndedAt          *time.Time    `json:"ended_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	ParticipantCount int           `json:"participant_count"`
}

// ScoreVisible reports whether students may see their score right now.
func (s *Session) ScoreVisible() bool {
	return s.Mode != SessionModeExam || s.Status == SessionStatusArchived
}

// DeadlineFor returns when an attempt created at joinedAt runs out of time.
// The clock starts at the later of the join and the session activation.
// ok is false when the session has no duration or has not started yet.
func (s *Session) DeadlineFor(joinedAt time.Time) (deadline time.Time, ok bool) {
	if s.DurationMinutes == nil || *s.DurationMinutes <= 0 || s.StartedAt == nil {
		return time.Time{}, false
	}
	start := joinedAt
	if s.StartedAt.After(start) {
		start = *s.StartedAt
	}
	return start.Add(time.Duration(*s.DurationMinutes) * time.Minute), true
}

// PublicSession is what a student sees before and while taking a session.
type PublicSession struct {
	ID              uuid.UUID     `json:"id"`
	Title           string        `json:"title"`
	Status          SessionStatus `json:"status"`
	Mode            SessionMode   `json:"mode"`
	ScheduledStart  *time.Time    `json:"scheduled_start,omitempty"`
	DurationMinutes *int          `json:"duration_minutes,omitempty"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
}

// Public returns the student-facing projection of the session.
func (s *Session) Public() PublicSession {
	return PublicSession{
		ID:              s.ID,
		Title:           s.Title,
		Status:          s.Status,
		Mode:            s.Mode,
		ScheduledStart:  s.ScheduledStart,
		DurationMinutes: s.DurationMinutes,
		StartedAt:       s.StartedAt,
	}
}

// CreateSessionRequest is the payload for making a quiz live.
type CreateSessionRequest struct {
	QuizID          string     `json:"quiz_id" binding:"required,uuid"`
	Title           string     `json:"title" binding:"omitempty,max=255"`
	Mode            string     `json:"mode" binding:"omitempty,oneof=EXAM PRACTICE"`
	ScheduledStart  *time.Time `json:"scheduled_start" binding:"omitempty"`
	DurationMinutes *int       `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	AccessCode      string     `json:"access_code" binding:"omitempty,accesscode"`
}

// JoinSessionRequest is the payload for a student joining by access code.
type JoinSessionRequest struct {
	AccessCode string `json:"access_code" binding:"required,len=6,alphanum"`
}
