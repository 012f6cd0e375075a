package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examroom/internal/model"
)

const sessionColumns = `s.id, s.quiz_id, s.teacher_id, s.title, s.access_code, s.status, s.mode,
	s.scheduled_start, s.duration_minutes, s.started_at, s.ended_at, s.created_at,
	(SELECT COUNT(*) FROM exam_attempts a WHERE a.session_id = s.id)`

// SessionRepository handles live session data access.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func scanSession(row pgx.Row) (*model.Session, error) {
	s := &model.Session{}
	err := row.Scan(&s.ID, &s.QuizID, &s.TeacherID, &s.Title, &s.AccessCode, &s.Status, &s.Mode,
		&s.ScheduledStart, &s.DurationMinutes, &s.StartedAt, &s.EndedAt, &s.CreatedAt, &s.ParticipantCount)
	if err != nil {
		return nil, translate(err)
	}
	return s, nil
}

// Create inserts a session. A live session already holding the same access code
// violates exam_sessions_live_code_idx and surfaces as ErrConflict.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (quiz_id, teacher_id, title, access_code, status, mode,
		                            scheduled_start, duration_minutes, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at`,
		s.QuizID, s.TeacherID, s.Title, s.AccessCode, s.Status, s.Mode,
		s.ScheduledStart, s.DurationMinutes, s.StartedAt,
	).Scan(&s.ID, &s.CreatedAt)
	return translate(err)
}

// GetByID retrieves a session by its UUID.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions s WHERE s.id = $1`, id))
}

// FindByAccessCode returns the live session holding code, or the most recent
// archived one if no live session uses it anymore.
func (r *SessionRepository) FindByAccessCode(ctx context.Context, code string) (*model.Session, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM exam_sessions s
		 WHERE s.access_code = $1
		 ORDER BY (s.status <> 'ARCHIVED') DESC, s.created_at DESC
		 LIMIT 1`, code))
}

// ListByTeacher returns all sessions created by a teacher, newest first.
func (r *SessionRepository) ListByTeacher(ctx context.Context, teacherID string) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions s
		 WHERE s.teacher_id = $1
		 ORDER BY s.created_at DESC`, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// Transition moves a session from one status to another in a single conditional
// update and stamps started_at or ended_at. ErrNotFound means no row was in
// the expected source status (or the session does not exist).
func (r *SessionRepository) Transition(ctx context.Context, id uuid.UUID, from, to model.SessionStatus, at time.Time) (*model.Session, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`WITH updated AS (
			UPDATE exam_sessions
			SET status = $3::text,
			    started_at = CASE WHEN $3::text = 'ACTIVE' THEN $4::timestamptz ELSE started_at END,
			    ended_at = CASE WHEN $3::text = 'ARCHIVED' THEN $4::timestamptz ELSE ended_at END
			WHERE id = $1 AND status = $2::text
			RETURNING *
		)
		SELECT `+sessionColumns+` FROM updated s`,
		id, string(from), string(to), at))
}

// Delete removes a session; its attempts go with it through ON DELETE CASCADE.
func (r *SessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM exam_sessions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDueForStart returns PENDING sessions whose scheduled start is at or before now.
func (r *SessionRepository) ListDueForStart(ctx context.Context, now time.Time) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions s
		 WHERE s.status = 'PENDING' AND s.scheduled_start IS NOT NULL AND s.scheduled_start <= $1
		 ORDER BY s.scheduled_start`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}
