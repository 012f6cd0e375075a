package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examroom/internal/model"
)

const attemptColumns = `id, session_id, student_id, draft_answers, final_score, submitted_at, last_saved_at, created_at`

// AttemptRepository handles student attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	var raw []byte
	err := row.Scan(&a.ID, &a.SessionID, &a.StudentID, &raw, &a.FinalScore, &a.SubmittedAt, &a.LastSavedAt, &a.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	if err := decodeAnswers(raw, &a.DraftAnswers); err != nil {
		return nil, err
	}
	return a, nil
}

func encodeAnswers(answers model.Answers) (string, error) {
	if answers == nil {
		answers = model.Answers{}
	}
	b, err := json.Marshal(answers)
	if err != nil {
		return "", fmt.Errorf("marshal answers: %w", err)
	}
	return string(b), nil
}

func decodeAnswers(raw []byte, dst *model.Answers) error {
	*dst = model.Answers{}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal answers: %w", err)
	}
	return nil
}

// GetByID retrieves an attempt by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts WHERE id = $1`, id))
}

// GetBySessionAndStudent retrieves the attempt for a session-student pair.
func (r *AttemptRepository) GetBySessionAndStudent(ctx context.Context, sessionID uuid.UUID, studentID string) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM exam_attempts
		 WHERE session_id = $1 AND student_id = $2`, sessionID, studentID))
}

// Create inserts a new attempt with an empty draft. If the student already has
// an attempt for the session (a concurrent join), ErrConflict is returned.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	draft, err := encodeAnswers(a.DraftAnswers)
	if err != nil {
		return err
	}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO exam_attempts (session_id, student_id, draft_answers, last_saved_at, created_at)
		 VALUES ($1, $2, $3::jsonb, $4, $4)
		 ON CONFLICT (session_id, student_id) DO NOTHING
		 RETURNING id, created_at`,
		a.SessionID, a.StudentID, draft, a.CreatedAt,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		if translate(err) == ErrNotFound {
			return ErrConflict
		}
		return translate(err)
	}
	a.LastSavedAt = a.CreatedAt
	return nil
}

// SaveDraft replaces the draft of a not-yet-submitted attempt. It reports
// false when the attempt was already submitted (or does not exist), so a late
// autosave can never overwrite a final submission.
func (r *AttemptRepository) SaveDraft(ctx context.Context, id uuid.UUID, answers model.Answers, at time.Time) (bool, error) {
	draft, err := encodeAnswers(answers)
	if err != nil {
		return false, err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET draft_answers = $2::jsonb, last_saved_at = $3
		 WHERE id = $1 AND submitted_at IS NULL`,
		id, draft, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Submit writes the final answers, score and submission time in one
// conditional update. It reports false when the attempt was already submitted.
func (r *AttemptRepository) Submit(ctx context.Context, id uuid.UUID, answers model.Answers, score int, at time.Time) (bool, error) {
	final, err := encodeAnswers(answers)
	if err != nil {
		return false, err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET draft_answers = $2::jsonb, final_score = $3, submitted_at = $4, last_saved_at = $4
		 WHERE id = $1 AND submitted_at IS NULL`,
		id, final, score, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListBySession returns every attempt of a session with the student's display
// name. Students without a profile get an empty name; the service fills in a placeholder.
func (r *AttemptRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.AttemptWithStudent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.session_id, a.student_id, a.draft_answers, a.final_score,
		        a.submitted_at, a.last_saved_at, a.created_at, COALESCE(u.display_name, '')
		 FROM exam_attempts a
		 LEFT JOIN users u ON u.id = a.student_id
		 WHERE a.session_id = $1
		 ORDER BY a.created_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.AttemptWithStudent
	for rows.Next() {
		var a model.AttemptWithStudent
		var raw []byte
		if err := rows.Scan(&a.ID, &a.SessionID, &a.StudentID, &raw, &a.FinalScore,
			&a.SubmittedAt, &a.LastSavedAt, &a.CreatedAt, &a.StudentName); err != nil {
			return nil, err
		}
		if err := decodeAnswers(raw, &a.DraftAnswers); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ListExpired returns open attempts that must be closed by the server: those in
// archived sessions and those whose duration window plus grace has elapsed.
func (r *AttemptRepository) ListExpired(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]model.AttemptDeadline, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.session_id, s.quiz_id, a.student_id, a.draft_answers
		 FROM exam_attempts a
		 JOIN exam_sessions s ON s.id = a.session_id
		 WHERE a.submitted_at IS NULL
		   AND (
		     s.status = 'ARCHIVED'
		     OR (s.status = 'ACTIVE'
		         AND s.duration_minutes IS NOT NULL
		         AND s.started_at IS NOT NULL
		         AND GREATEST(a.created_at, s.started_at)
		             + make_interval(mins => s.duration_minutes)
		             + make_interval(secs => $2) < $1)
		   )
		 ORDER BY a.created_at
		 LIMIT $3`,
		now, grace.Seconds(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AttemptDeadline
	for rows.Next() {
		var d model.AttemptDeadline
		var raw []byte
		if err := rows.Scan(&d.AttemptID, &d.SessionID, &d.QuizID, &d.StudentID, &raw); err != nil {
			return nil, err
		}
		if err := decodeAnswers(raw, &d.Draft); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Finalize submits a batch of expired attempts in one statement using UNNEST.
// The scored draft overwrites draft_answers so a late autosave cannot leave
// the stored answers out of step with final_score. Attempts submitted in the
// meantime are left untouched. Returns the IDs that were finalized.
func (r *AttemptRepository) Finalize(ctx context.Context, batch []model.AttemptFinalization) ([]uuid.UUID, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(batch))
	drafts := make([]string, len(batch))
	scores := make([]int32, len(batch))
	submittedAts := make([]time.Time, len(batch))
	for i, f := range batch {
		draft, err := encodeAnswers(f.Answers)
		if err != nil {
			return nil, err
		}
		ids[i] = f.AttemptID
		drafts[i] = draft
		scores[i] = int32(f.Score)
		submittedAts[i] = f.SubmittedAt
	}

	rows, err := r.pool.Query(ctx,
		`UPDATE exam_attempts AS a
		 SET draft_answers = t.draft::jsonb,
		     final_score = t.score,
		     submitted_at = t.submitted_at
		 FROM UNNEST($1::uuid[], $2::text[], $3::int[], $4::timestamptz[]) AS t (id, draft, score, submitted_at)
		 WHERE a.id = t.id AND a.submitted_at IS NULL
		 RETURNING a.id`,
		ids, drafts, scores, submittedAts)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}
