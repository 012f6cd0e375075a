package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examroom/internal/model"
)

// QuizRepository handles quiz data access. Questions live in a JSONB column
// because a quiz is immutable once created.
type QuizRepository struct {
	pool *pgxpool.Pool
}

// NewQuizRepository creates a new QuizRepository.
func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{pool: pool}
}

// Create inserts a quiz and fills in its ID and creation time.
func (r *QuizRepository) Create(ctx context.Context, q *model.Quiz) error {
	questions, err := json.Marshal(q.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO quizzes (title, teacher_id, questions)
		 VALUES ($1, $2, $3::jsonb)
		 RETURNING id, created_at`,
		q.Title, q.TeacherID, string(questions),
	).Scan(&q.ID, &q.CreatedAt)
	return translate(err)
}

// GetByID retrieves a quiz including its answer key.
func (r *QuizRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error) {
	q := &model.Quiz{}
	var raw []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, teacher_id, questions, created_at
		 FROM quizzes WHERE id = $1`, id,
	).Scan(&q.ID, &q.Title, &q.TeacherID, &raw, &q.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	if err := json.Unmarshal(raw, &q.Questions); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}
	return q, nil
}

// ListByTeacher returns a teacher's quizzes, newest first.
func (r *QuizRepository) ListByTeacher(ctx context.Context, teacherID string) ([]model.Quiz, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, teacher_id, questions, created_at
		 FROM quizzes WHERE teacher_id = $1
		 ORDER BY created_at DESC`, teacherID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quizzes []model.Quiz
	for rows.Next() {
		var q model.Quiz
		var raw []byte
		if err := rows.Scan(&q.ID, &q.Title, &q.TeacherID, &raw, &q.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &q.Questions); err != nil {
			return nil, fmt.Errorf("unmarshal questions for quiz %s: %w", q.ID, err)
		}
		quizzes = append(quizzes, q)
	}
	return quizzes, rows.Err()
}
