package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/examroom/internal/config"
	"github.com/stemsi/examroom/internal/model"
	"github.com/stemsi/examroom/internal/repository"
)

// QuizService handles quiz authoring and answer-key lookup.
type QuizService struct {
	quizzes QuizStore
	rdb     *redis.Client
	ttl     time.Duration
	log     zerolog.Logger
}

// NewQuizService creates a new QuizService. With a nil rdb every Load goes to the store.
func NewQuizService(quizzes QuizStore, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *QuizService {
	return &QuizService{
		quizzes: quizzes,
		rdb:     rdb,
		ttl:     ttl,
		log:     log.With().Str("component", "quiz_service").Logger(),
	}
}

// CreateQuiz validates and stores a new quiz owned by the caller.
// Quizzes are immutable once created.
func (s *QuizService) CreateQuiz(ctx context.Context, caller Identity, title string, questions []model.Question) (*model.Quiz, error) {
	if !caller.IsTeacher() {
		return nil, ErrTeacherOnly
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidQuiz)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: at least one question is required", ErrInvalidQuiz)
	}
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("%w: question %d: %v", ErrInvalidQuiz, i, err)
		}
	}

	quiz := &model.Quiz{
		Title:     title,
		TeacherID: caller.ID,
		Questions: questions,
	}
	if err := s.quizzes.Create(ctx, quiz); err != nil {
		return nil, fmt.Errorf("create quiz: %w", err)
	}

	s.log.Info().
		Str("quiz_id", quiz.ID.String()).
		Str("teacher_id", caller.ID).
		Int("questions", len(questions)).
		Msg("Quiz created")
	return quiz, nil
}

// GetQuiz returns a quiz with its answer key to its owner.
func (s *QuizService) GetQuiz(ctx context.Context, id uuid.UUID, callerID string) (*model.Quiz, error) {
	quiz, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if quiz.TeacherID != callerID {
		return nil, ErrForbidden
	}
	return quiz, nil
}

// ListQuizzes returns the caller's quizzes, newest first.
func (s *QuizService) ListQuizzes(ctx context.Context, teacherID string) ([]model.Quiz, error) {
	quizzes, err := s.quizzes.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	return quizzes, nil
}

// Load returns a quiz by ID, reading through the Redis cache. Cache failures
// are logged and fall back to the store.
func (s *QuizService) Load(ctx context.Context, id uuid.UUID) (*model.Quiz, error) {
	key := config.CacheKey.QuizKey(id.String())

	if s.rdb != nil {
		raw, err := s.rdb.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var quiz model.Quiz
			if jsonErr := json.Unmarshal(raw, &quiz); jsonErr == nil {
				return &quiz, nil
			}
			s.log.Warn().Str("quiz_id", id.String()).Msg("Discarding malformed cached quiz")
		case !errors.Is(err, redis.Nil):
			s.log.Warn().Err(err).Str("quiz_id", id.String()).Msg("Quiz cache read failed")
		}
	}

	quiz, err := s.quizzes.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("quiz %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get quiz: %w", err)
	}

	if s.rdb != nil {
		if payload, err := json.Marshal(quiz); err == nil {
			if err := s.rdb.Set(ctx, key, payload, s.ttl).Err(); err != nil {
				s.log.Warn().Err(err).Str("quiz_id", id.String()).Msg("Quiz cache write failed")
			}
		}
	}
	return quiz, nil
}
