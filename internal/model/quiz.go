package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidQuestion is returned by Question.Validate.
var ErrInvalidQuestion = errors.New("invalid question")

// Question is a single multiple-choice question. The correct answer is stored by value.
type Question struct {
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
}

// Validate enforces that the prompt is set, there are at least two options and
// the correct answer appears verbatim among them.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Prompt) == "" {
		return fmt.Errorf("%w: empty prompt", ErrInvalidQuestion)
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("%w: need at least two options", ErrInvalidQuestion)
	}
	for _, opt := range q.Options {
		if opt == q.CorrectAnswer {
			return nil
		}
	}
	return fmt.Errorf("%w: correct answer %q is not one of the options", ErrInvalidQuestion, q.CorrectAnswer)
}

// Quiz is an ordered, immutable list of questions owned by a teacher.
type Quiz struct {
	ID        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	TeacherID string     `json:"teacher_id"`
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"created_at"`
}

// QuestionCount returns the number of questions in the quiz.
func (q *Quiz) QuestionCount() int {
	return len(q.Questions)
}

// Paper strips the answer key so the quiz can be sent to students.
func (q *Quiz) Paper() QuizPaper {
	questions := make([]QuestionForStudent, len(q.Questions))
	for i, qu := range q.Questions {
		questions[i] = QuestionForStudent{
			Index:   i,
			Prompt:  qu.Prompt,
			Options: qu.Options,
		}
	}
	return QuizPaper{QuizID: q.ID, Title: q.Title, Questions: questions}
}

// QuizPaper is the student-facing view of a quiz (no correct answers).
type QuizPaper struct {
	QuizID    uuid.UUID            `json:"quiz_id"`
	Title     string               `json:"title"`
	Questions []QuestionForStudent `json:"questions"`
}

// QuestionForStudent is a question without the correct answer.
type QuestionForStudent struct {
	Index   int      `json:"index"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// QuestionInput is one question inside CreateQuizRequest.
type QuestionInput struct {
	Prompt        string   `json:"prompt" binding:"required,min=1,max=2000"`
	Options       []string `json:"options" binding:"required,min=2,max=10,dive,required,max=500"`
	CorrectAnswer string   `json:"correct_answer" binding:"required,max=500"`
}

// CreateQuizRequest is the payload for creating a quiz.
type CreateQuizRequest struct {
	Title     string          `json:"title" binding:"required,min=1,max=255"`
	Questions []QuestionInput `json:"questions" binding:"required,min=1,max=200,dive"`
}

// ToQuestions converts the request payload into domain questions.
func (r *CreateQuizRequest) ToQuestions() []Question {
	out := make([]Question, len(r.Questions))
	for i, q := range r.Questions {
		out[i] = Question{Prompt: q.Prompt, Options: q.Options, CorrectAnswer: q.CorrectAnswer}
	}
	return out
}
