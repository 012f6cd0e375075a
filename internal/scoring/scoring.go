// Package scoring grades a set of answers against a quiz's answer key.
package scoring

import (
	"math"

	"github.com/stemsi/examroom/internal/model"
)

// Result is the breakdown behind a score.
type Result struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
	Score   int `json:"score"`
}

// Tally compares each question's correct answer with the answer at the same
// index using exact string equality. Missing answers count as incorrect and
// answers for indexes outside the quiz are ignored.
func Tally(quiz *model.Quiz, answers model.Answers) Result {
	total := len(quiz.Questions)
	correct := 0
	for i, q := range quiz.Questions {
		if got, ok := answers[i]; ok && got == q.CorrectAnswer {
			correct++
		}
	}
	return Result{Correct: correct, Total: total, Score: percent(correct, total)}
}

// Score returns round(100 * correct / total), always within [0, 100].
func Score(quiz *model.Quiz, answers model.Answers) int {
	return Tally(quiz, answers).Score
}

func percent(correct, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(correct) / float64(total)))
}
