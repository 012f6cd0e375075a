package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/examroom/internal/model"
	"github.com/stemsi/examroom/internal/realtime"
)

var (
	teacher      = Identity{ID: "teacher-1", DisplayName: "Ms. Rivera", Role: model.RoleTeacher}
	otherTeacher = Identity{ID: "teacher-2", DisplayName: "Mr. Okafor", Role: model.RoleTeacher}
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	db       *memDB
	quizzes  *fakeQuizzes
	sessStor *fakeSessions
	attStor  *fakeAttempts
	users    *fakeUsers
	bus      *realtime.LocalBus
	clock    *fakeClock

	sessions *SessionService
	attempts *AttemptService
	presence *PresenceService
}

const testGrace = 30 * time.Second

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newMemDB()
	e := &testEnv{
		db:       db,
		quizzes:  &fakeQuizzes{db: db},
		sessStor: &fakeSessions{db: db},
		attStor:  &fakeAttempts{db: db},
		users:    &fakeUsers{db: db},
		bus:      realtime.NewLocalBus(),
		clock:    &fakeClock{t: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)},
	}
	log := zerolog.Nop()
	e.sessions = NewSessionService(e.sessStor, e.quizzes, e.bus, log)
	e.sessions.now = e.clock.now
	e.attempts = NewAttemptService(e.sessStor, e.attStor, e.quizzes, e.bus, testGrace, log)
	e.attempts.now = e.clock.now
	e.presence = NewPresenceService(e.sessStor, e.attStor, e.users, e.bus, log)
	return e
}

// seedQuiz stores a quiz owned by teacher whose answer key is correct.
func (e *testEnv) seedQuiz(t *testing.T, correct ...string) *model.Quiz {
	t.Helper()
	questions := make([]model.Question, len(correct))
	for i, c := range correct {
		questions[i] = model.Question{
			Prompt:        fmt.Sprintf("Question %d", i+1),
			Options:       []string{c, "X", "Y"},
			CorrectAnswer: c,
		}
	}
	q := &model.Quiz{Title: "Unit quiz", TeacherID: teacher.ID, Questions: questions}
	if err := e.quizzes.Create(context.Background(), q); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
	return q
}

func (e *testEnv) createSession(t *testing.T, quiz *model.Quiz, in CreateSessionInput) *model.Session {
	t.Helper()
	in.QuizID = quiz.ID
	sess, err := e.sessions.CreateSession(context.Background(), teacher, in)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return sess
}

func (e *testEnv) join(t *testing.T, sess *model.Session, studentID string) *model.Attempt {
	t.Helper()
	view, err := e.attempts.JoinSession(context.Background(), sess.AccessCode, studentID)
	if err != nil {
		t.Fatalf("JoinSession(%s): %v", studentID, err)
	}
	return view.Attempt
}

func (e *testEnv) storedAttempt(t *testing.T, a *model.Attempt) model.Attempt {
	t.Helper()
	e.db.mu.Lock()
	defer e.db.mu.Unlock()
	stored, ok := e.db.attempts[a.ID]
	if !ok {
		t.Fatalf("attempt %s not stored", a.ID)
	}
	return stored
}

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }
