package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/examroom/internal/model"
	"github.com/stemsi/examroom/internal/repository"
)

// memDB is an in-memory stand-in for Postgres. Each method takes the lock for
// its whole body, which gives the conditional writes the same atomicity as
// the single-statement SQL updates.
type memDB struct {
	mu       sync.Mutex
	quizzes  map[uuid.UUID]model.Quiz
	sessions map[uuid.UUID]model.Session
	attempts map[uuid.UUID]model.Attempt
	users    map[string]model.User
}

func newMemDB() *memDB {
	return &memDB{
		quizzes:  make(map[uuid.UUID]model.Quiz),
		sessions: make(map[uuid.UUID]model.Session),
		attempts: make(map[uuid.UUID]model.Attempt),
		users:    make(map[string]model.User),
	}
}

func (db *memDB) participants(sessionID uuid.UUID) int {
	n := 0
	for _, a := range db.attempts {
		if a.SessionID == sessionID {
			n++
		}
	}
	return n
}

func (db *memDB) sessionCopy(s model.Session) *model.Session {
	s.ParticipantCount = db.participants(s.ID)
	return &s
}

func cloneAttempt(a model.Attempt) *model.Attempt {
	a.DraftAnswers = a.DraftAnswers.Clone()
	return &a
}

// ─── Quizzes ────────────────────────────────────────────────────────

type fakeQuizzes struct {
	db       *memDB
	getCalls int
}

func (f *fakeQuizzes) Create(_ context.Context, q *model.Quiz) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	q.ID = uuid.New()
	q.CreatedAt = time.Now()
	f.db.quizzes[q.ID] = *q
	return nil
}

func (f *fakeQuizzes) GetByID(_ context.Context, id uuid.UUID) (*model.Quiz, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.getCalls++
	q, ok := f.db.quizzes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &q, nil
}

func (f *fakeQuizzes) ListByTeacher(_ context.Context, teacherID string) ([]model.Quiz, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []model.Quiz
	for _, q := range f.db.quizzes {
		if q.TeacherID == teacherID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Load lets fakeQuizzes act as the QuizSource without a cache in front.
func (f *fakeQuizzes) Load(ctx context.Context, id uuid.UUID) (*model.Quiz, error) {
	q, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	return q, nil
}

// ─── Sessions ───────────────────────────────────────────────────────

type fakeSessions struct {
	db *memDB
	// beforeTransition runs without the lock just before a transition is applied.
	beforeTransition func(id uuid.UUID)
}

func (f *fakeSessions) Create(_ context.Context, s *model.Session) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, other := range f.db.sessions {
		if other.AccessCode == s.AccessCode && other.Status != model.SessionStatusArchived {
			return repository.ErrConflict
		}
	}
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	f.db.sessions[s.ID] = *s
	return nil
}

func (f *fakeSessions) GetByID(_ context.Context, id uuid.UUID) (*model.Session, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return f.db.sessionCopy(s), nil
}

func (f *fakeSessions) FindByAccessCode(_ context.Context, code string) (*model.Session, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var best *model.Session
	for _, s := range f.db.sessions {
		if s.AccessCode != code {
			continue
		}
		s := s
		switch {
		case best == nil:
			best = &s
		case (best.Status == model.SessionStatusArchived) != (s.Status == model.SessionStatusArchived):
			if s.Status != model.SessionStatusArchived {
				best = &s
			}
		case s.CreatedAt.After(best.CreatedAt):
			best = &s
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	return f.db.sessionCopy(*best), nil
}

func (f *fakeSessions) ListByTeacher(_ context.Context, teacherID string) ([]model.Session, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []model.Session
	for _, s := range f.db.sessions {
		if s.TeacherID == teacherID {
			out = append(out, *f.db.sessionCopy(s))
		}
	}
	return out, nil
}

func (f *fakeSessions) Transition(_ context.Context, id uuid.UUID, from, to model.SessionStatus, at time.Time) (*model.Session, error) {
	if f.beforeTransition != nil {
		f.beforeTransition(id)
	}
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.sessions[id]
	if !ok || s.Status != from {
		return nil, repository.ErrNotFound
	}
	s.Status = to
	switch to {
	case model.SessionStatusActive:
		s.StartedAt = &at
	case model.SessionStatusArchived:
		s.EndedAt = &at
	}
	f.db.sessions[id] = s
	return f.db.sessionCopy(s), nil
}

func (f *fakeSessions) Delete(_ context.Context, id uuid.UUID) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.sessions[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.db.sessions, id)
	for aid, a := range f.db.attempts {
		if a.SessionID == id {
			delete(f.db.attempts, aid)
		}
	}
	return nil
}

func (f *fakeSessions) ListDueForStart(_ context.Context, now time.Time) ([]model.Session, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []model.Session
	for _, s := range f.db.sessions {
		if s.Status == model.SessionStatusPending && s.ScheduledStart != nil && !s.ScheduledStart.After(now) {
			out = append(out, s)
		}
	}
	return out, nil
}

// ─── Attempts ───────────────────────────────────────────────────────

type fakeAttempts struct {
	db *memDB
	// beforeCreate runs without the lock just before an insert is attempted.
	beforeCreate func(a *model.Attempt)
	// beforeFinalize runs without the lock just before a batch is written.
	beforeFinalize func()
}

func (f *fakeAttempts) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	a, ok := f.db.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneAttempt(a), nil
}

func (f *fakeAttempts) GetBySessionAndStudent(_ context.Context, sessionID uuid.UUID, studentID string) (*model.Attempt, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, a := range f.db.attempts {
		if a.SessionID == sessionID && a.StudentID == studentID {
			return cloneAttempt(a), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAttempts) Create(_ context.Context, a *model.Attempt) error {
	if f.beforeCreate != nil {
		f.beforeCreate(a)
	}
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, other := range f.db.attempts {
		if other.SessionID == a.SessionID && other.StudentID == a.StudentID {
			return repository.ErrConflict
		}
	}
	a.ID = uuid.New()
	a.LastSavedAt = a.CreatedAt
	f.db.attempts[a.ID] = *cloneAttempt(*a)
	return nil
}

func (f *fakeAttempts) SaveDraft(_ context.Context, id uuid.UUID, answers model.Answers, at time.Time) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	a, ok := f.db.attempts[id]
	if !ok || a.SubmittedAt != nil {
		return false, nil
	}
	a.DraftAnswers = answers.Clone()
	a.LastSavedAt = at
	f.db.attempts[id] = a
	return true, nil
}

func (f *fakeAttempts) Submit(_ context.Context, id uuid.UUID, answers model.Answers, score int, at time.Time) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	a, ok := f.db.attempts[id]
	if !ok || a.SubmittedAt != nil {
		return false, nil
	}
	a.DraftAnswers = answers.Clone()
	a.FinalScore = &score
	a.SubmittedAt = &at
	a.LastSavedAt = at
	f.db.attempts[id] = a
	return true, nil
}

func (f *fakeAttempts) ListBySession(_ context.Context, sessionID uuid.UUID) ([]model.AttemptWithStudent, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []model.AttemptWithStudent
	for _, a := range f.db.attempts {
		if a.SessionID != sessionID {
			continue
		}
		out = append(out, model.AttemptWithStudent{
			Attempt:     *cloneAttempt(a),
			StudentName: f.db.users[a.StudentID].DisplayName,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeAttempts) ListExpired(_ context.Context, now time.Time, grace time.Duration, limit int) ([]model.AttemptDeadline, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []model.AttemptDeadline
	for _, a := range f.db.attempts {
		if a.SubmittedAt != nil {
			continue
		}
		s := f.db.sessions[a.SessionID]
		expired := s.Status == model.SessionStatusArchived
		if !expired && s.Status == model.SessionStatusActive {
			if deadline, ok := s.DeadlineFor(a.CreatedAt); ok && deadline.Add(grace).Before(now) {
				expired = true
			}
		}
		if !expired {
			continue
		}
		out = append(out, model.AttemptDeadline{
			AttemptID: a.ID,
			SessionID: a.SessionID,
			QuizID:    s.QuizID,
			StudentID: a.StudentID,
			Draft:     a.DraftAnswers.Clone(),
		})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeAttempts) Finalize(_ context.Context, batch []model.AttemptFinalization) ([]uuid.UUID, error) {
	if f.beforeFinalize != nil {
		f.beforeFinalize()
	}
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var done []uuid.UUID
	for _, fin := range batch {
		a, ok := f.db.attempts[fin.AttemptID]
		if !ok || a.SubmittedAt != nil {
			continue
		}
		score, at := fin.Score, fin.SubmittedAt
		a.DraftAnswers = fin.Answers.Clone()
		a.FinalScore = &score
		a.SubmittedAt = &at
		f.db.attempts[a.ID] = a
		done = append(done, a.ID)
	}
	return done, nil
}

// ─── Users ──────────────────────────────────────────────────────────

type fakeUsers struct {
	db     *memDB
	getErr error
}

func (f *fakeUsers) Upsert(_ context.Context, u *model.User) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	now := time.Now()
	if existing, ok := f.db.users[u.ID]; ok {
		u.CreatedAt = existing.CreatedAt
	} else {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	f.db.users[u.ID] = *u
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	u, ok := f.db.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}
