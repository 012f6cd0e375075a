// Package examcli is the terminal student client: join by access code,
// answer question by question with a background autosave, then submit.
package examcli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/examroom/internal/autosave"
	"github.com/stemsi/examroom/internal/client"
	"github.com/stemsi/examroom/internal/model"
	"github.com/stemsi/examroom/internal/response"
)

const defaultPollInterval = 3 * time.Second

// API is the subset of the HTTP client the terminal flow needs.
type API interface {
	Join(ctx context.Context, accessCode string) (*client.Attempt, error)
	GetAttempt(ctx context.Context, attemptID uuid.UUID) (*client.Attempt, error)
	SaveDraft(ctx context.Context, attemptID uuid.UUID, answers model.Answers) (time.Time, error)
	Submit(ctx context.Context, attemptID uuid.UUID, answers model.Answers) (*client.Submission, error)
}

// Options tunes the flow. Zero values pick sensible defaults.
type Options struct {
	// PollInterval is how often a pending session is re-checked.
	PollInterval time.Duration
	// AutosaveInterval overrides the interval advertised by the server.
	AutosaveInterval time.Duration
}

// App drives one attempt from join to submit.
type App struct {
	api  API
	in   *bufio.Reader
	out  io.Writer
	log  zerolog.Logger
	opts Options
}

// New creates an App reading answers from in and printing to out.
func New(api API, in io.Reader, out io.Writer, log zerolog.Logger, opts Options) *App {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &App{api: api, in: bufio.NewReader(in), out: out, log: log, opts: opts}
}

// attemptClosed reports errors after which further saves are pointless.
func attemptClosed(err error) bool {
	return client.HasCode(err, response.ErrAlreadySubmitted) ||
		client.HasCode(err, response.ErrSessionClosed) ||
		client.HasCode(err, response.ErrAttemptExpired)
}

// Run joins the session behind accessCode and walks the student through it.
func (a *App) Run(ctx context.Context, accessCode string) error {
	attempt, err := a.api.Join(ctx, accessCode)
	if err != nil {
		return fmt.Errorf("join: %w", err)
	}
	fmt.Fprintf(a.out, "Joined %q (%s, %s)\n", attempt.Session.Title, attempt.Session.Mode, attempt.Session.Status)

	if attempt.Submitted {
		a.printResult(attempt.Score, attempt.ScoreVisible)
		return nil
	}

	attempt, err = a.waitForStart(ctx, attempt)
	if err != nil {
		return err
	}
	if attempt.Deadline != nil {
		fmt.Fprintf(a.out, "Time limit: answers are accepted until %s\n", attempt.Deadline.Local().Format(time.Kitchen))
	}

	interval := a.opts.AutosaveInterval
	if interval <= 0 {
		interval = time.Duration(attempt.AutosaveIntervalSeconds) * time.Second
	}
	draft := autosave.NewDraft(attempt.DraftAnswers)
	loop := autosave.New(attempt.ID, interval, draft, a.api, a.log)
	loop.StopOn = attemptClosed
	loop.Start(ctx)
	defer loop.Stop()

	for _, q := range attempt.Paper.Questions {
		if closedErr := a.closedBy(loop); closedErr != nil {
			fmt.Fprintf(a.out, "\nThis attempt can no longer be changed: %v\n", closedErr)
			return nil
		}

		a.printQuestion(q, draft.Draft())
		choice, ok, err := a.readChoice(len(q.Options))
		if err != nil {
			return a.saveAndLeave(ctx, loop, err)
		}
		if ok {
			draft.Set(q.Index, q.Options[choice])
		}
	}

	if !a.confirm("\nSubmit your answers now? [y/N] ") {
		return a.saveAndLeave(ctx, loop, nil)
	}

	loop.Stop()
	sub, err := a.api.Submit(ctx, attempt.ID, draft.Draft())
	switch {
	case client.HasCode(err, response.ErrAlreadySubmitted):
		fmt.Fprintln(a.out, "This attempt was already submitted.")
		return nil
	case err != nil:
		return fmt.Errorf("submit: %w", err)
	}
	fmt.Fprintln(a.out, "Submitted.")
	a.printResult(sub.Score, sub.ScoreVisible)
	return nil
}

// waitForStart polls until the session is active and the paper is visible.
func (a *App) waitForStart(ctx context.Context, attempt *client.Attempt) (*client.Attempt, error) {
	announced := false
	for attempt.Paper == nil {
		if attempt.Session.Status == model.SessionStatusArchived {
			return nil, errors.New("session has ended")
		}
		if !announced {
			fmt.Fprintln(a.out, "Waiting for the teacher to start the session...")
			announced = true
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(a.opts.PollInterval):
		}
		next, err := a.api.GetAttempt(ctx, attempt.ID)
		if err != nil {
			return nil, fmt.Errorf("refresh attempt: %w", err)
		}
		attempt = next
	}
	return attempt, nil
}

// closedBy returns the save error that stopped the loop, if it stopped.
func (a *App) closedBy(loop *autosave.Loop) error {
	select {
	case <-loop.Done():
		if err := loop.LastError(); attemptClosed(err) {
			return err
		}
	default:
	}
	return nil
}

func (a *App) saveAndLeave(ctx context.Context, loop *autosave.Loop, cause error) error {
	loop.Stop()
	if err := loop.Flush(ctx); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	fmt.Fprintln(a.out, "\nDraft saved. Join again with the same code to continue.")
	if cause != nil && !errors.Is(cause, io.EOF) {
		return cause
	}
	return nil
}

func (a *App) printQuestion(q model.QuestionForStudent, current model.Answers) {
	fmt.Fprintln(a.out)
	fmt.Fprintf(a.out, "Q%d: %s\n\n", q.Index+1, q.Prompt)
	for i, opt := range q.Options {
		marker := " "
		if current[q.Index] == opt {
			marker = "*"
		}
		fmt.Fprintf(a.out, "%s %c. %s\n", marker, 'A'+i, opt)
	}
	fmt.Fprint(a.out, "\nAnswer (empty keeps current): ")
}

// readChoice reads one option letter. ok is false when the line is empty.
func (a *App) readChoice(optionCount int) (int, bool, error) {
	maxLetter := byte('A' + optionCount - 1)
	for {
		line, err := a.in.ReadString('\n')
		line = strings.ToUpper(strings.TrimSpace(line))
		if line == "" {
			return -1, false, err
		}
		if len(line) == 1 && line[0] >= 'A' && line[0] <= maxLetter {
			return int(line[0] - 'A'), true, nil
		}
		if err != nil {
			return -1, false, err
		}
		fmt.Fprintf(a.out, "Invalid input. Enter a letter A-%c: ", maxLetter)
	}
}

func (a *App) confirm(prompt string) bool {
	fmt.Fprint(a.out, prompt)
	line, _ := a.in.ReadString('\n')
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes"
}

func (a *App) printResult(score *int, visible bool) {
	if visible && score != nil {
		fmt.Fprintf(a.out, "Score: %d/100\n", *score)
		return
	}
	fmt.Fprintln(a.out, "Your score will be released when the session ends.")
}
