package quiz

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"golang.org/x/sync/errgroup"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
)

// State of an Engine.
type State string

const (
	StateLoading    State = "loading"
	StateInProgress State = "in_progress"
	StateSubmitting State = "submitting"
	StateSubmitted  State = "submitted"
	StateCompleted  State = "completed" // loaded with an existing submission
	StateRetaking   State = "retaking"
)

type Direction string

const (
	Next     Direction = "next"
	Previous Direction = "previous"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound        = errors.New("quiz not found")
	ErrNotInProgress   = errors.New("quiz attempt is not in progress")
	ErrNotSubmitted    = errors.New("quiz has not been submitted")
	ErrMissingAnswer   = errors.New("answer the current question before moving on")
	ErrUnknownQuestion = errors.New("question does not belong to this quiz")
	ErrBadDirection    = errors.New("direction must be next or previous")
)

// ProgressNotifier is told when a student's quiz results change, so aggregate progress views can be refreshed.
type ProgressNotifier interface {
	StudentProgressChanged(ctx context.Context, studentID, courseID string) error
}

// Notifiers notifies each of its members and returns the first error.
type Notifiers []ProgressNotifier

func (ns Notifiers) StudentProgressChanged(ctx context.Context, studentID, courseID string) error {
	var first error
	for _, n := range ns {
		if err := n.StudentProgressChanged(ctx, studentID, courseID); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Attempt is the unpersisted state of a quiz in progress.
type Attempt struct {
	QuizID        string    `json:"quiz_id"`
	StudentID     string    `json:"student_id"`
	CurrentIndex  int       `json:"current_index"`
	Answers       Answers   `json:"answers"`
	TimeRemaining *int      `json:"time_remaining"` // seconds, nil when untimed
	Submitted     bool      `json:"submitted"`
	StartedAt     time.Time `json:"started_at"`
}

func (a Attempt) copy() Attempt {
	a.Answers = a.Answers.clone()
	if a.TimeRemaining != nil {
		rem := *a.TimeRemaining
		a.TimeRemaining = &rem
	}
	return a
}

// Engine drives one student through one quiz.
// All methods are safe for concurrent use; Submit is the single writer of the submission.
type Engine struct {
	gw       core.Gateway
	notifier ProgressNotifier
	logger   core.Logger

	defaultPassingScore float64

	mutex           sync.Mutex
	state           State
	quiz            Quiz
	questions       []Question
	attempt         Attempt
	submission      *Submission
	result          *Result
	showCorrections bool
	expired         bool // countdown reached zero
	banner          error
	stopTimer       context.CancelFunc
	timerDone       chan struct{}
}

// NewEngine returns an Engine in the Loading state. notifier may be nil.
func NewEngine(gw core.Gateway, notifier ProgressNotifier, logger core.Logger, defaultPassingScore float64) (*Engine, error) {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(gw, "gw"),
		vala.IsNotNil(logger, "logger"),
	).Check(); err != nil {
		return nil, err
	}
	if defaultPassingScore <= 0 {
		defaultPassingScore = DefaultPassingScore
	}
	return &Engine{
		gw:                  gw,
		notifier:            notifier,
		logger:              logger,
		defaultPassingScore: defaultPassingScore,
		state:               StateLoading,
	}, nil
}

// Load fetches the quiz, its ordered questions and any existing submission of the student.
func (e *Engine) Load(ctx context.Context, quizID, studentID string) error {
	var (
		qz        Quiz
		questions []Question
		existing  []Submission
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := e.gw.Get(gctx, core.CollQuizzes, &qz, core.Filter{"id": quizID}); err != nil {
			if err == core.ErrNoRecord {
				return ErrNotFound
			}
			return core.NewPersistenceError("loading quiz", err)
		}
		return nil
	})
	g.Go(func() error {
		err := e.gw.Select(gctx, core.CollQuizQuestions, &questions, core.Filter{"quiz_id": quizID},
			core.DBOrdering{Field: "order_number", Ascending: true})
		if err != nil {
			return core.NewPersistenceError("loading questions", err)
		}
		return nil
	})
	g.Go(func() error {
		err := e.gw.Select(gctx, core.CollQuizSubmissions, &existing,
			core.Filter{"quiz_id": quizID, "student_id": studentID},
			core.DBOrdering{Field: "created_at"})
		if err != nil {
			return core.NewPersistenceError("loading submission", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.quiz = qz
	e.questions = questions
	e.showCorrections = false
	e.banner = nil
	e.expired = false

	if len(existing) > 0 {
		sub := existing[0]
		res := resultFromSubmission(sub, questions, qz.EffectivePassingScore(e.defaultPassingScore))
		e.submission, e.result = &sub, &res
		e.attempt = Attempt{
			QuizID:    quizID,
			StudentID: studentID,
			Answers:   sub.Answers.clone(),
			Submitted: true,
		}
		e.state = StateCompleted
		return nil
	}

	e.submission, e.result = nil, nil
	e.resetAttempt(quizID, studentID)
	e.state = StateInProgress
	return nil
}

// resetAttempt must be called with the mutex held.
func (e *Engine) resetAttempt(quizID, studentID string) {
	e.attempt = Attempt{
		QuizID:        quizID,
		StudentID:     studentID,
		Answers:       make(Answers),
		TimeRemaining: e.quiz.TimeLimit(),
		StartedAt:     NowFunc(),
	}
}

func (e *Engine) question(id string) (Question, bool) {
	for _, q := range e.questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// SelectAnswer records option as the answer to questionID, replacing any previous one.
// option is not checked against the question's options.
func (e *Engine) SelectAnswer(questionID, option string) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.state != StateInProgress {
		return ErrNotInProgress
	}
	if _, ok := e.question(questionID); !ok {
		return ErrUnknownQuestion
	}
	e.attempt.Answers[questionID] = option
	return nil
}

// Navigate moves to the next or previous question, clamped to the question list.
// Moving forward requires the current question to be answered.
func (e *Engine) Navigate(dir Direction) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.state != StateInProgress {
		return ErrNotInProgress
	}
	n := len(e.questions)
	if n == 0 {
		return nil
	}
	switch dir {
	case Next:
		cur := e.questions[e.attempt.CurrentIndex]
		if _, ok := e.attempt.Answers[cur.ID]; !ok {
			return ErrMissingAnswer
		}
		if e.attempt.CurrentIndex < n-1 {
			e.attempt.CurrentIndex++
		}
	case Previous:
		if e.attempt.CurrentIndex > 0 {
			e.attempt.CurrentIndex--
		}
	default:
		return ErrBadDirection
	}
	return nil
}

// Tick advances the countdown by one second. When it reaches zero the attempt is submitted with whatever
// answers it holds; a failed auto submit is retried once, then reported through Banner.
// Ticks are no-ops unless the attempt is timed, in progress, and still counting down.
func (e *Engine) Tick(ctx context.Context) error {
	e.mutex.Lock()
	if e.state != StateInProgress || e.attempt.TimeRemaining == nil || e.expired {
		e.mutex.Unlock()
		return nil
	}
	rem := *e.attempt.TimeRemaining - 1
	if rem < 0 {
		rem = 0
	}
	*e.attempt.TimeRemaining = rem
	if rem > 0 {
		e.mutex.Unlock()
		return nil
	}
	e.expired = true
	quizID := e.attempt.QuizID
	e.mutex.Unlock()

	// let the forced submit finish even if the caller goes away
	ctx = context.WithoutCancel(ctx)
	_, err := e.Submit(ctx)
	if err != nil && err != ErrNotInProgress {
		e.logger.Warn(fmt.Sprintf("auto submit of quiz %s failed, retrying: %v", quizID, err))
		_, err = e.Submit(ctx)
	}
	switch {
	case err == ErrNotInProgress: // a manual submit won
		return nil
	case err != nil:
		e.mutex.Lock()
		e.banner = errors.Wrap(err, "time is up but your answers could not be submitted, please submit again")
		e.mutex.Unlock()
		return err
	}
	return nil
}

// Submit grades the attempt and replaces any previous submission of the student.
// Only one Submit runs at a time: callers that find the attempt not in progress get ErrNotInProgress.
// On failure the attempt stays in progress with its answers intact.
func (e *Engine) Submit(ctx context.Context) (Result, error) {
	e.mutex.Lock()
	if e.state != StateInProgress {
		e.mutex.Unlock()
		return Result{}, ErrNotInProgress
	}
	e.state = StateSubmitting
	att := e.attempt.copy()
	questions := e.questions
	qz := e.quiz
	e.mutex.Unlock()

	res := Grade(questions, att.Answers, qz.EffectivePassingScore(e.defaultPassingScore))
	sub := Submission{
		QuizID:           att.QuizID,
		StudentID:        att.StudentID,
		Score:            res.Score,
		MaxScore:         res.MaxScore,
		Percentage:       res.Percentage,
		Answers:          att.Answers,
		IsPassed:         res.IsPassed,
		TimeTakenMinutes: timeTaken(qz, att),
	}
	if err := e.replaceSubmission(ctx, &sub); err != nil {
		e.mutex.Lock()
		e.state = StateInProgress
		e.mutex.Unlock()
		return Result{}, err
	}

	e.mutex.Lock()
	e.state = StateSubmitted
	e.submission, e.result = &sub, &res
	e.attempt.Submitted = true
	e.showCorrections = false
	e.banner = nil
	e.mutex.Unlock()

	e.notifyProgress(ctx, att.StudentID, qz.CourseID)
	return res, nil
}

// replaceSubmission deletes prior submissions then inserts sub.
// A conflict means another writer got in between; its row is replaced too, once.
func (e *Engine) replaceSubmission(ctx context.Context, sub *Submission) error {
	filter := core.Filter{"quiz_id": sub.QuizID, "student_id": sub.StudentID}
	if _, err := e.gw.Delete(ctx, core.CollQuizSubmissions, filter); err != nil {
		return core.NewPersistenceError("deleting previous submission", err)
	}
	err := e.gw.Insert(ctx, core.CollQuizSubmissions, sub)
	if errors.Cause(err) == core.ErrConflict {
		if _, err = e.gw.Delete(ctx, core.CollQuizSubmissions, filter); err != nil {
			return core.NewPersistenceError("deleting previous submission", err)
		}
		err = e.gw.Insert(ctx, core.CollQuizSubmissions, sub)
	}
	if err != nil {
		return core.NewPersistenceError("saving submission", err)
	}
	return nil
}

func timeTaken(qz Quiz, att Attempt) null.Int {
	if limit := qz.TimeLimit(); limit != nil && att.TimeRemaining != nil {
		elapsed := *limit - *att.TimeRemaining
		return null.IntFrom(int(math.Ceil(float64(elapsed) / 60)))
	}
	if att.StartedAt.IsZero() {
		return null.Int{}
	}
	return null.IntFrom(int(math.Ceil(NowFunc().Sub(att.StartedAt).Minutes())))
}

func (e *Engine) notifyProgress(ctx context.Context, studentID, courseID string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.StudentProgressChanged(ctx, studentID, courseID); err != nil {
		e.logger.Error(fmt.Sprintf("notifying progress change of student %s: %v", studentID, err), err)
	}
}

// Retake deletes the submission and starts a fresh attempt.
// Without a submission it only restarts the attempt in progress, so retaking twice is fine.
func (e *Engine) Retake(ctx context.Context) error {
	e.mutex.Lock()
	prev := e.state
	switch prev {
	case StateSubmitted, StateCompleted:
	case StateInProgress:
		e.banner = nil
		e.expired = false
		e.resetAttempt(e.attempt.QuizID, e.attempt.StudentID)
		e.mutex.Unlock()
		return nil
	default:
		e.mutex.Unlock()
		return ErrNotSubmitted
	}
	e.state = StateRetaking
	quizID, studentID, courseID := e.attempt.QuizID, e.attempt.StudentID, e.quiz.CourseID
	e.mutex.Unlock()

	filter := core.Filter{"quiz_id": quizID, "student_id": studentID}
	if _, err := e.gw.Delete(ctx, core.CollQuizSubmissions, filter); err != nil {
		e.mutex.Lock()
		e.state = prev
		e.mutex.Unlock()
		return core.NewPersistenceError("deleting submission", err)
	}

	e.mutex.Lock()
	e.submission, e.result = nil, nil
	e.showCorrections = false
	e.banner = nil
	e.expired = false
	e.resetAttempt(quizID, studentID)
	e.state = StateInProgress
	e.mutex.Unlock()

	e.notifyProgress(ctx, studentID, courseID)
	return nil
}

// ToggleCorrections shows or hides the corrections of a submitted quiz and returns the new setting.
func (e *Engine) ToggleCorrections() (bool, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.state != StateSubmitted && e.state != StateCompleted {
		return false, ErrNotSubmitted
	}
	e.showCorrections = !e.showCorrections
	return e.showCorrections, nil
}

func (e *Engine) State() State {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.state
}

func (e *Engine) Quiz() Quiz {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.quiz
}

func (e *Engine) Attempt() Attempt {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.attempt.copy()
}

// CurrentQuestion returns the question under the cursor while the attempt is answerable.
func (e *Engine) CurrentQuestion() (QuestionView, bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if (e.state != StateInProgress && e.state != StateSubmitting) || len(e.questions) == 0 {
		return QuestionView{}, false
	}
	idx := e.attempt.CurrentIndex
	return questionView(idx, e.questions[idx], len(e.questions), e.attempt.Answers), true
}

// TimeRemaining returns the seconds left, and false for untimed quizzes.
func (e *Engine) TimeRemaining() (int, bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.attempt.TimeRemaining == nil {
		return 0, false
	}
	return *e.attempt.TimeRemaining, true
}

// Progress is the position of the current question as a fraction of the quiz, 0 with no questions.
func (e *Engine) Progress() float64 {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if len(e.questions) == 0 {
		return 0
	}
	return float64(e.attempt.CurrentIndex+1) / float64(len(e.questions))
}

func (e *Engine) Result() (Result, bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.result == nil {
		return Result{}, false
	}
	return *e.result, true
}

// Corrections returns every question with its options marked, only while corrections are shown.
func (e *Engine) Corrections() ([]Correction, bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if !e.showCorrections {
		return nil, false
	}
	return e.corrections(), true
}

func (e *Engine) corrections() []Correction {
	corrs := make([]Correction, len(e.questions))
	for i, q := range e.questions {
		corrs[i] = correctionFor(i, q, len(e.questions), e.attempt.Answers)
	}
	return corrs
}

// Banner returns the last auto submit failure, if the attempt is still waiting for a manual submit.
func (e *Engine) Banner() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.banner
}

// View is a snapshot of everything a client renders.
type View struct {
	State           State         `json:"state"`
	Quiz            Quiz          `json:"quiz"`
	Question        *QuestionView `json:"question,omitempty"`
	Answered        int           `json:"answered"`
	TotalQuestions  int           `json:"total_questions"`
	Progress        float64       `json:"progress"`
	TimeRemaining   *int          `json:"time_remaining"`
	Result          *Result       `json:"result,omitempty"`
	ShowCorrections bool          `json:"show_corrections"`
	Corrections     []Correction  `json:"corrections,omitempty"`
	Banner          string        `json:"banner,omitempty"`
}

func (e *Engine) View() View {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	att := e.attempt.copy()
	v := View{
		State:           e.state,
		Quiz:            e.quiz,
		Answered:        len(att.Answers),
		TotalQuestions:  len(e.questions),
		TimeRemaining:   att.TimeRemaining,
		ShowCorrections: e.showCorrections,
	}
	if n := len(e.questions); n > 0 {
		v.Progress = float64(att.CurrentIndex+1) / float64(n)
		if e.state == StateInProgress || e.state == StateSubmitting {
			qv := questionView(att.CurrentIndex, e.questions[att.CurrentIndex], n, att.Answers)
			v.Question = &qv
		}
	}
	if e.result != nil {
		res := *e.result
		v.Result = &res
	}
	if e.showCorrections {
		v.Corrections = e.corrections()
	}
	if e.banner != nil {
		v.Banner = e.banner.Error()
	}
	return v
}
