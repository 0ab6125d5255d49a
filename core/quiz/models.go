package quiz

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/volatiletech/null/v8"
)

const DefaultPassingScore = 60.0

type Quiz struct {
	ID               string       `db:"id" json:"id"`
	Title            string       `db:"title" json:"title"`
	Description      string       `db:"description" json:"description"`
	CourseID         string       `db:"course_id" json:"course_id"`
	TimeLimitMinutes null.Int     `db:"time_limit_minutes" json:"time_limit_minutes"`
	PassingScore     null.Float64 `db:"passing_score" json:"passing_score"`
	IsPublished      bool         `db:"is_published" json:"is_published"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
}

// EffectivePassingScore is the stored passing score, or fallback when unset.
// A fallback of 0 means DefaultPassingScore.
func (q Quiz) EffectivePassingScore(fallback float64) float64 {
	if q.PassingScore.Valid {
		return q.PassingScore.Float64
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultPassingScore
}

// TimeLimit returns the countdown length in seconds, or nil for an untimed quiz.
func (q Quiz) TimeLimit() *int {
	if !q.TimeLimitMinutes.Valid || q.TimeLimitMinutes.Int <= 0 {
		return nil
	}
	secs := q.TimeLimitMinutes.Int * 60
	return &secs
}

type Question struct {
	ID            string     `db:"id" json:"id"`
	QuizID        string     `db:"quiz_id" json:"quiz_id"`
	Question      string     `db:"question" json:"question"`
	Options       StringList `db:"options" json:"options"`
	CorrectAnswer string     `db:"correct_answer" json:"-"`
	Points        float64    `db:"points" json:"points"`
	OrderNumber   int        `db:"order_number" json:"order_number"`
}

type Submission struct {
	ID               string    `db:"id" json:"id"`
	QuizID           string    `db:"quiz_id" json:"quiz_id"`
	StudentID        string    `db:"student_id" json:"student_id"`
	Score            float64   `db:"score" json:"score"`
	MaxScore         float64   `db:"max_score" json:"max_score"`
	Percentage       float64   `db:"percentage" json:"percentage"`
	Answers          Answers   `db:"answers" json:"answers"`
	IsPassed         bool      `db:"is_passed" json:"is_passed"`
	TimeTakenMinutes null.Int  `db:"time_taken_minutes" json:"time_taken_minutes"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// StringList is an ordered list of strings stored as a JSON array.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

func (l *StringList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// Answers maps question ids to the selected option.
type Answers map[string]string

func (a Answers) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]string(a))
}

func (a *Answers) Scan(src interface{}) error {
	return scanJSON(src, a)
}

func (a Answers) clone() Answers {
	cp := make(Answers, len(a))
	for k, v := range a {
		cp[k] = v
	}
	return cp
}

func scanJSON(src interface{}, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("cannot scan %T into %T", src, dest)
	}
}

// Result is the scored outcome of an attempt.
type Result struct {
	Score        float64 `json:"score"`
	MaxScore     float64 `json:"max_score"`
	Percentage   float64 `json:"percentage"`
	IsPassed     bool    `json:"is_passed"`
	PassingScore float64 `json:"passing_score"`
	Correct      int     `json:"correct"`
	Total        int     `json:"total"`
}

// Grade scores answers against questions.
// The percentage is rounded to 2 decimals before it is compared with passingScore.
func Grade(questions []Question, answers Answers, passingScore float64) Result {
	res := Result{PassingScore: passingScore, Total: len(questions)}
	for _, q := range questions {
		res.MaxScore += q.Points
		if ans, ok := answers[q.ID]; ok && ans == q.CorrectAnswer {
			res.Score += q.Points
			res.Correct++
		}
	}
	if res.MaxScore > 0 {
		res.Percentage = math.Round(res.Score*10000/res.MaxScore) / 100
	}
	res.IsPassed = res.Percentage >= passingScore
	return res
}

func resultFromSubmission(sub Submission, questions []Question, passingScore float64) Result {
	res := Grade(questions, sub.Answers, passingScore)
	// the stored row is authoritative
	res.Score, res.MaxScore, res.Percentage, res.IsPassed = sub.Score, sub.MaxScore, sub.Percentage, sub.IsPassed
	return res
}

// OptionMark tags an option when corrections are shown.
type OptionMark string

const (
	MarkNone          OptionMark = ""
	MarkCorrect       OptionMark = "correct"
	MarkWrongSelected OptionMark = "incorrect_selection"
)

type OptionView struct {
	Text     string     `json:"text"`
	Selected bool       `json:"selected"`
	Mark     OptionMark `json:"mark,omitempty"`
}

// QuestionView is what the student sees of a question.
type QuestionView struct {
	ID       string       `json:"id"`
	Index    int          `json:"index"`
	Total    int          `json:"total"`
	Question string       `json:"question"`
	Points   float64      `json:"points"`
	Options  []OptionView `json:"options"`
}

// Correction is a reviewed question; every option is marked.
type Correction struct {
	QuestionView
	CorrectAnswer string `json:"correct_answer"`
	Selected      string `json:"selected"`
	IsCorrect     bool   `json:"is_correct"`
}

func correctionFor(idx int, q Question, total int, answers Answers) Correction {
	selected := answers[q.ID]
	c := Correction{
		QuestionView:  questionView(idx, q, total, answers),
		CorrectAnswer: q.CorrectAnswer,
		Selected:      selected,
		IsCorrect:     selected != "" && selected == q.CorrectAnswer,
	}
	for i := range c.Options {
		switch opt := &c.Options[i]; {
		case opt.Text == q.CorrectAnswer:
			opt.Mark = MarkCorrect
		case opt.Selected:
			opt.Mark = MarkWrongSelected
		}
	}
	return c
}

func questionView(idx int, q Question, total int, answers Answers) QuestionView {
	selected, hasAnswer := answers[q.ID]
	opts := make([]OptionView, len(q.Options))
	for i, text := range q.Options {
		opts[i] = OptionView{Text: text, Selected: hasAnswer && text == selected}
	}
	return QuestionView{
		ID:       q.ID,
		Index:    idx,
		Total:    total,
		Question: q.Question,
		Points:   q.Points,
		Options:  opts,
	}
}
