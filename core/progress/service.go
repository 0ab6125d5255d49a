package progress

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/enrollment"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/quiz"
)

const DefaultTTL = 10 * time.Minute

// Cache stores JSON encodable values by key.
type Cache interface {
	// Get loads the value of key into dest and reports whether it was found.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, val interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// NopCache caches nothing.
type NopCache struct{}

func (NopCache) Get(context.Context, string, interface{}) (bool, error)        { return false, nil }
func (NopCache) Set(context.Context, string, interface{}, time.Duration) error { return nil }
func (NopCache) Delete(context.Context, ...string) error                       { return nil }

// CourseProgress is a student's standing in one course.
type CourseProgress struct {
	CourseID      string  `json:"course_id"`
	Title         string  `json:"title"`
	Progress      float64 `json:"progress"`
	Completed     bool    `json:"completed"`
	QuizzesTaken  int     `json:"quizzes_taken"`
	QuizzesPassed int     `json:"quizzes_passed"`
}

// Summary aggregates a student's enrollments and quiz results.
type Summary struct {
	StudentID         string           `json:"student_id"`
	EnrolledCourses   int              `json:"enrolled_courses"`
	CompletedCourses  int              `json:"completed_courses"`
	AverageProgress   float64          `json:"average_progress"`
	QuizzesTaken      int              `json:"quizzes_taken"`
	QuizzesPassed     int              `json:"quizzes_passed"`
	AveragePercentage float64          `json:"average_percentage"`
	Courses           []CourseProgress `json:"courses"`
}

// Service computes student progress summaries and caches them until the student's results change.
type Service struct {
	gw     core.Gateway
	cache  Cache
	logger core.Logger
	ttl    time.Duration
}

var (
	_ quiz.ProgressNotifier       = (*Service)(nil)
	_ enrollment.ProgressNotifier = (*Service)(nil)
)

// NewService returns a Service. A nil cache disables caching.
func NewService(gw core.Gateway, cache Cache, logger core.Logger, ttl time.Duration) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{gw: gw, cache: cache, logger: logger, ttl: ttl}
}

// Key is the cache key of a student's summary.
func Key(studentID string) string {
	return "progress:student:" + studentID
}

func (svc *Service) ForStudent(ctx context.Context, studentID string) (Summary, error) {
	var sum Summary
	found, err := svc.cache.Get(ctx, Key(studentID), &sum)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("reading cached progress of %s: %v", studentID, err), err)
	} else if found {
		return sum, nil
	}

	if sum, err = svc.compute(ctx, studentID); err != nil {
		return Summary{}, err
	}
	if err = svc.cache.Set(ctx, Key(studentID), sum, svc.ttl); err != nil {
		svc.logger.Warn(fmt.Sprintf("caching progress of %s: %v", studentID, err), err)
	}
	return sum, nil
}

// StudentProgressChanged drops the cached summary of studentID.
func (svc *Service) StudentProgressChanged(ctx context.Context, studentID, _ string) error {
	return svc.cache.Delete(ctx, Key(studentID))
}

func (svc *Service) compute(ctx context.Context, studentID string) (Summary, error) {
	var (
		enrs []enrollment.Enrollment
		subs []quiz.Submission
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ord := core.DBOrdering{Field: "created_at", Ascending: true}
		if err := svc.gw.Select(gctx, core.CollEnrollments, &enrs, core.Filter{"student_id": studentID}, ord); err != nil {
			return core.NewPersistenceError("loading enrollments", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := svc.gw.Select(gctx, core.CollQuizSubmissions, &subs, core.Filter{"student_id": studentID}); err != nil {
			return core.NewPersistenceError("loading quiz submissions", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	byQuiz := make(map[string]quiz.Submission, len(subs))
	for _, sub := range subs {
		byQuiz[sub.QuizID] = sub
	}

	sum := Summary{StudentID: studentID, Courses: make([]CourseProgress, 0, len(enrs))}
	var progressTotal float64
	for _, enr := range enrs {
		cp := CourseProgress{CourseID: enr.CourseID, Progress: enr.Progress, Completed: enr.Completed}

		var course enrollment.Course
		switch err := svc.gw.Get(ctx, core.CollCourses, &course, core.Filter{"id": enr.CourseID}); err {
		case nil:
			cp.Title = course.Title
		case core.ErrNoRecord:
		default:
			return Summary{}, core.NewPersistenceError("loading course", err)
		}

		var quizzes []quiz.Quiz
		if err := svc.gw.Select(ctx, core.CollQuizzes, &quizzes, core.Filter{"course_id": enr.CourseID}); err != nil {
			return Summary{}, core.NewPersistenceError("loading quizzes", err)
		}
		for _, qz := range quizzes {
			if sub, ok := byQuiz[qz.ID]; ok {
				cp.QuizzesTaken++
				if sub.IsPassed {
					cp.QuizzesPassed++
				}
			}
		}

		sum.EnrolledCourses++
		if enr.Completed {
			sum.CompletedCourses++
		}
		progressTotal += enr.Progress
		sum.Courses = append(sum.Courses, cp)
	}

	// quizzes of courses the student is no longer enrolled in still count
	var pctTotal float64
	for _, sub := range subs {
		sum.QuizzesTaken++
		if sub.IsPassed {
			sum.QuizzesPassed++
		}
		pctTotal += sub.Percentage
	}

	if sum.EnrolledCourses > 0 {
		sum.AverageProgress = core.Round2(progressTotal / float64(sum.EnrolledCourses))
	}
	if sum.QuizzesTaken > 0 {
		sum.AveragePercentage = core.Round2(pctTotal / float64(sum.QuizzesTaken))
	}
	return sum, nil
}
