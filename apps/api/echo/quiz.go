package echoapi

import (
	"net/http"
	"net/mail"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/auth"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/quiz"
)

type quizApi struct {
	registry *quiz.Registry
	mailer   core.EmailService
	metrics  *metrics
}

func registerQuizAPI(g *echo.Group, jwt echo.MiddlewareFunc, api *quizApi) {
	ag := g.Group("/quizzes/:id/attempt", jwt)
	ag.POST("", api.start)
	ag.GET("", api.view)
	ag.DELETE("", api.discard)
	ag.PUT("/answers", api.selectAnswer)
	ag.POST("/navigate", api.navigate)
	ag.POST("/submit", api.submit)
	ag.POST("/retake", api.retake)
	ag.POST("/corrections", api.toggleCorrections)
}

type (
	AnswerRequest struct {
		QuestionID string `json:"question_id"`
		Option     string `json:"option"`
	}

	NavigateRequest struct {
		Direction quiz.Direction `json:"direction"`
	}
)

// engine returns the live engine of the session's student for the `id` quiz.
func (api *quizApi) engine(ctx echo.Context) (*quiz.Engine, auth.Session, error) {
	sess, err := mustContextSession(ctx)
	if err != nil {
		return nil, sess, err
	}
	eng, err := api.registry.Get(ctx.Request().Context(), ctx.Param("id"), sess.Identity.ID())
	return eng, sess, err
}

func (api *quizApi) start(ctx echo.Context) error {
	sess, err := mustContextSession(ctx)
	if err != nil {
		return err
	}
	eng, err := api.registry.Open(ctx.Request().Context(), ctx.Param("id"), sess.Identity.ID())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, eng.View())
}

func (api *quizApi) view(ctx echo.Context) error {
	eng, _, err := api.engine(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, eng.View())
}

func (api *quizApi) discard(ctx echo.Context) error {
	sess, err := mustContextSession(ctx)
	if err != nil {
		return err
	}
	api.registry.Drop(ctx.Param("id"), sess.Identity.ID())
	return ctx.NoContent(http.StatusNoContent)
}

func (api *quizApi) selectAnswer(ctx echo.Context) error {
	eng, _, err := api.engine(ctx)
	if err != nil {
		return err
	}
	var data AnswerRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AnswerRequest")
	}
	if err = eng.SelectAnswer(data.QuestionID, data.Option); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, eng.View())
}

func (api *quizApi) navigate(ctx echo.Context) error {
	eng, _, err := api.engine(ctx)
	if err != nil {
		return err
	}
	var data NavigateRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NavigateRequest")
	}
	if err = eng.Navigate(data.Direction); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, eng.View())
}

func (api *quizApi) submit(ctx echo.Context) error {
	eng, sess, err := api.engine(ctx)
	if err != nil {
		return err
	}
	res, err := eng.Submit(ctx.Request().Context())
	if err != nil {
		return err
	}
	api.metrics.submission(res.IsPassed)
	api.sendResult(sess.Identity, eng.Quiz(), res)
	return ctx.JSON(http.StatusOK, eng.View())
}

func (api *quizApi) retake(ctx echo.Context) error {
	eng, _, err := api.engine(ctx)
	if err != nil {
		return err
	}
	if err = eng.Retake(ctx.Request().Context()); err != nil {
		return err
	}
	api.registry.Restart(eng)
	return ctx.JSON(http.StatusOK, eng.View())
}

func (api *quizApi) toggleCorrections(ctx echo.Context) error {
	eng, _, err := api.engine(ctx)
	if err != nil {
		return err
	}
	if _, err = eng.ToggleCorrections(); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, eng.View())
}

func (api *quizApi) sendResult(idt auth.Identity, qz quiz.Quiz, res quiz.Result) {
	if api.mailer == nil {
		return
	}
	api.mailer.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: idt.Profile.DisplayName(), Address: idt.Email()}},
		Subject:      "Your result for " + qz.Title,
		TemplateName: "quiz_result",
		TemplateData: map[string]interface{}{
			"FirstName":    idt.Profile.FirstName,
			"QuizTitle":    qz.Title,
			"Percentage":   res.Percentage,
			"Score":        res.Score,
			"MaxScore":     res.MaxScore,
			"Passed":       res.IsPassed,
			"PassingScore": res.PassingScore,
		},
	})
}
