package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/auth"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/enrollment"
)

type enrollmentApi struct {
	auth    *auth.Service
	deps    enrollment.Deps
	metrics *metrics
}

func registerEnrollmentAPI(g *echo.Group, optionalJWT echo.MiddlewareFunc, api *enrollmentApi) {
	cg := g.Group("/courses/:id", optionalJWT)
	cg.GET("", api.course)
	cg.POST("/enroll", api.enroll)
	cg.GET("/enroll/return", api.verifyReturn)
	cg.GET("/enroll/pending", api.pending)
}

type (
	CourseResponse struct {
		enrollment.Course
		EffectivePrice float64 `json:"effective_price"`
		IsFree         bool    `json:"is_free"`
	}

	// EnrollmentResponse carries the outcome, and the session when the enrollment signed the payer in.
	EnrollmentResponse struct {
		enrollment.Outcome
		Session *SessionResponse `json:"session,omitempty"`
	}

	PendingResponse struct {
		Found bool             `json:"found"`
		Form  *enrollment.Form `json:"form,omitempty"`
	}
)

// engine returns an Engine for the request's session with the course of the `id` path param loaded.
func (api *enrollmentApi) engine(ctx echo.Context) (*enrollment.Engine, *auth.SessionManager, error) {
	sm := sessionManager(ctx, api.auth)
	eng, err := enrollment.NewEngine(api.deps, sm)
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating enrollment engine")
	}
	if _, err = eng.Load(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return nil, nil, err
	}
	return eng, sm, nil
}

func (api *enrollmentApi) course(ctx echo.Context) error {
	eng, _, err := api.engine(ctx)
	if err != nil {
		return err
	}
	course := eng.Course()
	return ctx.JSON(http.StatusOK, CourseResponse{
		Course:         course,
		EffectivePrice: course.EffectivePrice(),
		IsFree:         course.IsFree(),
	})
}

func (api *enrollmentApi) enroll(ctx echo.Context) error {
	eng, sm, err := api.engine(ctx)
	if err != nil {
		return err
	}
	_, hadSession := sm.Current()

	var form enrollment.Form
	if err = ctx.Bind(&form); err != nil {
		return errors.Wrap(err, "binding to enrollment.Form")
	}

	out, err := eng.Submit(ctx.Request().Context(), form)
	api.metrics.enrollmentOutcome("submit", string(eng.State()))
	if err != nil {
		if errors.Cause(err) == enrollment.ErrWrongPassword {
			return core.NewValidationError(nil, core.FieldError{Field: "password", Error: err.Error()})
		}
		return err
	}

	code := http.StatusOK
	if out.State == enrollment.StateEnrolled {
		code = http.StatusCreated
	}
	return ctx.JSON(code, newEnrollmentResponse(out, sm, hadSession))
}

func (api *enrollmentApi) verifyReturn(ctx echo.Context) error {
	eng, sm, err := api.engine(ctx)
	if err != nil {
		return err
	}
	_, hadSession := sm.Current()

	params := enrollment.ReturnParams{
		Payment:       ctx.QueryParam("payment"),
		TransactionID: ctx.QueryParam("transaction_id"),
		Reference:     ctx.QueryParam("tx_ref"),
		Email:         core.CleanString(ctx.QueryParam("email"), true /* lower */),
	}

	out, err := eng.VerifyReturn(ctx.Request().Context(), params)
	api.metrics.enrollmentOutcome("verify_return", string(eng.State()))
	if err != nil {
		if errors.Cause(err) == enrollment.ErrWrongPassword {
			return core.NewValidationError(nil, core.FieldError{Field: "password", Error: err.Error()})
		}
		return err
	}
	return ctx.JSON(http.StatusOK, newEnrollmentResponse(out, sm, hadSession))
}

func (api *enrollmentApi) pending(ctx echo.Context) error {
	eng, _, err := api.engine(ctx)
	if err != nil {
		return err
	}

	email := core.CleanString(ctx.QueryParam("email"), true /* lower */)
	if email == "" {
		sess, err := mustContextSession(ctx)
		if err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "email", Error: "this field is required"})
		}
		email = sess.Identity.Email()
	}

	form, found, err := eng.RecoveredForm(ctx.Request().Context(), email)
	if err != nil {
		return err
	}
	res := PendingResponse{Found: found}
	if found {
		res.Form = &form
	}
	return ctx.JSON(http.StatusOK, res)
}

func newEnrollmentResponse(out enrollment.Outcome, sm *auth.SessionManager, hadSession bool) EnrollmentResponse {
	res := EnrollmentResponse{Outcome: out}
	if sess, ok := sm.Current(); ok && !hadSession {
		sr := newSessionResponse(sess)
		res.Session = &sr
	}
	return res
}
