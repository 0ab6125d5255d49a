package echoapi

import (
	"net/http"
	"reflect"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/auth"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/enrollment"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/quiz"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/services/payment"
)

var errUnauthorized = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")

// domainErrors maps the sentinel errors of the engines to HTTP errors.
var domainErrors = map[error]*echo.HTTPError{
	auth.ErrInvalidCredentials: echo.NewHTTPError(http.StatusBadRequest, auth.ErrInvalidCredentials.Error()),
	auth.ErrAccountDeactivated: echo.NewHTTPError(http.StatusForbidden, auth.ErrAccountDeactivated.Error()),
	auth.ErrInvalidToken:       echo.NewHTTPError(http.StatusUnauthorized, auth.ErrInvalidToken.Error()),
	auth.ErrRefreshExpired:     echo.NewHTTPError(http.StatusForbidden, auth.ErrRefreshExpired.Error()),
	auth.ErrNotFound:           echo.NewHTTPError(http.StatusNotFound, auth.ErrNotFound.Error()),

	quiz.ErrNotFound:        echo.NewHTTPError(http.StatusNotFound, quiz.ErrNotFound.Error()),
	quiz.ErrNotInProgress:   echo.NewHTTPError(http.StatusConflict, quiz.ErrNotInProgress.Error()),
	quiz.ErrNotSubmitted:    echo.NewHTTPError(http.StatusConflict, quiz.ErrNotSubmitted.Error()),
	quiz.ErrMissingAnswer:   echo.NewHTTPError(http.StatusConflict, quiz.ErrMissingAnswer.Error()),
	quiz.ErrUnknownQuestion: echo.NewHTTPError(http.StatusBadRequest, quiz.ErrUnknownQuestion.Error()),
	quiz.ErrBadDirection:    echo.NewHTTPError(http.StatusBadRequest, quiz.ErrBadDirection.Error()),

	enrollment.ErrCourseNotFound:     echo.NewHTTPError(http.StatusNotFound, enrollment.ErrCourseNotFound.Error()),
	enrollment.ErrPaymentCancelled:   echo.NewHTTPError(http.StatusConflict, enrollment.ErrPaymentCancelled.Error()),
	enrollment.ErrPaymentNotVerified: echo.NewHTTPError(http.StatusPaymentRequired, enrollment.ErrPaymentNotVerified.Error()),
	enrollment.ErrPaymentMismatch:    echo.NewHTTPError(http.StatusConflict, enrollment.ErrPaymentMismatch.Error()),
}

// domainError looks cause up in domainErrors. Errors of uncomparable types, like validator.ValidationErrors, are never sentinels.
func domainError(cause error) (*echo.HTTPError, bool) {
	if t := reflect.TypeOf(cause); t == nil || !t.Comparable() {
		return nil, false
	}
	herr, ok := domainErrors[cause]
	return herr, ok
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if herr, ok := domainError(cause); ok {
			cause = herr
		}

		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			code = http.StatusBadRequest
			message = core.TranslateErrors(origErr, translator)
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *enrollment.UnrecoverableError:
			code = http.StatusUnauthorized
			message = echo.Map{"error": origErr.Error(), "login_url": origErr.LoginURL}
		case *payment.ProviderError:
			code = http.StatusBadGateway
			message = "payment provider unavailable, please try again"
			logger.Error(origErr.Error(), err)
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			args := []interface{}{errors.Wrap(err, msg)}
			if sess, ok := contextSession(ctx); ok {
				args = append(args, sess.Identity)
			}
			logger.Error(msg, args...)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
