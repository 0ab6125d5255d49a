package echoapi

import (
	"net/http"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/auth"
)

const (
	contextTokenKey   = "userToken"
	contextSessionKey = "session"
)

// newJWTMiddleware verifies the bearer token and loads the session of its subject.
// With optional set, requests without an Authorization header go through anonymously.
func newJWTMiddleware(svc *auth.Service, optional bool) echo.MiddlewareFunc {
	conf := middleware.JWTConfig{
		SigningKey:    svc.SigningKey(),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(auth.Claims),
	}
	if optional {
		conf.Skipper = func(ctx echo.Context) bool {
			return ctx.Request().Header.Get(echo.HeaderAuthorization) == ""
		}
	}
	jwtMiddleware := middleware.JWTWithConfig(conf)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return jwtMiddleware(func(ctx echo.Context) error {
			token, ok := ctx.Get(contextTokenKey).(*jwt.Token)
			if !ok {
				return next(ctx) // skipped
			}
			claims, ok := token.Claims.(*auth.Claims)
			if !ok {
				return errUnauthorized
			}
			sess, err := svc.SessionFromClaims(ctx.Request().Context(), token.Raw, claims)
			if err != nil {
				return errors.Wrap(err, "loading session")
			}
			ctx.Set(contextSessionKey, sess)
			return next(ctx)
		})
	}
}

func contextSession(ctx echo.Context) (auth.Session, bool) {
	sess, ok := ctx.Get(contextSessionKey).(auth.Session)
	return sess, ok
}

func mustContextSession(ctx echo.Context) (auth.Session, error) {
	if sess, ok := contextSession(ctx); ok {
		return sess, nil
	}
	return auth.Session{}, errUnauthorized
}

// sessionManager returns a SessionManager for the request, holding its session if any.
func sessionManager(ctx echo.Context, svc *auth.Service) *auth.SessionManager {
	sm := auth.NewSessionManager(svc)
	if sess, ok := contextSession(ctx); ok {
		sm.Restore(sess)
	}
	return sm
}

type authApi struct {
	svc      *auth.Service
	validate *validator.Validate
	metrics  *metrics
}

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, api *authApi) {
	ag := g.Group("/auth")

	// un-authed endpoints
	ag.POST("/signup", api.signUp)
	ag.POST("/login", api.login)

	// authed endpoints
	ag.POST("/token-refresh", api.refreshToken, jwt)
	ag.GET("/me", api.me, jwt)
}

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	SessionResponse struct {
		Token     string        `json:"token"`
		ExpiresAt int64         `json:"expires_at"`
		Identity  auth.Identity `json:"identity"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func newSessionResponse(sess auth.Session) SessionResponse {
	return SessionResponse{
		Token:     sess.AccessToken,
		ExpiresAt: sess.ExpiresAt.Unix(),
		Identity:  sess.Identity,
	}
}

func (api *authApi) signUp(ctx echo.Context) error {
	var data auth.SignUpRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SignUpRequest")
	}
	// self sign ups are students; instructors are promoted by an admin
	data.Role = auth.RoleStudent

	sess, err := auth.NewSessionManager(api.svc).SignUp(ctx.Request().Context(), data)
	if err != nil {
		if errors.Cause(err) == auth.ErrAlreadyRegistered {
			return core.NewValidationError(nil, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	api.metrics.authEvent("signup")
	return ctx.JSON(http.StatusCreated, newSessionResponse(sess))
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sess, err := auth.NewSessionManager(api.svc).SignIn(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		if errors.Cause(err) == auth.ErrInvalidCredentials {
			api.metrics.authEvent("login_failed")
		}
		return err
	}
	api.metrics.authEvent("login")
	return ctx.JSON(http.StatusOK, newSessionResponse(sess))
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	sess, err := sessionManager(ctx, api.svc).RefreshToken(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newSessionResponse(sess))
}

func (api *authApi) me(ctx echo.Context) error {
	sess, err := mustContextSession(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess.Identity)
}
