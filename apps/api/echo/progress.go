package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/progress"
)

type progressApi struct {
	svc *progress.Service
}

func registerProgressAPI(g *echo.Group, jwt echo.MiddlewareFunc, api *progressApi) {
	g.GET("/me/progress", api.mine, jwt)
}

func (api *progressApi) mine(ctx echo.Context) error {
	sess, err := mustContextSession(ctx)
	if err != nil {
		return err
	}
	sum, err := api.svc.ForStudent(ctx.Request().Context(), sess.Identity.ID())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sum)
}
