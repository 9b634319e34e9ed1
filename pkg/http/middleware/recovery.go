package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"ArbPull/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Recover turns a handler panic into a 500 and logs the stack.
func Recover(l *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				perr, ok := r.(error)
				if !ok {
					perr = fmt.Errorf("%v", r)
				}
				l.Error("http handler panic",
					logger.String("route", routeOf(c)),
					logger.String("stack", string(debug.Stack())),
					logger.Error(perr),
				)
				err = echo.NewHTTPError(http.StatusInternalServerError, "Internal Server Error").SetInternal(perr)
			}()
			return next(c)
		}
	}
}
