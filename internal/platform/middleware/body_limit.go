package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/rehab/clinic/internal/platform/errs"
)

// BodyLimit rejects request bodies larger than limit ("512K", "2M", "1G") with
// 413 PAYLOAD_TOO_LARGE. Content-Length is checked up front and the body
// reader is capped, so chunked uploads are cut off too. An invalid limit
// panics at startup.
func BodyLimit(limit string) echo.MiddlewareFunc {
	inner := echomw.BodyLimit(limit)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		h := inner(next)
		return func(c echo.Context) error {
			err := h(c)
			if isTooLarge(err) {
				return &errs.HTTPError{
					Code:    "PAYLOAD_TOO_LARGE",
					Message: fmt.Sprintf("Request body exceeds the %s limit", limit),
					Status:  http.StatusRequestEntityTooLarge,
				}
			}
			return err
		}
	}
}

func isTooLarge(err error) bool {
	var he *echo.HTTPError
	return errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge
}
