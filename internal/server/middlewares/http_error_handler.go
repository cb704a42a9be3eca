package middlewares

import (
	"fmt"
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/labstack/echo/v4"
	"github.com/mdouchement/feedmirror/internal/fmerror"
	"github.com/sirupsen/logrus"
)

// HTTPErrorHandler returns a middleware that formats rendered errors.
func HTTPErrorHandler(log logrus.FieldLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		switch herr := err.(type) {
		case *echo.HTTPError:
			if herr.Internal != nil {
				log.WithError(herr.Internal).Warn("echo error")
			}
			_ = c.JSON(herr.Code, echo.Map{
				"error": echo.Map{
					"message": herr.Message,
				},
			})
		default:
			status := fmerror.StatusCode(err)
			if status < 500 {
				_ = c.JSON(status, echo.Map{
					"error": echo.Map{
						"message": err.Error(),
					},
				})
				return
			}

			internal(log, status, err, c)
		}
	}
}

func internal(log logrus.FieldLogger, status int, err error, c echo.Context) {
	id := uuid.Must(uuid.NewV4()).String()
	log.WithField("error_id", id).WithError(err).Error("request failed")

	message := fmt.Sprintf("Unexpected error (id: %s)", id)
	if status != http.StatusInternalServerError {
		message = fmt.Sprintf("%s (id: %s)", http.StatusText(status), id)
	}

	_ = c.JSON(status, echo.Map{
		"error": echo.Map{
			"message": message,
		},
	})
}
