package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/feedmirror/internal/fmerror"
)

type sync struct {
	scheduler Scheduler
}

// Status renders the scheduler state and its last report.
func (h *sync) Status(c echo.Context) error {
	if h.scheduler == nil {
		return fmerror.Config("no scheduler configured")
	}
	return c.JSON(http.StatusOK, h.scheduler.Status())
}

// Trigger requests a catch-up run.
func (h *sync) Trigger(c echo.Context) error {
	if h.scheduler == nil {
		return fmerror.Config("no scheduler configured")
	}

	h.scheduler.Trigger()
	return c.JSON(http.StatusAccepted, echo.Map{
		"status": "scheduled",
	})
}
