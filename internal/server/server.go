package server

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mdouchement/feedmirror/internal/crawler"
	"github.com/mdouchement/feedmirror/internal/server/middlewares"
	"github.com/sirupsen/logrus"
)

type (
	// A Scheduler runs the syncs served by the daemon.
	Scheduler interface {
		Trigger()
		Status() crawler.Status
	}

	// A Controller holds the dependencies used to init the server package.
	Controller struct {
		Version   string
		Scheduler Scheduler
		Logger    logrus.FieldLogger
	}
)

// EchoEngine instantiates the wep server.
func EchoEngine(ctrl Controller) *echo.Echo {
	engine := echo.New()
	engine.HideBanner = true
	engine.HidePort = true
	engine.Use(middleware.Recover())
	engine.Use(middleware.Secure())
	engine.Use(middleware.Gzip())

	engine.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogMethod:  true,
		LogURI:     true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ctrl.Logger.WithFields(logrus.Fields{
				"status":  v.Status,
				"latency": v.Latency,
			}).Infof("%s %s", v.Method, v.URI)
			return nil
		},
	}))
	// Error handler
	engine.HTTPErrorHandler = middlewares.HTTPErrorHandler(ctrl.Logger)

	engine.Pre(middleware.Rewrite(map[string]string{
		"/": "/version",
	}))

	////////////
	// Router //
	////////////

	router := engine.Group("")

	// generic handlers
	//
	router.GET("/version", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"version": ctrl.Version,
		})
	})

	//
	// sync handlers
	//
	sync := &sync{
		scheduler: ctrl.Scheduler,
	}
	router.GET("/status", sync.Status)
	router.POST("/sync", sync.Trigger)

	return engine
}

// PrintRoutes prints the Echo engin exposed routes.
func PrintRoutes(e *echo.Echo) {
	ignored := map[string]bool{
		"":   true,
		".":  true,
		"/*": true,
	}

	routes := e.Routes()
	sort.Slice(routes, func(i int, j int) bool {
		return routes[i].Path < routes[j].Path
	})

	fmt.Println("Routes:")
	for _, route := range routes {
		if ignored[route.Path] {
			continue
		}
		fmt.Printf("%6s %s\n", route.Method, route.Path)
	}
}
