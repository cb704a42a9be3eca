package server_test

import (
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/appleboy/gofight/v2"
	"github.com/labstack/echo/v4"
	"github.com/mdouchement/feedmirror/internal/crawler"
	"github.com/mdouchement/feedmirror/internal/logger"
	"github.com/mdouchement/feedmirror/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"
)

type scheduler struct {
	triggers int32
	status   crawler.Status
}

func (s *scheduler) Trigger() {
	atomic.AddInt32(&s.triggers, 1)
}

func (s *scheduler) Status() crawler.Status {
	return s.status
}

func TestRequestHome(t *testing.T) {
	engine, _, r := setup()

	r.GET("/").Run(engine, func(r gofight.HTTPResponse, rq gofight.HTTPRequest) {
		assert.Equal(t, http.StatusOK, r.Code)
		assert.JSONEq(t, `{"version":"test"}`, r.Body.String())
	})
}

func TestRequestVersion(t *testing.T) {
	engine, _, r := setup()

	r.GET("/version").Run(engine, func(r gofight.HTTPResponse, rq gofight.HTTPRequest) {
		assert.Equal(t, http.StatusOK, r.Code)
		assert.JSONEq(t, `{"version":"test"}`, r.Body.String())
	})
}

func TestRequestStatus(t *testing.T) {
	engine, s, r := setup()
	s.status = crawler.Status{
		Runs:     3,
		NextTick: time.Date(2022, 12, 25, 10, 0, 0, 0, time.UTC),
		Last: &crawler.Report{
			RunID:    "c5d6f1d2-7e1b-4c4b-9a39-5b0c8d1e2f3a",
			Mode:     crawler.ModeSyncData,
			Cursor:   100,
			Max:      107,
			Position: 107,
			Batches:  2,
			Fetched:  6,
			Stored:   6,
			Dropped:  1,
		},
	}

	r.GET("/status").Run(engine, func(r gofight.HTTPResponse, rq gofight.HTTPRequest) {
		assert.Equal(t, http.StatusOK, r.Code)

		v, err := fastjson.Parse(r.Body.String())
		require.NoError(t, err)
		assert.False(t, v.GetBool("running"))
		assert.Equal(t, 3, v.GetInt("runs"))
		assert.Equal(t, "2022-12-25T10:00:00Z", string(v.GetStringBytes("next_tick")))
		assert.Equal(t, "sync_data", string(v.GetStringBytes("last", "mode")))
		assert.EqualValues(t, 107, v.GetInt64("last", "position"))
		assert.Equal(t, 1, v.GetInt("last", "dropped"))
		assert.False(t, v.Exists("last", "error"))
	})
}

func TestRequestSync(t *testing.T) {
	engine, s, r := setup()

	r.POST("/sync").Run(engine, func(r gofight.HTTPResponse, rq gofight.HTTPRequest) {
		assert.Equal(t, http.StatusAccepted, r.Code)
		assert.JSONEq(t, `{"status":"scheduled"}`, r.Body.String())
	})
	assert.EqualValues(t, 1, atomic.LoadInt32(&s.triggers))

	r.GET("/sync").Run(engine, func(r gofight.HTTPResponse, rq gofight.HTTPRequest) {
		assert.Equal(t, http.StatusMethodNotAllowed, r.Code)
		assert.Equal(t, "Method Not Allowed", fastjson.GetString(r.Body.Bytes(), "error", "message"))
	})
}

func TestRequestWithoutScheduler(t *testing.T) {
	engine := server.EchoEngine(server.Controller{
		Version: "test",
		Logger:  logger.Discard(),
	})
	r := gofight.New()

	r.POST("/sync").Run(engine, func(r gofight.HTTPResponse, rq gofight.HTTPRequest) {
		assert.Equal(t, http.StatusBadRequest, r.Code)
		assert.JSONEq(t, `{"error":{"message":"no scheduler configured"}}`, r.Body.String())
	})
}

func TestRequestNotFound(t *testing.T) {
	engine, _, r := setup()

	r.GET("/items").Run(engine, func(r gofight.HTTPResponse, rq gofight.HTTPRequest) {
		assert.Equal(t, http.StatusNotFound, r.Code)
		assert.Equal(t, "Not Found", fastjson.GetString(r.Body.Bytes(), "error", "message"))
	})
}

func setup() (engine *echo.Echo, s *scheduler, r *gofight.RequestConfig) {
	s = &scheduler{}

	ctrl := server.Controller{
		Version:   "test",
		Scheduler: s,
		Logger:    logger.Discard(),
	}
	engine = server.EchoEngine(ctrl)

	return engine, s, gofight.New()
}
