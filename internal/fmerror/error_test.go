package fmerror_test

import (
	"net/http"
	"testing"

	"github.com/mdouchement/feedmirror/internal/fmerror"
	"github.com/mdouchement/feedmirror/pkg/libfeed"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestStoreError(t *testing.T) {
	assert.Nil(t, fmerror.Store("sqlite", "insert", nil))

	cause := errors.New("disk full")
	err := fmerror.Store("sqlite", "insert", cause)

	assert.Equal(t, "sqlite: insert: disk full", err.Error())
	assert.True(t, errors.Is(err, cause))
}

func TestUnsupported(t *testing.T) {
	err := fmerror.Unsupported("run_all", "file")

	assert.Equal(t, `unsupported mode "run_all" with backend "file"`, err.Error())
	assert.Equal(t, fmerror.KindConfig, fmerror.KindOf(err))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, fmerror.Kind(""), fmerror.KindOf(nil))
	assert.Equal(t, fmerror.KindUnknown, fmerror.KindOf(errors.New("boom")))
	assert.Equal(t, fmerror.KindFetch, fmerror.KindOf(errors.Wrap(&libfeed.FetchError{Op: "max item"}, "read max")))
	assert.Equal(t, fmerror.KindDecode, fmerror.KindOf(&libfeed.DecodeError{ID: 1, Err: libfeed.ErrInvalidBody}))
	assert.Equal(t, fmerror.KindStore, fmerror.KindOf(errors.Wrap(fmerror.Store("file", "cursor", errors.New("closed")), "read cursor")))
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, fmerror.StatusCode(fmerror.Config("bad")))
	assert.Equal(t, http.StatusBadGateway, fmerror.StatusCode(&libfeed.FetchError{Op: "item", ID: 1}))
	assert.Equal(t, http.StatusServiceUnavailable, fmerror.StatusCode(fmerror.Store("postgres", "ping", errors.New("refused"))))
	assert.Equal(t, http.StatusInternalServerError, fmerror.StatusCode(errors.New("boom")))
}
