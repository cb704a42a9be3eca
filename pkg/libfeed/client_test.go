package libfeed_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mdouchement/feedmirror/pkg/libfeed"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/v0/maxitem.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pretty", r.URL.Query().Get("print"))
		w.Write([]byte("8864\n"))
	})
	mux.HandleFunc("/v0/item/8863.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 8863, "type": "story", "time": 1175714200, "by": "dhouston"}`))
	})
	mux.HandleFunc("/v0/item/8864.json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	// TLS with a self-signed certificate, the client must not verify it.
	server := httptest.NewTLSServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestClient_MaxItemID(t *testing.T) {
	server := feed(t)

	client, err := libfeed.NewDefaultClient(server.URL + "/v0/")
	require.NoError(t, err)

	id, err := client.MaxItemID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(8864), id)
}

func TestClient_MaxItemID_Malformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>oops</html>"))
	}))
	defer server.Close()

	client, err := libfeed.NewDefaultClient(server.URL)
	require.NoError(t, err)

	_, err = client.MaxItemID(context.Background())

	var ferr *libfeed.FetchError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, "max item", ferr.Op)
}

func TestClient_FetchItem(t *testing.T) {
	server := feed(t)

	client, err := libfeed.NewDefaultClient(server.URL + "/v0")
	require.NoError(t, err)

	raw, err := client.FetchItem(context.Background(), 8863)
	require.NoError(t, err)

	item, err := libfeed.DecodeItem(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(8863), item.ID)
	assert.Equal(t, "dhouston", item.Author)
}

func TestClient_FetchItem_Status(t *testing.T) {
	server := feed(t)

	client, err := libfeed.NewDefaultClient(server.URL + "/v0/")
	require.NoError(t, err)

	_, err = client.FetchItem(context.Background(), 8864)

	var ferr *libfeed.FetchError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, int64(8864), ferr.ID)
	assert.Equal(t, http.StatusServiceUnavailable, ferr.StatusCode)
	assert.Equal(t, "item 8864: status 503", ferr.Error())
}

func TestClient_FetchItemAsync(t *testing.T) {
	server := feed(t)

	client, err := libfeed.NewDefaultClient(server.URL + "/v0/")
	require.NoError(t, err)

	ok := client.FetchItemAsync(context.Background(), 8863)
	ko := client.FetchItemAsync(context.Background(), 8864)

	res := <-ok
	assert.Equal(t, int64(8863), res.ID)
	assert.NoError(t, res.Err)
	assert.Contains(t, res.Body, "dhouston")

	res = <-ko
	assert.Equal(t, int64(8864), res.ID)
	assert.Error(t, res.Err)
}

func TestClient_RateLimit(t *testing.T) {
	server := feed(t)

	client, err := libfeed.NewClient(server.URL+"/v0/", libfeed.Options{RequestsPerSecond: 20})
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.FetchItem(context.Background(), 8863)
		require.NoError(t, err)
	}
	// Burst of 1, the two following requests wait 50ms each.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestNewClient_Endpoint(t *testing.T) {
	_, err := libfeed.NewDefaultClient("")
	assert.Error(t, err)
}
