package libfeed

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fastjson"
	"golang.org/x/time/rate"
)

// DefaultEndpoint is the public Hacker News API.
const DefaultEndpoint = "https://hacker-news.firebaseio.com/v0/"

type (
	// A Client defines all interactions that can be performed on a feed.
	Client interface {
		// MaxItemID returns the current largest item ID published by the feed.
		MaxItemID(ctx context.Context) (int64, error)
		// FetchItem returns the raw document of the given item.
		FetchItem(ctx context.Context, id int64) (string, error)
		// FetchItemAsync performs FetchItem in background.
		// The returned channel receives exactly one Response and never blocks the sender.
		FetchItemAsync(ctx context.Context, id int64) <-chan Response
	}

	// A Response is the result of an asynchronous fetch.
	Response struct {
		ID   int64
		Body string
		Err  error
	}

	// Options are the optional settings of a Client.
	Options struct {
		// Timeout bounds every HTTP request, 0 means 30 seconds.
		Timeout time.Duration
		// RequestsPerSecond limits the request rate, 0 means unlimited.
		RequestsPerSecond float64
		// UserAgent sent with every request.
		UserAgent string
	}

	client struct {
		http      *http.Client
		endpoint  string
		userAgent string
		limiter   *rate.Limiter
	}
)

// NewDefaultClient returns a new Client with default options.
func NewDefaultClient(endpoint string) (Client, error) {
	return NewClient(endpoint, Options{})
}

// NewClient returns a new Client.
// Certificate validation is disabled on the underlying transport.
func NewClient(endpoint string, opts Options) (Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("endpoint is required")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, errors.Wrap(err, "could not parse endpoint")
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "feedmirror"
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // nolint:gosec

	c := &client{
		http: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		endpoint:  endpoint,
		userAgent: opts.UserAgent,
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return c, nil
}

func (c *client) MaxItemID(ctx context.Context) (int64, error) {
	body, err := c.get(ctx, "maxitem.json")
	if err != nil {
		return 0, fetchError("max item", 0, err)
	}

	v, err := fastjson.Parse(strings.TrimSpace(body))
	if err != nil {
		return 0, &FetchError{Op: "max item", Err: errors.Wrap(err, "could not parse response")}
	}

	id, err := v.Int64()
	if err != nil {
		return 0, &FetchError{Op: "max item", Err: errors.Wrap(err, "could not parse response")}
	}
	return id, nil
}

func (c *client) FetchItem(ctx context.Context, id int64) (string, error) {
	body, err := c.get(ctx, "item", strconv.FormatInt(id, 10)+".json")
	if err != nil {
		return "", fetchError("item", id, err)
	}
	return body, nil
}

func (c *client) FetchItemAsync(ctx context.Context, id int64) <-chan Response {
	ch := make(chan Response, 1)
	go func() {
		body, err := c.FetchItem(ctx, id)
		ch <- Response{ID: id, Body: body, Err: err}
	}()
	return ch
}

func (c *client) get(ctx context.Context, elem ...string) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", errors.Wrap(err, "could not parse endpoint")
	}
	u.Path = path.Join(append([]string{u.Path}, elem...)...)

	query := url.Values{}
	query.Set("print", "pretty")
	u.RawQuery = query.Encode()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", errors.Wrap(err, "rate limiter")
		}
	}

	//
	// Build request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", errors.Wrap(err, "could not build request")
	}
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", c.userAgent)

	//
	// Perform request
	res, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "could not perform request")
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, res.Body)
		return "", &FetchError{StatusCode: res.StatusCode}
	}

	//
	// Process response
	payload, err := io.ReadAll(res.Body)
	if err != nil {
		return "", errors.Wrap(err, "could not read response")
	}
	return string(payload), nil
}

func fetchError(op string, id int64, err error) error {
	var ferr *FetchError
	if errors.As(err, &ferr) {
		ferr.Op = op
		ferr.ID = id
		return ferr
	}
	return &FetchError{Op: op, ID: id, Err: err}
}
