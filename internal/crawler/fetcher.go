package crawler

import (
	"context"
	"sync"
	"time"

	"github.com/mdouchement/feedmirror/pkg/libfeed"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Reasons for which an item is absent from a fetched batch.
const (
	ReasonFetch     = "fetch"
	ReasonDecode    = "decode"
	ReasonInvalid   = "invalid"
	ReasonTimeout   = "timeout"
	ReasonCancelled = "cancelled"
)

type (
	// FetcherOptions are the settings of a Fetcher.
	FetcherOptions struct {
		// Workers is the number of fetching goroutines, 0 means 4.
		Workers int
		// ItemTimeout bounds the wait of one item from the moment a worker picks it up, 0 means 5 seconds.
		ItemTimeout time.Duration
	}

	// A Fetcher fetches and decodes batches of items on a fixed pool of workers.
	Fetcher struct {
		client  libfeed.Client
		timeout time.Duration
		log     logrus.FieldLogger
		jobs    chan job
		wg      sync.WaitGroup
		once    sync.Once
	}

	job struct {
		ctx      context.Context
		id       int64
		outcomes chan<- outcome
	}

	outcome struct {
		id     int64
		item   *libfeed.Item
		reason string
		err    error
	}
)

// NewFetcher starts the workers of a new Fetcher.
func NewFetcher(client libfeed.Client, opts FetcherOptions, log logrus.FieldLogger) *Fetcher {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = 5 * time.Second
	}

	f := &Fetcher{
		client:  client,
		timeout: opts.ItemTimeout,
		log:     log,
		jobs:    make(chan job),
	}

	f.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go f.work()
	}

	return f
}

// Fetch returns the items of the given IDs that were successfully fetched and decoded, in arrival order.
// Missing items are logged and dropped. It must not be called after Close.
func (f *Fetcher) Fetch(ctx context.Context, ids []int64) []*libfeed.Item {
	outcomes := make(chan outcome, len(ids))

	go func() {
		for _, id := range ids {
			select {
			case f.jobs <- job{ctx: ctx, id: id, outcomes: outcomes}:
			case <-ctx.Done():
				outcomes <- outcome{id: id, reason: ReasonCancelled, err: ctx.Err()}
			}
		}
	}()

	items := make([]*libfeed.Item, 0, len(ids))
	for range ids {
		o := <-outcomes
		if o.item != nil {
			items = append(items, o.item)
			continue
		}

		entry := f.log.WithFields(logrus.Fields{"id": o.id, "reason": o.reason})
		if o.err != nil {
			entry = entry.WithError(o.err)
		}
		switch o.reason {
		case ReasonInvalid, ReasonCancelled:
			entry.Debug("item dropped")
		default:
			entry.Warn("item dropped")
		}
	}

	return items
}

// Close stops the workers.
func (f *Fetcher) Close() {
	f.once.Do(func() {
		close(f.jobs)
		f.wg.Wait()
	})
}

func (f *Fetcher) work() {
	defer f.wg.Done()

	for j := range f.jobs {
		j.outcomes <- f.fetch(j.ctx, j.id)
	}
}

func (f *Fetcher) fetch(parent context.Context, id int64) outcome {
	ctx, cancel := context.WithTimeout(parent, f.timeout)
	defer cancel()

	var r libfeed.Response
	select {
	case r = <-f.client.FetchItemAsync(ctx, id):
	case <-ctx.Done():
		// The request is cancelled through ctx, a late response lands in a buffered channel nobody reads.
		if parent.Err() != nil {
			return outcome{id: id, reason: ReasonCancelled, err: parent.Err()}
		}
		return outcome{id: id, reason: ReasonTimeout, err: ctx.Err()}
	}

	if r.Err != nil {
		return outcome{id: id, reason: ReasonFetch, err: r.Err}
	}

	item, err := libfeed.DecodeItem(r.Body)
	if errors.Is(err, libfeed.ErrInvalidBody) {
		return outcome{id: id, reason: ReasonInvalid, err: err}
	}
	if err != nil {
		return outcome{id: id, reason: ReasonDecode, err: err}
	}

	return outcome{id: id, item: item}
}
