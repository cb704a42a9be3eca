package crawler

import (
	"context"
	"strconv"
	"time"

	"github.com/gofrs/uuid"
	"github.com/mdouchement/feedmirror/internal/config"
	"github.com/mdouchement/feedmirror/internal/database"
	"github.com/mdouchement/feedmirror/internal/fmerror"
	"github.com/mdouchement/feedmirror/pkg/libfeed"
	"github.com/pkg/errors"
	"github.com/sanity-io/litter"
	"github.com/sirupsen/logrus"
)

// Run modes.
const (
	ModeRunOne   = "run_one"
	ModeRunMany  = "run_many"
	ModeSyncData = "sync_data"
)

// Modes lists the supported run modes.
var Modes = []string{ModeRunOne, ModeRunMany, ModeSyncData}

type (
	// An Engine mirrors the feed into a store.
	// It is not safe for concurrent runs.
	Engine struct {
		client  libfeed.Client
		store   database.Store
		fetcher *Fetcher
		cfg     config.Crawler
		log     logrus.FieldLogger
	}

	// A Batch is an inclusive range of item IDs.
	Batch struct {
		Low  int64
		High int64
	}

	// A Report summarizes one run.
	Report struct {
		RunID     string        `json:"run_id"`
		Mode      string        `json:"mode"`
		Cursor    int64         `json:"cursor"`
		Max       int64         `json:"max"`
		Position  int64         `json:"position"`
		Batches   int           `json:"batches"`
		Fetched   int           `json:"fetched"`
		Stored    int           `json:"stored"`
		Dropped   int           `json:"dropped"`
		StartedAt time.Time     `json:"started_at"`
		Duration  time.Duration `json:"duration"`
		Error     string        `json:"error,omitempty"`
	}
)

// NewEngine returns a new Engine. Close must be called to release its workers.
func NewEngine(client libfeed.Client, store database.Store, cfg config.Crawler, log logrus.FieldLogger) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.RunManyLimit <= 0 {
		cfg.RunManyLimit = 5
	}

	return &Engine{
		client: client,
		store:  store,
		fetcher: NewFetcher(client, FetcherOptions{
			Workers:     cfg.Workers,
			ItemTimeout: cfg.ItemTimeout,
		}, log),
		cfg: cfg,
		log: log,
	}
}

// Close releases the fetching workers.
func (e *Engine) Close() {
	e.fetcher.Close()
}

// Run executes the given mode.
func (e *Engine) Run(ctx context.Context, mode string) (Report, error) {
	switch mode {
	case ModeRunOne:
		return e.RunOne(ctx)
	case ModeRunMany:
		return e.RunMany(ctx)
	case ModeSyncData:
		return e.SyncData(ctx)
	}
	return Report{Mode: mode}, fmerror.Unsupported(mode, e.store.Backend())
}

// RunOne stores the newest item of the feed if it is not known yet.
func (e *Engine) RunOne(ctx context.Context) (report Report, err error) {
	report, log := e.start(ModeRunOne)
	defer e.finish(&report, &err, log)

	if report.Max, report.Cursor, err = e.bounds(ctx); err != nil {
		return report, err
	}
	report.Position = report.Cursor

	if report.Max <= report.Cursor {
		log.Debug("nothing to fetch")
		return report, nil
	}
	report.Position = report.Max

	body, err := e.client.FetchItem(ctx, report.Max)
	if err != nil {
		report.Dropped++
		return report, errors.Wrap(err, "could not fetch newest item")
	}

	item, err := libfeed.DecodeItem(body)
	if err != nil {
		report.Dropped++
		return report, errors.Wrap(err, "could not decode newest item")
	}
	report.Fetched++

	log.Debug(litter.Sdump(item))

	if err = e.store.StoreOne(ctx, item); err != nil {
		report.Dropped++
		return report, errors.Wrap(err, "could not store newest item")
	}
	report.Stored++

	return report, nil
}

// RunMany catches up at most RunManyLimit items.
func (e *Engine) RunMany(ctx context.Context) (Report, error) {
	return e.catchUp(ctx, ModeRunMany, int64(e.cfg.RunManyLimit))
}

// SyncData catches up every item published before the run started.
func (e *Engine) SyncData(ctx context.Context) (Report, error) {
	return e.catchUp(ctx, ModeSyncData, 0)
}

func (e *Engine) catchUp(ctx context.Context, mode string, limit int64) (report Report, err error) {
	report, log := e.start(mode)
	defer e.finish(&report, &err, log)

	if report.Max, report.Cursor, err = e.bounds(ctx); err != nil {
		return report, err
	}
	report.Position = report.Cursor

	target := report.Max
	if limit > 0 && report.Cursor+limit < target {
		target = report.Cursor + limit
	}

	size := int64(e.cfg.BatchSize)
	for batch, ok := NextBatch(report.Cursor, target, size); ok; batch, ok = NextBatch(batch.High, target, size) {
		if err = ctx.Err(); err != nil {
			log.WithField("position", report.Position).Info("run interrupted")
			return report, errors.Wrap(err, "run interrupted")
		}

		blog := log.WithField("batch", batch.String())
		ids := batch.IDs()

		items := e.fetcher.Fetch(ctx, ids)
		report.Batches++
		report.Fetched += len(items)
		report.Dropped += len(ids) - len(items)

		stored := len(items)
		if err := e.store.StoreBatch(ctx, items); err != nil {
			blog.WithError(err).Warn("could not store batch")
			report.Dropped += stored
			stored = 0
		}
		report.Stored += stored

		report.Position = batch.High
		blog.WithField("stored", stored).Debug("batch done")
	}

	return report, nil
}

// bounds reads the newest feed ID and the store cursor.
// An empty store starts from crawler.start_id.
func (e *Engine) bounds(ctx context.Context) (newest, cursor int64, err error) {
	newest, err = e.client.MaxItemID(ctx)
	if err != nil {
		return 0, 0, errors.Wrap(err, "could not read max item id")
	}

	cursor, err = e.store.LastKnownID(ctx)
	if errors.Is(err, database.ErrEmpty) {
		if e.cfg.StartID <= 0 {
			err = fmerror.Config("store is empty and crawler.start_id is not set")
			return newest, 0, errors.Wrap(err, "could not read last known id")
		}
		return newest, e.cfg.StartID, nil
	}
	if err != nil {
		return newest, 0, errors.Wrap(err, "could not read last known id")
	}

	return newest, cursor, nil
}

func (e *Engine) start(mode string) (Report, logrus.FieldLogger) {
	report := Report{
		RunID:     uuid.Must(uuid.NewV4()).String(),
		Mode:      mode,
		StartedAt: time.Now(),
	}

	return report, e.log.WithFields(logrus.Fields{
		"run_id":  report.RunID,
		"mode":    mode,
		"backend": e.store.Backend(),
	})
}

func (e *Engine) finish(report *Report, err *error, log logrus.FieldLogger) {
	report.Duration = time.Since(report.StartedAt)

	log = log.WithFields(logrus.Fields{
		"cursor":   report.Cursor,
		"max":      report.Max,
		"position": report.Position,
		"stored":   report.Stored,
		"dropped":  report.Dropped,
		"duration": report.Duration.Round(time.Millisecond),
	})
	if *err != nil {
		report.Error = (*err).Error()
		log.WithError(*err).Error("run failed")
		return
	}
	log.Info("run done")
}

// NextBatch returns the batch following pos, capped at target and at size IDs.
// It returns false once pos reached target.
func NextBatch(pos, target, size int64) (Batch, bool) {
	if pos >= target {
		return Batch{}, false
	}
	if size <= 0 {
		size = 1
	}

	to := pos + size
	if to > target {
		to = target
	}
	return Batch{Low: pos + 1, High: to}, true
}

// IDs returns all the IDs of the batch.
func (b Batch) IDs() []int64 {
	ids := make([]int64, 0, b.High-b.Low+1)
	for id := b.Low; id <= b.High; id++ {
		ids = append(ids, id)
	}
	return ids
}

func (b Batch) String() string {
	return "[" + strconv.FormatInt(b.Low, 10) + ", " + strconv.FormatInt(b.High, 10) + "]"
}
