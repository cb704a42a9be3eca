package crawler_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/mdouchement/feedmirror/internal/database"
	"github.com/mdouchement/feedmirror/internal/fmerror"
	"github.com/mdouchement/feedmirror/pkg/libfeed"
)

type fakeClient struct {
	mu       sync.Mutex
	max      int64
	maxErr   error
	bodies   map[int64]string
	failures map[int64]error
	hangs    map[int64]bool
	fetched  []int64
	singles  []int64
}

func newFakeClient(max int64) *fakeClient {
	return &fakeClient{
		max:      max,
		bodies:   map[int64]string{},
		failures: map[int64]error{},
		hangs:    map[int64]bool{},
	}
}

func (c *fakeClient) MaxItemID(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.max, c.maxErr
}

func (c *fakeClient) FetchItem(_ context.Context, id int64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.singles = append(c.singles, id)
	return c.body(id)
}

func (c *fakeClient) FetchItemAsync(_ context.Context, id int64) <-chan libfeed.Response {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fetched = append(c.fetched, id)
	ch := make(chan libfeed.Response, 1)
	if c.hangs[id] {
		return ch // Never completes, whatever the context.
	}

	body, err := c.body(id)
	ch <- libfeed.Response{ID: id, Body: body, Err: err}
	return ch
}

func (c *fakeClient) body(id int64) (string, error) {
	if err, ok := c.failures[id]; ok {
		return "", err
	}
	if body, ok := c.bodies[id]; ok {
		return body, nil
	}
	return fmt.Sprintf(`{"id":%d,"type":"comment","by":"pg","time":1175714200,"parent":%d}`, id, id-1), nil
}

func (c *fakeClient) fetchedIDs() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.fetched...)
}

type fakeStore struct {
	mu        sync.Mutex
	items     map[int64]*libfeed.Item
	batchErr  error
	cursorErr error
	ones      int
	batches   [][]int64
}

func newFakeStore(ids ...int64) *fakeStore {
	s := &fakeStore{items: map[int64]*libfeed.Item{}}
	for _, id := range ids {
		s.items[id] = &libfeed.Item{ID: id}
	}
	return s
}

func (s *fakeStore) Backend() string              { return "fake" }
func (s *fakeStore) Init(_ context.Context) error { return nil }
func (s *fakeStore) Close() error                 { return nil }

func (s *fakeStore) LastKnownID(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursorErr != nil {
		return 0, fmerror.Store("fake", "last known id", s.cursorErr)
	}
	if len(s.items) == 0 {
		return 0, fmerror.Store("fake", "last known id", database.ErrEmpty)
	}

	var id int64
	for k := range s.items {
		if k > id {
			id = k
		}
	}
	return id, nil
}

func (s *fakeStore) StoreOne(_ context.Context, item *libfeed.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ones++
	s.items[item.ID] = item
	return nil
}

func (s *fakeStore) StoreBatch(_ context.Context, items []*libfeed.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	s.batches = append(s.batches, ids)

	if s.batchErr != nil {
		return fmerror.Store("fake", "store batch", s.batchErr)
	}
	for _, item := range items {
		s.items[item.ID] = item
	}
	return nil
}

func (s *fakeStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items), nil
}
