package libfeed

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// MinItemLength is the shortest body that can hold an item document.
// The feed answers `null` for unknown IDs.
const MinItemLength = 10

// Item types published by the feed.
const (
	TypeStory   = "story"
	TypeComment = "comment"
	TypeJob     = "job"
	TypePoll    = "poll"
	TypePollOpt = "pollopt"
)

// An Item is a single feed record.
type Item struct {
	ID      int64   `json:"id"      msgpack:"id"      storm:"id"`
	Deleted bool    `json:"deleted" msgpack:"deleted"`
	Type    string  `json:"type"    msgpack:"type"    storm:"index"`
	Author  string  `json:"by"      msgpack:"by"      storm:"index"`
	Time    int64   `json:"time"    msgpack:"time"`
	Dead    bool    `json:"dead"    msgpack:"dead"`
	Kids    []int64 `json:"kids"    msgpack:"kids"`
	Title   string  `json:"title"   msgpack:"title"`
	Text    string  `json:"text"    msgpack:"text"`
	Score   int64   `json:"score"   msgpack:"score"`
	URL     string  `json:"url"     msgpack:"url"`
	Parent  int64   `json:"parent"  msgpack:"parent"  storm:"index"`
}

// document mirrors Item with pointers on the fields the feed always sends.
type document struct {
	ID      *int64  `json:"id"`
	Deleted bool    `json:"deleted"`
	Type    *string `json:"type"`
	Author  string  `json:"by"`
	Time    *int64  `json:"time"`
	Dead    bool    `json:"dead"`
	Kids    []int64 `json:"kids"`
	Title   string  `json:"title"`
	Text    string  `json:"text"`
	Score   int64   `json:"score"`
	URL     string  `json:"url"`
	Parent  int64   `json:"parent"`
}

// DecodeItem parses the given raw document into an Item.
// Optional fields missing from the document take their zero value and Kids is never nil.
func DecodeItem(raw string) (*Item, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < MinItemLength {
		return nil, &DecodeError{Err: ErrInvalidBody}
	}

	var doc document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, &DecodeError{Err: errors.Wrap(err, "could not parse document")}
	}

	var id int64
	if doc.ID != nil {
		id = *doc.ID
	}

	switch {
	case doc.ID == nil:
		return nil, &DecodeError{Err: errors.New("missing field id")}
	case doc.Type == nil:
		return nil, &DecodeError{ID: id, Err: errors.New("missing field type")}
	case doc.Time == nil:
		return nil, &DecodeError{ID: id, Err: errors.New("missing field time")}
	}

	item := &Item{
		ID:      id,
		Deleted: doc.Deleted,
		Type:    *doc.Type,
		Author:  doc.Author,
		Time:    *doc.Time,
		Dead:    doc.Dead,
		Kids:    doc.Kids,
		Title:   doc.Title,
		Text:    doc.Text,
		Score:   doc.Score,
		URL:     doc.URL,
		Parent:  doc.Parent,
	}
	if item.Kids == nil {
		item.Kids = []int64{}
	}

	return item, nil
}

// HasParent returns true if the item is attached to another item (comments, poll options).
func (i *Item) HasParent() bool {
	return i.Parent != 0
}
