package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Item is one persisted Hacker News record. Optional fields are pointers so a
// field missing from the remote payload is stored as NULL rather than a zero
// value. ParentID is a plain reference; the parent may never be stored.
type Item struct {
	ID          int64      `db:"id"`
	Deleted     *bool      `db:"deleted"`
	Type        *string    `db:"type"`
	Time        *time.Time `db:"-"`
	By          *string    `db:"by"`
	Text        *string    `db:"text"`
	Dead        *bool      `db:"dead"`
	ParentID    *int64     `db:"parent_id"`
	Poll        *int64     `db:"poll"`
	URL         *string    `db:"url"`
	Score       *int64     `db:"score"`
	Title       *string    `db:"title"`
	Descendants *int64     `db:"descendants"`
}

// UnixTime returns Time as unix seconds, or nil.
func (i Item) UnixTime() *int64 {
	if i.Time == nil {
		return nil
	}
	ts := i.Time.Unix()
	return &ts
}

// payload mirrors the remote JSON. kids and parts are intentionally not
// declared so the decoder drops them.
type payload struct {
	ID          *int64  `json:"id"`
	Deleted     *bool   `json:"deleted"`
	Type        *string `json:"type"`
	Time        *int64  `json:"time"`
	By          *string `json:"by"`
	Text        *string `json:"text"`
	Dead        *bool   `json:"dead"`
	Parent      *int64  `json:"parent"`
	Poll        *int64  `json:"poll"`
	URL         *string `json:"url"`
	Score       *int64  `json:"score"`
	Title       *string `json:"title"`
	Descendants *int64  `json:"descendants"`
}

// DecodeItem maps a raw remote payload fetched for id onto Item.
func DecodeItem(id int64, raw []byte) (Item, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Item{}, fmt.Errorf("item %d: payload is not an object: %w", id, ErrMalformedRecord)
	}
	var p payload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return Item{}, fmt.Errorf("item %d: %w: %v", id, ErrMalformedRecord, err)
	}
	if p.ID == nil {
		return Item{}, fmt.Errorf("item %d: missing id: %w", id, ErrMalformedRecord)
	}
	if *p.ID != id {
		return Item{}, fmt.Errorf("item %d: payload carries id %d: %w", id, *p.ID, ErrMalformedRecord)
	}
	item := Item{
		ID:          id,
		Deleted:     p.Deleted,
		Type:        p.Type,
		By:          p.By,
		Text:        p.Text,
		Dead:        p.Dead,
		ParentID:    p.Parent,
		Poll:        p.Poll,
		URL:         p.URL,
		Score:       p.Score,
		Title:       p.Title,
		Descendants: p.Descendants,
	}
	if p.Time != nil {
		ts := time.Unix(*p.Time, 0).UTC()
		item.Time = &ts
	}
	return item, nil
}
