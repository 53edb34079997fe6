// Package feedstore is the durable keyed store for writers, feeds, scrap
// edges, the recommended-feed view, and push tokens.
//
// All timestamps are unix milliseconds. Point lookups return (nil, nil)
// when the record is absent.
package feedstore

import "errors"

// ErrNoWriter is returned when no registered writer matches a blog URL.
var ErrNoWriter = errors.New("feedstore: no writer for blog URL")

// Writer is a registered author; the same record is the user identity
// that owns scrap edges and push tokens.
type Writer struct {
	ID              string `json:"id"`
	Nickname        string `json:"nickname"`
	Ordinal         int    `json:"ordinal"`
	Domain          string `json:"domain"`
	ProfileImageURL string `json:"profile_image_url"`
	BlogTitle       string `json:"blog_title"`
	BlogURL         string `json:"blog_url"`
	IsPushOn        bool   `json:"is_push_on"`
	CreatedAt       int64  `json:"created_at"`
}

// Feed is one ingested content item. Immutable once written: the id is a
// deterministic hash of the item URL, so re-ingesting the same item is a
// no-op rather than an update.
type Feed struct {
	ID           string `json:"id"`
	WriterID     string `json:"writer_id"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url"`
	Content      string `json:"content"`
	PublishedAt  int64  `json:"published_at"`
	RegisteredAt int64  `json:"registered_at"`
}

// ScrapEdge is one user's bookmark of one feed.
type ScrapEdge struct {
	FeedID     string `json:"feed_id"`
	UserID     string `json:"user_id"`
	ScrappedAt int64  `json:"scrapped_at"`
}

// Cursor marks the last-seen position in the publish-ordered feed list.
// Ordering is published_at descending, id ascending on ties.
type Cursor struct {
	PublishedAt int64  `json:"published_at"`
	ID          string `json:"id"`
}
