package ingest

import (
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

// Source is one parsed blog feed: the channel identity plus its entries
// in document order.
type Source struct {
	Title   string
	BlogURL string // channel link, used to resolve the owning writer
	Items   []Item
}

// Item is one entry of a parsed source.
type Item struct {
	Title        string
	Link         string
	ThumbnailURL string
	PublishedAt  int64 // unix millis
}

// ParseSource parses RSS or Atom bytes into a Source. Entries without a
// link are dropped: the link is the identity of the resulting record.
func ParseSource(body []byte) (*Source, error) {
	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	src := &Source{
		Title:   parsed.Title,
		BlogURL: parsed.Link,
	}
	for _, it := range parsed.Items {
		if strings.TrimSpace(it.Link) == "" {
			continue
		}
		item := Item{
			Title:        it.Title,
			Link:         it.Link,
			ThumbnailURL: itemThumbnail(it),
		}
		if it.PublishedParsed != nil {
			item.PublishedAt = it.PublishedParsed.UnixMilli()
		} else if it.UpdatedParsed != nil {
			item.PublishedAt = it.UpdatedParsed.UnixMilli()
		}
		src.Items = append(src.Items, item)
	}
	return src, nil
}

// itemThumbnail prefers the item image, then the first image enclosure.
func itemThumbnail(it *gofeed.Item) string {
	if it.Image != nil && it.Image.URL != "" {
		return it.Image.URL
	}
	for _, enc := range it.Enclosures {
		if strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	return ""
}
