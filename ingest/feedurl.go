package ingest

import (
	"fmt"
	"net/url"
	"strings"
)

// FeedURL maps a registered blog URL to the URL of its RSS source.
// Rules cover the blog hosts writers actually register; anything else
// falls back to the common "/rss" suffix convention.
func FeedURL(blogURL string) (string, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(blogURL), "/")
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse blog url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported blog url scheme %q", u.Scheme)
	}
	host := strings.ToLower(u.Host)

	switch {
	case host == "velog.io" || host == "v2.velog.io":
		// velog serves RSS from its API host, keyed by the @handle.
		handle := strings.Trim(u.Path, "/")
		if !strings.HasPrefix(handle, "@") || len(handle) == 1 {
			return "", fmt.Errorf("velog url without @handle: %s", blogURL)
		}
		return "https://v2.velog.io/rss/" + handle, nil

	case host == "medium.com":
		handle := strings.Trim(u.Path, "/")
		if !strings.HasPrefix(handle, "@") || len(handle) == 1 {
			return "", fmt.Errorf("medium url without @handle: %s", blogURL)
		}
		return "https://medium.com/feed/" + handle, nil

	case strings.HasSuffix(host, ".github.io"):
		return trimmed + "/feed.xml", nil

	default:
		// Tistory and most self-hosted blogs expose /rss.
		return trimmed + "/rss", nil
	}
}
