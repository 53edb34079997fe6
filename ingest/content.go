package ingest

import (
	"context"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
)

// ContentFetcher retrieves a post page and reduces it to storable text:
// sanitize the HTML, then convert to markdown.
type ContentFetcher struct {
	fetcher *Fetcher
	policy  *bluemonday.Policy
	conv    *converter.Converter
}

// NewContentFetcher creates a ContentFetcher sharing the given Fetcher.
func NewContentFetcher(fetcher *Fetcher) *ContentFetcher {
	return &ContentFetcher{
		fetcher: fetcher,
		policy:  bluemonday.UGCPolicy(),
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// FetchContent GETs a post URL and returns its markdown text.
func (c *ContentFetcher) FetchContent(ctx context.Context, postURL string) (string, error) {
	body, err := c.fetcher.Fetch(ctx, postURL)
	if err != nil {
		return "", err
	}
	return c.toMarkdown(string(body), postURL), nil
}

// toMarkdown converts sanitized HTML to markdown. If conversion fails or
// produces empty output, falls back to the sanitized text itself.
func (c *ContentFetcher) toMarkdown(html, sourceURL string) string {
	clean := c.policy.Sanitize(html)
	result, err := c.conv.ConvertString(clean, converter.WithDomain(sourceURL))
	if err != nil || strings.TrimSpace(result) == "" {
		return strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(clean))
	}
	return strings.TrimSpace(result)
}
