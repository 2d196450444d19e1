package dimensions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	DefaultWikipediaBase = "https://en.wikipedia.org"

	wikipediaConfidence = 0.6
	sourceWikipedia     = "Wikipedia infobox"
)

// Wikipedia reads the "Dimensions" row of an English infobox.
type Wikipedia struct {
	client *Client
	base   string
}

func NewWikipedia(client *Client, base string) *Wikipedia {
	if base == "" {
		base = DefaultWikipediaBase
	}
	return &Wikipedia{client: client, base: strings.TrimRight(base, "/")}
}

// PageURL returns the article URL for title.
func (w *Wikipedia) PageURL(title string) string {
	return w.base + "/wiki/" + url.PathEscape(strings.ReplaceAll(strings.TrimSpace(title), " ", "_"))
}

// Fetch looks up the article for title. A missing article or infobox row
// yields a nil result and nil error.
func (w *Wikipedia) Fetch(ctx context.Context, title string) (*Result, error) {
	pageURL := w.PageURL(title)
	body, err := w.client.Get(ctx, pageURL, htmlAccept)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	var cell string
	doc.Find("table.infobox tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if !strings.EqualFold(strings.TrimSpace(row.Find("th").First().Text()), "Dimensions") {
			return true
		}
		cell = strings.Join(strings.Fields(row.Find("td").First().Text()), " ")
		return false
	})
	if cell == "" {
		return nil, nil
	}
	dims := NormalizeText(cell)
	if len(dims) == 0 {
		return nil, nil
	}
	return &Result{
		Name:       title,
		Dims:       dims,
		Source:     sourceWikipedia,
		SourceURL:  pageURL,
		Confidence: wikipediaConfidence,
		Evidence:   []string{"Infobox cell: " + cell},
	}, nil
}
