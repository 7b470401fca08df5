// SPDX-License-Identifier: MIT
// Copyright © 2025–2026 The wikichat authors

package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Page is one Wikipedia article: its canonical title, URL and plain-text
// extract.
type Page struct {
	Title   string
	URL     string
	Extract string
}

// Wikipedia fetches article content through the REST summary endpoint and
// the action API extracts module.
type Wikipedia struct {
	lang    string
	baseURL string // overridable in tests
	client  *http.Client
}

// NewWikipedia builds a client for the given language edition.
func NewWikipedia(lang string) *Wikipedia {
	if lang == "" {
		lang = "es"
	}

	return &Wikipedia{
		lang:    lang,
		baseURL: fmt.Sprintf("https://%s.wikipedia.org", lang),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Search resolves a topic to its article. A missing page returns (nil, nil),
// mirroring a lookup miss rather than an error.
func (w *Wikipedia) Search(ctx context.Context, topic string) (*Page, error) {
	return w.summary(ctx, topic)
}

// ContentFromURL extracts the article title from a Wikipedia URL and fetches
// its plain-text content. An empty string means the page does not exist.
func (w *Wikipedia) ContentFromURL(ctx context.Context, pageURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil {
		return "", fmt.Errorf("parse wikipedia url: %w", err)
	}

	title := strings.TrimPrefix(u.Path, "/wiki/")
	if title == "" || title == u.Path {
		return "", fmt.Errorf("not a wikipedia article url: %s", pageURL)
	}

	page, err := w.summary(ctx, title)
	if err != nil {
		return "", err
	}

	if page == nil {
		return "", nil
	}

	return page.Extract, nil
}

type summaryResponse struct {
	Title   string `json:"title"`
	Extract string `json:"extract"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

func (w *Wikipedia) summary(ctx context.Context, title string) (*Page, error) {
	endpoint := fmt.Sprintf("%s/api/rest_v1/page/summary/%s",
		w.baseURL, url.PathEscape(strings.ReplaceAll(title, " ", "_")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build summary request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch summary: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wikipedia responded %d", resp.StatusCode)
	}

	var parsed summaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}

	page := &Page{
		Title:   parsed.Title,
		URL:     parsed.ContentURLs.Desktop.Page,
		Extract: parsed.Extract,
	}

	if page.URL == "" {
		page.URL = fmt.Sprintf("%s/wiki/%s", w.baseURL, url.PathEscape(strings.ReplaceAll(parsed.Title, " ", "_")))
	}

	return page, nil
}
