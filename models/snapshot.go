package models

import (
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// WaitStrategy tells a renderer when a page counts as rendered.
type WaitStrategy struct {
	// Selector must become visible before the snapshot is taken.
	Selector string
	// Idle is a fixed settle period after navigation (and after Selector).
	Idle time.Duration
	// ScrollToBottom keeps scrolling until the document height stops
	// growing, for infinite-scroll result pages.
	ScrollToBottom bool
	MaxScrolls     int
}

// DomSnapshot is the rendered document as seen once the wait strategy
// completed.
type DomSnapshot struct {
	RequestedURL string
	URL          string
	Status       int
	HTML         string
	FetchedAt    time.Time

	once sync.Once
	doc  *goquery.Document
	err  error
}

func NewSnapshot(requestedURL, finalURL string, status int, html string) *DomSnapshot {
	if finalURL == "" {
		finalURL = requestedURL
	}
	return &DomSnapshot{
		RequestedURL: requestedURL,
		URL:          finalURL,
		Status:       status,
		HTML:         html,
		FetchedAt:    time.Now().UTC(),
	}
}

// Document parses the snapshot HTML once and returns the shared document.
func (s *DomSnapshot) Document() (*goquery.Document, error) {
	s.once.Do(func() {
		s.doc, s.err = goquery.NewDocumentFromReader(strings.NewReader(s.HTML))
	})
	return s.doc, s.err
}
