package scraper

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"listing-scraper/models"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("listing-scraper/scraper")

const defaultRenderTimeout = 60 * time.Second

type RenderRequest struct {
	URL     string
	Wait    models.WaitStrategy
	Timeout time.Duration
	Blocked BlockDetector
}

func (r RenderRequest) timeout() time.Duration {
	if r.Timeout <= 0 {
		return defaultRenderTimeout
	}
	return r.Timeout
}

// Renderer turns a URL into a DomSnapshot. Failures are *models.RenderError
// values, or the context error when the caller cancelled.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (*models.DomSnapshot, error)
	Close() error
}

// checkSnapshot classifies a snapshot that loaded but should not be
// extracted from.
func checkSnapshot(req RenderRequest, snap *models.DomSnapshot) error {
	if req.Blocked.Matches(snap) {
		return &models.RenderError{Kind: models.KindBlocked, URL: req.URL, Status: snap.Status}
	}
	switch {
	case snap.Status == http.StatusNotFound || snap.Status == http.StatusGone:
		return &models.RenderError{Kind: models.KindNavigation, URL: req.URL, Status: snap.Status}
	case snap.Status >= 500:
		return &models.RenderError{Kind: models.KindNetworkFailure, URL: req.URL, Status: snap.Status}
	}
	return nil
}

// classifyFailure maps a driver error onto the render taxonomy. parent is
// the caller's context: when it is done the failure is a cancellation, not
// a timeout.
func classifyFailure(parent context.Context, url string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.NewRenderError(models.KindTimeout, url, err)
	}
	msg := err.Error()
	if strings.Contains(msg, "invalid URL") || strings.Contains(msg, "ERR_INVALID_URL") ||
		strings.Contains(msg, "unsupported protocol scheme") {
		return models.NewRenderError(models.KindNavigation, url, err)
	}
	return models.NewRenderError(models.KindNetworkFailure, url, err)
}

// reusable reports whether a session that produced err can serve the next
// render. Timeouts and transport failures may leave a tab mid-navigation,
// so those sessions are destroyed.
func reusable(err error) bool {
	if err == nil {
		return true
	}
	kind, ok := models.RenderErrorKind(err)
	if !ok {
		return false
	}
	return kind == models.KindBlocked || kind == models.KindNavigation
}
