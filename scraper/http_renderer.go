package scraper

import (
	"context"
	"fmt"

	"listing-scraper/models"
	"listing-scraper/utils"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// HTTPRenderer fetches pages without a browser. Sites that render their
// results server-side do not need Chrome; wait strategies are ignored.
type HTTPRenderer struct {
	pool   *SessionPool[*resty.Client]
	logger *zap.Logger
}

func NewHTTPRenderer(sessions int, logger *zap.Logger) *HTTPRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &HTTPRenderer{logger: logger}
	r.pool = NewSessionPool(sessions, r.newClient, func(*resty.Client) {})
	return r
}

func (r *HTTPRenderer) newClient(context.Context) (*resty.Client, error) {
	client := resty.New().
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10)).
		SetHeader("User-Agent", utils.RandomUserAgent()).
		SetHeader("Accept", "text/html,application/xhtml+xml").
		SetHeader("Accept-Language", "en-US,en;q=0.9")
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		r.logger.Debug("http response",
			zap.String("url", res.Request.URL),
			zap.Int("status", res.StatusCode()),
			zap.Duration("took", res.Time()),
		)
		return nil
	})
	return client, nil
}

func (r *HTTPRenderer) Render(ctx context.Context, req RenderRequest) (*models.DomSnapshot, error) {
	ctx, span := tracer.Start(ctx, "http.render", trace.WithAttributes(attribute.String("url", req.URL)))
	defer span.End()

	if !utils.ValidPageURL(req.URL) {
		err := models.NewRenderError(models.KindNavigation, req.URL, fmt.Errorf("invalid URL"))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var snap *models.DomSnapshot
	err := r.pool.With(ctx, func(ctx context.Context, client *resty.Client) error {
		runCtx, cancel := context.WithTimeout(ctx, req.timeout())
		defer cancel()

		res, err := client.R().SetContext(runCtx).Get(req.URL)
		if err != nil {
			return classifyFailure(ctx, req.URL, err)
		}
		finalURL := req.URL
		if res.RawResponse != nil && res.RawResponse.Request != nil {
			finalURL = res.RawResponse.Request.URL.String()
		}
		snap = models.NewSnapshot(req.URL, finalURL, res.StatusCode(), res.String())
		return checkSnapshot(req, snap)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("status", snap.Status))
	return snap, nil
}

func (r *HTTPRenderer) Close() error {
	r.pool.Close()
	return nil
}
