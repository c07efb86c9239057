package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"listing-scraper/models"
	"listing-scraper/services"
	"listing-scraper/utils"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type State string

const (
	StateStart      State = "Start"
	StateFetching   State = "Fetching"
	StateExtracting State = "Extracting"
	StateAdvancing  State = "Advancing"
	StateDone       State = "Done"
	StateAborted    State = "Aborted"
	StateCancelled  State = "Cancelled"
)

// Outcome is how a controller run ended. Records live in the pipeline the
// controller was given.
type Outcome struct {
	State        State
	PagesVisited int
	Errors       []models.ErrorEntry
	Err          error
}

func (o Outcome) JobState() models.JobState {
	switch o.State {
	case StateDone:
		return models.StateDone
	case StateCancelled:
		return models.StateCancelled
	}
	return models.StateAborted
}

// Controller walks one job's pages: fetch, extract, advance, until the page
// limit, the last page, a repeated cursor or an unrecoverable failure.
type Controller struct {
	job      models.ScrapeJob
	adapter  Adapter
	renderer Renderer
	retrier  *utils.Retrier
	pipeline *services.Pipeline
	logger   *zap.Logger

	minDelay, maxDelay   time.Duration
	detailMin, detailMax time.Duration
	delay                func(ctx context.Context, min, max time.Duration) error

	state        State
	seen         map[string]bool
	pagesVisited int
	errors       []models.ErrorEntry
}

type ControllerOption func(*Controller)

// WithPageDelay sets the random pause between consecutive pages.
func WithPageDelay(min, max time.Duration) ControllerOption {
	return func(c *Controller) {
		c.minDelay, c.maxDelay = min, max
	}
}

// WithDetailDelay sets the random pause between detail pages.
func WithDetailDelay(min, max time.Duration) ControllerOption {
	return func(c *Controller) {
		c.detailMin, c.detailMax = min, max
	}
}

func withDelayFunc(fn func(ctx context.Context, min, max time.Duration) error) ControllerOption {
	return func(c *Controller) {
		c.delay = fn
	}
}

func NewController(job models.ScrapeJob, adapter Adapter, renderer Renderer, retrier *utils.Retrier, pipeline *services.Pipeline, logger *zap.Logger, opts ...ControllerOption) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		job:       job,
		adapter:   adapter,
		renderer:  renderer,
		retrier:   retrier,
		pipeline:  pipeline,
		logger:    logger.With(zap.String("job_id", job.JobID), zap.String("site", adapter.SiteID())),
		delay:     utils.RandomDelay,
		detailMin: time.Second,
		detailMax: 3 * time.Second,
		state:     StateStart,
		seen:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) State() State {
	return c.state
}

func (c *Controller) Run(ctx context.Context) Outcome {
	ctx, span := tracer.Start(ctx, "job.paginate", trace.WithAttributes(
		attribute.String("job_id", c.job.JobID),
		attribute.String("site", c.adapter.SiteID()),
	))
	defer span.End()

	out := c.run(ctx)
	span.SetAttributes(
		attribute.String("state", string(out.State)),
		attribute.Int("pages_visited", out.PagesVisited),
	)
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Err.Error())
	}
	return out
}

func (c *Controller) run(ctx context.Context) Outcome {
	cursor, err := c.adapter.BuildStartURL(c.job)
	if err != nil {
		c.record(models.ErrorEntry{Cursor: c.job.StartURL, Kind: models.KindNavigation, Attempt: 1, Message: err.Error()})
		return c.finish(StateAborted, fmt.Errorf("build start url: %w", err))
	}

	for {
		if ctx.Err() != nil {
			return c.finish(StateCancelled, ctx.Err())
		}

		c.transition(StateFetching)
		c.seen[c.seenKey(cursor)] = true
		snap, err := c.fetch(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return c.finish(StateCancelled, ctx.Err())
			}
			return c.finish(StateAborted, err)
		}
		c.logger.Info("page_fetched",
			zap.String("cursor", cursor.String()),
			zap.Int("status", snap.Status),
			zap.Int("page", c.pagesVisited+1),
		)

		c.transition(StateExtracting)
		raws, err := c.adapter.ExtractRecords(snap)
		if err != nil {
			c.record(models.ErrorEntry{Cursor: cursor.String(), Kind: models.KindMalformedRecord, Attempt: 1, Message: err.Error()})
			c.logger.Warn("extract failed", zap.String("cursor", cursor.String()), zap.Error(err))
		}
		if enricher, ok := c.adapter.(DetailEnricher); ok && !c.job.SkipDetails {
			raws, err = c.enrich(ctx, enricher, raws)
			if err != nil {
				return c.finish(StateCancelled, err)
			}
		}
		accepted := c.pipeline.Ingest(c.adapter.SiteID(), raws, snap.FetchedAt)
		c.pagesVisited++
		c.logger.Info("records_extracted",
			zap.String("cursor", cursor.String()),
			zap.Int("raw", len(raws)),
			zap.Int("accepted", accepted),
		)

		c.transition(StateAdvancing)
		if c.job.PageLimitReached(c.pagesVisited) {
			c.logger.Debug("page limit reached", zap.Int("max_pages", c.job.MaxPages))
			return c.finish(StateDone, nil)
		}
		next, ok := c.adapter.NextPageCursor(snap, cursor)
		if !ok {
			return c.finish(StateDone, nil)
		}
		if c.seen[c.seenKey(next)] {
			c.logger.Warn("pagination cycle detected", zap.String("cursor", next.String()))
			return c.finish(StateDone, nil)
		}

		if err := c.delay(ctx, c.minDelay, c.maxDelay); err != nil {
			return c.finish(StateCancelled, err)
		}
		c.logger.Info("page_advanced", zap.String("from", cursor.String()), zap.String("to", next.String()))
		cursor = next
	}
}

func (c *Controller) fetch(ctx context.Context, cursor models.PageCursor) (*models.DomSnapshot, error) {
	url, err := c.adapter.ResolveURL(cursor)
	if err != nil {
		c.record(models.ErrorEntry{Cursor: cursor.String(), Kind: models.KindNavigation, Attempt: 1, Message: err.Error()})
		return nil, models.NewRenderError(models.KindNavigation, cursor.String(), err)
	}

	return c.render(ctx, cursor.String(), RenderRequest{
		URL:     url,
		Wait:    c.adapter.WaitStrategy(),
		Timeout: c.job.Timeout,
		Blocked: c.adapter.BlockDetector(),
	})
}

// render runs one request under the retry rules. Failed attempts are
// recorded against label.
func (c *Controller) render(ctx context.Context, label string, req RenderRequest) (*models.DomSnapshot, error) {
	var snap *models.DomSnapshot
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		s, err := c.renderer.Render(ctx, req)
		snap = s
		return err
	}, func(a utils.Attempt) {
		c.record(models.ErrorEntry{
			Cursor:  label,
			Kind:    a.Kind,
			Retried: a.Retried,
			Attempt: a.Number,
			Message: a.Err.Error(),
		})
	})
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, models.NewRenderError(models.KindNetworkFailure, req.URL, errors.New("renderer returned no snapshot"))
	}
	return snap, nil
}

// enrich replaces each card record with what its detail page yields. A
// detail page that cannot be rendered or parsed keeps the card record; the
// failure stays in the job's errors. Only cancellation is returned.
func (c *Controller) enrich(ctx context.Context, e DetailEnricher, raws []models.RawRecord) ([]models.RawRecord, error) {
	out := make([]models.RawRecord, 0, len(raws))
	fetched, failed := 0, 0
	for _, raw := range raws {
		url := e.DetailURL(raw)
		if url == "" {
			out = append(out, raw)
			continue
		}
		if fetched > 0 {
			if err := c.delay(ctx, c.detailMin, c.detailMax); err != nil {
				return nil, err
			}
		}
		fetched++

		snap, err := c.render(ctx, url, RenderRequest{
			URL:     url,
			Wait:    e.DetailWait(),
			Timeout: c.job.Timeout,
			Blocked: c.adapter.BlockDetector(),
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			c.logger.Warn("detail failed", zap.String("cursor", url), zap.Error(err))
			out = append(out, raw)
			continue
		}

		enriched, err := e.EnrichRecord(snap, raw)
		if err != nil {
			failed++
			c.record(models.ErrorEntry{Cursor: url, Kind: models.KindMalformedRecord, Attempt: 1, Message: err.Error()})
			out = append(out, raw)
			continue
		}
		out = append(out, enriched...)
	}
	if fetched > 0 {
		c.logger.Info("details_fetched", zap.Int("fetched", fetched), zap.Int("failed", failed))
	}
	return out, nil
}

// seenKey normalizes URL cursors so trivially different spellings of the
// same page count as a cycle.
func (c *Controller) seenKey(cursor models.PageCursor) string {
	if n := utils.NormalizeURL(cursor.URL); n != "" {
		cursor.URL = n
	}
	return cursor.Key()
}

func (c *Controller) record(e models.ErrorEntry) {
	e.At = time.Now().UTC()
	c.errors = append(c.errors, e)
}

func (c *Controller) transition(s State) {
	c.logger.Debug("state", zap.String("from", string(c.state)), zap.String("to", string(s)))
	c.state = s
}

func (c *Controller) finish(s State, err error) Outcome {
	c.transition(s)
	fields := []zap.Field{zap.Int("pages_visited", c.pagesVisited), zap.Int("errors", len(c.errors))}
	switch s {
	case StateDone:
		c.logger.Info("job_done", fields...)
	case StateCancelled:
		c.logger.Info("job_cancelled", fields...)
	default:
		c.logger.Error("job_aborted", append(fields, zap.Error(err))...)
	}
	return Outcome{State: s, PagesVisited: c.pagesVisited, Errors: c.errors, Err: err}
}
