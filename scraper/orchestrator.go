package scraper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"listing-scraper/models"
	"listing-scraper/services"
	"listing-scraper/utils"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Sink persists the records of one finished job.
type Sink interface {
	Commit(ctx context.Context, job models.ScrapeJob, records []models.ListingRecord) (int, error)
}

// HistoryRecorder keeps a trail of job results across runs.
type HistoryRecorder interface {
	Record(ctx context.Context, result models.RunResult) error
}

// AdapterLookup resolves a site id to its adapter.
type AdapterLookup func(siteID string) (Adapter, error)

// Orchestrator runs every job of an invocation concurrently. Jobs share
// the renderer, whose session pool caps how many pages render at once.
type Orchestrator struct {
	renderer Renderer
	adapters AdapterLookup
	sink     Sink
	history  HistoryRecorder
	policy   utils.RetryPolicy
	logger   *zap.Logger

	minDelay, maxDelay time.Duration
	sleep              func(ctx context.Context, d time.Duration) error
	delay              func(ctx context.Context, min, max time.Duration) error
}

type Option func(*Orchestrator)

func WithRetryPolicy(p utils.RetryPolicy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

func WithHistory(h HistoryRecorder) Option {
	return func(o *Orchestrator) { o.history = h }
}

func WithDelays(min, max time.Duration) Option {
	return func(o *Orchestrator) { o.minDelay, o.maxDelay = min, max }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// withClock replaces every wait, so tests run without real sleeps.
func withClock(sleep func(ctx context.Context, d time.Duration) error, delay func(ctx context.Context, min, max time.Duration) error) Option {
	return func(o *Orchestrator) {
		o.sleep = sleep
		o.delay = delay
	}
}

func NewOrchestrator(renderer Renderer, adapters AdapterLookup, sink Sink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		renderer: renderer,
		adapters: adapters,
		sink:     sink,
		policy:   utils.DefaultRetryPolicy(),
		logger:   zap.NewNop(),
		minDelay: 3 * time.Second,
		maxDelay: 7 * time.Second,
		sleep:    utils.Sleep,
		delay:    utils.RandomDelay,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes jobs and returns one result per job, in input order. The
// returned error is the first output failure; when one happens the other
// jobs are cancelled and their records are not written.
func (o *Orchestrator) Run(ctx context.Context, jobs []models.ScrapeJob) (models.RunSummary, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.logger.Info("run started", zap.Int("jobs", len(jobs)))

	results := make([]models.RunResult, len(jobs))
	var (
		outputErr error
		errOnce   sync.Once
	)

	p := pool.New().WithMaxGoroutines(jobConcurrency(jobs))
	for i, job := range jobs {
		p.Go(func() {
			res, err := o.runJobSafely(runCtx, job)
			results[i] = res
			if err != nil {
				errOnce.Do(func() {
					outputErr = err
					o.logger.Error("output failed, cancelling remaining jobs", zap.Error(err))
					cancel()
				})
			}
		})
	}
	p.Wait()

	summary := models.RunSummary{Results: results, OutputErr: outputErr}
	o.logger.Info("run finished",
		zap.Int("records_written", summary.RecordsWritten()),
		zap.Int("aborted", summary.AbortedCount()),
	)
	return summary, outputErr
}

// jobConcurrency is the smallest positive ConcurrencyLimit among jobs, or
// one goroutine per job when none sets a limit.
func jobConcurrency(jobs []models.ScrapeJob) int {
	limit := len(jobs)
	for _, j := range jobs {
		if j.ConcurrencyLimit > 0 && j.ConcurrencyLimit < limit {
			limit = j.ConcurrencyLimit
		}
	}
	return max(limit, 1)
}

// runJobSafely keeps a panicking adapter from taking down the other jobs.
func (o *Orchestrator) runJobSafely(ctx context.Context, job models.ScrapeJob) (res models.RunResult, err error) {
	var pc panics.Catcher
	pc.Try(func() {
		res, err = o.runJob(ctx, job)
	})
	if r := pc.Recovered(); r != nil {
		o.logger.Error("job panicked", zap.String("job_id", job.JobID), zap.String("panic", r.String()))
		res = models.RunResult{
			JobID:       job.JobID,
			SiteID:      job.SiteID,
			State:       models.StateAborted,
			AbortReason: fmt.Sprintf("panic: %v", r.Value),
			FinishedAt:  time.Now().UTC(),
		}
		err = nil
	}
	return res, err
}

func (o *Orchestrator) runJob(ctx context.Context, job models.ScrapeJob) (models.RunResult, error) {
	res := models.RunResult{JobID: job.JobID, SiteID: job.SiteID, StartedAt: time.Now().UTC()}
	logger := o.logger.With(zap.String("job_id", job.JobID), zap.String("site", job.SiteID))

	adapter, err := o.adapters(job.SiteID)
	if err != nil {
		res.State = models.StateAborted
		res.AbortReason = err.Error()
		res.FinishedAt = time.Now().UTC()
		logger.Error("job_aborted", zap.Error(err))
		o.recordHistory(ctx, res)
		return res, nil
	}

	retrier := utils.NewRetrier(o.policy, logger).WithSleep(o.sleep)
	pipeline := services.NewPipeline(logger)
	ctrl := NewController(job, adapter, o.renderer, retrier, pipeline, logger,
		WithPageDelay(o.minDelay, o.maxDelay),
		withDelayFunc(o.delay),
	)
	out := ctrl.Run(ctx)

	stats := pipeline.Stats()
	res.State = out.JobState()
	res.PagesVisited = out.PagesVisited
	res.Errors = out.Errors
	res.Malformed = stats.Malformed
	res.MissingFields = stats.MissingFields
	if out.State == StateAborted && out.Err != nil {
		res.AbortReason = out.Err.Error()
	}

	var outputErr error
	if out.State != StateCancelled {
		records := pipeline.Records()
		// A commit that started must finish even if another job's failure
		// cancels the run.
		n, err := o.sink.Commit(context.WithoutCancel(ctx), job, records)
		if err != nil {
			var oe *models.OutputError
			if !errors.As(err, &oe) {
				err = models.WriteFailure(job.OutputPath, err)
			}
			outputErr = err
			res.Errors = append(res.Errors, models.ErrorEntry{
				Cursor:  job.OutputPath,
				Kind:    models.KindWriteFailure,
				Attempt: 1,
				Message: err.Error(),
				At:      time.Now().UTC(),
			})
		} else {
			res.RecordsWritten = n
		}
		if len(records) == 0 && out.State == StateDone {
			logger.Warn("job finished without records", zap.Int("pages_visited", out.PagesVisited))
		}
	}
	res.FinishedAt = time.Now().UTC()

	o.recordHistory(context.WithoutCancel(ctx), res)
	return res, outputErr
}

func (o *Orchestrator) recordHistory(ctx context.Context, res models.RunResult) {
	if o.history == nil {
		return
	}
	if err := o.history.Record(ctx, res); err != nil {
		o.logger.Warn("record run history", zap.String("job_id", res.JobID), zap.Error(err))
	}
}
