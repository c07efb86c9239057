package scraper

import (
	"context"
	"testing"
	"time"

	"listing-scraper/models"
	"listing-scraper/services"
	"listing-scraper/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	p1 = "https://example.com/search?page=1"
	p2 = "https://example.com/search?page=2"
	p3 = "https://example.com/search?page=3"
)

func newTestController(job models.ScrapeJob, a Adapter, r Renderer) (*Controller, *services.Pipeline) {
	pipeline := services.NewPipeline(nil)
	retrier := utils.NewRetrier(utils.DefaultRetryPolicy(), nil).WithSleep(noSleep)
	return NewController(job, a, r, retrier, pipeline, nil, withDelayFunc(noDelay)), pipeline
}

func threePages() *fakeAdapter {
	return &fakeAdapter{
		site:  "fake",
		start: p1,
		records: map[string][]models.RawRecord{
			p1: {rec("1", "One", "$1,000"), rec("2", "Two", "$1,100")},
			p2: {rec("3", "Three", "$1,200")},
			p3: {rec("4", "Four", "$1,300")},
		},
		next: map[string]string{p1: p2, p2: p3},
	}
}

func TestControllerFollowsPagesUntilLast(t *testing.T) {
	r := &mockRenderer{}
	for _, u := range []string{p1, p2, p3} {
		r.On("Render", mock.Anything, forURL(u)).Return(page(u), nil).Once()
	}

	c, pipeline := newTestController(models.ScrapeJob{JobID: "j"}, threePages(), r)
	out := c.Run(context.Background())

	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, 3, out.PagesVisited)
	assert.Empty(t, out.Errors)
	assert.Len(t, pipeline.Records(), 4)
	r.AssertExpectations(t)
}

func TestControllerStopsAtMaxPages(t *testing.T) {
	r := &mockRenderer{}
	r.On("Render", mock.Anything, forURL(p1)).Return(page(p1), nil).Once()
	r.On("Render", mock.Anything, forURL(p2)).Return(page(p2), nil).Once()

	c, pipeline := newTestController(models.ScrapeJob{JobID: "j", MaxPages: 2}, threePages(), r)
	out := c.Run(context.Background())

	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, 2, out.PagesVisited)
	assert.Len(t, pipeline.Records(), 3)
	r.AssertNotCalled(t, "Render", mock.Anything, forURL(p3))
}

func TestControllerDetectsCycle(t *testing.T) {
	a := threePages()
	// Same page as p1 spelled differently.
	a.next[p2] = "https://EXAMPLE.com/search?page=1#top"

	r := &mockRenderer{}
	r.On("Render", mock.Anything, forURL(p1)).Return(page(p1), nil).Once()
	r.On("Render", mock.Anything, forURL(p2)).Return(page(p2), nil).Once()

	c, _ := newTestController(models.ScrapeJob{JobID: "j"}, a, r)
	out := c.Run(context.Background())

	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, 2, out.PagesVisited)
	r.AssertNumberOfCalls(t, "Render", 2)
}

func TestControllerRetriesBlockedThenSucceeds(t *testing.T) {
	r := &mockRenderer{}
	r.On("Render", mock.Anything, forURL(p1)).Return(nil, renderErr(models.KindBlocked, p1)).Twice()
	r.On("Render", mock.Anything, forURL(p1)).Return(page(p1), nil).Once()

	a := threePages()
	a.next = nil
	c, pipeline := newTestController(models.ScrapeJob{JobID: "j"}, a, r)
	out := c.Run(context.Background())

	require.Equal(t, StateDone, out.State)
	require.Len(t, out.Errors, 2)
	for i, e := range out.Errors {
		assert.Equal(t, models.KindBlocked, e.Kind)
		assert.True(t, e.Retried)
		assert.Equal(t, i+1, e.Attempt)
	}
	assert.Len(t, pipeline.Records(), 2)
}

func TestControllerAbortsOnNavigationError(t *testing.T) {
	r := &mockRenderer{}
	r.On("Render", mock.Anything, forURL(p1)).Return(page(p1), nil).Once()
	r.On("Render", mock.Anything, forURL(p2)).Return(nil, renderErr(models.KindNavigation, p2)).Once()

	c, pipeline := newTestController(models.ScrapeJob{JobID: "j"}, threePages(), r)
	out := c.Run(context.Background())

	assert.Equal(t, StateAborted, out.State)
	assert.Equal(t, models.StateAborted, out.JobState())
	assert.Equal(t, 1, out.PagesVisited)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, models.KindNavigation, out.Errors[0].Kind)
	assert.False(t, out.Errors[0].Retried)
	// page 1 was fully extracted and stays available for writing
	assert.Len(t, pipeline.Records(), 2)
}

func TestControllerGivesUpAfterRepeatedTimeouts(t *testing.T) {
	r := &mockRenderer{}
	r.On("Render", mock.Anything, forURL(p1)).Return(nil, renderErr(models.KindTimeout, p1)).Times(3)

	c, _ := newTestController(models.ScrapeJob{JobID: "j"}, threePages(), r)
	out := c.Run(context.Background())

	assert.Equal(t, StateAborted, out.State)
	require.Len(t, out.Errors, 3)
	assert.True(t, out.Errors[0].Retried)
	assert.True(t, out.Errors[1].Retried)
	assert.False(t, out.Errors[2].Retried)
	r.AssertNumberOfCalls(t, "Render", 3)
}

func TestControllerRecordsExtractFailureAndContinues(t *testing.T) {
	a := threePages()
	a.failOn = map[string]bool{p2: true}

	r := &mockRenderer{}
	for _, u := range []string{p1, p2, p3} {
		r.On("Render", mock.Anything, forURL(u)).Return(page(u), nil).Once()
	}

	c, pipeline := newTestController(models.ScrapeJob{JobID: "j"}, a, r)
	out := c.Run(context.Background())

	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, 3, out.PagesVisited)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, models.KindMalformedRecord, out.Errors[0].Kind)
	assert.Len(t, pipeline.Records(), 3)
}

func TestControllerLastWriteWinsAcrossPages(t *testing.T) {
	a := threePages()
	a.records[p2] = []models.RawRecord{rec("1", "One, updated", "$950")}
	a.next = map[string]string{p1: p2}

	r := &mockRenderer{}
	r.On("Render", mock.Anything, forURL(p1)).Return(page(p1), nil).Once()
	r.On("Render", mock.Anything, forURL(p2)).Return(page(p2), nil).Once()

	c, pipeline := newTestController(models.ScrapeJob{JobID: "j"}, a, r)
	c.Run(context.Background())

	records := pipeline.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "1", records[0].NaturalKey)
	assert.Equal(t, "One, updated", records[0].Title)
	require.NotNil(t, records[0].Price)
	assert.Equal(t, 950.0, *records[0].Price)
}

func TestControllerCancelledBetweenPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	r := &mockRenderer{}
	r.On("Render", mock.Anything, forURL(p1)).Return(page(p1), nil).Once()

	pipeline := services.NewPipeline(nil)
	retrier := utils.NewRetrier(utils.DefaultRetryPolicy(), nil).WithSleep(noSleep)
	c := NewController(models.ScrapeJob{JobID: "j"}, threePages(), r, retrier, pipeline, nil,
		withDelayFunc(func(ctx context.Context, _, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}),
	)
	out := c.Run(ctx)

	assert.Equal(t, StateCancelled, out.State)
	assert.Equal(t, models.StateCancelled, out.JobState())
	assert.ErrorIs(t, out.Err, context.Canceled)
	r.AssertNumberOfCalls(t, "Render", 1)
}

func TestControllerPassesAdapterWaitAndDetector(t *testing.T) {
	r := &mockRenderer{}
	r.On("Render", mock.Anything, mock.MatchedBy(func(req RenderRequest) bool {
		return req.Wait.Selector == ".card" && len(req.Blocked.Statuses) > 0 && req.Timeout == 5*time.Second
	})).Return(page(p1), nil).Once()

	a := threePages()
	a.next = nil
	c, _ := newTestController(models.ScrapeJob{JobID: "j", Timeout: 5 * time.Second}, a, r)
	out := c.Run(context.Background())

	assert.Equal(t, StateDone, out.State)
	r.AssertExpectations(t)
}
