package scraper

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"listing-scraper/models"
	"listing-scraper/utils"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultMaxScrolls = 20
	scrollSettle      = 1500 * time.Millisecond
	salvageTimeout    = 5 * time.Second
)

type chromeTab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// ChromeRenderer drives a local Chrome through chromedp. Tabs are pooled
// and shared by every job.
type ChromeRenderer struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	pool        *SessionPool[*chromeTab]
	logger      *zap.Logger
}

func NewChromeRenderer(headless bool, sessions int, logger *zap.Logger) (*ChromeRenderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("launching chrome", zap.Bool("headless", headless), zap.Int("sessions", sessions))

	allocCtx, allocCancel := chromedp.NewExecAllocator(
		context.Background(),
		utils.StealthOpts(headless)...,
	)
	r := &ChromeRenderer{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}
	r.pool = NewSessionPool(sessions, r.openTab, r.closeTab)
	return r, nil
}

func (r *ChromeRenderer) openTab(ctx context.Context) (*chromeTab, error) {
	tabCtx, cancel := chromedp.NewContext(r.allocCtx)
	// The first Run on a tab starts the browser if needed.
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		cancel()
		return nil, models.NewRenderError(models.KindNetworkFailure, "", fmt.Errorf("open tab: %w", err))
	}
	return &chromeTab{ctx: tabCtx, cancel: cancel}, nil
}

func (r *ChromeRenderer) closeTab(t *chromeTab) {
	t.cancel()
}

func (r *ChromeRenderer) Render(ctx context.Context, req RenderRequest) (*models.DomSnapshot, error) {
	ctx, span := tracer.Start(ctx, "chrome.render", trace.WithAttributes(attribute.String("url", req.URL)))
	defer span.End()

	if !utils.ValidPageURL(req.URL) {
		err := models.NewRenderError(models.KindNavigation, req.URL, fmt.Errorf("invalid URL"))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var snap *models.DomSnapshot
	err := r.pool.With(ctx, func(ctx context.Context, tab *chromeTab) error {
		s, err := r.renderInTab(ctx, tab, req)
		snap = s
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("status", snap.Status))
	return snap, nil
}

func (r *ChromeRenderer) renderInTab(ctx context.Context, tab *chromeTab, req RenderRequest) (*models.DomSnapshot, error) {
	runCtx, cancel := context.WithTimeout(tab.ctx, req.timeout())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var status atomic.Int64
	chromedp.ListenTarget(runCtx, func(ev interface{}) {
		if e, ok := ev.(*network.EventResponseReceived); ok && e.Type == network.ResourceTypeDocument {
			status.CompareAndSwap(0, e.Response.Status)
		}
	})

	actions := []chromedp.Action{
		chromedp.Navigate(req.URL),
		utils.HideWebDriver(),
	}
	if req.Wait.Selector != "" {
		actions = append(actions, chromedp.WaitVisible(req.Wait.Selector, chromedp.ByQuery))
	}
	if req.Wait.ScrollToBottom {
		actions = append(actions, scrollToBottom(req.Wait.MaxScrolls))
	}
	if req.Wait.Idle > 0 {
		actions = append(actions, chromedp.Sleep(req.Wait.Idle))
	}

	var html, location string
	actions = append(actions,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() == nil {
			if blocked := r.salvageBlocked(tab, req, int(status.Load())); blocked != nil {
				return nil, blocked
			}
		}
		return nil, classifyFailure(ctx, req.URL, err)
	}

	snap := models.NewSnapshot(req.URL, location, int(status.Load()), html)
	return snap, checkSnapshot(req, snap)
}

// salvageBlocked looks at whatever the tab shows after a failed wait. A
// challenge page never shows the awaited selector, so without this check
// it would surface as a timeout.
func (r *ChromeRenderer) salvageBlocked(tab *chromeTab, req RenderRequest, status int) error {
	ctx, cancel := context.WithTimeout(tab.ctx, salvageTimeout)
	defer cancel()

	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil
	}
	snap := models.NewSnapshot(req.URL, "", status, html)
	if req.Blocked.Matches(snap) {
		r.logger.Debug("wait failed on a challenge page", zap.String("url", req.URL), zap.Int("status", status))
		return &models.RenderError{Kind: models.KindBlocked, URL: req.URL, Status: status}
	}
	return nil
}

func scrollToBottom(maxScrolls int) chromedp.Action {
	if maxScrolls <= 0 {
		maxScrolls = defaultMaxScrolls
	}
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var last int
		for i := 0; i < maxScrolls; i++ {
			var height int
			if err := chromedp.Evaluate(`document.body.scrollHeight`, &height).Do(ctx); err != nil {
				return err
			}
			if i > 0 && height == last {
				return nil
			}
			last = height
			if err := chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil).Do(ctx); err != nil {
				return err
			}
			if err := chromedp.Sleep(scrollSettle).Do(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *ChromeRenderer) Close() error {
	r.logger.Info("closing chrome")
	r.pool.Close()
	r.allocCancel()
	return nil
}
