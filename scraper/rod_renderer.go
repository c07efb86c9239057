package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"listing-scraper/models"
	"listing-scraper/utils"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RodRenderer is the go-rod flavour of the browser renderer. Pages are
// pooled inside one browser.
type RodRenderer struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	pool     *SessionPool[*rod.Page]
	logger   *zap.Logger
}

func NewRodRenderer(headless bool, sessions int, logger *zap.Logger) (*RodRenderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("launching rod browser", zap.Bool("headless", headless), zap.Int("sessions", sessions))

	l := launcher.New().
		Headless(headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage")
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	//Don't download files in the browser, e.g. pdf files
	_ = proto.BrowserSetDownloadBehavior{
		Behavior:         proto.BrowserSetDownloadBehaviorBehaviorDeny,
		BrowserContextID: browser.BrowserContextID,
	}.Call(browser)

	//Dismiss alerts so they never stall a render
	go browser.EachEvent(func(e *proto.PageJavascriptDialogOpening) {
		_ = proto.PageHandleJavaScriptDialog{Accept: false}.Call(browser)
	})()

	r := &RodRenderer{launcher: l, browser: browser, logger: logger}
	r.pool = NewSessionPool(sessions, r.openPage, r.closePage)
	return r, nil
}

func (r *RodRenderer) openPage(ctx context.Context) (*rod.Page, error) {
	page, err := r.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewRenderError(models.KindNetworkFailure, "", fmt.Errorf("open page: %w", err))
	}
	// Detach from the creation context; every render sets its own.
	page = page.Context(context.Background())

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: utils.RandomUserAgent()}); err != nil {
		_ = page.Close()
		return nil, models.NewRenderError(models.KindNetworkFailure, "", fmt.Errorf("set user agent: %w", err))
	}
	if _, err := page.EvalOnNewDocument(utils.StealthScript); err != nil {
		_ = page.Close()
		return nil, models.NewRenderError(models.KindNetworkFailure, "", fmt.Errorf("install stealth script: %w", err))
	}
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		_ = page.Close()
		return nil, models.NewRenderError(models.KindNetworkFailure, "", fmt.Errorf("enable network: %w", err))
	}
	return page, nil
}

func (r *RodRenderer) closePage(p *rod.Page) {
	if err := p.Close(); err != nil {
		r.logger.Debug("close page", zap.Error(err))
	}
}

func (r *RodRenderer) Render(ctx context.Context, req RenderRequest) (*models.DomSnapshot, error) {
	ctx, span := tracer.Start(ctx, "rod.render", trace.WithAttributes(attribute.String("url", req.URL)))
	defer span.End()

	if !utils.ValidPageURL(req.URL) {
		err := models.NewRenderError(models.KindNavigation, req.URL, fmt.Errorf("invalid URL"))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var snap *models.DomSnapshot
	err := r.pool.With(ctx, func(ctx context.Context, page *rod.Page) error {
		s, err := r.renderInPage(ctx, page, req)
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

func (r *RodRenderer) renderInPage(ctx context.Context, page *rod.Page, req RenderRequest) (*models.DomSnapshot, error) {
	runCtx, cancel := context.WithTimeout(ctx, req.timeout())
	defer cancel()
	p := page.Context(runCtx)

	var status atomic.Int64
	wait := p.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument {
			return false
		}
		status.Store(int64(e.Response.Status))
		return true
	})
	go wait()

	if err := p.Navigate(req.URL); err != nil {
		return nil, r.classify(ctx, req.URL, err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, r.classify(ctx, req.URL, err)
	}

	if err := r.waitFor(runCtx, p, req.Wait); err != nil {
		if ctx.Err() == nil {
			if html, herr := page.Timeout(salvageTimeout).HTML(); herr == nil {
				snap := models.NewSnapshot(req.URL, "", int(status.Load()), html)
				if req.Blocked.Matches(snap) {
					return nil, &models.RenderError{Kind: models.KindBlocked, URL: req.URL, Status: snap.Status}
				}
			}
		}
		return nil, r.classify(ctx, req.URL, err)
	}

	html, err := p.HTML()
	if err != nil {
		return nil, r.classify(ctx, req.URL, err)
	}
	finalURL := req.URL
	if info, err := p.Info(); err == nil {
		finalURL = info.URL
	}

	snap := models.NewSnapshot(req.URL, finalURL, int(status.Load()), html)
	return snap, checkSnapshot(req, snap)
}

func (r *RodRenderer) waitFor(ctx context.Context, p *rod.Page, wait models.WaitStrategy) error {
	if wait.Selector != "" {
		el, err := p.Element(wait.Selector)
		if err != nil {
			return err
		}
		if err := el.WaitVisible(); err != nil {
			return err
		}
	}
	if wait.ScrollToBottom {
		limit := wait.MaxScrolls
		if limit <= 0 {
			limit = defaultMaxScrolls
		}
		last := -1
		for i := 0; i < limit; i++ {
			res, err := p.Eval(`() => document.body.scrollHeight`)
			if err != nil {
				return err
			}
			height := res.Value.Int()
			if height == last {
				break
			}
			last = height
			if _, err := p.Eval(`() => window.scrollTo(0, document.body.scrollHeight)`); err != nil {
				return err
			}
			if err := utils.Sleep(ctx, scrollSettle); err != nil {
				return err
			}
		}
	}
	if wait.Idle > 0 {
		return utils.Sleep(ctx, wait.Idle)
	}
	return nil
}

func (r *RodRenderer) classify(parent context.Context, url string, err error) error {
	var navErr *rod.ErrNavigation
	if errors.As(err, &navErr) && parent.Err() == nil {
		if strings.Contains(navErr.Reason, "ERR_INVALID_URL") {
			return models.NewRenderError(models.KindNavigation, url, err)
		}
		return models.NewRenderError(models.KindNetworkFailure, url, err)
	}
	return classifyFailure(parent, url, err)
}

func (r *RodRenderer) Close() error {
	r.logger.Info("closing rod browser")
	r.pool.Close()
	err := r.browser.Close()
	r.launcher.Cleanup()
	return err
}
