// Package browser wraps a single headless Chrome session behind the small
// set of primitives the scraping state machine needs: navigate, wait, click,
// type, screenshot. All waits are bounded; nothing here blocks indefinitely.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deedharvest/internal/config"
)

var (
	// ErrNotFound marks an element that did not appear, or stopped matching,
	// within the wait budget.
	ErrNotFound = errors.New("element not found")
	// ErrCaptureFailed marks a degenerate element screenshot crop.
	ErrCaptureFailed = errors.New("element capture failed")
)

// Session owns one headless browser process and the single tab the
// orchestrator drives. It is not safe for concurrent use; the design assumes
// one sequential run per session.
type Session struct {
	log         *zap.Logger
	waitTimeout time.Duration
	settleDelay time.Duration

	ctx         context.Context
	ctxCancel   context.CancelFunc
	allocCancel context.CancelFunc

	closeOnce sync.Once
}

// NewSession starts the browser process and opens a blank tab. The caller
// must Close the session on every exit path; Close is idempotent.
func NewSession(ctx context.Context, logger *zap.Logger, cfg config.BrowserConfig, waitTimeout, settleDelay time.Duration) (*Session, error) {
	opts := allocatorOptions(cfg)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Errorf),
	)

	s := &Session{
		log:         logger.Named("browser"),
		waitTimeout: waitTimeout,
		settleDelay: settleDelay,
		ctx:         tabCtx,
		ctxCancel:   tabCancel,
		allocCancel: allocCancel,
	}

	// Initialize the browser instance connection.
	if err := chromedp.Run(tabCtx, chromedp.Navigate("about:blank")); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize browser session: %w", err)
	}

	s.log.Info("Browser session started",
		zap.Bool("headless", cfg.Headless),
		zap.Duration("wait_timeout", waitTimeout),
	)
	return s, nil
}

// allocatorOptions configures the flags for the browser executable.
func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	}
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.DisableDevShm {
		opts = append(opts, chromedp.Flag("disable-dev-shm-usage", true))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	// Stability flags for containerized environments.
	opts = append(opts,
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-prompt-on-repost", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", cfg.Headless),
	)
	return opts
}

// run executes chromedp actions against the session tab, bounded by the wait
// budget and by the caller's context.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	tctx, cancel := context.WithTimeout(s.ctx, s.waitTimeout)
	defer cancel()

	// Propagate caller cancellation into the browser context.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(tctx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Navigate loads the given URL and waits for the document to be ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body")); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Refresh reloads the current page.
func (s *Session) Refresh(ctx context.Context) error {
	if err := s.run(ctx, chromedp.Reload()); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return nil
}

// Location returns the current page URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return url, nil
}

// WaitVisible blocks until at least one element matching the locator's query
// is visible, or the wait budget elapses.
func (s *Session) WaitVisible(ctx context.Context, loc Locator) error {
	opt := chromedp.ByQuery
	if loc.By == ByXPath {
		opt = chromedp.BySearch
	}
	if err := s.run(ctx, chromedp.WaitVisible(loc.Query, opt)); err != nil {
		return fmt.Errorf("wait for %s: %w: %v", loc, ErrNotFound, err)
	}
	return nil
}

// Count returns how many elements currently match the locator's query,
// without waiting for any to appear.
func (s *Session) Count(ctx context.Context, loc Locator) (int, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, chromedp.Nodes(loc.Query, &nodes, loc.queryOption(), chromedp.AtLeast(0)))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", loc, err)
	}
	return len(nodes), nil
}

// node resolves the locator to a live DOM node, honoring its index.
func (s *Session) node(ctx context.Context, loc Locator) (*cdp.Node, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, chromedp.Nodes(loc.Query, &nodes, loc.queryOption(), chromedp.AtLeast(0)))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", loc, err)
	}
	idx := loc.index()
	if idx >= len(nodes) {
		return nil, fmt.Errorf("resolve %s: have %d matches: %w", loc, len(nodes), ErrNotFound)
	}
	return nodes[idx], nil
}

// Click clicks the located element. The click is dispatched in-page, the way
// the target site's overlapping Angular controls require.
func (s *Session) Click(ctx context.Context, loc Locator) error {
	expr := fmt.Sprintf(`(function(){const el=%s; if(!el) return false; el.click(); return true;})()`, loc.jsElement())
	var ok bool
	if err := s.run(ctx, chromedp.Evaluate(expr, &ok)); err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	if !ok {
		return fmt.Errorf("click %s: %w", loc, ErrNotFound)
	}
	return nil
}

// ClearAndType clears the located input and types the text into it with real
// key events.
func (s *Session) ClearAndType(ctx context.Context, loc Locator, text string) error {
	node, err := s.node(ctx, loc)
	if err != nil {
		return err
	}
	ids := []cdp.NodeID{node.NodeID}
	err = s.run(ctx,
		chromedp.Clear(ids, chromedp.ByNodeID),
		chromedp.SendKeys(ids, text, chromedp.ByNodeID),
	)
	if err != nil {
		return fmt.Errorf("type into %s: %w", loc, err)
	}
	return nil
}

// PressEnter sends an Enter key event to the located element, committing
// autocomplete selections.
func (s *Session) PressEnter(ctx context.Context, loc Locator) error {
	node, err := s.node(ctx, loc)
	if err != nil {
		return err
	}
	ids := []cdp.NodeID{node.NodeID}
	if err := s.run(ctx, chromedp.SendKeys(ids, kb.Enter, chromedp.ByNodeID)); err != nil {
		return fmt.Errorf("press enter on %s: %w", loc, err)
	}
	return nil
}

// SelectByLabel selects the option whose visible text equals label exactly,
// then fires a change event so the page's framework notices.
func (s *Session) SelectByLabel(ctx context.Context, loc Locator, label string) error {
	expr := fmt.Sprintf(`(function(){
		const el=%s;
		if(!el||!el.options) return false;
		for(let i=0;i<el.options.length;i++){
			if(el.options[i].text.trim()===%q){
				el.selectedIndex=i;
				el.dispatchEvent(new Event('change',{bubbles:true}));
				return true;
			}
		}
		return false;
	})()`, loc.jsElement(), label)
	var ok bool
	if err := s.run(ctx, chromedp.Evaluate(expr, &ok)); err != nil {
		return fmt.Errorf("select %q in %s: %w", label, loc, err)
	}
	if !ok {
		return fmt.Errorf("select %q in %s: no matching option: %w", label, loc, ErrNotFound)
	}
	return nil
}

// Attribute reads an attribute of the located element; a missing attribute
// yields an empty string.
func (s *Session) Attribute(ctx context.Context, loc Locator, name string) (string, error) {
	expr := fmt.Sprintf(`(function(){const el=%s; if(!el) return null; return el.getAttribute(%q)||"";})()`,
		loc.jsElement(), name)
	var val *string
	if err := s.run(ctx, chromedp.Evaluate(expr, &val)); err != nil {
		return "", fmt.Errorf("attribute %q of %s: %w", name, loc, err)
	}
	if val == nil {
		return "", fmt.Errorf("attribute %q of %s: %w", name, loc, ErrNotFound)
	}
	return *val, nil
}

// OuterHTML returns the serialized markup of the located element.
func (s *Session) OuterHTML(ctx context.Context, loc Locator) (string, error) {
	expr := fmt.Sprintf(`(function(){const el=%s; if(!el) return null; return el.outerHTML;})()`, loc.jsElement())
	var html *string
	if err := s.run(ctx, chromedp.Evaluate(expr, &html)); err != nil {
		return "", fmt.Errorf("outer html of %s: %w", loc, err)
	}
	if html == nil {
		return "", fmt.Errorf("outer html of %s: %w", loc, ErrNotFound)
	}
	return *html, nil
}

// Close tears the session down: the tab first, then the browser process.
// Safe to call multiple times; only the first call does the work.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.log.Info("Closing browser session")
		s.ctxCancel()
		s.allocCancel()
	})
	return nil
}
