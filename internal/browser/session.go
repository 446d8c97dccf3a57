// internal/browser/session.go
// Session is the chromedp-backed Page. It owns one Chrome process and one tab
// for the lifetime of a run.
//
// Element actions go through the embedded resolver: the locator is evaluated
// in the page, the chosen element is tagged with a one-off attribute, and the
// chromedp action is then issued against that attribute selector. Every
// operation derives its own deadline from the caller's context while the CDP
// connection comes from the session context (see CombineContext).
package browser

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/salesi-reporter/internal/config"
	"go.uber.org/zap"
)

//go:embed js/resolver.js
var resolverSource string

const (
	probeAttr         = "data-salesi-probe"
	defaultPoll       = 150 * time.Millisecond
	evalTimeout       = 5 * time.Second
	idleQuietPeriod   = 500 * time.Millisecond
	defaultNavTimeout = 45 * time.Second
)

// ErrNotFound is returned when an action's element never became available.
var ErrNotFound = errors.New("element not found")

type probeResult struct {
	Found   bool `json:"found"`
	Visible bool `json:"visible"`
}

// Session drives a single Chrome tab.
type Session struct {
	ctx          context.Context
	cancel       context.CancelFunc
	allocCancel  context.CancelFunc
	logger       *zap.Logger
	cfg          config.BrowserConfig
	pollInterval time.Duration
}

var _ Page = (*Session)(nil)

// Launch starts Chrome and opens the run's tab. The browser lives until Close
// is called, independent of ctx cancellation, so failure diagnostics can still
// be captured after an interrupt.
func Launch(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	logger = logger.Named("browser")
	logger.Info("Launching browser", zap.Bool("headless", cfg.Headless))

	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), buildAllocatorOptions(cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Debugf),
	)

	s := &Session{
		ctx:          tabCtx,
		cancel:       tabCancel,
		allocCancel:  allocCancel,
		logger:       logger,
		cfg:          cfg,
		pollInterval: defaultPoll,
	}

	// The first Run allocates the browser and must use the tab context itself.
	width, height := cfg.ViewportSize()
	if err := chromedp.Run(tabCtx, chromedp.EmulateViewport(int64(width), int64(height))); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("browser failed to start: %w", err)
	}
	if ctx.Err() != nil {
		_ = s.Close(context.Background())
		return nil, ctx.Err()
	}

	logger.Info("Browser launched", zap.Int("width", width), zap.Int("height", height))
	return s, nil
}

// Close shuts down the tab and the browser process.
func (s *Session) Close(ctx context.Context) error {
	err := chromedp.Cancel(s.ctx)
	s.cancel()
	s.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

// run executes actions against the tab, bounded by timeout when positive.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	runCtx, cancel := CombineContext(s.ctx, opCtx)
	defer cancel()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && opCtx.Err() != nil && ctx.Err() == nil {
		return fmt.Errorf("timed out after %s: %w", timeout, err)
	}
	return err
}

func (s *Session) navTimeout() time.Duration {
	if s.cfg.NavigationTimeout > 0 {
		return s.cfg.NavigationTimeout
	}
	return defaultNavTimeout
}

// poll evaluates cond until it reports true, ctx ends or timeout elapses.
// cond errors are treated as "not yet" since the page may be mid-navigation.
func (s *Session) poll(ctx context.Context, timeout time.Duration, cond func(context.Context) (bool, error)) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := cond(ctx)
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err == nil && ok {
			return true, nil
		}
		if err != nil {
			s.logger.Debug("Condition check failed", zap.Error(err))
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		if err := Sleep(ctx, s.pollInterval); err != nil {
			return false, err
		}
	}
}

// -- Navigation --

func (s *Session) Goto(ctx context.Context, url string) error {
	s.logger.Debug("Navigating", zap.String("url", url))
	if err := s.run(ctx, s.navTimeout(), chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (s *Session) Redirect(ctx context.Context, url string) error {
	before, _ := s.URL(ctx)
	target, err := jsString(url)
	if err != nil {
		return err
	}
	if err := s.run(ctx, evalTimeout, chromedp.Evaluate("window.location.assign("+target+")", nil)); err != nil {
		return fmt.Errorf("in-page redirect to %s failed: %w", url, err)
	}

	ok, err := s.poll(ctx, s.navTimeout(), func(ctx context.Context) (bool, error) {
		var state struct {
			Href  string `json:"href"`
			Ready string `json:"ready"`
		}
		if err := s.run(ctx, evalTimeout, chromedp.Evaluate(`({href: location.href, ready: document.readyState})`, &state)); err != nil {
			return false, err
		}
		moved := state.Href != before || before == url
		return moved && state.Ready != "loading", nil
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("in-page redirect to %s did not load within %s", url, s.navTimeout())
	}
	return nil
}

func (s *Session) Back(ctx context.Context) error {
	if err := s.run(ctx, s.navTimeout(), chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("history back failed: %w", err)
	}
	return nil
}

func (s *Session) URL(ctx context.Context) (string, error) {
	var u string
	if err := s.run(ctx, evalTimeout, chromedp.Location(&u)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return u, nil
}

func (s *Session) WaitURL(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) error {
	var last string
	ok, err := s.poll(ctx, timeout, func(ctx context.Context) (bool, error) {
		u, err := s.URL(ctx)
		if err != nil {
			return false, err
		}
		last = u
		return pattern.MatchString(u), nil
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("timed out after %s waiting for URL matching %s (at %s)", timeout, pattern, last)
	}
	return nil
}

// WaitIdle approximates network idle: the document is complete and no new
// resource entries have appeared for idleQuietPeriod.
func (s *Session) WaitIdle(ctx context.Context, timeout time.Duration) error {
	lastCount, quietSince := -1, time.Time{}
	ok, err := s.poll(ctx, timeout, func(ctx context.Context) (bool, error) {
		var state struct {
			Ready     string `json:"ready"`
			Resources int    `json:"resources"`
		}
		err := s.run(ctx, evalTimeout, chromedp.Evaluate(
			`({ready: document.readyState, resources: performance.getEntriesByType('resource').length})`, &state))
		if err != nil {
			lastCount = -1
			return false, err
		}
		if state.Ready != "complete" || state.Resources != lastCount {
			lastCount, quietSince = state.Resources, time.Now()
			return false, nil
		}
		return time.Since(quietSince) >= idleQuietPeriod, nil
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("page not idle after %s", timeout)
	}
	return nil
}

// -- Locating --

func (s *Session) probe(ctx context.Context, spec, token string) (probeResult, error) {
	var res probeResult
	tok, err := jsString(token)
	if err != nil {
		return res, err
	}
	script := "(" + resolverSource + ")(" + spec + ", " + tok + ")"
	err = s.run(ctx, evalTimeout, chromedp.Evaluate(script, &res))
	return res, err
}

func (s *Session) Visible(ctx context.Context, loc Locator, timeout time.Duration) (bool, error) {
	spec, err := loc.MarshalSpec()
	if err != nil {
		return false, err
	}
	return s.poll(ctx, timeout, func(ctx context.Context) (bool, error) {
		res, err := s.probe(ctx, spec, "")
		return res.Visible, err
	})
}

// mark waits for the element (visible unless force) and tags it, returning a
// selector addressing exactly that element.
func (s *Session) mark(ctx context.Context, loc Locator, force bool) (string, error) {
	spec, err := loc.MarshalSpec()
	if err != nil {
		return "", err
	}
	token := uuid.NewString()
	ok, err := s.poll(ctx, s.cfg.ActionTimeout, func(ctx context.Context) (bool, error) {
		res, err := s.probe(ctx, spec, token)
		return res.Found && (force || res.Visible), err
	})
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s after %s", ErrNotFound, loc, s.cfg.ActionTimeout)
	}
	return fmt.Sprintf(`[%s="%s"]`, probeAttr, token), nil
}

// -- Actions --

func (s *Session) Click(ctx context.Context, loc Locator, opts ...ActionOption) error {
	o := ApplyOptions(opts...)
	sel, err := s.mark(ctx, loc, o.Force)
	if err != nil {
		return fmt.Errorf("click action failed for %s: %w", loc, err)
	}

	var actions []chromedp.Action
	if o.Force {
		actions = append(actions, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeReady))
	} else {
		actions = append(actions,
			chromedp.ScrollIntoView(sel, chromedp.ByQuery),
			chromedp.Click(sel, chromedp.ByQuery),
		)
	}
	if err := s.run(ctx, s.cfg.ActionTimeout, actions...); err != nil {
		return fmt.Errorf("click action failed for %s: %w", loc, err)
	}
	s.logger.Debug("Clicked", zap.Stringer("locator", loc), zap.Bool("force", o.Force))
	return nil
}

const fillScript = `(function (sel, value) {
  var el = document.querySelector(sel);
  if (!el) { return false; }
  el.focus();
  el.value = '';
  el.dispatchEvent(new Event('input', { bubbles: true }));
  el.value = value;
  el.dispatchEvent(new Event('input', { bubbles: true }));
  el.dispatchEvent(new Event('change', { bubbles: true }));
  return true;
})`

func (s *Session) Fill(ctx context.Context, loc Locator, value string) error {
	var ok bool
	if err := s.evalOnMarked(ctx, loc, false, fillScript, &ok, value); err != nil {
		return fmt.Errorf("fill action failed for %s: %w", loc, err)
	}
	if !ok {
		return fmt.Errorf("fill action failed for %s: element detached", loc)
	}
	return nil
}

const selectScript = `(function (sel, value) {
  var el = document.querySelector(sel);
  if (!el) { return 'element detached'; }
  var opts = Array.prototype.slice.call(el.options || []);
  if (!opts.some(function (o) { return o.value === value; })) { return 'no option with value ' + value; }
  el.value = value;
  el.dispatchEvent(new Event('input', { bubbles: true }));
  el.dispatchEvent(new Event('change', { bubbles: true }));
  return '';
})`

func (s *Session) SelectOption(ctx context.Context, loc Locator, value string) error {
	var problem string
	if err := s.evalOnMarked(ctx, loc, false, selectScript, &problem, value); err != nil {
		return fmt.Errorf("select action failed for %s: %w", loc, err)
	}
	if problem != "" {
		return fmt.Errorf("select action failed for %s: %s", loc, problem)
	}
	return nil
}

const checkScript = `(function (sel, want) {
  var el = document.querySelector(sel);
  if (!el) { return false; }
  if (!!el.checked !== want) { el.click(); }
  return !!el.checked === want;
})`

func (s *Session) SetChecked(ctx context.Context, loc Locator, checked bool, opts ...ActionOption) error {
	o := ApplyOptions(opts...)
	var ok bool
	if err := s.evalOnMarked(ctx, loc, o.Force, checkScript, &ok, checked); err != nil {
		return fmt.Errorf("check action failed for %s: %w", loc, err)
	}
	if !ok {
		return fmt.Errorf("check action failed for %s: state did not change", loc)
	}
	return nil
}

// evalOnMarked locates loc and calls fn(selector, arg) in the page.
func (s *Session) evalOnMarked(ctx context.Context, loc Locator, force bool, fn string, res any, arg any) error {
	sel, err := s.mark(ctx, loc, force)
	if err != nil {
		return err
	}
	selJS, err := jsString(sel)
	if err != nil {
		return err
	}
	argJS, err := json.ConfigCompatibleWithStandardLibrary.MarshalToString(arg)
	if err != nil {
		return fmt.Errorf("failed to encode argument: %w", err)
	}
	return s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(fn+"("+selJS+", "+argJS+")", res))
}

func (s *Session) Press(ctx context.Context, key string) error {
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.KeyEvent(key)); err != nil {
		return fmt.Errorf("key press failed: %w", err)
	}
	return nil
}

func (s *Session) Evaluate(ctx context.Context, script string, res any) error {
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(script, res)); err != nil {
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	return nil
}

func (s *Session) WaitFunction(ctx context.Context, script string, timeout time.Duration) error {
	ok, err := s.poll(ctx, timeout, func(ctx context.Context) (bool, error) {
		var v bool
		err := s.run(ctx, evalTimeout, chromedp.Evaluate("!!("+script+")", &v))
		return v, err
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("condition not met after %s", timeout)
	}
	return nil
}

// -- Capture --

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	// Quality 100 makes chromedp capture PNG.
	if err := s.run(ctx, s.navTimeout(), chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// HTML serialises the document root directly, so it works on pages whose
// markup never finished rendering.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, s.navTimeout(), chromedp.ActionFunc(func(ctx context.Context) error {
		root, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		html, err = dom.GetOuterHTML().WithNodeID(root.NodeID).Do(ctx)
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("failed to read page HTML: %w", err)
	}
	return html, nil
}

func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	return Sleep(ctx, d)
}

func jsString(v string) (string, error) {
	b, err := json.ConfigCompatibleWithStandardLibrary.MarshalToString(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode string for script: %w", err)
	}
	return b, nil
}
