// Package browsertest provides an in-memory browser.Page for exercising
// navigation logic without Chrome. Element state is keyed by
// browser.Locator.String(); click hooks let a test model page transitions.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/xkilldash9x/salesi-reporter/internal/browser"
)

// ErrNotVisible mirrors an action whose auto-wait timed out.
var ErrNotVisible = errors.New("browsertest: element not visible")

// PNG is the screenshot payload returned by default.
var PNG = []byte("\x89PNG\r\n\x1a\nfake")

// Page is a scriptable fake. The exported error fields are returned by the
// corresponding methods; queued errors (GotoErrs, RedirectErrs) are consumed
// one per call.
type Page struct {
	mu sync.Mutex

	visible   map[string]bool
	clickHook map[string][]func(*Page)
	backHook  func(*Page)

	actions []string
	clicks  []string
	fills   map[string]string
	selects map[string]string
	checks  map[string]bool
	pressed []string
	sleeps  []time.Duration
	gotos   []string
	shots   int

	CurrentURL   string
	GotoErrs     []error
	RedirectErrs []error
	BackErr      error
	WaitURLErr   error
	WaitIdleErr  error
	// WaitFunctionErr is returned by WaitFunction.
	WaitFunctionErr error
	// EvalFunc, when set, handles Evaluate; otherwise Evaluate is a no-op.
	EvalFunc       func(script string, res any) error
	ClickErrs      map[string]error
	FillErrs       map[string]error
	SelectErrs     map[string]error
	CheckErrs      map[string]error
	ScreenshotData []byte
	ScreenshotErr  error
	HTMLContent    string
	HTMLErr        error
}

var _ browser.Page = (*Page)(nil)

// New returns an empty page where nothing is visible.
func New() *Page {
	return &Page{
		visible:        map[string]bool{},
		clickHook:      map[string][]func(*Page){},
		fills:          map[string]string{},
		selects:        map[string]string{},
		checks:         map[string]bool{},
		ClickErrs:      map[string]error{},
		FillErrs:       map[string]error{},
		SelectErrs:     map[string]error{},
		CheckErrs:      map[string]error{},
		ScreenshotData: PNG,
		HTMLContent:    "<html><body></body></html>",
	}
}

// -- Scripting --

// Show makes the locators visible.
func (p *Page) Show(locs ...browser.Locator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range locs {
		p.visible[l.String()] = true
	}
}

// Hide makes the locators invisible.
func (p *Page) Hide(locs ...browser.Locator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range locs {
		delete(p.visible, l.String())
	}
}

// HideAll clears every visible element, as a navigation would.
func (p *Page) HideAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible = map[string]bool{}
}

// IsShown reports whether loc is currently visible.
func (p *Page) IsShown(loc browser.Locator) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible[loc.String()]
}

// OnClick registers fn to run after every successful click on loc.
func (p *Page) OnClick(loc browser.Locator, fn func(*Page)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clickHook[loc.String()] = append(p.clickHook[loc.String()], fn)
}

// OnBack registers fn to run after every successful Back.
func (p *Page) OnBack(fn func(*Page)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.backHook = fn
}

// -- Inspection --

// Actions returns every recorded action in order, e.g. "click css=#x".
func (p *Page) Actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.actions...)
}

// Clicks returns the locator strings clicked, in order.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// ClickCount returns how often loc was clicked.
func (p *Page) ClickCount(loc browser.Locator) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.clicks {
		if c == loc.String() {
			n++
		}
	}
	return n
}

// FilledValue returns the last value filled into loc.
func (p *Page) FilledValue(loc browser.Locator) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.fills[loc.String()]
	return v, ok
}

// SelectedValue returns the last option selected in loc.
func (p *Page) SelectedValue(loc browser.Locator) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.selects[loc.String()]
	return v, ok
}

// Checked returns the last checked state set on loc.
func (p *Page) Checked(loc browser.Locator) (bool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.checks[loc.String()]
	return v, ok
}

// Pressed returns the keys pressed, in order.
func (p *Page) Pressed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.pressed...)
}

// Sleeps returns every explicit wait requested.
func (p *Page) Sleeps() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.sleeps...)
}

// Gotos returns the URLs passed to Goto and Redirect.
func (p *Page) Gotos() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.gotos...)
}

// ScreenshotCount returns the number of successful screenshots.
func (p *Page) ScreenshotCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shots
}

func (p *Page) record(format string, args ...any) {
	p.actions = append(p.actions, fmt.Sprintf(format, args...))
}

// -- browser.Page --

func (p *Page) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("goto %s", url)
	p.gotos = append(p.gotos, url)
	if len(p.GotoErrs) > 0 {
		err := p.GotoErrs[0]
		p.GotoErrs = p.GotoErrs[1:]
		if err != nil {
			return err
		}
	}
	p.CurrentURL = url
	return nil
}

func (p *Page) Redirect(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("redirect %s", url)
	p.gotos = append(p.gotos, url)
	if len(p.RedirectErrs) > 0 {
		err := p.RedirectErrs[0]
		p.RedirectErrs = p.RedirectErrs[1:]
		if err != nil {
			return err
		}
	}
	p.CurrentURL = url
	return nil
}

func (p *Page) Back(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.record("back")
	err, hook := p.BackErr, p.backHook
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CurrentURL, ctx.Err()
}

func (p *Page) WaitURL(ctx context.Context, pattern *regexp.Regexp, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("wait-url %s", pattern)
	if p.WaitURLErr != nil {
		return p.WaitURLErr
	}
	if !pattern.MatchString(p.CurrentURL) {
		return fmt.Errorf("browsertest: URL %q does not match %s", p.CurrentURL, pattern)
	}
	return nil
}

func (p *Page) WaitIdle(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("wait-idle")
	return p.WaitIdleErr
}

func (p *Page) Visible(ctx context.Context, loc browser.Locator, timeout time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible[loc.String()], nil
}

func (p *Page) Click(ctx context.Context, loc browser.Locator, opts ...browser.ActionOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := loc.String()
	p.mu.Lock()
	if err := p.ClickErrs[key]; err != nil {
		p.mu.Unlock()
		return err
	}
	if !p.visible[key] && !browser.ApplyOptions(opts...).Force {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotVisible, key)
	}
	p.record("click %s", key)
	p.clicks = append(p.clicks, key)
	hooks := append([]func(*Page){}, p.clickHook[key]...)
	p.mu.Unlock()

	for _, fn := range hooks {
		fn(p)
	}
	return nil
}

func (p *Page) Fill(ctx context.Context, loc browser.Locator, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := loc.String()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.FillErrs[key]; err != nil {
		return err
	}
	if !p.visible[key] {
		return fmt.Errorf("%w: %s", ErrNotVisible, key)
	}
	p.record("fill %s %s", key, value)
	p.fills[key] = value
	return nil
}

func (p *Page) SelectOption(ctx context.Context, loc browser.Locator, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := loc.String()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.SelectErrs[key]; err != nil {
		return err
	}
	if !p.visible[key] {
		return fmt.Errorf("%w: %s", ErrNotVisible, key)
	}
	p.record("select %s %s", key, value)
	p.selects[key] = value
	return nil
}

func (p *Page) SetChecked(ctx context.Context, loc browser.Locator, checked bool, opts ...browser.ActionOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := loc.String()
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.CheckErrs[key]; err != nil {
		return err
	}
	if !p.visible[key] && !browser.ApplyOptions(opts...).Force {
		return fmt.Errorf("%w: %s", ErrNotVisible, key)
	}
	p.record("check %s %t", key, checked)
	p.checks[key] = checked
	return nil
}

func (p *Page) Press(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("press %q", key)
	p.pressed = append(p.pressed, key)
	return nil
}

func (p *Page) Evaluate(ctx context.Context, script string, res any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.record("evaluate")
	fn := p.EvalFunc
	p.mu.Unlock()
	if fn != nil {
		return fn(script, res)
	}
	return nil
}

func (p *Page) WaitFunction(ctx context.Context, script string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("wait-function")
	return p.WaitFunctionErr
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("screenshot")
	if p.ScreenshotErr != nil {
		return nil, p.ScreenshotErr
	}
	p.shots++
	return append([]byte(nil), p.ScreenshotData...), nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("html")
	if p.HTMLErr != nil {
		return "", p.HTMLErr
	}
	return p.HTMLContent, nil
}

// Sleep records the wait and returns immediately.
func (p *Page) Sleep(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sleeps = append(p.sleeps, d)
	return ctx.Err()
}
