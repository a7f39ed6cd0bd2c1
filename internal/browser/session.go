// Package browser owns one headless Chrome instance per contact lookup and
// exposes the read and form primitives the lookup needs.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// Defaults for Options fields left empty.
const (
	DefaultUserAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36"
	DefaultWidth             = 1366
	DefaultHeight            = 900
	DefaultNavigationTimeout = 30 * time.Second
)

// clickable is the element set text and id heuristics search.
const clickable = `button, a, input[type="submit"], input[type="button"], [role="button"]`

// Error represents a failed browser operation.
type Error struct {
	Op    string
	URL   string
	Cause error
}

func (e *Error) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("browser %s %s: %v", e.Op, e.URL, e.Cause)
	}
	return fmt.Sprintf("browser %s: %v", e.Op, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options configures the launched browser.
type Options struct {
	UserAgent         string
	Width             int
	Height            int
	Headless          bool
	ExecPath          string
	NavigationTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = DefaultNavigationTimeout
	}
	return o
}

// Session is a single browser tab with its own browser process.
// It must be closed; Close is safe to call more than once.
type Session struct {
	ctx       context.Context
	closeOnce sync.Once
	cancels   []context.CancelFunc
	opts      Options
}

// Launcher opens sessions with fixed options.
type Launcher struct {
	opts Options
}

// NewLauncher creates a Launcher.
func NewLauncher(opts Options) *Launcher {
	return &Launcher{opts: opts.withDefaults()}
}

// Open starts a browser. The process is killed when ctx is done or Close is called.
func (l *Launcher) Open(ctx context.Context) (*Session, error) {
	return Open(ctx, l.opts)
}

// Open starts a browser with the given options.
func Open(ctx context.Context, opts Options) (*Session, error) {
	opts = opts.withDefaults()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(opts.UserAgent),
		chromedp.WindowSize(opts.Width, opts.Height),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	s := &Session{
		ctx:     tabCtx,
		cancels: []context.CancelFunc{cancelTab, cancelAlloc},
		opts:    opts,
	}

	// an empty Run launches the process
	if err := chromedp.Run(tabCtx); err != nil {
		s.Close()
		return nil, &Error{Op: "launch", Cause: err}
	}
	return s, nil
}

// Close terminates the tab and the browser process.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		for _, cancel := range s.cancels {
			cancel()
		}
	})
}

// run executes actions in the session tab, bounded by ctx as well as the session.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url and waits for the body, bounded by the navigation timeout.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.opts.NavigationTimeout)
	defer cancel()

	start := time.Now()
	err := s.run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return &Error{Op: "navigate", URL: url, Cause: err}
	}
	log.Printf("[browser] loaded %s in %s", url, time.Since(start).Round(time.Millisecond))
	return nil
}

// Exists reports whether sel matches an element right now.
func (s *Session) Exists(ctx context.Context, sel string) (bool, error) {
	var ok bool
	expr := fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(sel))
	if err := s.run(ctx, chromedp.Evaluate(expr, &ok)); err != nil {
		return false, &Error{Op: "query " + sel, Cause: err}
	}
	return ok, nil
}

// Screenshot captures the element matched by sel as PNG.
func (s *Session) Screenshot(ctx context.Context, sel string) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.Screenshot(sel, &buf, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return nil, &Error{Op: "screenshot " + sel, Cause: err}
	}
	return buf, nil
}

// Fill clears the input matched by sel and types value into it.
func (s *Session) Fill(ctx context.Context, sel, value string) error {
	err := s.run(ctx,
		chromedp.SetValue(sel, "", chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	)
	if err != nil {
		return &Error{Op: "fill " + sel, Cause: err}
	}
	return nil
}

// Click clicks the first element matched by sel.
func (s *Session) Click(ctx context.Context, sel string) error {
	if err := s.run(ctx, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return &Error{Op: "click " + sel, Cause: err}
	}
	return nil
}

const clickByTextJS = `(function(scope, sel, labels) {
	var root = scope ? document.querySelector(scope) : document;
	if (!root) { return false; }
	var nodes = root.querySelectorAll(sel);
	for (var i = 0; i < nodes.length; i++) {
		var n = nodes[i];
		var text = ((n.innerText || n.value || n.getAttribute('aria-label') || '') + '').trim().toLowerCase();
		if (!text) { continue; }
		for (var j = 0; j < labels.length; j++) {
			if (text.indexOf(labels[j]) !== -1) { n.click(); return true; }
		}
	}
	return false;
})(%s, %s, %s)`

const clickByIDJS = `(function(scope, sel, tokens) {
	var root = scope ? document.querySelector(scope) : document;
	if (!root) { return false; }
	var nodes = root.querySelectorAll(sel);
	for (var i = 0; i < nodes.length; i++) {
		var n = nodes[i];
		var id = ((n.id || '') + ' ' + (n.getAttribute('name') || '')).toLowerCase();
		for (var j = 0; j < tokens.length; j++) {
			if (id.indexOf(tokens[j]) !== -1) { n.click(); return true; }
		}
	}
	return false;
})(%s, %s, %s)`

// ClickText clicks the first clickable element inside scope whose visible text
// contains one of labels (case-insensitive). An empty scope searches the document.
func (s *Session) ClickText(ctx context.Context, scope string, labels []string) (bool, error) {
	return s.clickMatching(ctx, "click text", clickByTextJS, scope, labels)
}

// ClickIDToken clicks the first clickable element inside scope whose id or
// name contains one of tokens (case-insensitive).
func (s *Session) ClickIDToken(ctx context.Context, scope string, tokens []string) (bool, error) {
	return s.clickMatching(ctx, "click id", clickByIDJS, scope, tokens)
}

func (s *Session) clickMatching(ctx context.Context, op, script, scope string, needles []string) (bool, error) {
	lowered := make([]string, 0, len(needles))
	for _, n := range needles {
		lowered = append(lowered, strings.ToLower(strings.TrimSpace(n)))
	}
	list, err := json.Marshal(lowered)
	if err != nil {
		return false, &Error{Op: op, Cause: err}
	}

	var clicked bool
	expr := fmt.Sprintf(script, jsString(scope), jsString(clickable), string(list))
	if err := s.run(ctx, chromedp.Evaluate(expr, &clicked)); err != nil {
		return false, &Error{Op: op, Cause: err}
	}
	return clicked, nil
}

// Text returns the rendered text of the page body.
func (s *Session) Text(ctx context.Context) (string, error) {
	var text string
	if err := s.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text)); err != nil {
		return "", &Error{Op: "text", Cause: err}
	}
	return text, nil
}

// HTML returns the serialized document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", &Error{Op: "html", Cause: err}
	}
	return html, nil
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
