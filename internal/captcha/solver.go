// Package captcha detects the image challenge in front of the employer contact
// block, has it answered by a solving service and submits the answer.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jonathan/job-catalog/internal/wait"
)

// ErrSubmitNotFound means none of the submit heuristics matched the page.
var ErrSubmitNotFound = errors.New("captcha: no submit control found")

// SolveError represents a failure of the solving round trip.
type SolveError struct {
	Message string
	Cause   error
}

func (e *SolveError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("captcha solve error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("captcha solve error: %s", e.Message)
}

func (e *SolveError) Unwrap() error {
	return e.Cause
}

// State is a step of a solver run.
type State string

// Solver states.
const (
	StateChecking       State = "checking"
	StateNoChallenge    State = "no-challenge"
	StateSolving        State = "solving"
	StateSubmitting     State = "submitting"
	StateAwaitingUpdate State = "awaiting-update"
	StateCleared        State = "cleared"
	StateStuck          State = "stuck"
)

// Page is the subset of a browser session the solver drives.
type Page interface {
	Exists(ctx context.Context, sel string) (bool, error)
	Screenshot(ctx context.Context, sel string) ([]byte, error)
	Fill(ctx context.Context, sel, value string) error
	Click(ctx context.Context, sel string) error
	ClickText(ctx context.Context, scope string, labels []string) (bool, error)
	ClickIDToken(ctx context.Context, scope string, tokens []string) (bool, error)
	Text(ctx context.Context) (string, error)
}

// Service turns a PNG challenge image into a text answer.
type Service interface {
	Solve(ctx context.Context, png []byte) (string, error)
}

// Config holds selectors, heuristics and wait budgets.
type Config struct {
	ImageSelector   string
	InputSelector   string
	FormSelector    string
	PromptText      string
	SubmitLabels    []string
	SubmitIDTokens  []string
	SecondaryLabels []string

	SolveTimeout  time.Duration
	ChallengeWait time.Duration
	PollInterval  time.Duration
	SettleDelay   time.Duration
}

// DefaultConfig returns the selectors used on job detail pages.
func DefaultConfig() Config {
	return Config{
		ImageSelector:   "#kontaktdaten-captcha-image",
		InputSelector:   "#kontaktdaten-captcha-input",
		FormSelector:    "#jobdetails-kontaktdaten-block",
		PromptText:      "Sicherheitsabfrage",
		SubmitLabels:    []string{"absenden", "senden", "submit", "bestätigen", "weiter"},
		SubmitIDTokens:  []string{"submit", "absenden", "send"},
		SecondaryLabels: []string{"kontakt", "pdf", "anzeigen", "laden", "show", "load"},
		SolveTimeout:    90 * time.Second,
		ChallengeWait:   8 * time.Second,
		PollInterval:    500 * time.Millisecond,
		SettleDelay:     1500 * time.Millisecond,
	}
}

// Result describes how a run ended.
type Result struct {
	State        State
	Trail        []State
	Answer       string
	UsedFallback bool
}

// Cleared reports whether the contact block should now be visible.
func (r *Result) Cleared() bool {
	return r.State == StateCleared || r.State == StateNoChallenge
}

// Solver runs the challenge state machine against one page.
type Solver struct {
	service Service
	cfg     Config
}

// NewSolver creates a Solver.
func NewSolver(service Service, cfg Config) *Solver {
	return &Solver{service: service, cfg: cfg}
}

func (r *Result) enter(s State) {
	r.State = s
	r.Trail = append(r.Trail, s)
}

// Run drives the page through the challenge. A challenge that does not go away
// is reported as StateStuck, not as an error.
func (s *Solver) Run(ctx context.Context, page Page) (*Result, error) {
	res := &Result{}
	res.enter(StateChecking)

	present, err := page.Exists(ctx, s.cfg.ImageSelector)
	if err != nil {
		return res, fmt.Errorf("check for challenge: %w", err)
	}
	if !present {
		res.enter(StateNoChallenge)
		log.Printf("[captcha] no challenge on page")
		return res, nil
	}

	res.enter(StateSolving)
	answer, err := s.solve(ctx, page)
	if err != nil {
		return res, err
	}
	res.Answer = answer

	res.enter(StateSubmitting)
	if err := page.Fill(ctx, s.cfg.InputSelector, answer); err != nil {
		return res, fmt.Errorf("enter answer: %w", err)
	}
	how, err := s.submit(ctx, page)
	if err != nil {
		return res, err
	}
	log.Printf("[captcha] answer submitted via %s", how)

	res.enter(StateAwaitingUpdate)
	gone, err := s.awaitPromptGone(ctx, page)
	if err != nil {
		return res, err
	}
	if !gone {
		clicked, err := s.clickSecondary(ctx, page)
		if err != nil {
			return res, fmt.Errorf("secondary control: %w", err)
		}
		if clicked {
			res.UsedFallback = true
			log.Printf("[captcha] prompt still shown, clicked secondary control")
			if gone, err = s.awaitPromptGone(ctx, page); err != nil {
				return res, err
			}
		}
	}

	if err := wait.Settle(ctx, s.cfg.SettleDelay); err != nil {
		return res, err
	}
	if !gone {
		// one last look after rendering settled
		if gone, err = s.promptGone(ctx, page); err != nil {
			return res, err
		}
	}

	if gone {
		res.enter(StateCleared)
	} else {
		res.enter(StateStuck)
		log.Printf("[captcha] challenge prompt still present after fallbacks")
	}
	return res, nil
}

// clickSecondary looks for the secondary control inside the challenge form
// first. Only when the form has none does it search the whole document, where
// a label like "kontakt" can also match site navigation.
func (s *Solver) clickSecondary(ctx context.Context, page Page) (bool, error) {
	if s.cfg.FormSelector != "" {
		clicked, err := page.ClickText(ctx, s.cfg.FormSelector, s.cfg.SecondaryLabels)
		if err != nil || clicked {
			return clicked, err
		}
	}
	return page.ClickText(ctx, "", s.cfg.SecondaryLabels)
}

func (s *Solver) solve(ctx context.Context, page Page) (string, error) {
	img, err := page.Screenshot(ctx, s.cfg.ImageSelector)
	if err != nil {
		return "", &SolveError{Message: "capture challenge image", Cause: err}
	}
	if len(img) == 0 {
		return "", &SolveError{Message: "empty challenge image"}
	}

	solveCtx := ctx
	if s.cfg.SolveTimeout > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, s.cfg.SolveTimeout)
		defer cancel()
	}

	start := time.Now()
	answer, err := s.service.Solve(solveCtx, img)
	if err != nil {
		return "", &SolveError{Message: "solving service failed", Cause: err}
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", &SolveError{Message: "solving service returned an empty answer"}
	}
	log.Printf("[captcha] answer received in %s", time.Since(start).Round(time.Millisecond))
	return answer, nil
}

// submit tries the submit heuristics in order and returns which one matched.
func (s *Solver) submit(ctx context.Context, page Page) (string, error) {
	scope := s.cfg.FormSelector
	roleSel := `button[type="submit"], input[type="submit"]`
	if scope != "" {
		roleSel = scope + ` button[type="submit"], ` + scope + ` input[type="submit"]`
	}

	ok, err := page.Exists(ctx, roleSel)
	if err != nil {
		return "", fmt.Errorf("find submit control: %w", err)
	}
	if ok {
		if err := page.Click(ctx, roleSel); err != nil {
			return "", fmt.Errorf("click submit control: %w", err)
		}
		return "submit role", nil
	}

	ok, err = page.ClickText(ctx, scope, s.cfg.SubmitLabels)
	if err != nil {
		return "", fmt.Errorf("find submit label: %w", err)
	}
	if ok {
		return "submit label", nil
	}

	ok, err = page.ClickIDToken(ctx, scope, s.cfg.SubmitIDTokens)
	if err != nil {
		return "", fmt.Errorf("find submit id: %w", err)
	}
	if ok {
		return "submit id", nil
	}

	return "", ErrSubmitNotFound
}

func (s *Solver) promptGone(ctx context.Context, page Page) (bool, error) {
	text, err := page.Text(ctx)
	if err != nil {
		return false, fmt.Errorf("read page text: %w", err)
	}
	return !strings.Contains(strings.ToLower(text), strings.ToLower(s.cfg.PromptText)), nil
}

func (s *Solver) awaitPromptGone(ctx context.Context, page Page) (bool, error) {
	err := wait.Until(ctx, s.cfg.ChallengeWait, s.cfg.PollInterval, func(ctx context.Context) (bool, error) {
		return s.promptGone(ctx, page)
	})
	if errors.Is(err, wait.ErrTimeout) {
		return false, nil
	}
	return err == nil, err
}
