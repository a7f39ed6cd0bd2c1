package captcha

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePage simulates the job detail page around the challenge.
type fakePage struct {
	mu sync.Mutex

	challenge     bool
	submitRole    bool
	submitLabel   bool
	submitID      bool
	secondary     bool // secondary control somewhere on the page
	formSecondary bool // secondary control inside the challenge form
	clearOnSubmit bool
	clearOnSecond bool

	filled          string
	submitted       string
	clicks          []string
	secondaryScopes []string
}

func (p *fakePage) Exists(_ context.Context, sel string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sel == DefaultConfig().ImageSelector {
		return p.challenge, nil
	}
	if strings.Contains(sel, `[type="submit"]`) {
		return p.submitRole, nil
	}
	return false, nil
}

func (p *fakePage) Screenshot(context.Context, string) ([]byte, error) {
	return []byte("\x89PNG fake"), nil
}

func (p *fakePage) Fill(_ context.Context, _ string, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filled = value
	return nil
}

func (p *fakePage) submit(how string) {
	p.clicks = append(p.clicks, how)
	p.submitted = how
	if p.clearOnSubmit {
		p.challenge = false
	}
}

func (p *fakePage) Click(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submit("role")
	return nil
}

func (p *fakePage) ClickText(_ context.Context, scope string, labels []string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if strings.Join(labels, ",") == strings.Join(DefaultConfig().SecondaryLabels, ",") {
		p.secondaryScopes = append(p.secondaryScopes, scope)
		found := p.secondary
		if scope != "" {
			found = p.formSecondary
		}
		if !found {
			return false, nil
		}
		p.clicks = append(p.clicks, "secondary:"+scope)
		if p.clearOnSecond {
			p.challenge = false
		}
		return true, nil
	}
	if !p.submitLabel {
		return false, nil
	}
	p.submit("label")
	return true, nil
}

func (p *fakePage) ClickIDToken(context.Context, string, []string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.submitID {
		return false, nil
	}
	p.submit("id")
	return true, nil
}

func (p *fakePage) Text(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.challenge {
		return "Kontaktdaten\nSicherheitsabfrage\nBitte Zeichen eingeben", nil
	}
	return "Kontaktdaten\nFrau Erika Mustermann", nil
}

type fakeService struct {
	mu     sync.Mutex
	calls  int
	answer string
	err    error
}

func (s *fakeService) Solve(context.Context, []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.answer, s.err
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.ChallengeWait = 30 * time.Millisecond
	cfg.PollInterval = 5 * time.Millisecond
	cfg.SettleDelay = time.Millisecond
	cfg.SolveTimeout = time.Second
	return cfg
}

func TestSolver_NoChallengeNeverCallsService(t *testing.T) {
	svc := &fakeService{answer: "abc"}
	page := &fakePage{}

	res, err := NewSolver(svc, fastConfig()).Run(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, StateNoChallenge, res.State)
	assert.Equal(t, []State{StateChecking, StateNoChallenge}, res.Trail)
	assert.True(t, res.Cleared())
	assert.Equal(t, 0, svc.calls)
	assert.Empty(t, page.filled)
}

func TestSolver_ClearedViaSubmitRole(t *testing.T) {
	svc := &fakeService{answer: " x7k2p \n"}
	page := &fakePage{challenge: true, submitRole: true, submitLabel: true, clearOnSubmit: true}

	res, err := NewSolver(svc, fastConfig()).Run(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, StateCleared, res.State)
	assert.Equal(t, []State{StateChecking, StateSolving, StateSubmitting, StateAwaitingUpdate, StateCleared}, res.Trail)
	assert.Equal(t, "x7k2p", page.filled)
	assert.Equal(t, "role", page.submitted, "the submit role wins over label text")
	assert.Equal(t, 1, svc.calls)
	assert.False(t, res.UsedFallback)
}

func TestSolver_SubmitHeuristicOrder(t *testing.T) {
	t.Run("label when no submit role", func(t *testing.T) {
		page := &fakePage{challenge: true, submitLabel: true, submitID: true, clearOnSubmit: true}
		_, err := NewSolver(&fakeService{answer: "a"}, fastConfig()).Run(context.Background(), page)
		require.NoError(t, err)
		assert.Equal(t, "label", page.submitted)
	})

	t.Run("id token last", func(t *testing.T) {
		page := &fakePage{challenge: true, submitID: true, clearOnSubmit: true}
		_, err := NewSolver(&fakeService{answer: "a"}, fastConfig()).Run(context.Background(), page)
		require.NoError(t, err)
		assert.Equal(t, "id", page.submitted)
	})
}

func TestSolver_NoSubmitControlIsTerminal(t *testing.T) {
	page := &fakePage{challenge: true}
	res, err := NewSolver(&fakeService{answer: "a"}, fastConfig()).Run(context.Background(), page)
	require.ErrorIs(t, err, ErrSubmitNotFound)
	assert.Equal(t, StateSubmitting, res.State)
}

func TestSolver_SecondaryControlFallback(t *testing.T) {
	page := &fakePage{challenge: true, submitRole: true, secondary: true, clearOnSecond: true}
	res, err := NewSolver(&fakeService{answer: "a"}, fastConfig()).Run(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, StateCleared, res.State)
	assert.True(t, res.UsedFallback)
	require.Len(t, page.clicks, 2)
	assert.True(t, strings.HasPrefix(page.clicks[1], "secondary:"))
	assert.Equal(t, []string{DefaultConfig().FormSelector, ""}, page.secondaryScopes, "form first, then the document")
}

func TestSolver_SecondaryControlPrefersForm(t *testing.T) {
	page := &fakePage{challenge: true, submitRole: true, secondary: true, formSecondary: true, clearOnSecond: true}
	res, err := NewSolver(&fakeService{answer: "a"}, fastConfig()).Run(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, StateCleared, res.State)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, []string{DefaultConfig().FormSelector}, page.secondaryScopes, "document never searched")
	assert.Equal(t, "secondary:"+DefaultConfig().FormSelector, page.clicks[1])
}

func TestSolver_StuckIsNotAnError(t *testing.T) {
	page := &fakePage{challenge: true, submitRole: true, secondary: true}
	res, err := NewSolver(&fakeService{answer: "wrong"}, fastConfig()).Run(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, StateStuck, res.State)
	assert.False(t, res.Cleared())
}

func TestSolver_ServiceFailure(t *testing.T) {
	boom := errors.New("balance exhausted")
	res, err := NewSolver(&fakeService{err: boom}, fastConfig()).Run(context.Background(), &fakePage{challenge: true, submitRole: true})
	require.Error(t, err)

	var se *SolveError
	require.True(t, errors.As(err, &se))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateSolving, res.State)
}

func TestSolver_EmptyAnswer(t *testing.T) {
	_, err := NewSolver(&fakeService{answer: "  "}, fastConfig()).Run(context.Background(), &fakePage{challenge: true, submitRole: true})
	var se *SolveError
	require.True(t, errors.As(err, &se))
}

type slowService struct{}

func (slowService) Solve(ctx context.Context, _ []byte) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestSolver_SolveTimeoutIsBounded(t *testing.T) {
	cfg := fastConfig()
	cfg.SolveTimeout = 20 * time.Millisecond

	start := time.Now()
	_, err := NewSolver(slowService{}, cfg).Run(context.Background(), &fakePage{challenge: true, submitRole: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
