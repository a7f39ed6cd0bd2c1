package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/job-catalog/internal/captcha"
	"github.com/jonathan/job-catalog/internal/catalog"
	"github.com/jonathan/job-catalog/internal/db"
	"github.com/jonathan/job-catalog/internal/lookup"
	"github.com/jonathan/job-catalog/internal/server/ratelimit"
	"github.com/jonathan/job-catalog/internal/syncer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	res  *syncer.RunResult
	err  error
	reqs []syncer.Request
}

func (f *fakeRunner) Run(_ context.Context, req syncer.Request) (*syncer.RunResult, error) {
	f.reqs = append(f.reqs, req)
	return f.res, f.err
}

type fakeContacts struct {
	res  *lookup.Result
	err  error
	refs []string
}

func (f *fakeContacts) Lookup(_ context.Context, refNr string) (*lookup.Result, error) {
	f.refs = append(f.refs, refNr)
	if f.err != nil {
		return nil, f.err
	}
	res := *f.res
	res.RefNr = refNr
	return &res, nil
}

type testServer struct {
	*Server
	runner   *fakeRunner
	contacts *fakeContacts
	store    *db.MemoryStore
	token    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	runner := &fakeRunner{res: &syncer.RunResult{
		RunID:     uuid.MustParse("7b0c6a34-4b8e-4d4e-9d57-4f3f1f0e9a10"),
		Status:    db.RunStatusDone,
		Processed: 6,
		Saved:     6,
		Degraded:  1,
	}}
	contacts := &fakeContacts{res: &lookup.Result{
		Contact:   &catalog.ContactInfo{Name: "Herr Max Muster", Phone: "030 1234567"},
		Challenge: captcha.StateNoChallenge,
	}}
	store := db.NewMemoryStore()
	jwtService := setupTestJWTService(t, 1)
	token, err := jwtService.GenerateToken("ops")
	require.NoError(t, err)

	limiter := ratelimit.NewLimiter(&ratelimit.Config{Enabled: true, DefaultLimit: 1000, DefaultWindow: time.Minute})
	t.Cleanup(limiter.Stop)

	s := New(Config{Port: 0, ManualMaxPages: 2}, Deps{
		Catalog:  store,
		Sync:     runner,
		Runs:     store,
		Contacts: contacts,
		Limiter:  limiter,
		JWT:      jwtService,
	})
	return &testServer{Server: s, runner: runner, contacts: contacts, store: store, token: token}
}

func (ts *testServer) do(t *testing.T, method, target string, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/health", "", false)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"), "health is not rate limited")
}

func TestPreflightReturnsNoContent(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/contact", "/sync", "/catalog/10000-1"} {
		w := ts.do(t, http.MethodOptions, path, "", false)

		assert.Equal(t, http.StatusNoContent, w.Code, path)
		assert.Empty(t, w.Body.String())
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	}
}

func TestContact_Get(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/contact?refnr=10000-1", "", false)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.JSONEq(t, `{
		"success": true,
		"refnr": "10000-1",
		"kontakt": {"name": "Herr Max Muster", "telefon": "030 1234567"},
		"kontaktStatus": "found",
		"challenge": "no-challenge"
	}`, w.Body.String())
	assert.Equal(t, []string{"10000-1"}, ts.contacts.refs)
}

func TestContact_PostBody(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/contact", `{"refnr":" 10000-2 "}`, false)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])
	assert.Equal(t, []string{"10000-2"}, ts.contacts.refs)
}

func TestContact_MissingRefNr(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		method string
		body   string
	}{
		{name: "get without query", method: http.MethodGet},
		{name: "post without body", method: http.MethodPost},
		{name: "post with empty field", method: http.MethodPost, body: `{"refnr":""}`},
		{name: "post with other field", method: http.MethodPost, body: `{"id":"10000-1"}`},
		{name: "post with broken json", method: http.MethodPost, body: `{"refnr":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, tt.method, "/contact", tt.body, false)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decode(t, w)
			assert.Equal(t, false, resp["success"])
			assert.NotEmpty(t, resp["error"])
		})
	}
	assert.Empty(t, ts.contacts.refs)
}

func TestContact_NothingFound(t *testing.T) {
	ts := newTestServer(t)
	ts.contacts.res = &lookup.Result{Contact: &catalog.ContactInfo{}, Challenge: captcha.StateCleared}

	w := ts.do(t, http.MethodGet, "/contact?refnr=10000-3", "", false)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "none", resp["kontaktStatus"])
	assert.Equal(t, map[string]any{}, resp["kontakt"])
}

func TestContact_ExtractionFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.contacts.err = &lookup.Error{RefNr: "10000-1", Message: "failed to load job page", Cause: errors.New("net::ERR_CONNECTION_RESET")}

	w := ts.do(t, http.MethodGet, "/contact?refnr=10000-1", "", false)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode(t, w)
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["error"], "failed to load job page")
}

func TestContact_Timeout(t *testing.T) {
	ts := newTestServer(t)
	ts.contacts.err = &lookup.Error{RefNr: "10000-1", Message: "challenge failed", Cause: context.DeadlineExceeded}

	w := ts.do(t, http.MethodPost, "/contact?refnr=10000-1", "", false)

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestSync_RequiresOperator(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/sync", "", false)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, ts.runner.reqs)
}

func TestSync_ManualTrigger(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/sync", "", true)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"success": true,
		"runId": "7b0c6a34-4b8e-4d4e-9d57-4f3f1f0e9a10",
		"status": "done",
		"processed": 6,
		"saved": 6,
		"errors": 1,
		"skipped": 0
	}`, w.Body.String())

	require.Len(t, ts.runner.reqs, 1)
	assert.Equal(t, syncer.Request{Trigger: db.TriggerManual, MaxPages: 2}, ts.runner.reqs[0])
}

func TestSync_RunInProgress(t *testing.T) {
	ts := newTestServer(t)
	ts.runner.res = nil
	ts.runner.err = syncer.ErrRunInProgress

	w := ts.do(t, http.MethodPost, "/sync", "", true)

	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decode(t, w)
	assert.Equal(t, false, resp["success"])
}

func TestSync_FailedRun(t *testing.T) {
	ts := newTestServer(t)
	ts.runner.res = &syncer.RunResult{RunID: uuid.New(), Status: db.RunStatusFailed}
	ts.runner.err = fmt.Errorf("fetch listings: %w", errors.New("page 2: status 503"))

	w := ts.do(t, http.MethodPost, "/sync", "", true)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode(t, w)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "failed", resp["status"])
	assert.Contains(t, resp["error"], "status 503")
}

func TestListRuns(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, ts.store.CreateSyncRun(ctx, &db.SyncRun{
			Trigger:   db.TriggerScheduled,
			Status:    db.RunStatusRunning,
			StartedAt: time.Date(2026, 1, 1+i, 3, 0, 0, 0, time.UTC),
		}))
	}

	w := ts.do(t, http.MethodGet, "/sync/runs?limit=2", "", true)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, float64(2), resp["count"])

	w = ts.do(t, http.MethodGet, "/sync/runs?limit=abc", "", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/sync/runs", "", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetEntry(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, ts.store.PutEntry(ctx, &catalog.CatalogEntry{
		RefNr:  "10000-1",
		Detail: catalog.JobDetailRecord{RefNr: "10000-1", Title: "Backend Developer"},
	}))

	w := ts.do(t, http.MethodGet, "/catalog/10000-1", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "10000-1", resp["refnr"])

	w = ts.do(t, http.MethodGet, "/catalog/10000-9", "", false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimitResponse(t *testing.T) {
	limiter := ratelimit.NewLimiter(&ratelimit.Config{Enabled: true, DefaultLimit: 1, DefaultWindow: time.Hour})
	t.Cleanup(limiter.Stop)
	s := New(Config{}, Deps{Contacts: &fakeContacts{res: &lookup.Result{Contact: &catalog.ContactInfo{}}}, Limiter: limiter})

	req := httptest.NewRequest(http.MethodGet, "/contact?refnr=1", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limit_exceeded", decode(t, w)["error"])
}

func TestSyncWithoutJWTIsRejected(t *testing.T) {
	runner := &fakeRunner{}
	s := New(Config{}, Deps{Sync: runner})
	t.Cleanup(s.rateLimiter.Stop)

	req := httptest.NewRequest(http.MethodPost, "/sync", bytes.NewReader(nil))
	req.Header.Set("Authorization", "Bearer anything")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, runner.reqs)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(lookup.ErrMissingRefNr))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(&ErrValidation{Field: "body", Message: "invalid JSON"}))
	assert.Equal(t, http.StatusConflict, HTTPStatus(fmt.Errorf("run: %w", syncer.ErrRunInProgress)))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(catalog.ErrNotFound))
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatus(&lookup.Error{Cause: context.DeadlineExceeded}))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}
