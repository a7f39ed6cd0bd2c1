// Package jobsapi talks to the external job-search and job-detail endpoints and
// turns their responses into catalog stubs and detail records.
package jobsapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/job-catalog/internal/catalog"
	"github.com/jonathan/job-catalog/internal/fetch"
	"github.com/jonathan/job-catalog/internal/schemas"
)

const (
	searchPath = "/pc/v4/app/jobs"
	detailPath = "/pc/v4/jobdetails/"
)

// APIError represents a failed call to the listing or detail endpoint.
type APIError struct {
	Endpoint   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("jobs api %s: %s (status %d)", e.Endpoint, e.Message, e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("jobs api %s: %s: %v", e.Endpoint, e.Message, e.Cause)
	}
	return fmt.Sprintf("jobs api %s: %s", e.Endpoint, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// Config holds the connection settings for the jobs API.
type Config struct {
	BaseURL  string
	APIKey   string
	ClientID string
	Timeout  time.Duration
}

// SearchResult is one page of the search endpoint.
type SearchResult struct {
	Page          int
	TotalReported int
	Stubs         []catalog.ListingStub
}

// Client calls the search and detail endpoints. Every request waits on the
// shared throttle first.
type Client struct {
	baseURL  string
	apiKey   string
	clientID string
	http     *http.Client
	throttle *fetch.Throttle
}

// NewClient creates a Client.
func NewClient(cfg Config, throttle *fetch.Throttle) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = fetch.DefaultTimeout
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		clientID: cfg.ClientID,
		http:     &http.Client{Timeout: timeout},
		throttle: throttle,
	}
}

func (c *Client) get(ctx context.Context, endpoint, rawURL string) ([]byte, error) {
	opts := &fetch.Options{
		UserAgent: c.clientID,
		Headers: map[string]string{
			"X-API-Key": c.apiKey,
			"Accept":    "application/json",
		},
		Client:   c.http,
		Throttle: c.throttle,
	}

	result, err := fetch.URL(ctx, rawURL, opts)
	if err != nil {
		var fe *fetch.Error
		if errors.As(err, &fe) && fe.StatusCode != 0 {
			return nil, &APIError{Endpoint: endpoint, StatusCode: fe.StatusCode, Message: "unexpected response", Cause: err}
		}
		return nil, &APIError{Endpoint: endpoint, Message: "request failed", Cause: err}
	}
	return result.Body, nil
}

// SearchPage fetches one page of listings. Pages are 1-based.
func (c *Client) SearchPage(ctx context.Context, page, size int) (*SearchResult, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))

	body, err := c.get(ctx, "search", c.baseURL+searchPath+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if err := schemas.Validate(schemas.SearchPage, body); err != nil {
		return nil, &APIError{Endpoint: "search", Message: "malformed search page", Cause: err}
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &APIError{Endpoint: "search", Message: "failed to decode search page", Cause: err}
	}

	stubs := make([]catalog.ListingStub, 0, len(resp.Listings))
	for _, l := range resp.Listings {
		stubs = append(stubs, catalog.ListingStub{
			RefNr:    l.RefNr,
			Title:    firstNonEmpty(l.Title, l.Occupation),
			Employer: l.Employer,
			Location: l.Location,
		})
	}

	return &SearchResult{
		Page:          page,
		TotalReported: int(resp.Total),
		Stubs:         stubs,
	}, nil
}

// DetailKey encodes a reference number the way the detail endpoint expects it.
func DetailKey(refNr string) string {
	return base64.StdEncoding.EncodeToString([]byte(refNr))
}

// Detail fetches the full record for one reference number.
func (c *Client) Detail(ctx context.Context, refNr string) (*catalog.JobDetailRecord, error) {
	if refNr == "" {
		return nil, &APIError{Endpoint: "detail", Message: "empty reference number"}
	}

	body, err := c.get(ctx, "detail", c.baseURL+detailPath+url.PathEscape(DetailKey(refNr)))
	if err != nil {
		return nil, err
	}
	if err := schemas.Validate(schemas.JobDetail, body); err != nil {
		return nil, &APIError{Endpoint: "detail", Message: "malformed detail body", Cause: err}
	}

	var resp detailResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &APIError{Endpoint: "detail", Message: "failed to decode detail body", Cause: err}
	}

	rec := resp.record()
	if rec.RefNr != refNr {
		return nil, &APIError{Endpoint: "detail", Message: fmt.Sprintf("detail for %q returned %q", refNr, rec.RefNr)}
	}
	return rec, nil
}
