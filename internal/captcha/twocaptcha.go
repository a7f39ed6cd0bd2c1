package captcha

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonathan/job-catalog/internal/wait"
)

// DefaultTwoCaptchaURL is the public endpoint of the 2captcha-compatible API.
const DefaultTwoCaptchaURL = "https://2captcha.com"

const notReady = "CAPCHA_NOT_READY"

// TwoCaptchaConfig configures the HTTP solving service.
type TwoCaptchaConfig struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
	Timeout      time.Duration
}

// TwoCaptcha implements Service against a 2captcha-compatible in.php / res.php API.
type TwoCaptcha struct {
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	timeout      time.Duration
	http         *http.Client
}

// NewTwoCaptcha creates the service client.
func NewTwoCaptcha(cfg TwoCaptchaConfig) *TwoCaptcha {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultTwoCaptchaURL
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &TwoCaptcha{
		baseURL:      base,
		apiKey:       cfg.APIKey,
		pollInterval: poll,
		timeout:      timeout,
		http:         &http.Client{Timeout: 30 * time.Second},
	}
}

type twoCaptchaResponse struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

func (c *TwoCaptcha) call(req *http.Request) (*twoCaptchaResponse, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP status %d", resp.StatusCode)
	}

	var out twoCaptchaResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// Solve uploads the image and polls for the answer until the service timeout.
func (c *TwoCaptcha) Solve(ctx context.Context, png []byte) (string, error) {
	form := url.Values{}
	form.Set("key", c.apiKey)
	form.Set("method", "base64")
	form.Set("body", base64.StdEncoding.EncodeToString(png))
	form.Set("json", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/in.php", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	uploaded, err := c.call(req)
	if err != nil {
		return "", fmt.Errorf("upload challenge: %w", err)
	}
	if uploaded.Status != 1 {
		return "", fmt.Errorf("upload rejected: %s", uploaded.Request)
	}
	taskID := uploaded.Request

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("action", "get")
	q.Set("id", taskID)
	q.Set("json", "1")
	resultURL := c.baseURL + "/res.php?" + q.Encode()

	// the service needs a moment before the first poll
	if err := wait.Settle(ctx, c.pollInterval); err != nil {
		return "", err
	}

	answer, err := wait.Value(ctx, c.timeout, c.pollInterval, func(ctx context.Context) (string, bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
		if err != nil {
			return "", false, err
		}
		res, err := c.call(req)
		if err != nil {
			return "", false, fmt.Errorf("poll task %s: %w", taskID, err)
		}
		if res.Status == 1 {
			return res.Request, true, nil
		}
		if res.Request == notReady {
			return "", false, nil
		}
		return "", false, fmt.Errorf("task %s failed: %s", taskID, res.Request)
	})
	if err != nil {
		return "", err
	}
	return answer, nil
}
