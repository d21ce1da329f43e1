package fetch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"zillow-scraper/models"
	"zillow-scraper/utils"
)

const zyteEndpoint = "https://api.zyte.com/v1/extract"

// ZyteClient fetches pages through the Zyte extract API. Transient
// responses (429/503/520, timeouts) are retried with exponential backoff;
// other client errors fail immediately. Requests across all workers are
// paced by a shared rate limiter.
type ZyteClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      *utils.RetryConfig
	logger     *utils.Logger
}

// ZyteOptions configures a ZyteClient.
type ZyteOptions struct {
	APIKey      string
	Endpoint    string // defaults to the public Zyte API endpoint
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	RatePerSec  float64
	Logger      *utils.Logger
}

// NewZyteClient validates the options and returns a ready ZyteClient.
func NewZyteClient(opts ZyteOptions) (*ZyteClient, error) {
	if opts.APIKey == "" {
		return nil, errors.New("zyte: API key is required")
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = zyteEndpoint
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := opts.MaxRetries
	if retries < 1 {
		retries = 5
	}
	backoff := opts.BackoffBase
	if backoff <= 0 {
		backoff = time.Second
	}
	rps := opts.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.NewLogger()
	}

	return &ZyteClient{
		apiKey:     opts.APIKey,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		retry: &utils.RetryConfig{
			MaxAttempts: retries,
			BaseDelay:   backoff,
			Logger:      logger,
		},
		logger: logger,
	}, nil
}

type zyteRequest struct {
	URL              string `json:"url"`
	HTTPResponseBody bool   `json:"httpResponseBody"`
}

type zyteResponse struct {
	HTTPResponseBody string `json:"httpResponseBody"`
}

// Fetch requests url through the extract API and returns the decoded page
// body. On failure it returns a *Failure carrying the failure kind of the
// last attempt.
func (c *ZyteClient) Fetch(ctx context.Context, url string) (string, error) {
	var html string

	err := c.retry.Do("fetch "+url, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return utils.Permanent(&Failure{Kind: models.FailTimeout, Detail: err.Error()})
		}

		body, err := c.doRequest(ctx, url)
		if err != nil {
			return err
		}
		html = body
		return nil
	})
	if err != nil {
		return "", wrapFailure(err)
	}
	return html, nil
}

func (c *ZyteClient) doRequest(ctx context.Context, url string) (string, error) {
	payload, err := json.Marshal(zyteRequest{URL: url, HTTPResponseBody: true})
	if err != nil {
		return "", utils.Permanent(&Failure{Kind: models.FailMalformed, Detail: err.Error()})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", utils.Permanent(&Failure{Kind: models.FailMalformed, Detail: err.Error()})
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Covers client timeouts and connection resets; both transient.
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return "", &Failure{Kind: models.FailTimeout, Detail: err.Error()}
		}
		return "", &Failure{Kind: models.FailHTTPError, Detail: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &Failure{Kind: models.FailRateLimited, Detail: resp.Status}
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == 520:
		return "", &Failure{Kind: models.FailHTTPError, Detail: resp.Status}
	case resp.StatusCode >= 500:
		return "", &Failure{Kind: models.FailHTTPError, Detail: resp.Status}
	case resp.StatusCode >= 400:
		return "", utils.Permanent(&Failure{Kind: models.FailHTTPError, Detail: resp.Status})
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Failure{Kind: models.FailMalformed, Detail: err.Error()}
	}

	var zr zyteResponse
	if err := json.Unmarshal(raw, &zr); err != nil {
		return "", utils.Permanent(&Failure{Kind: models.FailMalformed, Detail: "invalid API response: " + err.Error()})
	}

	decoded, err := base64.StdEncoding.DecodeString(zr.HTTPResponseBody)
	if err != nil {
		return "", utils.Permanent(&Failure{Kind: models.FailMalformed, Detail: "invalid response body encoding: " + err.Error()})
	}
	return string(decoded), nil
}

// wrapFailure normalizes retry-wrapper errors back to *Failure.
func wrapFailure(err error) error {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: models.FailHTTPError, Detail: err.Error()}
}

var _ Client = (*ZyteClient)(nil)
