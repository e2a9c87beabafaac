package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	types "github.com/yungbote/riskwatch-backend/internal/domain/risk"
	"github.com/yungbote/riskwatch-backend/internal/platform/envutil"
	"github.com/yungbote/riskwatch-backend/internal/platform/logger"
)

const predictPath = "/predict-risk"

type Options struct {
	BaseURL string
	APIKey  string

	// ModelID and ModelVersion are recorded when the service does not report its own.
	ModelID      string
	ModelVersion string

	// Timeout bounds the whole call, retry included.
	Timeout      time.Duration
	RetryBackoff time.Duration

	HTTPClient *http.Client
	Logger     *logger.Logger
}

type Client struct {
	baseURL string
	apiKey  string

	modelID      string
	modelVersion string

	timeout      time.Duration
	retryBackoff time.Duration

	httpClient *http.Client
	log        *logger.Logger
}

func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("baseURL required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 4500 * time.Millisecond
	}
	backoff := opts.RetryBackoff
	if backoff < 0 {
		backoff = 0
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}

	return &Client{
		baseURL:      baseURL,
		apiKey:       strings.TrimSpace(opts.APIKey),
		modelID:      strings.TrimSpace(opts.ModelID),
		modelVersion: strings.TrimSpace(opts.ModelVersion),
		timeout:      timeout,
		retryBackoff: backoff,
		httpClient:   hc,
		log:          log.With("client", "ScoringClient"),
	}, nil
}

func NewFromEnv(log *logger.Logger) (*Client, error) {
	return New(Options{
		BaseURL:      envutil.String("SCORING_BASE_URL", "http://localhost:8000", log),
		APIKey:       envutil.String("SCORING_API_KEY", "", log),
		ModelID:      envutil.String("SCORING_MODEL_ID", "dropout-risk", log),
		ModelVersion: envutil.String("SCORING_MODEL_VERSION", "extreme_dropout_v4", log),
		Timeout:      envutil.Millis("SCORING_TIMEOUT_MS", 4500*time.Millisecond, log),
		RetryBackoff: envutil.Millis("SCORING_RETRY_BACKOFF_MS", 250*time.Millisecond, log),
		Logger:       log,
	})
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Timeout() time.Duration { return c.timeout }

// Evaluate scores one feature vector. Every error it returns matches ErrScoringUnavailable.
func (c *Client) Evaluate(ctx context.Context, f Features) (Result, error) {
	var resp predictResponse
	if err := c.doJSON(ctx, http.MethodPost, predictPath, f, &resp); err != nil {
		return Result{}, err
	}
	res, err := c.validate(resp)
	if err != nil {
		return Result{}, &ScoringError{Kind: KindMalformed, Attempts: 1, Err: err}
	}
	return res, nil
}

func (c *Client) validate(resp predictResponse) (Result, error) {
	if resp.Score == nil {
		return Result{}, errors.New("missing score")
	}
	score := *resp.Score
	if score < 0 || score > 100 {
		return Result{}, fmt.Errorf("score out of range: %v", score)
	}
	if resp.Category == nil {
		return Result{}, errors.New("missing category")
	}
	cat, err := types.ParseRiskCategory(*resp.Category)
	if err != nil {
		return Result{}, err
	}
	if resp.Reasons == nil {
		return Result{}, errors.New("missing reasons")
	}
	reasons := make([]string, 0, len(resp.Reasons))
	for i, r := range resp.Reasons {
		if r == nil {
			return Result{}, fmt.Errorf("reason %d is null", i)
		}
		reasons = append(reasons, *r)
	}

	out := Result{
		Score:        score,
		Category:     cat,
		Reasons:      reasons,
		ModelID:      c.modelID,
		ModelVersion: c.modelVersion,
	}
	if resp.Model != nil {
		if v := strings.TrimSpace(resp.Model.ID); v != "" {
			out.ModelID = v
		}
		if v := strings.TrimSpace(resp.Model.Version); v != "" {
			out.ModelVersion = v
		}
	}
	return out, nil
}

// doJSON makes at most two attempts. Only network errors and 5xx responses are retried.
func (c *Client) doJSON(ctx context.Context, method string, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return &ScoringError{Kind: KindMalformed, Err: err}
		}
	}

	ctx2, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	const maxAttempts = 2
	var lastErr *ScoringError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx2.Err() != nil {
			return timeoutError(ctx2, attempt-1, lastErr)
		}

		req, err := http.NewRequestWithContext(ctx2, method, c.baseURL+path, bytes.NewReader(buf.Bytes()))
		if err != nil {
			return &ScoringError{Kind: KindNetwork, Attempts: attempt, Err: err}
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx2.Err() != nil {
				return timeoutError(ctx2, attempt, nil)
			}
			lastErr = &ScoringError{Kind: KindNetwork, Attempts: attempt, Err: err}
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			_ = resp.Body.Close()
			if readErr != nil {
				if ctx2.Err() != nil {
					return timeoutError(ctx2, attempt, nil)
				}
				lastErr = &ScoringError{Kind: KindNetwork, Attempts: attempt, Err: readErr}
			} else if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				lastErr = &ScoringError{
					Kind:       KindHTTP,
					StatusCode: resp.StatusCode,
					Attempts:   attempt,
					Err:        parseHTTPError(resp.StatusCode, raw),
				}
			} else {
				if err := json.Unmarshal(raw, out); err != nil {
					return &ScoringError{Kind: KindMalformed, Attempts: attempt, Err: err}
				}
				return nil
			}
		}

		if !lastErr.Transient() || attempt == maxAttempts {
			return lastErr
		}
		c.log.Warn("Scoring request failed, retrying", "attempt", attempt, "error", lastErr)
		select {
		case <-ctx2.Done():
			return timeoutError(ctx2, attempt, lastErr)
		case <-time.After(c.retryBackoff):
		}
	}
	return lastErr
}

func timeoutError(ctx context.Context, attempts int, last *ScoringError) *ScoringError {
	err := ctx.Err()
	if last != nil && last.Err != nil {
		err = fmt.Errorf("%w (last error: %v)", err, last.Err)
	}
	return &ScoringError{Kind: KindTimeout, Attempts: attempts, Err: err}
}
