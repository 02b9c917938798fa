// Package apiclient talks to the analysis backend over its JSON REST API.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/geo-report-client/internal/analysis"
	"github.com/JakeFAU/geo-report-client/internal/metrics"
	"github.com/JakeFAU/geo-report-client/internal/tracing"
)

// Backend endpoint paths.
const (
	pathGenerateQueries = "/generate-queries"
	pathRunAnalysis     = "/run-analysis"
	pathStartAnalysis   = "/run-analysis-async"
	pathAnalysisStatus  = "/analysis-status/{id}"
	pathAnalysis        = "/analysis/{id}"
	pathHealth          = "/health"
)

// Config tunes the underlying HTTP client.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	UserAgent    string
	// TracerProvider records client spans. Nil uses the global provider.
	TracerProvider trace.TracerProvider
}

// Client is a typed wrapper around the analysis backend.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// Health is the backend liveness payload.
type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type analysisRequest struct {
	AnalysisID string `json:"analysisId"`
}

type queriesRequest struct {
	Company  string `json:"company"`
	Industry string `json:"industry"`
}

type errorBody struct {
	Message string `json:"message"`
}

// New builds a Client. Retries are only attempted when cfg.RetryCount > 0 and
// only for 429 and 5xx responses.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{logger: logger}

	transportOpts := []otelhttp.Option{otelhttp.WithPropagators(tracing.Propagator())}
	if cfg.TracerProvider != nil {
		transportOpts = append(transportOpts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}

	hc := resty.New().
		SetTransport(otelhttp.NewTransport(http.DefaultTransport, transportOpts...)).
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	if cfg.UserAgent != "" {
		hc.SetHeader("User-Agent", cfg.UserAgent)
	}
	if cfg.Timeout > 0 {
		hc.SetTimeout(cfg.Timeout)
	}
	if cfg.RetryCount > 0 {
		hc.SetRetryCount(cfg.RetryCount).
			SetRetryWaitTime(cfg.RetryWait).
			SetRetryMaxWaitTime(cfg.RetryMaxWait).
			AddRetryCondition(func(r *resty.Response, _ error) bool {
				if r == nil {
					return false
				}
				return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
			})
	}
	hc.OnAfterResponse(c.observeResponse)
	hc.OnError(c.observeError)

	c.http = hc
	return c
}

// GenerateQueries asks the backend to prepare an analysis and its candidate queries.
func (c *Client) GenerateQueries(ctx context.Context, company, industry string) (analysis.QuerySet, error) {
	resp, err := c.do(ctx, http.MethodPost, pathGenerateQueries, "", queriesRequest{Company: company, Industry: industry})
	if err != nil {
		return analysis.QuerySet{}, fmt.Errorf("generate queries: %w", err)
	}
	var out analysis.QuerySet
	if err := decode(resp.Body(), &out); err != nil {
		return analysis.QuerySet{}, fmt.Errorf("generate queries: %w", err)
	}
	if out.AnalysisID == "" {
		return analysis.QuerySet{}, fmt.Errorf("generate queries: %w: missing analysisId", analysis.ErrMalformedResponse)
	}
	return out, nil
}

// RunAnalysis runs an analysis synchronously and returns its report.
func (c *Client) RunAnalysis(ctx context.Context, analysisID string) (*analysis.Result, error) {
	resp, err := c.do(ctx, http.MethodPost, pathRunAnalysis, "", analysisRequest{AnalysisID: analysisID})
	if err != nil {
		return nil, fmt.Errorf("run analysis: %w", err)
	}
	result, err := analysis.Snapshot{Result: resp.Body()}.DecodeResult()
	if err != nil {
		return nil, fmt.Errorf("run analysis: %w", err)
	}
	return result, nil
}

// StartAnalysis begins asynchronous execution. The success body is ignored.
func (c *Client) StartAnalysis(ctx context.Context, analysisID string) error {
	if _, err := c.do(ctx, http.MethodPost, pathStartAnalysis, "", analysisRequest{AnalysisID: analysisID}); err != nil {
		return fmt.Errorf("start analysis: %w", err)
	}
	return nil
}

// GetStatus performs one status poll.
func (c *Client) GetStatus(ctx context.Context, analysisID string) (analysis.Snapshot, error) {
	resp, err := c.do(ctx, http.MethodGet, pathAnalysisStatus, analysisID, nil)
	if err != nil {
		return analysis.Snapshot{}, fmt.Errorf("check status: %w", err)
	}
	var snap analysis.Snapshot
	if err := decode(resp.Body(), &snap); err != nil {
		return analysis.Snapshot{}, fmt.Errorf("check status: %w", err)
	}
	if snap.Status == "" {
		return analysis.Snapshot{}, fmt.Errorf("check status: %w: missing status", analysis.ErrMalformedResponse)
	}
	return snap, nil
}

// DeleteAnalysis removes an analysis and its report from the backend.
func (c *Client) DeleteAnalysis(ctx context.Context, analysisID string) error {
	if _, err := c.do(ctx, http.MethodDelete, pathAnalysis, analysisID, nil); err != nil {
		return fmt.Errorf("delete analysis: %w", err)
	}
	return nil
}

// Health checks backend liveness.
func (c *Client) Health(ctx context.Context) (Health, error) {
	resp, err := c.do(ctx, http.MethodGet, pathHealth, "", nil)
	if err != nil {
		return Health{}, fmt.Errorf("health check: %w", err)
	}
	var out Health
	if err := decode(resp.Body(), &out); err != nil {
		return Health{}, fmt.Errorf("health check: %w", err)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path, id string, body any) (*resty.Response, error) {
	req := c.http.R().SetContext(ctx)
	if id != "" {
		req.SetPathParam("id", id)
	}
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return resp, apiError(resp)
	}
	return resp, nil
}

// apiError converts a non-2xx response into *analysis.APIError, keeping the
// backend message when the body is a JSON object with one.
func apiError(resp *resty.Response) error {
	apiErr := &analysis.APIError{StatusCode: resp.StatusCode()}
	var body errorBody
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		apiErr.Message = body.Message
	}
	return apiErr
}

func decode(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", analysis.ErrMalformedResponse, err)
	}
	return nil
}

func (c *Client) observeResponse(_ *resty.Client, resp *resty.Response) error {
	endpoint := metrics.EndpointLabel(resp.Request.URL)
	metrics.ObserveBackendRequest(endpoint, resp.StatusCode(), resp.Time())
	c.logger.Debug("backend response",
		zap.String("method", resp.Request.Method),
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("duration", resp.Time()),
	)
	return nil
}

func (c *Client) observeError(req *resty.Request, err error) {
	endpoint := metrics.EndpointLabel(req.URL)
	metrics.ObserveBackendRequest(endpoint, 0, 0)
	c.logger.Debug("backend request failed",
		zap.String("method", req.Method),
		zap.String("endpoint", endpoint),
		zap.Error(err),
	)
}
