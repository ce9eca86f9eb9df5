// Package request is the single network boundary of scout. Every backend
// exchange goes through Client, which classifies failures into transport,
// protocol and decode errors and optionally retries with exponential backoff.
package request

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hpungsan/scout/internal/errors"
	"github.com/hpungsan/scout/internal/metrics"
)

// RequestIDHeader carries a per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// SleepFunc waits for d or until ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options configures New.
type Options struct {
	BaseURL string
	// Timeout bounds one exchange. Zero leaves the transport default.
	Timeout time.Duration
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Sleep replaces the backoff wait. Tests use it to record delays.
	Sleep SleepFunc
}

// Client performs JSON and multipart exchanges with the patent service.
type Client struct {
	http    *resty.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
	sleep   SleepFunc
}

// Download is a binary response together with the filename the server suggested.
type Download struct {
	Data        []byte
	Filename    string
	ContentType string
}

// New creates a Client.
func New(opts Options) *Client {
	hc := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetHeader("Accept", "application/json")
	if opts.Timeout > 0 {
		hc.SetTimeout(opts.Timeout)
	}

	c := &Client{
		http:    hc,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		sleep:   opts.Sleep,
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.metrics == nil {
		c.metrics = metrics.New(nil)
	}
	if c.sleep == nil {
		c.sleep = sleepWithContext
	}
	return c
}

// BaseURL returns the service root requests are sent to.
func (c *Client) BaseURL() string {
	return c.http.BaseURL
}

// Call sends payload (JSON-encoded, may be nil) to endpoint and decodes the
// JSON response into out (may be nil). Non-2xx responses become protocol
// errors whose message is taken from the body.
func (c *Client) Call(ctx context.Context, method, endpoint string, payload, out any) error {
	req := c.http.R().SetContext(ctx)
	if payload != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(payload)
	}
	resp, err := c.execute(req, method, endpoint)
	if err != nil {
		return err
	}
	return c.decode(endpoint, resp, out)
}

// CallWithRetry performs Call up to maxRetries+1 times. The first retry waits
// baseDelay and each further one doubles the wait. The last failure is
// returned unchanged. A cancelled ctx stops retrying.
func (c *Client) CallWithRetry(ctx context.Context, method, endpoint string, payload, out any, maxRetries int, baseDelay time.Duration) error {
	label := endpointLabel(endpoint)
	delay := baseDelay

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.metrics.Retries.WithLabelValues(label).Inc()
			c.logger.Info("retrying request",
				zap.String("endpoint", label),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.String("last_error", errors.Message(err)))
			if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
				return err
			}
			delay *= 2
		}

		err = c.Call(ctx, method, endpoint, payload, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

// Upload posts r as a multipart file under field. Uploads are never retried.
func (c *Client) Upload(ctx context.Context, endpoint, field, filename string, r io.Reader, out any) error {
	req := c.http.R().
		SetContext(ctx).
		SetFileReader(field, filename, r)
	resp, err := c.execute(req, http.MethodPost, endpoint)
	if err != nil {
		return err
	}
	return c.decode(endpoint, resp, out)
}

// Download posts payload and returns the raw response body.
func (c *Client) Download(ctx context.Context, endpoint string, payload any) (*Download, error) {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "*/*").
		SetBody(payload)
	resp, err := c.execute(req, http.MethodPost, endpoint)
	if err != nil {
		return nil, err
	}
	return &Download{
		Data:        resp.Body(),
		Filename:    filenameFromDisposition(resp.Header().Get("Content-Disposition")),
		ContentType: resp.Header().Get("Content-Type"),
	}, nil
}

// execute sends req and maps transport failures and non-2xx statuses to
// ScoutErrors. It records logs and metrics for every outcome.
func (c *Client) execute(req *resty.Request, method, endpoint string) (*resty.Response, error) {
	label := endpointLabel(endpoint)
	requestID := uuid.NewString()
	req.SetHeader(RequestIDHeader, requestID)

	log := c.logger.With(
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.String("endpoint", label),
	)
	log.Debug("request started")

	start := time.Now()
	resp, err := req.Execute(method, endpoint)
	elapsed := time.Since(start)
	c.metrics.RequestDuration.WithLabelValues(label).Observe(elapsed.Seconds())

	if err != nil {
		ctx := req.Context()
		if ctx != nil && ctx.Err() != nil {
			c.metrics.Requests.WithLabelValues(label, "transport").Inc()
			log.Warn("request cancelled", zap.Error(ctx.Err()))
			return nil, errors.NewCancelled(label)
		}
		c.metrics.Requests.WithLabelValues(label, "transport").Inc()
		log.Warn("request failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return nil, errors.NewTransport(label, err)
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		c.metrics.Requests.WithLabelValues(label, "protocol").Inc()
		msg := ExtractMessage(resp.Body(), status)
		log.Warn("request rejected",
			zap.Int("status", status),
			zap.String("message", msg),
			zap.Duration("elapsed", elapsed))
		return nil, errors.NewProtocol(label, status, msg)
	}

	log.Info("request completed", zap.Int("status", status), zap.Duration("elapsed", elapsed))
	return resp, nil
}

func (c *Client) decode(endpoint string, resp *resty.Response, out any) error {
	label := endpointLabel(endpoint)
	if out == nil {
		c.metrics.Requests.WithLabelValues(label, "ok").Inc()
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		c.metrics.Requests.WithLabelValues(label, "decode").Inc()
		c.logger.Warn("response decode failed", zap.String("endpoint", label), zap.Error(err))
		return errors.NewDecode(label, err)
	}
	c.metrics.Requests.WithLabelValues(label, "ok").Inc()
	return nil
}

// errorBody covers the error shapes the service produces:
// {"detail": "..."}, {"detail": [{"msg": "..."}]} and {"error": "...", "message": "..."}.
type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
}

// ExtractMessage picks the user-facing message from an error response body.
// Precedence: detail, then message, then the HTTP status text. An empty
// result means the caller should use the generic fallback.
func ExtractMessage(body []byte, status int) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if msg := detailMessage(eb.Detail); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(eb.Message); msg != "" {
			return msg
		}
	}
	return http.StatusText(status)
}

func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if m := strings.TrimSpace(it.Msg); m != "" {
				msgs = append(msgs, m)
			}
		}
		return strings.Join(msgs, "; ")
	}

	var obj struct {
		Message string `json:"message"`
		Msg     string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Message != "" {
			return strings.TrimSpace(obj.Message)
		}
		return strings.TrimSpace(obj.Msg)
	}
	return ""
}

// filenameFromDisposition returns the filename parameter of a
// Content-Disposition header. RFC 2231 filename* values are decoded by mime.
func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

// endpointLabel reduces an endpoint to a low-cardinality metric label:
// the query is dropped and id-like path segments become ":id".
func endpointLabel(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}
	endpoint = strings.TrimPrefix(endpoint, "/api/v1/patents")
	parts := strings.Split(endpoint, "/")
	for i, p := range parts {
		if len(p) >= 20 {
			parts[i] = ":id"
		}
	}
	label := strings.Join(parts, "/")
	if label == "" {
		return "/"
	}
	return label
}

// sleepWithContext sleeps for d, returning early with ctx.Err() on cancellation.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
