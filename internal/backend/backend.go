// Package backend is the typed API of the patent service, built on the
// request client. It owns the retry policy of every endpoint.
package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hpungsan/scout/internal/config"
	"github.com/hpungsan/scout/internal/errors"
	"github.com/hpungsan/scout/internal/patent"
	"github.com/hpungsan/scout/internal/request"
)

// Prefix is prepended to every patent route.
const Prefix = "/api/v1/patents"

// Endpoint names, used as retry policy keys in config.json.
const (
	EndpointPing            = "ping"
	EndpointKeywords        = "keywords"
	EndpointConfirmedSearch = "confirmed_search"
	EndpointConditionSearch = "condition_search"
	EndpointVerify          = "verify"
	EndpointUpload          = "upload"
	EndpointExportAnalysis  = "export_analysis"
	EndpointAskSimple       = "ask_simple"
	EndpointAskMemory       = "ask_memory"
	EndpointMemoryStatus    = "memory_status"
	EndpointHistory         = "history"
	EndpointSummary         = "summary"
	EndpointClearMemory     = "clear_memory"
)

// DefaultRetry is the retry policy per endpoint. Idempotent reads retry;
// searches, chat and memory clearing do not, so a slow backend is never
// asked twice for expensive or state-changing work. Endpoints absent here
// are not retried.
var DefaultRetry = map[string]config.RetryPolicy{
	EndpointPing:         {MaxRetries: 2, BaseDelayMs: 500},
	EndpointMemoryStatus: {MaxRetries: 2, BaseDelayMs: 500},
	EndpointHistory:      {MaxRetries: 2, BaseDelayMs: 500},
	EndpointSummary:      {MaxRetries: 2, BaseDelayMs: 500},
	EndpointKeywords:     {MaxRetries: 2, BaseDelayMs: 1000},
	EndpointVerify:       {MaxRetries: 1, BaseDelayMs: 500},
}

// neverRetry lists endpoints whose policy cannot be overridden: uploads and
// binary exports must not be silently repeated.
var neverRetry = map[string]bool{
	EndpointUpload:         true,
	EndpointExportAnalysis: true,
}

// MaxHistoryLimit is the most turns the history endpoint returns.
const MaxHistoryLimit = 50

// Client calls the patent service.
type Client struct {
	rc    *request.Client
	retry map[string]config.RetryPolicy
}

// New creates a Client. overrides replace DefaultRetry entries by name.
func New(rc *request.Client, overrides map[string]config.RetryPolicy) *Client {
	retry := make(map[string]config.RetryPolicy, len(DefaultRetry)+len(overrides))
	for k, v := range DefaultRetry {
		retry[k] = v
	}
	for k, v := range overrides {
		if neverRetry[k] {
			continue
		}
		retry[k] = v
	}
	return &Client{rc: rc, retry: retry}
}

// Policy returns the effective retry policy of endpoint.
func (c *Client) Policy(endpoint string) config.RetryPolicy {
	return c.retry[endpoint]
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string {
	return c.rc.BaseURL()
}

func (c *Client) call(ctx context.Context, endpoint, method, path string, payload, out any) error {
	p := c.retry[endpoint]
	if p.MaxRetries > 0 {
		return c.rc.CallWithRetry(ctx, method, path, payload, out, p.MaxRetries, p.BaseDelay())
	}
	return c.rc.Call(ctx, method, path, payload, out)
}

// Ping checks the service is up.
func (c *Client) Ping(ctx context.Context) (*PingResponse, error) {
	var out PingResponse
	if err := c.call(ctx, EndpointPing, http.MethodGet, "/ping", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateKeywords proposes keyword groups for a description. The response
// session id is authoritative and must be adopted by the caller.
func (c *Client) GenerateKeywords(ctx context.Context, req KeywordsRequest) (*KeywordsResponse, error) {
	path := Prefix + "/keywords/generate-for-confirmation"
	var out KeywordsResponse
	if err := c.call(ctx, EndpointKeywords, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, errors.NewProtocol(path, http.StatusOK, out.Message)
	}
	return &out, nil
}

// ConfirmedSearch runs a technical-description search.
func (c *Client) ConfirmedSearch(ctx context.Context, req ConfirmedSearchRequest) (*SearchResponse, error) {
	return c.search(ctx, EndpointConfirmedSearch, Prefix+"/search/tech-description-confirmed", req)
}

// ConditionSearch runs an attribute search.
func (c *Client) ConditionSearch(ctx context.Context, req ConditionSearchRequest) (*SearchResponse, error) {
	return c.search(ctx, EndpointConditionSearch, Prefix+"/condition/search", req)
}

func (c *Client) search(ctx context.Context, endpoint, path string, req any) (*SearchResponse, error) {
	var out SearchResponse
	if err := c.call(ctx, endpoint, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, errors.NewProtocol(path, http.StatusOK, out.Message)
	}
	return &out, nil
}

// VerifyCredential tests a GPSS credential. An invalid credential is not an
// error: the response has Success false.
func (c *Client) VerifyCredential(ctx context.Context, userCode string) (*VerifyResponse, error) {
	var out VerifyResponse
	body := map[string]string{"user_code": userCode}
	if err := c.call(ctx, EndpointVerify, http.MethodPost, Prefix+"/test/gpss", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadAndAnalyze sends a spreadsheet for per-patent analysis. Never retried.
func (c *Client) UploadAndAnalyze(ctx context.Context, filename string, r io.Reader) (*AnalysisResponse, error) {
	path := Prefix + "/excel/upload-and-analyze"
	var out AnalysisResponse
	if err := c.rc.Upload(ctx, path, "file", filename, r, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, errors.NewProtocol(path, http.StatusOK, out.Message)
	}
	if out.Results == nil {
		out.Results = []patent.Record{}
	}
	return &out, nil
}

// ExportAnalysis asks the backend to render analysis results as a spreadsheet.
func (c *Client) ExportAnalysis(ctx context.Context, req ExportAnalysisRequest) (*request.Download, error) {
	return c.rc.Download(ctx, Prefix+"/excel/export-analysis-results", req)
}

// Ask sends a question, with or without conversational memory.
func (c *Client) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	endpoint, path := EndpointAskSimple, Prefix+"/qa/ask-simple"
	if req.UseMemory {
		endpoint, path = EndpointAskMemory, Prefix+"/qa/ask-with-memory"
	}
	var out AskResponse
	if err := c.call(ctx, endpoint, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, errors.NewProtocol(path, http.StatusOK, out.Answer)
	}
	return &out, nil
}

// MemoryStatus fetches the memory snapshot of a session.
func (c *Client) MemoryStatus(ctx context.Context, sessionID string) (*MemoryStatusResponse, error) {
	var out MemoryStatusResponse
	path := Prefix + "/qa/memory-status/" + url.PathEscape(sessionID)
	if err := c.call(ctx, EndpointMemoryStatus, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History fetches up to limit stored turns; limit is clamped to 1..MaxHistoryLimit.
func (c *Client) History(ctx context.Context, sessionID string, limit int) (*HistoryResponse, error) {
	if limit < 1 {
		limit = 10
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	var out HistoryResponse
	path := fmt.Sprintf("%s/qa/history/%s?limit=%d", Prefix, url.PathEscape(sessionID), limit)
	if err := c.call(ctx, EndpointHistory, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.History == nil {
		out.History = []HistoryEntry{}
	}
	return &out, nil
}

// ConversationSummary returns the backend's free-form summary of a session.
func (c *Client) ConversationSummary(ctx context.Context, sessionID string) (map[string]any, error) {
	var out map[string]any
	path := Prefix + "/qa/conversation-summary/" + url.PathEscape(sessionID)
	if err := c.call(ctx, EndpointSummary, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ClearMemory clears the backend's conversational memory for a session.
func (c *Client) ClearMemory(ctx context.Context, sessionID string) (*ClearMemoryResponse, error) {
	var out ClearMemoryResponse
	path := Prefix + "/qa/clear-memory"
	if err := c.call(ctx, EndpointClearMemory, http.MethodPost, path, ClearMemoryRequest{SessionID: sessionID}, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, errors.NewProtocol(path, http.StatusOK, out.Message)
	}
	return &out, nil
}

