package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/scout/internal/config"
	"github.com/hpungsan/scout/internal/errors"
	"github.com/hpungsan/scout/internal/request"
)

func newBackend(t *testing.T, h http.HandlerFunc, overrides map[string]config.RetryPolicy) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	rc := request.New(request.Options{
		BaseURL: srv.URL,
		Sleep:   func(context.Context, time.Duration) error { return nil },
	})
	return New(rc, overrides)
}

func TestPolicy_Defaults(t *testing.T) {
	c := New(request.New(request.Options{}), nil)
	require.Equal(t, config.RetryPolicy{MaxRetries: 2, BaseDelayMs: 500}, c.Policy(EndpointPing))
	require.Equal(t, config.RetryPolicy{MaxRetries: 2, BaseDelayMs: 1000}, c.Policy(EndpointKeywords))
	require.Equal(t, config.RetryPolicy{MaxRetries: 1, BaseDelayMs: 500}, c.Policy(EndpointVerify))
	require.Zero(t, c.Policy(EndpointConfirmedSearch).MaxRetries)
	require.Zero(t, c.Policy(EndpointAskMemory).MaxRetries)
	require.Zero(t, c.Policy(EndpointClearMemory).MaxRetries)
}

func TestPolicy_Overrides(t *testing.T) {
	c := New(request.New(request.Options{}), map[string]config.RetryPolicy{
		EndpointConditionSearch: {MaxRetries: 1, BaseDelayMs: 200},
		EndpointPing:            {MaxRetries: 0},
		EndpointUpload:          {MaxRetries: 5, BaseDelayMs: 100},
	})
	require.Equal(t, 1, c.Policy(EndpointConditionSearch).MaxRetries)
	require.Zero(t, c.Policy(EndpointPing).MaxRetries)
	require.Zero(t, c.Policy(EndpointUpload).MaxRetries)
}

func TestSearchesAreNotRetried(t *testing.T) {
	var calls int32
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"確認後搜索失敗"}`))
	}, nil)

	_, err := c.ConfirmedSearch(context.Background(), ConfirmedSearchRequest{SessionID: "s"})
	require.Error(t, err)
	require.Equal(t, "確認後搜索失敗", errors.Message(err))
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestKeywordsAreRetried(t *testing.T) {
	var calls int32
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}, nil)

	_, err := c.GenerateKeywords(context.Background(), KeywordsRequest{Description: "x"})
	require.Error(t, err)
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGenerateKeywords(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, Prefix+"/keywords/generate-for-confirmation", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "local-id", body["session_id"])
		_, _ = w.Write([]byte(`{
			"success": true,
			"session_id": "server-id",
			"keywords_with_synonyms": [
				{"keyword": "wafer", "synonyms": ["wafer chip"]},
				{"keyword": "probe", "synonyms": []}
			]
		}`))
	}, nil)

	out, err := c.GenerateKeywords(context.Background(), KeywordsRequest{Description: "d", SessionID: "local-id"})
	require.NoError(t, err)
	require.Equal(t, "server-id", out.SessionID)
	require.Len(t, out.Groups, 2)
	require.Equal(t, "wafer", out.Groups[0].Primary)
	require.Equal(t, []string{"wafer chip"}, out.Groups[0].Synonyms)
}

func TestConfirmedSearch_AcceptsSearchResultsKey(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"search_results":[{"專利名稱":"探針"}],"total_found":1}`))
	}, nil)

	out, err := c.ConfirmedSearch(context.Background(), ConfirmedSearchRequest{})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	require.Equal(t, "探針", out.Results[0].Title)
	require.Equal(t, 1, out.TotalFound)
}

func TestSearch_EmptyResultsNotNil(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"results":[],"total_found":0}`))
	}, nil)

	out, err := c.ConditionSearch(context.Background(), ConditionSearchRequest{})
	require.NoError(t, err)
	require.NotNil(t, out.Results)
	require.Empty(t, out.Results)
}

func TestSearch_SuccessFalseIsProtocolError(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"GPSS API驗證失敗"}`))
	}, nil)

	_, err := c.ConditionSearch(context.Background(), ConditionSearchRequest{})
	require.Error(t, err)
	require.Equal(t, errors.KindProtocol, errors.KindOf(err))
	require.Equal(t, "GPSS API驗證失敗", errors.Message(err))
}

func TestConditionSearch_FlattensFilters(t *testing.T) {
	var body map[string]any
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"success":true,"results":[]}`))
	}, nil)

	_, err := c.ConditionSearch(context.Background(), ConditionSearchRequest{
		UserCode:         "0123456789abcdef",
		MaxResults:       100,
		ConditionFilters: ConditionFilters{Applicant: "台積電", PublicationDateFrom: "2020-01-01"},
	})
	require.NoError(t, err)
	require.Equal(t, "台積電", body["applicant"])
	require.Equal(t, "2020-01-01", body["publication_date_from"])
	require.NotContains(t, body, "inventor")
	require.Equal(t, float64(100), body["max_results"])
}

func TestConditionFilters_Empty(t *testing.T) {
	require.True(t, ConditionFilters{}.Empty())
	require.True(t, ConditionFilters{Applicant: "   "}.Empty())
	require.False(t, ConditionFilters{IPCClass: "H01L"}.Empty())
}

func TestVerifyCredential_InvalidIsNotError(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, Prefix+"/test/gpss", r.URL.Path)
		_, _ = w.Write([]byte(`{"success":false,"status":"failed","message":"GPSS API驗證失敗"}`))
	}, nil)

	out, err := c.VerifyCredential(context.Background(), "bad")
	require.NoError(t, err)
	require.False(t, out.Success)
}

func TestUploadAndAnalyze(t *testing.T) {
	var calls int32
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		require.Equal(t, "xlsx", string(data))
		_, _ = w.Write([]byte(`{"success":true,"total_count":2,"processed_count":1,"errors":["row 2"],"results":[{"公開公告號":"TWI1"}]}`))
	}, nil)

	out, err := c.UploadAndAnalyze(context.Background(), "p.xlsx", strings.NewReader("xlsx"))
	require.NoError(t, err)
	require.Equal(t, 1, out.ProcessedCount)
	require.Equal(t, []string{"row 2"}, out.Errors)
	require.Equal(t, "TWI1", out.Results[0].PublicationNumber)
}

func TestUpload_NotRetried(t *testing.T) {
	var calls int32
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}, map[string]config.RetryPolicy{EndpointUpload: {MaxRetries: 3}})

	_, err := c.UploadAndAnalyze(context.Background(), "p.xlsx", strings.NewReader("x"))
	require.Error(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAsk_PicksEndpoint(t *testing.T) {
	var paths []string
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_, _ = w.Write([]byte(`{"success":true,"answer":"ok","execution_time":1.5}`))
	}, nil)

	_, err := c.Ask(context.Background(), AskRequest{SessionID: "s", Question: "q", UseMemory: true})
	require.NoError(t, err)
	_, err = c.Ask(context.Background(), AskRequest{SessionID: "s", Question: "q"})
	require.NoError(t, err)
	require.Equal(t, []string{Prefix + "/qa/ask-with-memory", Prefix + "/qa/ask-simple"}, paths)
}

func TestMemoryStatusAndHistory(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, Prefix+"/qa/memory-status/"):
			_, _ = w.Write([]byte(`{"success":true,"memory_status":{"memory_count":4,"has_db_history":true,"has_search_cache":false}}`))
		case strings.HasPrefix(r.URL.Path, Prefix+"/qa/history/"):
			require.Equal(t, "50", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`{"success":true,"history":[{"question":"q","answer":"a","created_at":1700000000}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}, nil)

	ms, err := c.MemoryStatus(context.Background(), "s")
	require.NoError(t, err)
	require.Equal(t, 4, ms.MemoryStatus.MemoryCount)
	require.True(t, ms.MemoryStatus.HasDBHistory)

	h, err := c.History(context.Background(), "s", 500)
	require.NoError(t, err)
	require.Len(t, h.History, 1)
	require.Equal(t, Text("1700000000"), h.History[0].CreatedAt)
}

func TestClearMemory(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		var body ClearMemoryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "s", body.SessionID)
		_, _ = w.Write([]byte(`{"success":true,"message":"對話記憶已清除"}`))
	}, nil)

	out, err := c.ClearMemory(context.Background(), "s")
	require.NoError(t, err)
	require.True(t, out.Success)
}

func TestExportAnalysis(t *testing.T) {
	c := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="patent_analysis_results_s_20260101.xlsx"`)
		_, _ = w.Write([]byte("PK"))
	}, nil)

	dl, err := c.ExportAnalysis(context.Background(), ExportAnalysisRequest{SessionID: "s"})
	require.NoError(t, err)
	require.Equal(t, "patent_analysis_results_s_20260101.xlsx", dl.Filename)
}
