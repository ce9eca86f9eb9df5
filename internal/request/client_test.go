package request

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

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/scout/internal/errors"
	"github.com/hpungsan/scout/internal/metrics"
)

func newTestClient(t *testing.T, h http.Handler) (*Client, *metrics.Metrics) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	m := metrics.New(nil)
	return New(Options{BaseURL: srv.URL, Metrics: m}), m
}

func TestCall_DecodesJSON(t *testing.T) {
	var gotBody map[string]any
	var gotRequestID string
	c, m := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/patents/keywords/generate-for-confirmation", r.URL.Path)
		gotRequestID = r.Header.Get(RequestIDHeader)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"session_id":"s-1"}`))
	}))

	var out struct {
		Success   bool   `json:"success"`
		SessionID string `json:"session_id"`
	}
	err := c.Call(context.Background(), http.MethodPost, "/api/v1/patents/keywords/generate-for-confirmation",
		map[string]string{"description": "wafer"}, &out)
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Equal(t, "s-1", out.SessionID)
	require.Equal(t, "wafer", gotBody["description"])
	require.NotEmpty(t, gotRequestID)
	require.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("/keywords/generate-for-confirmation", "ok")))
}

func TestCall_ProtocolErrorMessages(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail string", 400, `{"detail":"請先輸入GPSS API驗證碼"}`, "請先輸入GPSS API驗證碼"},
		{"detail list", 422, `{"detail":[{"msg":"field required"},{"msg":"too short"}]}`, "field required; too short"},
		{"message", 500, `{"error":"HTTP_ERROR","message":"upstream down"}`, "upstream down"},
		{"detail wins over message", 400, `{"detail":"d","message":"m"}`, "d"},
		{"status text", 404, `not json`, "Not Found"},
		{"empty body", 502, ``, "Bad Gateway"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))

			err := c.Call(context.Background(), http.MethodGet, "/ping", nil, nil)
			require.Error(t, err)
			require.Equal(t, errors.KindProtocol, errors.KindOf(err))
			require.Equal(t, tc.want, errors.Message(err))

			var sErr *errors.ScoutError
			require.ErrorAs(t, err, &sErr)
			require.Equal(t, tc.status, sErr.Status)
		})
	}
}

func TestExtractMessage_UnknownStatus(t *testing.T) {
	require.Equal(t, "", ExtractMessage(nil, 599))
	err := errors.NewProtocol("/ping", 599, ExtractMessage(nil, 599))
	require.Equal(t, errors.GenericMessage, err.Message)
}

func TestCall_DecodeError(t *testing.T) {
	c, m := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}))

	var out map[string]any
	err := c.Call(context.Background(), http.MethodGet, "/ping", nil, &out)
	require.Error(t, err)
	require.Equal(t, errors.KindDecode, errors.KindOf(err))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("/ping", "decode")))
}

func TestCall_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Options{BaseURL: url})
	err := c.Call(context.Background(), http.MethodGet, "/ping", nil, nil)
	require.Error(t, err)
	require.Equal(t, errors.KindTransport, errors.KindOf(err))
	require.True(t, errors.Is(err, errors.ErrTransport))
}

func TestCall_Cancelled(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Call(ctx, http.MethodGet, "/ping", nil, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.ErrCancelled))
}

func TestCallWithRetry_BackoffDoubles(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"still failing"}`))
	}))
	t.Cleanup(srv.Close)

	var delays []time.Duration
	m := metrics.New(nil)
	c := New(Options{
		BaseURL: srv.URL,
		Metrics: m,
		Sleep: func(ctx context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	})

	err := c.CallWithRetry(context.Background(), http.MethodGet, "/api/v1/patents/qa/history/x", nil, nil, 3, 100*time.Millisecond)
	require.Error(t, err)
	require.Equal(t, int32(4), atomic.LoadInt32(&attempts))
	require.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, delays)
	require.Equal(t, "still failing", errors.Message(err))
	require.Equal(t, errors.KindProtocol, errors.KindOf(err))
	require.Equal(t, 3.0, testutil.ToFloat64(m.Retries.WithLabelValues("/qa/history/x")))
}

func TestCallWithRetry_SucceedsAfterFailure(t *testing.T) {
	var attempts int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	c.sleep = func(context.Context, time.Duration) error { return nil }

	var out struct {
		Status string `json:"status"`
	}
	require.NoError(t, c.CallWithRetry(context.Background(), http.MethodGet, "/ping", nil, &out, 2, time.Millisecond))
	require.Equal(t, "ok", out.Status)
	require.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestCallWithRetry_StopsWhenSleepCancelled(t *testing.T) {
	var attempts int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	c.sleep = func(context.Context, time.Duration) error { return context.Canceled }

	err := c.CallWithRetry(context.Background(), http.MethodGet, "/ping", nil, nil, 3, time.Millisecond)
	require.Error(t, err)
	require.Equal(t, errors.KindProtocol, errors.KindOf(err))
	require.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestUpload_Multipart(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		require.Equal(t, "patents.xlsx", hdr.Filename)
		require.Equal(t, "sheet-bytes", string(data))
		_, _ = w.Write([]byte(`{"success":true,"processed_count":1}`))
	}))

	var out struct {
		ProcessedCount int `json:"processed_count"`
	}
	err := c.Upload(context.Background(), "/api/v1/patents/excel/upload-and-analyze", "file", "patents.xlsx",
		strings.NewReader("sheet-bytes"), &out)
	require.NoError(t, err)
	require.Equal(t, 1, out.ProcessedCount)
}

func TestDownload_Filename(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition",
			`attachment; filename="patent_analysis_results_abc.xlsx"; filename*=UTF-8''patent_analysis_results_abc.xlsx`)
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		_, _ = w.Write([]byte("PK\x03\x04"))
	}))

	dl, err := c.Download(context.Background(), "/api/v1/patents/excel/export-analysis-results", map[string]any{"results": []any{}})
	require.NoError(t, err)
	require.Equal(t, "patent_analysis_results_abc.xlsx", dl.Filename)
	require.Equal(t, []byte("PK\x03\x04"), dl.Data)
}

func TestEndpointLabel(t *testing.T) {
	require.Equal(t, "/ping", endpointLabel("/ping"))
	require.Equal(t, "/qa/history/:id", endpointLabel("/api/v1/patents/qa/history/01HZY3J6Q8W6W0M4E4R0KZ3T7B?limit=10"))
	require.Equal(t, "/condition/search", endpointLabel("/api/v1/patents/condition/search"))
}

func TestSleepWithContext(t *testing.T) {
	require.NoError(t, sleepWithContext(context.Background(), 0))
	require.NoError(t, sleepWithContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleepWithContext(ctx, time.Hour), context.Canceled)
}
