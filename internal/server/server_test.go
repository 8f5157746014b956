// File: internal/server/server_test.go
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/barrier-cli/api/schemas"
	"github.com/xkilldash9x/barrier-cli/internal/config"
	"github.com/xkilldash9x/barrier-cli/internal/mocks"
)

var _ API = (*mocks.MockOrchestrator)(nil)

func testConfig() config.ServerConfig {
	return config.ServerConfig{
		Addr:            "127.0.0.1:0",
		ShutdownTimeout: 2 * time.Second,
		AllowedOrigins:  []string{"https://dashboard.example.com"},
		DefaultUsername: "anonymous",
	}
}

func do(t *testing.T, h http.Handler, method, path string, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), "body: %s", rec.Body.String())
}

func TestHealth(t *testing.T) {
	router := NewRouter(testConfig(), &mocks.MockOrchestrator{}, zaptest.NewLogger(t))
	rec := do(t, router, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreateScan(t *testing.T) {
	t.Run("attributes the request to the user header", func(t *testing.T) {
		api := &mocks.MockOrchestrator{}
		router := NewRouter(testConfig(), api, zaptest.NewLogger(t))

		api.On("CreateScan", mock.Anything, mock.MatchedBy(func(in schemas.CreateScanInput) bool {
			return in.URL == "https://example.com" && in.Username == "alice" && in.Device == "iPhone X" && in.Depth == 2
		})).Return(&schemas.ScanRequest{ID: "req-1", URLs: []string{"https://example.com"}}, nil).Once()

		body := `{"scan_url":"https://example.com","guidance":["wcag2aa"],"depth":2,"device_config":"iPhone X","name":"Home"}`
		rec := do(t, router, http.MethodPost, "/api/v1/scans/", body, http.Header{userHeader: {"alice"}})

		assert.Equal(t, http.StatusCreated, rec.Code)
		var got struct {
			RequestID string   `json:"request_id"`
			URLs      []string `json:"urls"`
		}
		decodeBody(t, rec, &got)
		assert.Equal(t, "req-1", got.RequestID)
		assert.Equal(t, []string{"https://example.com"}, got.URLs)
		api.AssertExpectations(t)
	})

	t.Run("falls back to the configured user", func(t *testing.T) {
		api := &mocks.MockOrchestrator{}
		router := NewRouter(testConfig(), api, zaptest.NewLogger(t))
		api.On("CreateScan", mock.Anything, mock.MatchedBy(func(in schemas.CreateScanInput) bool {
			return in.Username == "anonymous"
		})).Return(&schemas.ScanRequest{ID: "req-2"}, nil).Once()

		rec := do(t, router, http.MethodPost, "/api/v1/scans/", `{"scan_url":"https://example.com","guidance":["wcag2a"]}`, nil)
		assert.Equal(t, http.StatusCreated, rec.Code)
		api.AssertExpectations(t)
	})

	t.Run("validation errors map to 400", func(t *testing.T) {
		api := &mocks.MockOrchestrator{}
		router := NewRouter(testConfig(), api, zaptest.NewLogger(t))
		api.On("CreateScan", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: please provide a scan_url and a guidance", schemas.ErrValidation)).Once()

		rec := do(t, router, http.MethodPost, "/api/v1/scans/", `{"guidance":[]}`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var got ErrorResponse
		decodeBody(t, rec, &got)
		assert.Contains(t, got.Error, "scan_url")
	})

	t.Run("malformed body never reaches the core", func(t *testing.T) {
		api := &mocks.MockOrchestrator{}
		router := NewRouter(testConfig(), api, zaptest.NewLogger(t))

		rec := do(t, router, http.MethodPost, "/api/v1/scans/", `{"scan_url":`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		api.AssertNotCalled(t, "CreateScan", mock.Anything, mock.Anything)
	})
}

func TestErrorMapping(t *testing.T) {
	t.Run("not found maps to 404", func(t *testing.T) {
		api := &mocks.MockOrchestrator{}
		router := NewRouter(testConfig(), api, zaptest.NewLogger(t))
		api.On("GetScan", mock.Anything, "missing").
			Return(nil, fmt.Errorf("scan request missing: %w", schemas.ErrNotFound)).Once()

		rec := do(t, router, http.MethodGet, "/api/v1/scans/missing", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("internal errors are logged and not leaked", func(t *testing.T) {
		core, logs := observer.New(zap.ErrorLevel)
		api := &mocks.MockOrchestrator{}
		router := NewRouter(testConfig(), api, zap.New(core))
		api.On("Score", mock.Anything, "req-1").
			Return(0.0, errors.New("failed to query scan results: connection refused")).Once()

		rec := do(t, router, http.MethodGet, "/api/v1/scans/req-1/score", "", nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection refused")
		require.Equal(t, 1, logs.FilterMessage("Request failed").Len())
	})

	t.Run("panics are recovered", func(t *testing.T) {
		core, logs := observer.New(zap.ErrorLevel)
		api := &mocks.MockOrchestrator{}
		router := NewRouter(testConfig(), api, zap.New(core))
		api.On("Guidance", mock.Anything).Run(func(mock.Arguments) { panic("boom") })

		rec := do(t, router, http.MethodGet, "/api/v1/guidance", "", nil)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, 1, logs.FilterMessage("Panic while serving request").Len())
	})
}

func TestScanRoutes(t *testing.T) {
	t.Run("list passes query filters", func(t *testing.T) {
		api := &mocks.MockOrchestrator{}
		router := NewRouter(testConfig(), api, zaptest.NewLogger(t))
		api.On("ListScans", mock.Anything, schemas.ScanFilter{Username: "bob", ProjectID: "p1"}).
			Return(nil, nil).Once()

		rec := do(t, router, http.MethodGet, "/api/v1/scans/?username=bob&projectID=p1", "", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
		api.AssertExpectations(t)
	})

	t.Run("edit takes the id from the path", func(t *testing.T) {
		api := &mocks.MockOrchestrator{}
		router := NewRouter(testConfig(), api, zaptest.NewLogger(t))
		api.On("EditScan", mock.Anything, mock.MatchedBy(func(in schemas.EditScanInput) bool {
			return in.ID == "req-9" && in.Name == "Renamed" && in.Depth == 1
		})).Return(nil).Once()

		rec := do(t, router, http.MethodPut, "/api/v1/scans/req-9", `{"scanRequestId":"other","name":"Renamed","depth":1}`, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		api.AssertExpectations(t)
	})

	t.Run("delete many reports the count", func(t *testing.T) {
		api := &mocks.MockOrchestrator{}
		router := NewRouter(testConfig(), api, zaptest.NewLogger(t))
		api.On("DeleteScans", mock.Anything, []string{"a", "b"}).Return(int64(2), nil).Once()

		rec := do(t, router, http.MethodDelete, "/api/v1/scans/", `{"scanRequestIds":["a","b"]}`, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"deletedCount":2}`, rec.Body.String())
	})

	t.Run("deleting nothing is a 404", func(t *testing.T) {
		api := &mocks.MockOrchestrator{}
		router := NewRouter(testConfig(), api, zaptest.NewLogger(t))
		api.On("DeleteScans", mock.Anything, []string{"gone"}).Return(int64(0), nil).Once()

		rec := do(t, router, http.MethodDelete, "/api/v1/scans/gone", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("run returns outcomes in order", func(t *testing.T) {
		api := &mocks.MockOrchestrator{}
		router := NewRouter(testConfig(), api, zaptest.NewLogger(t))
		outcomes := []schemas.RunOutcome{
			{ScanRequestID: "a", Status: schemas.RunCompleted, Message: "Scan request with ID a completed successfully."},
			{ScanRequestID: "b", Status: schemas.RunStepsFailed, Message: "Scan Steps issue with Scan request with ID b."},
		}
		api.On("RunScans", mock.Anything, []string{"a", "b"}, []string{"https://example.com/x"}, "Pixel 2").
			Return(outcomes, nil).Once()

		body := `{"scanRequestIdList":["a","b"],"urls":["https://example.com/x"],"device":"Pixel 2"}`
		rec := do(t, router, http.MethodPost, "/api/v1/scans/run", body, nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var got struct {
			Res []schemas.RunOutcome `json:"res"`
		}
		decodeBody(t, rec, &got)
		assert.Equal(t, outcomes, got.Res)
	})

	t.Run("schedule forwards the raw time", func(t *testing.T) {
		api := &mocks.MockOrchestrator{}
		router := NewRouter(testConfig(), api, zaptest.NewLogger(t))
		api.On("ScheduleScans", mock.Anything, []string{"a"}, "2030-01-01T10:00:00Z").
			Return([]schemas.ScheduleOutcome{{ScanRequestID: "a", Message: "Scan request with ID a scheduled successfully."}}, nil).Once()

		rec := do(t, router, http.MethodPost, "/api/v1/scans/schedule", `{"scanRequestIdList":["a"],"scheduledTime":"2030-01-01T10:00:00Z"}`, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "scheduled successfully")
	})

	t.Run("score and urls", func(t *testing.T) {
		api := &mocks.MockOrchestrator{}
		router := NewRouter(testConfig(), api, zaptest.NewLogger(t))
		api.On("Score", mock.Anything, "req-1").Return(66.67, nil).Once()
		api.On("URLs", mock.Anything, "req-1").Return(nil, nil).Once()

		rec := do(t, router, http.MethodGet, "/api/v1/scans/req-1/score", "", nil)
		assert.JSONEq(t, `{"accessibilityScore":66.67}`, rec.Body.String())

		rec = do(t, router, http.MethodGet, "/api/v1/scans/req-1/urls", "", nil)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("sweep", func(t *testing.T) {
		api := &mocks.MockOrchestrator{}
		router := NewRouter(testConfig(), api, zaptest.NewLogger(t))
		api.On("Sweep", mock.Anything).Return(schemas.SweepReport{Due: 1, Detached: 1, Completed: 1}, nil).Once()

		rec := do(t, router, http.MethodPost, "/api/v1/sweep", "", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var got schemas.SweepReport
		decodeBody(t, rec, &got)
		assert.Equal(t, 1, got.Completed)
	})
}

func TestCORS(t *testing.T) {
	router := NewRouter(testConfig(), &mocks.MockOrchestrator{}, zaptest.NewLogger(t))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/scans/", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://dashboard.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/scans/", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_Serve(t *testing.T) {
	defer goleak.VerifyNone(t)

	_, err := New(testConfig(), nil, zap.NewNop())
	require.Error(t, err)

	api := &mocks.MockOrchestrator{}
	api.On("Guidance", mock.Anything).Return([]string{"wcag2a"}, nil)
	srv, err := New(testConfig(), api, zap.NewNop())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + ln.Addr().String() + "/api/v1/guidance")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())
	client.CloseIdleConnections()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
