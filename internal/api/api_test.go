package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deduction-matching-service/internal/models"
	"deduction-matching-service/internal/reconciler"
	"deduction-matching-service/internal/store"
	"deduction-matching-service/internal/store/mocks"
	"deduction-matching-service/pkg/logger"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	log, err := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Format: logger.TextFormat, Writer: io.Discard})
	if err != nil {
		panic(err)
	}
	logger.SetGlobalLogger(log)
	os.Exit(m.Run())
}

type pingSource struct {
	*mocks.MockSource
	err error
}

func (p *pingSource) Ping(ctx context.Context) error { return p.err }

func newTestServer(t *testing.T, config *ServerConfig, source store.Source) *Server {
	t.Helper()
	service, err := reconciler.NewMatchingService(nil)
	require.NoError(t, err)
	srv, err := NewServer(config, service, source)
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Error
}

const perfectMatchBody = `{
	"deduction": {"id": "D1", "amount": 1000, "customerId": "C1", "deductionDate": "2025-01-10",
		"referenceNumber": "INV-1001", "description": "promo allowance january"},
	"candidates": [
		{"id": "T1", "netAmount": "1000.00", "customerId": "C1", "transactionDate": "2025-01-10",
			"transactionNumber": "INV-1001", "description": "promo allowance january"},
		{"id": "T2", "netAmount": 1005, "customerId": "C1", "transactionDate": "2025-01-10"}
	]
}`

func TestNewServer_Validation(t *testing.T) {
	service, err := reconciler.NewMatchingService(nil)
	require.NoError(t, err)

	_, err = NewServer(&ServerConfig{Port: 0, ShutdownTimeout: time.Second}, service, nil)
	assert.Error(t, err)

	_, err = NewServer(nil, nil, nil)
	assert.Error(t, err)

	srv, err := NewServer(nil, service, nil)
	require.NoError(t, err)
	assert.Nil(t, srv.runner)
	assert.Nil(t, srv.pinger)
}

func TestServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*ServerConfig)
		wantErr bool
	}{
		{name: "defaults", modify: func(*ServerConfig) {}},
		{name: "port too high", modify: func(c *ServerConfig) { c.Port = 70000 }, wantErr: true},
		{name: "zero shutdown timeout", modify: func(c *ServerConfig) { c.ShutdownTimeout = 0 }, wantErr: true},
		{name: "negative body limit", modify: func(c *ServerConfig) { c.MaxBodyBytes = -1 }, wantErr: true},
		{name: "unlimited body", modify: func(c *ServerConfig) { c.MaxBodyBytes = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultServerConfig()
			tt.modify(config)
			err := config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	t.Run("no database", func(t *testing.T) {
		srv := newTestServer(t, nil, nil)
		w := do(t, srv, http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})

	t.Run("database reachable", func(t *testing.T) {
		srv := newTestServer(t, nil, &pingSource{MockSource: mocks.NewMockSource(ctrl)})
		w := do(t, srv, http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok","database":"ok"}`, w.Body.String())
	})

	t.Run("database unreachable", func(t *testing.T) {
		srv := newTestServer(t, nil, &pingSource{MockSource: mocks.NewMockSource(ctrl), err: fmt.Errorf("refused")})
		w := do(t, srv, http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.JSONEq(t, `{"status":"degraded","database":"unreachable"}`, w.Body.String())
	})
}

func TestMatch(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	w := do(t, srv, http.MethodPost, "/match", perfectMatchBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result models.MatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Matched)
	assert.Equal(t, "D1", result.DeductionID)
	assert.Equal(t, "T1", result.TransactionID)
	assert.Equal(t, 100, result.Confidence)
	assert.Equal(t, models.RecommendationAutoApprove, result.Recommendation)
	require.NotNil(t, result.Breakdown)
	assert.Equal(t, models.ScoreBreakdown{Amount: 40, Customer: 20, Date: 15, Reference: 15, Description: 10}, *result.Breakdown)
	require.Len(t, result.AllCandidates, 2)
	assert.Equal(t, "T2", result.AllCandidates[1].Transaction.ID)
}

func TestMatch_BadRequests(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{name: "malformed json", body: `{"deduction":`, wantStatus: http.StatusBadRequest, wantCode: CodeBadRequest},
		{name: "bad date", body: `{"deduction":{"amount":1,"deductionDate":"tomorrow"}}`, wantStatus: http.StatusBadRequest, wantCode: CodeBadRequest},
		{name: "missing deduction", body: `{"candidates":[]}`, wantStatus: http.StatusBadRequest, wantCode: CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, http.MethodPost, "/match", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			detail := decodeError(t, w)
			assert.Equal(t, tt.wantCode, detail.Code)
			assert.Equal(t, tt.wantStatus, detail.Status)
			assert.NotEmpty(t, detail.Details["requestId"])
		})
	}
}

func TestMatch_InvalidDeductionIsSoftFailure(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	w := do(t, srv, http.MethodPost, "/match", `{"deduction":{"id":"D9","customerId":"C1"},"candidates":[]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var result models.MatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.Matched)
	assert.Equal(t, models.RecommendationNoMatch, result.Recommendation)
	assert.True(t, strings.HasPrefix(result.Reason, "invalid input"), result.Reason)
}

func TestBatchAndReviewQueue(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	body := `{
		"deductions": [
			{"id": "D1", "amount": 1000, "customerId": "C1", "deductionDate": "2025-01-10"},
			{"id": "D2", "amount": 1015, "customerId": "C1", "deductionDate": "2025-01-10"},
			{"id": "D3", "amount": 99999, "customerId": "C9"}
		],
		"candidates": [
			{"id": "T1", "netAmount": 1000, "customerId": "C1", "transactionDate": "2025-01-10"}
		]
	}`

	w := do(t, srv, http.MethodPost, "/match/batch", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var batch models.BatchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &batch))
	assert.NotEmpty(t, batch.BatchID)
	assert.Equal(t, 3, batch.Total)
	assert.Equal(t, 2, batch.Matched)
	assert.Equal(t, 1, batch.Unmatched)
	require.Len(t, batch.Results, 3)
	assert.Equal(t, "D1", batch.Results[0].DeductionID)
	assert.Equal(t, 75, batch.Results[0].Confidence)
	assert.Equal(t, "D3", batch.Results[2].DeductionID)

	w = do(t, srv, http.MethodPost, "/review-queue", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var queue models.ReviewQueue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &queue))
	require.Len(t, queue.Queue, 2)
	assert.Equal(t, "D1", queue.Queue[0].DeductionID)
	assert.Equal(t, models.RecommendationPossibleMatch, queue.Queue[0].Recommendation)
	assert.Equal(t, 3, queue.Summary.Total)
	assert.Equal(t, 0, queue.Summary.NeedsReview)
	assert.Equal(t, 1, queue.Summary.Unmatched)
}

func TestSourceReviewQueue(t *testing.T) {
	t.Run("no source configured", func(t *testing.T) {
		srv := newTestServer(t, nil, nil)
		w := do(t, srv, http.MethodGet, "/review-queue", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, CodeServiceUnavailable, decodeError(t, w).Code)
	})

	t.Run("loads from source", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		day := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
		from := day
		to := day.AddDate(0, 0, 5)
		filter := store.Filter{CustomerID: "C1", From: &from, To: &to, Limit: 2}

		source := mocks.NewMockSource(ctrl)
		source.EXPECT().Deductions(gomock.Any(), filter).Return([]*models.Deduction{
			models.NewDeduction("D1", decimal.NewFromInt(1015), "C1", day),
		}, nil)
		source.EXPECT().Candidates(gomock.Any(), reconciler.CandidateFilter(filter)).Return([]*models.Transaction{
			models.NewTransaction("T1", decimal.NewFromInt(1000), "C1", day),
		}, nil)

		srv := newTestServer(t, nil, source)
		w := do(t, srv, http.MethodGet, "/review-queue?customerId=C1&from=2025-01-10&to=2025-01-15&limit=2", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var queue models.ReviewQueue
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &queue))
		require.Len(t, queue.Queue, 1)
		assert.Equal(t, "T1", queue.Queue[0].TransactionID)
		assert.Equal(t, 1, queue.Summary.Total)
	})

	t.Run("source failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		source := mocks.NewMockSource(ctrl)
		source.EXPECT().Deductions(gomock.Any(), gomock.Any()).Return(nil, fmt.Errorf("connection reset")).MaxTimes(1)
		source.EXPECT().Candidates(gomock.Any(), gomock.Any()).Return(nil, nil).MaxTimes(1)

		srv := newTestServer(t, nil, source)
		w := do(t, srv, http.MethodGet, "/review-queue", "")
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, "SOURCE_FAILED", decodeError(t, w).Code)
	})

	t.Run("bad query", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		srv := newTestServer(t, nil, mocks.NewMockSource(ctrl))

		tests := []struct {
			query    string
			wantCode string
		}{
			{query: "from=soon", wantCode: "INVALID_DATE"},
			{query: "limit=ten", wantCode: "INVALID_INPUT"},
			{query: "limit=-1", wantCode: "OUT_OF_RANGE"},
			{query: "from=2025-02-01&to=2025-01-01", wantCode: "OUT_OF_RANGE"},
		}
		for _, tt := range tests {
			w := do(t, srv, http.MethodGet, "/review-queue?"+tt.query, "")
			assert.Equal(t, http.StatusBadRequest, w.Code, tt.query)
			assert.Equal(t, tt.wantCode, decodeError(t, w).Code, tt.query)
		}
	})
}

func TestThresholds(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	w := do(t, srv, http.MethodGet, "/thresholds", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"autoApprove":95,"requireReview":80,"reject":60}`, w.Body.String())

	w = do(t, srv, http.MethodPatch, "/thresholds", `{"autoApprove":50}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	detail := decodeError(t, w)
	assert.Equal(t, "INVARIANT_VIOLATION", detail.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, detail.Status)

	w = do(t, srv, http.MethodGet, "/thresholds", "")
	assert.JSONEq(t, `{"autoApprove":95,"requireReview":80,"reject":60}`, w.Body.String())

	w = do(t, srv, http.MethodPatch, "/thresholds", `{"autoApprove":90,"reject":55}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"autoApprove":90,"requireReview":80,"reject":55}`, w.Body.String())

	w = do(t, srv, http.MethodPatch, "/thresholds", `{"reject":101}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, srv, http.MethodPatch, "/thresholds", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodDelete, "/thresholds", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"autoApprove":95,"requireReview":80,"reject":60}`, w.Body.String())
}

func TestRequestID(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	w := do(t, srv, http.MethodGet, "/health", "", "X-Request-ID", "abc-123")
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))

	w = do(t, srv, http.MethodGet, "/health", "")
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)

	w = do(t, srv, http.MethodGet, "/nowhere", "", "X-Request-ID", "req-404")
	assert.Equal(t, http.StatusNotFound, w.Code)
	detail := decodeError(t, w)
	assert.Equal(t, CodeNotFound, detail.Code)
	assert.Equal(t, "req-404", detail.Details["requestId"])
}

func TestBodyLimit(t *testing.T) {
	config := DefaultServerConfig()
	config.MaxBodyBytes = 64
	srv := newTestServer(t, config, nil)

	w := do(t, srv, http.MethodPost, "/match/batch", perfectMatchBody)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, CodeBadRequest, decodeError(t, w).Code)
}

func TestRecovery(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	srv.router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := do(t, srv, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, CodeInternal, decodeError(t, w).Code)
}

func TestStart_GracefulShutdown(t *testing.T) {
	config := DefaultServerConfig()
	config.Port = 18931
	srv := newTestServer(t, config, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
