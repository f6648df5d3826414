package supplier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

type blockResult struct {
	TraceID string `json:"TraceId"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *recordingSleeper, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	sleeper := &recordingSleeper{}
	client := NewClient(Config{
		BaseURL:     server.URL,
		Credentials: Credentials{Username: "agent", Password: "secret"},
		Timeout:     2 * time.Second,
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
	}, logger, WithSleeper(sleeper))

	return client, sleeper, server
}

func writeEnvelope(w http.ResponseWriter, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(env)
}

func TestCall_SuccessDecodesResultAndSendsCredentials(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, EndpointBusBlockSeat, r.URL.Path)
		assert.Equal(t, "agent", r.Header.Get("Username"))
		assert.Equal(t, "secret", r.Header.Get("Password"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "trace-1", body["TraceId"])

		writeEnvelope(w, Envelope{SearchTokenID: "tok", Result: json.RawMessage(`{"TraceId":"trace-1"}`)})
	})

	var out blockResult
	res := client.Call(context.Background(), EndpointBusBlockSeat, map[string]string{"TraceId": "trace-1"}, &out)

	require.True(t, res.OK)
	assert.Nil(t, res.Err)
	assert.Equal(t, "tok", res.SearchTokenID)
	assert.Equal(t, "trace-1", out.TraceID)
}

func TestCall_SupplierErrorIsNotRetried(t *testing.T) {
	var calls int32
	client, sleeper, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeEnvelope(w, Envelope{Error: ErrorDetail{ErrorCode: 2, ErrorMessage: "Seat unavailable"}})
	})

	var out blockResult
	res := client.Call(context.Background(), EndpointBusBlockSeat, nil, &out)

	assert.False(t, res.OK)
	require.NotNil(t, res.Err)
	assert.Equal(t, "Seat unavailable", res.Err.Message)
	assert.Equal(t, 2, res.Err.Code)
	assert.False(t, res.Err.Transport)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, sleeper.delays)
}

func TestCall_RetriesServerErrorsWithBackoff(t *testing.T) {
	var calls int32
	client, sleeper, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	res := client.Call(context.Background(), EndpointHotelBlockRoom, nil, &blockResult{})

	assert.False(t, res.OK)
	require.NotNil(t, res.Err)
	assert.Equal(t, TransportErrorCode, res.Err.Code)
	assert.Equal(t, TransportErrorMessage, res.Err.Message)
	assert.True(t, res.Err.Transport)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, sleeper.delays)
}

func TestCall_RecoversAfterTransientFailure(t *testing.T) {
	var calls int32
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeEnvelope(w, Envelope{Result: json.RawMessage(`{"TraceId":"t2"}`)})
	})

	var out blockResult
	res := client.Call(context.Background(), EndpointHotelBlockRoom, nil, &out)

	assert.True(t, res.OK)
	assert.Equal(t, "t2", out.TraceID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCall_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	})

	res := client.Call(context.Background(), EndpointHotelBook, nil, nil)

	assert.False(t, res.OK)
	assert.Equal(t, TransportErrorMessage, res.Err.Message)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCall_MalformedResultIsAFailure(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, Envelope{Result: json.RawMessage(`"not an object"`)})
	})

	res := client.Call(context.Background(), EndpointFlightFareQuote, nil, &blockResult{})

	assert.False(t, res.OK)
	assert.True(t, res.Err.Transport)
}

func TestCall_AgencyMessagesAreRewritten(t *testing.T) {
	client, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, Envelope{Error: ErrorDetail{ErrorCode: 6, ErrorMessage: "Agency is not active"}})
	})

	res := client.Call(context.Background(), EndpointHotelBlockRoom, nil, &blockResult{})

	require.NotNil(t, res.Err)
	assert.Equal(t, "Waiting for admin approval", res.Err.Message)
}

func TestCall_ObserverReceivesOutcome(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, Envelope{Result: json.RawMessage(`{}`)})
	}))
	defer server.Close()

	var gotEndpoint, gotOutcome string
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	client := NewClient(Config{BaseURL: server.URL, MaxAttempts: 1}, logger,
		WithObserver(func(endpoint, outcome string, _ time.Duration) {
			gotEndpoint, gotOutcome = endpoint, outcome
		}))

	res := client.Call(context.Background(), EndpointBusBook, nil, &blockResult{})

	assert.True(t, res.OK)
	assert.Equal(t, EndpointBusBook, gotEndpoint)
	assert.Equal(t, "success", gotOutcome)
}
