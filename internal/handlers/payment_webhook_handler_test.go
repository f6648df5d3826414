package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/tripdesk/booking-backend/internal/services"
)

type fakeWebhookProcessor struct {
	err       error
	calls     int
	body      []byte
	signature string
	meta      services.RequestMeta
}

func (f *fakeWebhookProcessor) HandlePaymentWebhook(_ context.Context, body []byte, signature string, meta services.RequestMeta) error {
	f.calls++
	f.body, f.signature, f.meta = body, signature, meta
	return f.err
}

func setupWebhookRouter(p WebhookProcessor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/v1/payments/webhook", NewPaymentWebhookHandler(p, newTestLogger()).Handle)
	return router
}

func postWebhook(router *gin.Engine, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/v1/payments/webhook", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "52.66.1.10, 10.0.0.2")
	if signature != "" {
		req.Header.Set(WebhookSignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPaymentWebhook_PassesRawBody(t *testing.T) {
	p := &fakeWebhookProcessor{}
	body := `{"event":"payment.captured","payload":{}}`

	w := postWebhook(setupWebhookRouter(p), body, "abc123")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, body, string(p.body))
	assert.Equal(t, "abc123", p.signature)
	assert.Equal(t, "52.66.1.10", p.meta.IPAddress)
}

func TestPaymentWebhook_MissingSignature(t *testing.T) {
	p := &fakeWebhookProcessor{}

	w := postWebhook(setupWebhookRouter(p), `{}`, "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, p.calls)
}

func TestPaymentWebhook_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid signature", services.ErrInvalidSignature, http.StatusBadRequest},
		{"store down", &services.PersistenceError{Op: "save booking", Err: errors.New("timeout")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postWebhook(setupWebhookRouter(&fakeWebhookProcessor{err: tt.err}), `{}`, "sig")
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

type fakeHealth struct{ err error }

func (f fakeHealth) Health(context.Context) error { return f.err }

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/health", HealthCheck(fakeHealth{}, "postgres", "1.0.0"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"store":"postgres"`)

	router = gin.New()
	router.GET("/health", HealthCheck(fakeHealth{err: errors.New("no reachable servers")}, "mongo", "1.0.0"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "no reachable servers")
}
