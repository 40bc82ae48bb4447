package workflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/property-scanner/internal/config"
)

func newTestTrigger(baseURL string, timeout time.Duration) *Trigger {
	return NewTrigger(&config.WorkflowConfig{BaseURL: baseURL, Timeout: timeout})
}

func TestNotify_PostsStartRequest(t *testing.T) {
	var got StartRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, ScraperWebhookPath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	triggered, errMsg := newTestTrigger(srv.URL+"/", time.Second).Notify(context.Background(), "job-42")

	assert.True(t, triggered)
	assert.Empty(t, errMsg)
	assert.Equal(t, StartRequest{JobID: "job-42", Action: "start"}, got)
}

func TestNotify_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "workflow inactive", http.StatusNotFound)
	}))
	defer srv.Close()

	triggered, errMsg := newTestTrigger(srv.URL, time.Second).Notify(context.Background(), "job-1")

	assert.False(t, triggered)
	assert.Contains(t, errMsg, "status 404")
	assert.Contains(t, errMsg, "workflow inactive")
}

func TestNotify_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	triggered, errMsg := newTestTrigger(srv.URL, 50*time.Millisecond).Notify(context.Background(), "job-1")

	assert.False(t, triggered)
	assert.NotEmpty(t, errMsg)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNotify_UnreachableWorker(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	triggered, errMsg := newTestTrigger(url, time.Second).Notify(context.Background(), "job-1")

	assert.False(t, triggered)
	assert.Contains(t, errMsg, "workflow request failed")
}

func TestNotify_MissingBaseURL(t *testing.T) {
	triggered, errMsg := newTestTrigger("", time.Second).Notify(context.Background(), "job-1")
	assert.False(t, triggered)
	assert.Equal(t, "workflow base URL not configured", errMsg)
}

func TestNotify_DoesNotRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	triggered, _ := newTestTrigger(srv.URL, time.Second).Notify(context.Background(), "job-1")

	assert.False(t, triggered)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNotify_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	trigger := newTestTrigger(srv.URL, time.Second)
	for i := 0; i < 5; i++ {
		trigger.Notify(context.Background(), "job-1")
	}

	triggered, errMsg := trigger.Notify(context.Background(), "job-1")
	assert.False(t, triggered)
	assert.Equal(t, "circuit breaker is open", errMsg)
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}
