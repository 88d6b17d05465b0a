package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/seentics/tracker/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(server *httptest.Server) *Client {
	return New(server.URL, WithLogger(log.Discard()), WithRetry(3, time.Millisecond), WithTimeout(2*time.Second))
}

func TestClient_GetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/workflows/site/site-1/active", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"workflows":[{"id":"wf-1"}]}`))
	}))
	defer server.Close()

	client := newTestClient(server)

	var out struct {
		Workflows []struct {
			ID string `json:"id"`
		} `json:"workflows"`
	}

	require.NoError(t, client.GetJSON(context.Background(), client.ActiveWorkflowsURL("site-1"), &out))
	require.Len(t, out.Workflows, 1)
	assert.Equal(t, "wf-1", out.Workflows[0].ID)
}

func TestClient_GetJSONDoesNotRetry(t *testing.T) {
	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server)

	err := client.GetJSON(context.Background(), client.ActiveWorkflowsURL("site-1"), &struct{}{})

	var statusErr *StatusError

	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.Code)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_PostJSONRetries(t *testing.T) {
	testCases := []struct {
		name         string
		statuses     []int
		expectedHits int32
		expectedCode int
	}{
		{
			name:         "recovers after server errors",
			statuses:     []int{http.StatusServiceUnavailable, http.StatusInternalServerError, http.StatusOK},
			expectedHits: 3,
		},
		{
			name:         "gives up after three retries",
			statuses:     []int{503, 503, 503, 503, 503},
			expectedHits: 4,
			expectedCode: http.StatusServiceUnavailable,
		},
		{
			name:         "client errors are not retried",
			statuses:     []int{http.StatusBadRequest, http.StatusOK},
			expectedHits: 1,
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var hits atomic.Int32

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := hits.Add(1)

				body, _ := io.ReadAll(r.Body)
				assert.JSONEq(t, `{"siteId":"s","events":[]}`, string(body))

				w.WriteHeader(tc.statuses[n-1])
			}))
			defer server.Close()

			err := newTestClient(server).PostJSON(context.Background(), PathPageBatch, map[string]any{
				"siteId": "s",
				"events": []any{},
			})

			assert.Equal(t, tc.expectedHits, hits.Load())

			if tc.expectedCode == 0 {
				assert.NoError(t, err)

				return
			}

			var statusErr *StatusError

			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tc.expectedCode, statusErr.Code)
		})
	}
}

func TestClient_PostJSONCoalescesIdenticalRequests(t *testing.T) {
	var hits atomic.Int32

	received := make(chan struct{}, 1)
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		received <- struct{}{}
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(server)
	body := map[string]string{"siteId": "s"}

	var wg sync.WaitGroup

	errs := make([]error, 2)

	wg.Add(1)

	go func() {
		defer wg.Done()

		errs[0] = client.PostJSON(context.Background(), PathPageBatch, body)
	}()

	<-received
	assert.Equal(t, 1, client.InFlight())

	wg.Add(1)

	go func() {
		defer wg.Done()

		errs[1] = client.PostJSON(context.Background(), PathPageBatch, body)
	}()

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 0, client.InFlight())
}

func TestClient_PostKeepaliveOutlivesCancellation(t *testing.T) {
	var got map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathWorkflowBatch, r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestClient(server).PostKeepalive(ctx, PathWorkflowBatch, map[string]any{"siteId": "s"})

	require.NoError(t, err)
	assert.Equal(t, "s", got["siteId"])
}

func TestClient_FireAndForget(t *testing.T) {
	type request struct {
		method string
		header string
		body   string
	}

	requests := make(chan request, 2)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests <- request{method: r.Method, header: r.Header.Get("X-Token"), body: string(body)}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server)

	client.FireAndForget(context.Background(), http.MethodPost, server.URL+"/hook", map[string]string{"X-Token": "t"}, []byte(`{"a":1}`))
	client.FireAndForget(context.Background(), http.MethodGet, server.URL+"/hook", nil, []byte(`{"a":1}`))
	client.Wait()
	close(requests)

	byMethod := map[string]request{}
	for r := range requests {
		byMethod[r.method] = r
	}

	assert.Equal(t, `{"a":1}`, byMethod[http.MethodPost].body)
	assert.Equal(t, "t", byMethod[http.MethodPost].header)
	assert.Empty(t, byMethod[http.MethodGet].body)
}

func TestBeacon(t *testing.T) {
	requests := make(chan string, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests <- string(body)
	}))
	defer server.Close()

	client := newTestClient(server)

	assert.True(t, NewBeacon(client).SendBeacon(client.URL(PathPageBatch), []byte(`{"siteId":"s"}`)))
	client.Wait()

	assert.Equal(t, `{"siteId":"s"}`, <-requests)

	var nilBeacon *Beacon
	assert.False(t, nilBeacon.SendBeacon("http://example.invalid", nil))
}

func TestClient_Reset(t *testing.T) {
	client := New("http://example.invalid/")

	client.mu.Lock()
	client.inflight["k"] = struct{}{}
	client.mu.Unlock()

	client.Reset()

	assert.Equal(t, 0, client.InFlight())
	assert.Equal(t, "http://example.invalid/api", client.URL("/api"))
}
