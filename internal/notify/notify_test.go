package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNotifier(url string, retries uint64) *Notifier {
	logger, _ := test.NewNullLogger()
	return New(Config{URL: url, MaxRetries: retries, Backoff: time.Millisecond}, logger)
}

func TestSendRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, EventCaptionApproved, body["event"])
		assert.Equal(t, "cap-1", body["captionId"])
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := newTestNotifier(server.URL, 2)
	err := n.Send(context.Background(), server.URL, EventCaptionApproved, map[string]any{"captionId": "cap-1"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSendDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no such workflow"))
	}))
	defer server.Close()

	err := newTestNotifier(server.URL, 3).Send(context.Background(), server.URL, EventRecaptionRequested, nil)
	var callErr *Error
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, http.StatusNotFound, callErr.Status)
	assert.Equal(t, "no such workflow", callErr.Message)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSendGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := newTestNotifier(server.URL, 1).Send(context.Background(), server.URL, EventCaptionApproved, nil)
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestNotifyRunsInBackgroundAndCloseWaits(t *testing.T) {
	release := make(chan struct{})
	var delivered int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		atomic.AddInt32(&delivered, 1)
	}))
	defer server.Close()

	n := newTestNotifier(server.URL, 0)
	assert.True(t, n.Notify(EventCaptionApproved, map[string]any{"captionId": "c"}))
	assert.Equal(t, int32(0), atomic.LoadInt32(&delivered))

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, n.Close(ctx))
	assert.Equal(t, int32(1), atomic.LoadInt32(&delivered))

	assert.False(t, n.Notify(EventCaptionApproved, nil))
}

func TestNotifyDisabledWithoutURL(t *testing.T) {
	n := newTestNotifier("", 0)
	assert.False(t, n.Enabled())
	assert.False(t, n.Notify(EventCaptionApproved, nil))

	var nilNotifier *Notifier
	assert.False(t, nilNotifier.Enabled())
	assert.NoError(t, nilNotifier.Close(context.Background()))
}

func TestSendWithoutURL(t *testing.T) {
	err := newTestNotifier("", 0).Send(context.Background(), " ", EventRecaptionRequested, nil)
	assert.ErrorIs(t, err, ErrNoURL)
}
