package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/subscription-reconciler/internal/config"
	"github.com/spec-kit/subscription-reconciler/internal/events"
)

func TestNotificationServiceWebhook(t *testing.T) {
	received := make(chan events.Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var e events.Event
		_ = json.Unmarshal(body, &e)
		received <- e
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	dispatcher := events.NewInMemoryDispatcher(nil)
	svc := NewNotificationService(dispatcher, nil, config.NotificationConfig{WebhookURL: srv.URL})
	svc.RegisterHandlers()

	require.NoError(t, dispatcher.Publish(context.Background(), events.Event{
		ID:    "e1",
		Type:  events.EventRunCompleted,
		RunID: "run-1",
	}))

	select {
	case e := <-received:
		assert.Equal(t, "run-1", e.RunID)
		assert.Equal(t, events.EventRunCompleted, e.Type)
	default:
		t.Fatal("webhook not called")
	}
}

func TestNotificationServiceWebhookStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	svc := NewNotificationService(nil, nil, config.NotificationConfig{WebhookURL: srv.URL})
	err := svc.sendWebhook(context.Background(), events.Event{Type: events.EventClaimsWriteFailed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNotificationServiceNoWebhook(t *testing.T) {
	svc := NewNotificationService(nil, nil, config.NotificationConfig{})
	assert.NoError(t, svc.sendWebhook(context.Background(), events.Event{Type: events.EventRunCompleted}))
}

func TestNotificationServiceWebhookHonoursContext(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	svc := NewNotificationService(nil, nil, config.NotificationConfig{WebhookURL: srv.URL})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := svc.sendWebhook(ctx, events.Event{Type: events.EventRunCompleted})
	require.ErrorIs(t, err, context.Canceled)

	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()
	err = svc.sendWebhook(expired, events.Event{Type: events.EventRunCompleted})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Zero(t, hits.Load())
}
