package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockpanel/sentinel/internal/events"
)

func TestTaskEventsStream_SendsConnectedFrameThenForwardsEvents(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	h := NewTaskEventsStream(bus, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/analysis/tasks/stream", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.ServeHTTP(w, req)
		close(done)
	}()

	// Give the handler time to subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	bus.Emit(&events.TaskCreatedData{TaskID: "t1", StockCode: "600519"})
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler did not return after context cancellation")
	}

	body := w.Body.String()
	assert.True(t, strings.Contains(body, "event: connected"))
	assert.True(t, strings.Contains(body, "event: task_created"))
	assert.True(t, strings.Contains(body, `"task_id":"t1"`))
}

func TestTaskEventsStream_UnsubscribesOnDisconnect(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	h := NewTaskEventsStream(bus, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/analysis/tasks/stream", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.ServeHTTP(w, req)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, bus.SubscriberCount())

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler did not return after context cancellation")
	}
	assert.Equal(t, 0, bus.SubscriberCount())
}
