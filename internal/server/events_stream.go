package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockpanel/sentinel/internal/events"
)

// eventChanDepth bounds each subscriber's buffered channel; a full
// channel drops the event for that subscriber only (spec.md §5).
const eventChanDepth = 100

const heartbeatInterval = 30 * time.Second

// TaskEventsStream serves GET /analysis/tasks/stream: an SSE feed of
// task lifecycle events (spec.md §6 SSE framing).
type TaskEventsStream struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewTaskEventsStream builds the SSE handler over bus.
func NewTaskEventsStream(bus *events.Bus, log zerolog.Logger) *TaskEventsStream {
	return &TaskEventsStream{bus: bus, log: log.With().Str("component", "task_events_stream").Logger()}
}

// ServeHTTP streams task lifecycle events until the client disconnects.
func (h *TaskEventsStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch := make(chan *events.EventWithData, eventChanDepth)
	subID := h.bus.Subscribe(func(event *events.EventWithData) {
		select {
		case ch <- event:
		default:
			h.log.Warn().Str("event_type", string(event.Type)).Msg("subscriber channel full, dropping event")
		}
	})
	defer h.bus.Unsubscribe(subID)

	h.writeFrame(w, "connected", map[string]string{"message": "connected to task event stream"})
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	done := r.Context().Done()
	for {
		select {
		case <-done:
			return
		case event := <-ch:
			h.writeFrame(w, string(event.Type), event)
			flusher.Flush()
		case <-heartbeat.C:
			h.writeFrame(w, "heartbeat", map[string]interface{}{"timestamp": time.Now()})
			flusher.Flush()
		}
	}
}

func (h *TaskEventsStream) writeFrame(w http.ResponseWriter, name string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to marshal SSE payload")
		data = []byte(`{"error":"encode failure"}`)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}
