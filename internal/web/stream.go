package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/cdpengine/internal/domain"
)

const eventPollInterval = 2 * time.Second

// handleEventStream replays the journal after the client's last seen index
// and then follows new events. Notifications only wake the loop; the journal
// stays the single source of the stream so that nothing is sent twice.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorView{Error: "event log not available", Code: "unavailable"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var wake chan domain.Event
	if s.notifier != nil {
		wake = s.notifier.Subscribe()
		defer s.notifier.Unsubscribe(wake)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(eventPollInterval)
	defer pollTicker.Stop()

	lastIndex := parseLastEventID(r.Header.Get("Last-Event-ID"), r.URL.Query().Get("from"))
	sendEvents := func() error {
		for {
			records, err := s.events.EventsAfter(lastIndex, streamBatchSize)
			if err != nil {
				return err
			}
			for _, record := range records {
				payload, err := json.Marshal(record.Event)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "id: %d\n", record.Index)
				fmt.Fprintf(w, "event: %s\n", record.Event.Kind)
				fmt.Fprintf(w, "data: %s\n\n", payload)
				lastIndex = record.Index
			}
			flusher.Flush()
			if len(records) < streamBatchSize {
				return nil
			}
		}
	}

	if err := sendEvents(); err != nil {
		s.logger.Error("event stream initial load", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case _, open := <-wake:
			if !open {
				wake = nil
				continue
			}
			if err := sendEvents(); err != nil {
				s.logger.Warn("event stream send", zap.Error(err))
			}
		case <-pollTicker.C:
			if err := sendEvents(); err != nil {
				s.logger.Warn("event stream poll", zap.Error(err))
			}
		}
	}
}

// parseLastEventID extracts an SSE event ID from either the Last-Event-ID header or a query parameter.
// The header is preferred; the query parameter allows manual reconnects to resume from a known index.
func parseLastEventID(headerVal, queryVal string) uint64 {
	idStr := strings.TrimSpace(headerVal)
	if idStr == "" {
		idStr = strings.TrimSpace(queryVal)
	}
	if idStr == "" {
		return 0
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
