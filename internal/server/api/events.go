package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ayusman/mudra/internal/eventlog"
	"github.com/ayusman/mudra/internal/intent"
	"github.com/ayusman/mudra/internal/store"
)

const maxEventsLimit = 1000

// EventHandler serves stored terminal records.
type EventHandler struct {
	store *store.Store
}

// NewEventHandler creates a new EventHandler with the given store.
func NewEventHandler(s *store.Store) *EventHandler {
	return &EventHandler{store: s}
}

type listEventsResponse struct {
	Events []eventlog.Record `json:"events"`
}

type eventResponse struct {
	Event       *eventlog.Record      `json:"event"`
	Annotations []eventlog.Annotation `json:"annotations"`
}

// ServeHTTP handles GET /api/events and GET /api/events/{id}.
func (h *EventHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if id := itemID(r.URL.Path, "/api/events"); id != "" {
		h.get(w, r, id)
		return
	}
	h.list(w, r)
}

// list accepts outcome, intent, since (RFC 3339) and limit query parameters.
func (h *EventHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.EventFilter{Outcome: q.Get("outcome"), Limit: 100}

	if s := q.Get("intent"); s != "" {
		in, err := intent.Parse(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid intent")
			return
		}
		filter.Intent = in
	}
	if s := q.Get("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		filter.Since = since
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = min(n, maxEventsLimit)
	}

	records, err := h.store.Events().List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, listEventsResponse{Events: records})
}

func (h *EventHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := h.store.Events().Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get event")
		return
	}
	anns, err := h.store.Events().Annotations(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get annotations")
		return
	}
	writeJSON(w, http.StatusOK, eventResponse{Event: rec, Annotations: anns})
}
