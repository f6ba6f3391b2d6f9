package api

import (
	"encoding/json"
	"net/http"

	"github.com/ayusman/mudra/internal/store"
)

// FeaturesHandler streams stored feature vectors with their labels as
// newline-delimited JSON, the input of offline calibration.
type FeaturesHandler struct {
	store *store.Store
}

// NewFeaturesHandler creates a new FeaturesHandler with the given store.
func NewFeaturesHandler(s *store.Store) *FeaturesHandler {
	return &FeaturesHandler{store: s}
}

func (h *FeaturesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	labelledOnly := r.URL.Query().Get("labelled") == "true"

	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)
	n := 0
	err := h.store.Events().ExportFeatures(r.Context(), func(s store.FeatureSample) error {
		if labelledOnly && s.LabelIntent == nil {
			return nil
		}
		if err := enc.Encode(s); err != nil {
			return err
		}
		n++
		if flusher != nil && n%100 == 0 {
			flusher.Flush()
		}
		return nil
	})
	if err != nil && n == 0 {
		writeError(w, http.StatusInternalServerError, "Failed to export features")
	}
}
