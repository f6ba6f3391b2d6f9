package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/lifecycle"
	"github.com/ayusman/mudra/internal/plugin"
)

// EventView is the JSON form of a live lifecycle event.
type EventView struct {
	ID             string    `json:"id"`
	ProposedIntent string    `json:"proposed_intent"`
	ApprovedIntent string    `json:"approved_intent,omitempty"`
	Trigger        string    `json:"trigger"`
	Hand           string    `json:"hand"`
	Confidence     float64   `json:"confidence"`
	Mode           string    `json:"mode"`
	State          string    `json:"state"`
	PolicyTag      string    `json:"policy_tag,omitempty"`
	MergeCount     int       `json:"merge_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ViewOf converts a lifecycle event.
func ViewOf(e lifecycle.Event) *EventView {
	return &EventView{
		ID:             e.ID,
		ProposedIntent: string(e.ProposedIntent),
		ApprovedIntent: string(e.ApprovedIntent),
		Trigger:        string(e.Trigger),
		Hand:           e.Hand,
		Confidence:     e.Confidence,
		Mode:           string(e.Mode),
		State:          string(e.State),
		PolicyTag:      e.PolicyTag,
		MergeCount:     e.MergeCount,
		UpdatedAt:      e.UpdatedAt,
	}
}

// Status is the live state reported by /api/status.
type Status struct {
	Enabled    bool                         `json:"enabled"`
	Mode       string                       `json:"mode"`
	InCooldown bool                         `json:"in_cooldown"`
	Inflight   int                          `json:"inflight"`
	FPS        int                          `json:"fps"`
	Frames     uint64                       `json:"frames"`
	Current    *EventView                   `json:"current,omitempty"`
	Recent     []*EventView                 `json:"recent,omitempty"`
	Hands      map[string]gesture.HandState `json:"hands,omitempty"`
}

// Controller exposes the running pipeline to the API.
type Controller interface {
	Status() Status
	SetMode(mode lifecycle.Mode) error
	SetEnabled(enabled bool) error
}

// ControlHandler serves /api/status and /api/mode.
type ControlHandler struct {
	ctrl Controller
}

// NewControlHandler creates a ControlHandler.
func NewControlHandler(c Controller) *ControlHandler {
	return &ControlHandler{ctrl: c}
}

type modeRequest struct {
	Mode    string `json:"mode"`
	Enabled *bool  `json:"enabled"`
}

// HandleStatus handles GET /api/status.
func (h *ControlHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.Status())
}

// HandleMode handles GET and PUT /api/mode. A PUT may switch the mode, the
// enabled flag, or both.
func (h *ControlHandler) HandleMode(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut, http.MethodPost:
		var req modeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if req.Mode == "" && req.Enabled == nil {
			writeError(w, http.StatusBadRequest, "mode or enabled is required")
			return
		}
		if req.Mode != "" {
			mode, err := lifecycle.ParseMode(req.Mode)
			if err != nil {
				writeError(w, http.StatusBadRequest, "mode must be sync or async")
				return
			}
			if err := h.ctrl.SetMode(mode); err != nil {
				writeError(w, http.StatusInternalServerError, "Failed to set mode")
				return
			}
		}
		if req.Enabled != nil {
			if err := h.ctrl.SetEnabled(*req.Enabled); err != nil {
				writeError(w, http.StatusInternalServerError, "Failed to set enabled")
				return
			}
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st := h.ctrl.Status()
	writeJSON(w, http.StatusOK, map[string]any{"mode": st.Mode, "enabled": st.Enabled})
}

type pluginResponse struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Actions     []string `json:"actions"`
}

// PluginsHandler lists discovered plugins.
type PluginsHandler struct {
	plugins *plugin.Manager
}

// NewPluginsHandler creates a PluginsHandler.
func NewPluginsHandler(m *plugin.Manager) *PluginsHandler {
	return &PluginsHandler{plugins: m}
}

func (h *PluginsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	out := []pluginResponse{}
	for _, p := range h.plugins.List() {
		out = append(out, pluginResponse{
			Name:        p.Manifest.Name,
			Version:     p.Manifest.Version,
			Description: p.Manifest.Description,
			Actions:     p.Manifest.Actions,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"plugins": out})
}
