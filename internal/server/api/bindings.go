package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/mudra/internal/intent"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/store"
)

// PluginLookup resolves plugin names for binding validation.
type PluginLookup interface {
	Get(name string) (*plugin.Plugin, error)
}

// BindingHandler handles HTTP requests for intent bindings.
type BindingHandler struct {
	store   *store.Store
	plugins PluginLookup
}

// NewBindingHandler creates a BindingHandler. plugins may be nil, in which
// case plugin names are not validated.
func NewBindingHandler(s *store.Store, plugins PluginLookup) *BindingHandler {
	return &BindingHandler{store: s, plugins: plugins}
}

// ServeHTTP routes /api/bindings and /api/bindings/{id}.
func (h *BindingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := itemID(r.URL.Path, "/api/bindings")

	if id == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type bindingRequest struct {
	Intent     string          `json:"intent"`
	PluginName string          `json:"plugin_name"`
	ActionName string          `json:"action_name"`
	Config     json.RawMessage `json:"config"`
	Enabled    *bool           `json:"enabled"`
}

type listBindingsResponse struct {
	Bindings []*store.Binding `json:"bindings"`
}

func (h *BindingHandler) list(w http.ResponseWriter, r *http.Request) {
	var (
		bindings []*store.Binding
		err      error
	)
	if s := r.URL.Query().Get("intent"); s != "" {
		in, perr := intent.Parse(s)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "Invalid intent")
			return
		}
		bindings, err = h.store.Bindings().ListByIntent(in)
	} else {
		bindings, err = h.store.Bindings().List()
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list bindings")
		return
	}
	if bindings == nil {
		bindings = []*store.Binding{}
	}
	writeJSON(w, http.StatusOK, listBindingsResponse{Bindings: bindings})
}

func (h *BindingHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	b, err := h.store.Bindings().GetByID(id)
	if err != nil {
		h.notFoundOr500(w, err, "Failed to get binding")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *BindingHandler) create(w http.ResponseWriter, r *http.Request) {
	var req bindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Intent == "" {
		writeError(w, http.StatusBadRequest, "intent is required")
		return
	}
	if req.PluginName == "" {
		writeError(w, http.StatusBadRequest, "plugin_name is required")
		return
	}
	if req.ActionName == "" {
		writeError(w, http.StatusBadRequest, "action_name is required")
		return
	}

	b := &store.Binding{
		PluginName: req.PluginName,
		ActionName: req.ActionName,
		Config:     req.Config,
		Enabled:    true,
	}
	if req.Enabled != nil {
		b.Enabled = *req.Enabled
	}
	if msg := h.validate(b, req.Intent); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.store.Bindings().Create(b); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create binding")
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *BindingHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	b, err := h.store.Bindings().GetByID(id)
	if err != nil {
		h.notFoundOr500(w, err, "Failed to get binding")
		return
	}

	var req bindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.PluginName != "" {
		b.PluginName = req.PluginName
	}
	if req.ActionName != "" {
		b.ActionName = req.ActionName
	}
	if req.Config != nil {
		b.Config = req.Config
	}
	if req.Enabled != nil {
		b.Enabled = *req.Enabled
	}
	in := req.Intent
	if in == "" {
		in = string(b.Intent)
	}
	if msg := h.validate(b, in); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.store.Bindings().Update(b); err != nil {
		h.notFoundOr500(w, err, "Failed to update binding")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *BindingHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Bindings().Delete(id); err != nil {
		h.notFoundOr500(w, err, "Failed to delete binding")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// validate sets b.Intent from raw and returns a client-facing message when
// the binding cannot be executed.
func (h *BindingHandler) validate(b *store.Binding, raw string) string {
	in, err := intent.Parse(raw)
	if err != nil || !in.Actionable() {
		return "intent must be one of OPEN_MENU, CLOSE_MENU, SWITCH_RIGHT, SWITCH_LEFT"
	}
	b.Intent = in
	if len(b.Config) > 0 && !json.Valid(b.Config) {
		return "config must be valid JSON"
	}

	if h.plugins == nil {
		return ""
	}
	p, err := h.plugins.Get(b.PluginName)
	if err != nil {
		return "Plugin not found"
	}
	if !p.Manifest.Supports(b.ActionName) {
		return "Plugin does not support action " + b.ActionName
	}
	return ""
}

func (h *BindingHandler) notFoundOr500(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Binding not found")
		return
	}
	writeError(w, http.StatusInternalServerError, msg)
}
