package plugin

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayusman/mudra/internal/intent"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/pkg/logger"
)

// ErrNoBinding is returned when no enabled binding exists for an intent.
var ErrNoBinding = errors.New("no binding for intent")

// BindingSource looks up the enabled bindings of an intent.
type BindingSource interface {
	ListByIntent(in intent.Intent) ([]*store.Binding, error)
}

// BindingStore is the part of the binding repository used for seeding.
type BindingStore interface {
	BindingSource
	List() ([]*store.Binding, error)
	Create(b *store.Binding) error
}

// Dispatcher executes an intent by running every plugin action bound to it.
// It implements lifecycle.Executor.
type Dispatcher struct {
	bindings BindingSource
	plugins  *Manager
	exec     *Executor
	dryRun   bool
	log      logger.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDryRun makes plugins receive dry_run=true.
func WithDryRun(dry bool) DispatcherOption {
	return func(d *Dispatcher) { d.dryRun = dry }
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(l logger.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(bindings BindingSource, plugins *Manager, exec *Executor, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		bindings: bindings,
		plugins:  plugins,
		exec:     exec,
		log:      logger.Named("dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Execute runs the bound actions in order and stops at the first failure.
func (d *Dispatcher) Execute(ctx context.Context, in intent.Intent, eventID string) error {
	bindings, err := d.bindings.ListByIntent(in)
	if err != nil {
		return fmt.Errorf("lookup bindings for %s: %w", in, err)
	}
	if len(bindings) == 0 {
		return fmt.Errorf("%w: %s", ErrNoBinding, in)
	}

	for _, b := range bindings {
		p, err := d.plugins.Get(b.PluginName)
		if err != nil {
			return fmt.Errorf("binding %s: %w", b.ID, err)
		}
		if !p.Manifest.Supports(b.ActionName) {
			return fmt.Errorf("binding %s: plugin %s has no action %q", b.ID, p.Manifest.Name, b.ActionName)
		}

		resp, err := d.exec.Run(ctx, p, &Request{
			Action:  b.ActionName,
			Intent:  in,
			EventID: eventID,
			DryRun:  d.dryRun,
			Config:  b.Config,
		})
		if err != nil {
			return fmt.Errorf("plugin %s: %w", p.Manifest.Name, err)
		}
		if !resp.Success {
			return fmt.Errorf("plugin %s action %s: %s", p.Manifest.Name, b.ActionName, resp.Error)
		}
		d.log.Debug(ctx, "plugin action done",
			logger.String("event_id", eventID),
			logger.String("intent", string(in)),
			logger.String("plugin", p.Manifest.Name),
			logger.String("action", b.ActionName),
		)
	}
	return nil
}

// DefaultBindings maps every actionable intent to the keyboard plugin
// action of the same name.
func DefaultBindings() []*store.Binding {
	var out []*store.Binding
	for _, in := range intent.All() {
		out = append(out, &store.Binding{
			Intent:     in,
			PluginName: "keyboard",
			ActionName: string(in),
			Enabled:    true,
		})
	}
	return out
}

// SeedBindings stores DefaultBindings when the repository is empty and
// reports how many were created.
func SeedBindings(repo BindingStore) (int, error) {
	existing, err := repo.List()
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	defaults := DefaultBindings()
	for _, b := range defaults {
		if err := repo.Create(b); err != nil {
			return 0, fmt.Errorf("seed binding %s: %w", b.Intent, err)
		}
	}
	return len(defaults), nil
}
