package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/ayusman/mudra/pkg/logger"
)

// ErrPluginNotFound is returned by Get for unknown plugin names.
var ErrPluginNotFound = errors.New("plugin not found")

const manifestFile = "plugin.json"

// Manager discovers plugins under a directory. Each plugin lives in its own
// subdirectory holding a plugin.json manifest and the executable it names.
type Manager struct {
	dir string
	log logger.Logger

	mu      sync.RWMutex
	plugins map[string]*Plugin
}

func NewManager(dir string) *Manager {
	return &Manager{
		dir:     dir,
		plugins: map[string]*Plugin{},
		log:     logger.Named("plugin"),
	}
}

// Discover rescans the plugin directory and replaces the known set. A
// missing directory yields no plugins. Broken plugins are logged and
// skipped; a duplicate name keeps the first directory in lexical order.
func (m *Manager) Discover() error {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		m.replace(map[string]*Plugin{})
		return nil
	}
	if err != nil {
		return fmt.Errorf("scan plugins: %w", err)
	}

	ctx := context.Background()
	found := map[string]*Plugin{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(m.dir, entry.Name())
		p, err := load(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			m.log.Warn(ctx, "skipping plugin", logger.String("dir", dir), logger.Error(err))
			continue
		}
		if prev, dup := found[p.Manifest.Name]; dup {
			m.log.Warn(ctx, "duplicate plugin name", logger.String("name", p.Manifest.Name),
				logger.String("kept", prev.Path), logger.String("ignored", dir))
			continue
		}
		found[p.Manifest.Name] = p
	}

	m.replace(found)
	m.log.Info(ctx, "plugins discovered", logger.String("dir", m.dir), logger.Int("count", len(found)))
	return nil
}

func (m *Manager) replace(plugins map[string]*Plugin) {
	m.mu.Lock()
	m.plugins = plugins
	m.mu.Unlock()
}

// load reads dir/plugin.json. It returns an error wrapping os.ErrNotExist
// when dir has no manifest.
func load(dir string) (*Plugin, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, err
	}
	var mf Manifest
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if mf.Name == "" || mf.Executable == "" {
		return nil, errors.New("manifest needs a name and an executable")
	}
	exe := filepath.Join(dir, mf.Executable)
	if rel, err := filepath.Rel(dir, exe); err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("executable %q is outside the plugin directory", mf.Executable)
	}
	return &Plugin{Manifest: mf, Path: dir, Executable: exe}, nil
}

// Get returns the plugin named name.
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.plugins[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
}

// List returns the known plugins ordered by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	out := make([]*Plugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		out = append(out, p)
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Plugin) int { return strings.Compare(a.Manifest.Name, b.Manifest.Name) })
	return out
}

// Dir is the directory Discover scans.
func (m *Manager) Dir() string { return m.dir }
