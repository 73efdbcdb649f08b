package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/quietwire/xmpp/stanza"
)

var (
	ErrDuplicatePlugin = errors.New("plugin: duplicate plugin name")
	ErrMissingDep      = errors.New("plugin: missing dependency")
	ErrCyclicDep       = errors.New("plugin: cyclic dependency")
)

// Manager manages the lifecycle and dispatch of plugins.
type Manager struct {
	mu         sync.RWMutex
	plugins    map[string]Plugin
	registered []string // insertion order, used to break dependency-sort ties deterministically
	order      []string
}

// NewManager creates a new plugin Manager.
func NewManager() *Manager {
	return &Manager{
		plugins: make(map[string]Plugin),
	}
}

// Register adds a plugin to the manager in construction order; absent
// a Dependencies() constraint, that order is also the dispatch
// priority once Initialize runs: if A is registered before B and both
// claim a stanza, A runs first.
func (m *Manager) Register(p Plugin) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := p.Name()
	if _, exists := m.plugins[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, name)
	}
	m.plugins[name] = p
	m.registered = append(m.registered, name)
	return nil
}

// Get returns a plugin by name.
func (m *Manager) Get(name string) (Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plugins[name]
	return p, ok
}

// GetByNamespace returns the first plugin (in dispatch order) that
// advertises uri among its Namespaces().
func (m *Manager) GetByNamespace(uri string) (Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, name := range m.order {
		p := m.plugins[name]
		ns, ok := p.(Namespaces)
		if !ok {
			continue
		}
		for _, claimed := range ns.Namespaces() {
			if claimed == uri {
				return p, true
			}
		}
	}
	return nil, false
}

// Initialize initializes all registered plugins in dependency order.
func (m *Manager) Initialize(ctx context.Context, params InitParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, err := m.topologicalSort()
	if err != nil {
		return err
	}
	m.order = order

	params.Get = m.getLocked
	params.GetByNamespace = m.getByNamespaceLocked

	for _, name := range m.order {
		p := m.plugins[name]
		if err := p.Initialize(ctx, params); err != nil {
			return fmt.Errorf("plugin: initialize %s: %w", name, err)
		}
	}
	return nil
}

func (m *Manager) getLocked(name string) (Plugin, bool) {
	p, ok := m.plugins[name]
	return p, ok
}

func (m *Manager) getByNamespaceLocked(uri string) (Plugin, bool) {
	for _, name := range m.order {
		p := m.plugins[name]
		ns, ok := p.(Namespaces)
		if !ok {
			continue
		}
		for _, claimed := range ns.Namespaces() {
			if claimed == uri {
				return p, true
			}
		}
	}
	return nil, false
}

// Close closes all plugins in reverse initialization order.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for i := len(m.order) - 1; i >= 0; i-- {
		name := m.order[i]
		if p, ok := m.plugins[name]; ok {
			if err := p.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Plugins returns all registered plugins in dispatch order.
func (m *Manager) Plugins() []Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Plugin, 0, len(m.plugins))
	for _, name := range m.order {
		if p, ok := m.plugins[name]; ok {
			result = append(result, p)
		}
	}
	return result
}

// DispatchInbound runs st through each registered plugin's
// InputFilter, in registration order, stopping at the first plugin
// that claims it: the first extension that claims a stanza terminates
// its dispatch to the rest of the pipeline.
func (m *Manager) DispatchInbound(ctx context.Context, st stanza.Stanza) (claimed bool, err error) {
	m.mu.RLock()
	order := m.order
	plugins := m.plugins
	m.mu.RUnlock()

	for _, name := range order {
		f, ok := plugins[name].(InputFilter)
		if !ok {
			continue
		}
		claimed, err := f.HandleInbound(ctx, st)
		if err != nil {
			return false, fmt.Errorf("plugin: %s: %w", name, err)
		}
		if claimed {
			return true, nil
		}
	}
	return false, nil
}

// DispatchOutbound runs st through each registered plugin's
// OutputFilter, in registration order, before the session writes it
// to the transport. Filters may mutate st but must not block.
func (m *Manager) DispatchOutbound(ctx context.Context, st stanza.Stanza) error {
	m.mu.RLock()
	order := m.order
	plugins := m.plugins
	m.mu.RUnlock()

	for _, name := range order {
		f, ok := plugins[name].(OutputFilter)
		if !ok {
			continue
		}
		if err := f.HandleOutbound(ctx, st); err != nil {
			return fmt.Errorf("plugin: %s: %w", name, err)
		}
	}
	return nil
}

// topologicalSort sorts plugins by dependencies (Kahn's algorithm),
// walking m.registered (insertion order) instead of ranging over the
// map directly so that plugins with no dependency relationship keep
// their registration order rather than Go's randomized map order.
func (m *Manager) topologicalSort() ([]string, error) {
	for _, name := range m.registered {
		for _, dep := range m.plugins[name].Dependencies() {
			if _, ok := m.plugins[dep]; !ok {
				return nil, fmt.Errorf("%w: %s requires %s", ErrMissingDep, name, dep)
			}
		}
	}

	inDegree := make(map[string]int, len(m.registered))
	dependents := make(map[string][]string, len(m.registered))

	for _, name := range m.registered {
		inDegree[name] = 0
	}
	for _, name := range m.registered {
		for _, dep := range m.plugins[name].Dependencies() {
			inDegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var queue []string
	for _, name := range m.registered {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	var order []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)

		for _, dep := range dependents[name] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(order) != len(m.registered) {
		return nil, ErrCyclicDep
	}

	return order, nil
}
