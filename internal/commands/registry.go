package commands

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds registered commands.
type Registry struct {
	mu    sync.RWMutex
	index map[string]Command // name and aliases map to command
	names []string           // primary names
}

// NewRegistry creates a new command registry.
func NewRegistry() *Registry {
	return &Registry{
		index: make(map[string]Command),
	}
}

// Register adds a command to the registry.
// Returns an error if the name or any alias is already taken.
func (r *Registry) Register(c Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := append([]string{c.Name()}, c.Aliases()...)
	for _, k := range keys {
		if _, exists := r.index[strings.ToLower(k)]; exists {
			return fmt.Errorf("command name already registered: %s", k)
		}
	}

	for _, k := range keys {
		r.index[strings.ToLower(k)] = c
	}
	r.names = append(r.names, c.Name())
	sort.Strings(r.names)
	return nil
}

// Find looks up a command by name or alias, ignoring case.
func (r *Registry) Find(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.index[strings.ToLower(name)]
	return cmd, ok
}

// All returns all commands sorted by primary name.
func (r *Registry) All() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Command, 0, len(r.names))
	for _, name := range r.names {
		result = append(result, r.index[strings.ToLower(name)])
	}
	return result
}

// DefaultRegistry is the global command registry.
var DefaultRegistry = NewRegistry()

// Register adds a command to the default registry.
func Register(c Command) {
	if err := DefaultRegistry.Register(c); err != nil {
		panic(err)
	}
}
