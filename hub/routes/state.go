// Package routes holds the dispatch route table: the mapping from
// application name to its assigned backend port. The table has a strict
// lifecycle: the startup orchestrator is its only writer, and once startup
// completes it calls Freeze, after which the reverse-proxy dispatcher reads
// it for the remainder of the process.
package routes

import (
	"fmt"
	"sync"
)

// State is the route table. Entries are immutable once assigned: an
// application keeps its port until process exit, with no hot reload and no
// restart.
type State struct {
	mu     sync.RWMutex
	table  map[string]int
	order  []string
	frozen bool
}

// NewState returns an empty route table.
func NewState() *State {
	return &State{table: make(map[string]int)}
}

// Assign records the port for an application name. It fails if the name is
// already registered or if the table has been frozen.
func (s *State) Assign(name string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frozen {
		return fmt.Errorf("route table is frozen, cannot assign %q", name)
	}
	if _, exists := s.table[name]; exists {
		return fmt.Errorf("route for %q already assigned", name)
	}
	s.table[name] = port
	s.order = append(s.order, name)
	return nil
}

// PortFor looks up the backend port for an application name.
func (s *State) PortFor(name string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	port, ok := s.table[name]
	return port, ok
}

// Names returns the registered application names in assignment order.
func (s *State) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// Len returns the number of registered routes.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.table)
}

// Freeze marks the end of the startup phase. Further Assign calls fail.
func (s *State) Freeze() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = true
}
