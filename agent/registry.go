package agent

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the global name-to-factory table populated at process start.
// Agents register themselves once during init/wiring; lookups are read-mostly
// and safe for concurrent use across requests.
type Registry struct {
	mu  sync.RWMutex
	reg map[string]*Registration
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{reg: make(map[string]*Registration)}
}

// Register adds reg under reg.Name. It returns an error if the name is empty,
// no factory is provided, or the name was already registered — registration
// order bugs (double-registering an agent) should fail loudly at startup
// rather than silently shadow the first registration.
func (r *Registry) Register(reg Registration) error {
	if reg.Name == "" {
		return fmt.Errorf("agent: registration missing Name")
	}
	if reg.New == nil {
		return fmt.Errorf("agent: registration %q missing New factory", reg.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.reg[reg.Name]; exists {
		return fmt.Errorf("agent: %q already registered", reg.Name)
	}
	cp := reg
	r.reg[reg.Name] = &cp
	return nil
}

// MustRegister panics if Register returns an error. Intended for package-level
// init wiring where a registration conflict is a programming error.
func (r *Registry) MustRegister(reg Registration) {
	if err := r.Register(reg); err != nil {
		panic(err)
	}
}

// Lookup returns the registration for name, if any.
func (r *Registry) Lookup(name string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.reg[name]
	return reg, ok
}

// Names returns every registered agent name in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.reg))
	for name := range r.reg {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// All returns every registration, in the order of Names.
func (r *Registry) All() []*Registration {
	names := r.Names()
	out := make([]*Registration, 0, len(names))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range names {
		out = append(out, r.reg[name])
	}
	return out
}
