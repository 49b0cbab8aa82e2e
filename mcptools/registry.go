package mcptools

import (
	"sync"

	"github.com/effective-security/xlog"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// NamespaceSeparator joins a server name and an original tool name into a
// catalog-wide unique capability name. Server names are unique and the
// separator keeps distinct (server, tool) pairs distinct.
const NamespaceSeparator = "_"

// Namespaced returns the catalog name of a server's tool.
func Namespaced(server, tool string) string {
	return server + NamespaceSeparator + tool
}

// Binding ties a namespaced capability to the session that owns it and the
// name the server knows it by.
type Binding struct {
	Session  *Session
	Server   string
	Original string
}

// Registry is the merged, insertion-ordered catalog of capabilities from
// all connected servers, plus builtin capabilities that have no session.
// It has a single writer during orchestration; reads are safe at any time.
type Registry struct {
	mu       sync.RWMutex
	caps     *orderedmap.OrderedMap[string, *Capability]
	bindings map[string]*Binding
}

func NewRegistry() *Registry {
	return &Registry{
		caps:     orderedmap.New[string, *Capability](),
		bindings: make(map[string]*Binding),
	}
}

// Register adds a server capability under its namespaced name and records
// the binding back to the session. Re-registering the same namespaced name
// keeps the original catalog position.
func (r *Registry) Register(sess *Session, cap *Capability) string {
	name := Namespaced(sess.Name(), cap.Name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.caps.Get(name); ok {
		logger.KV(xlog.WARNING, "reason", "duplicate_capability", "name", name)
	}
	r.caps.Set(name, &Capability{
		Name:        name,
		Description: cap.Description,
		InputSchema: cap.InputSchema,
	})
	r.bindings[name] = &Binding{
		Session:  sess,
		Server:   sess.Name(),
		Original: cap.Name,
	}
	return name
}

// RegisterBuiltin adds a capability that is listed in the catalog but not
// dispatchable through a session.
func (r *Registry) RegisterBuiltin(cap *Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps.Set(cap.Name, &Capability{
		Name:        cap.Name,
		Description: cap.Description,
		InputSchema: cap.InputSchema,
		Builtin:     true,
	})
}

// Resolve looks up the binding for a namespaced name. Builtins and unknown
// names resolve to nothing.
func (r *Registry) Resolve(name string) (*Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[name]
	return b, ok
}

// List returns all capabilities in registration order.
func (r *Registry) List() []*Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Capability, 0, r.caps.Len())
	for pair := r.caps.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.caps.Len()
}
