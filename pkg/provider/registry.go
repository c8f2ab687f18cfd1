package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Entry describes one backend type: how to build it, what its config looks
// like and how it authenticates.
type Entry struct {
	// Type is the registry key, e.g. "s3" or "gdrive".
	Type string

	DisplayName string
	AuthType    AuthType
	Schema      Schema
	Factory     Factory

	// OAuth is set for AuthOAuthRedirect backends.
	OAuth OAuthFlow

	// Poll is set for AuthOAuthPoll backends.
	Poll PollFlow
}

// Registry maps backend type names to their entries. It holds no per-account
// state; it is a lookup table filled at startup.
//
// Example usage:
//
//	reg := provider.NewRegistry()
//	_ = reg.Register(s3.Entry())
//	entry, _ := reg.Lookup("s3")
//	adapter := entry.Factory()
//
// Thread safety:
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds an entry.
//
// Parameters:
//   - e: Entry to add. Type and Factory are required, and OAuth or Poll must
//     be set when AuthType needs them
//
// Returns:
//   - error: Non-nil for an incomplete entry or a type already registered
func (r *Registry) Register(e Entry) error {
	if e.Type == "" {
		return fmt.Errorf("cannot register provider with empty type")
	}
	if e.Factory == nil {
		return fmt.Errorf("provider %q has no factory", e.Type)
	}
	if e.AuthType == AuthOAuthRedirect && e.OAuth == nil {
		return fmt.Errorf("provider %q uses redirect OAuth but has no OAuth hooks", e.Type)
	}
	if e.AuthType == AuthOAuthPoll && e.Poll == nil {
		return fmt.Errorf("provider %q uses poll auth but has no poll hooks", e.Type)
	}
	if e.Schema.Type == "" {
		e.Schema.Type = e.Type
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[e.Type]; exists {
		return fmt.Errorf("provider %q already registered", e.Type)
	}

	r.entries[e.Type] = e
	return nil
}

// MustRegister is Register for static wiring where a failure is a programming
// error.
func (r *Registry) MustRegister(e Entry) {
	if err := r.Register(e); err != nil {
		panic(err)
	}
}

// Lookup returns the entry for typ.
func (r *Registry) Lookup(typ string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[typ]
	if !ok {
		return Entry{}, &NotFoundError{Kind: "provider type", ID: typ}
	}
	return e, nil
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.entries))
	for t := range r.entries {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
