// Package registry defines the explicit set of capabilities the agent
// can call: built-in primitives plus tools declared by TOOL.md
// manifests. Everything the agent may touch is registered here, so the
// capability surface of a run is inspectable up front.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openclaw/taskforge/internal/logging"
)

// Capability is an executable primitive the agent can invoke.
type Capability interface {
	// Name returns the capability name.
	Name() string
	// Describe returns a description for prompts and listings.
	Describe() string
	// Run invokes the capability with the given arguments.
	Run(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// Registry holds all registered capabilities.
type Registry struct {
	caps map[string]Capability
	log  *logging.Logger
}

// New creates an empty registry.
func New(log *logging.Logger) *Registry {
	return &Registry{
		caps: make(map[string]Capability),
		log:  log,
	}
}

// Register adds a capability, replacing any previous one of the same name.
func (r *Registry) Register(c Capability) {
	r.caps[c.Name()] = c
}

// Get returns a capability by name, or nil if not registered.
func (r *Registry) Get(name string) Capability {
	return r.caps[name]
}

// Names returns all registered capability names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.caps))
	for name := range r.caps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	return len(r.caps)
}

// Describe returns a prompt-ready listing of all capabilities, one
// "name: description" line each, sorted by name.
func (r *Registry) Describe() string {
	var b strings.Builder
	for _, name := range r.Names() {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(r.caps[name].Describe())
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Invoke runs a named capability and logs the call.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	c := r.Get(name)
	if c == nil {
		return nil, fmt.Errorf("unknown capability: %s", name)
	}

	if r.log != nil {
		r.log.CapabilityCall(name)
	}
	start := time.Now()
	result, err := c.Run(ctx, args)
	if r.log != nil {
		r.log.CapabilityResult(name, time.Since(start), err)
	}
	return result, err
}
