// Package providers defines the external boundaries the reconciler
// consumes: resource inventory and protection enrollment.
package providers

import (
	"context"
	"fmt"

	"github.com/yairfalse/suoja/intent"
	"github.com/yairfalse/suoja/types"
)

// InventoryAdapter supplies the current resource snapshot.
// A listing failure is run-aborting: scope cannot be evaluated from a
// partial or untrustworthy inventory.
type InventoryAdapter interface {
	ListResources(ctx context.Context, scope intent.AccountScope) ([]types.ResourceRecord, error)
}

// EnrollmentAPI is the protection service boundary. Enrollment state is
// owned by the provider; the reconciler only converges it.
type EnrollmentAPI interface {
	Enroll(ctx context.Context, resourceID string, action types.Action) error
	Unenroll(ctx context.Context, resourceID string) error
	ListEnrolled(ctx context.Context, scope intent.AccountScope) ([]types.EnrollmentState, error)
}

// Provider combines both boundaries for one backend
type Provider interface {
	InventoryAdapter
	EnrollmentAPI
	Name() string
}

// Config holds provider construction options
type Config struct {
	// FixturePath seeds file-backed providers with inventory and
	// enrollment state
	FixturePath string
}

// Factory creates a provider instance
type Factory func(config Config) (Provider, error)

var registry = make(map[string]Factory)

// Register adds a provider factory under a name
func Register(name string, factory Factory) {
	registry[name] = factory
}

// Get creates a provider instance by name
func Get(name string, config Config) (Provider, error) {
	factory, exists := registry[name]
	if !exists {
		return nil, fmt.Errorf("provider %s not found", name)
	}
	return factory(config)
}

// List returns registered provider names
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
