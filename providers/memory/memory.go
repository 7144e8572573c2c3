// Package memory implements the provider boundaries against in-process
// state. It backs tests, plan dry-runs, and fixture-driven runs.
package memory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/yairfalse/suoja/intent"
	"github.com/yairfalse/suoja/providers"
	"github.com/yairfalse/suoja/types"
)

// Provider holds inventory and enrollment state in memory
type Provider struct {
	mu        sync.Mutex
	resources []types.ResourceRecord
	enrolled  map[string]bool
	actions   map[string]types.Action

	// failures scripts per-resource error kinds, consumed one per call
	failures map[string][]types.ErrorKind

	listErr error
}

// New creates an empty in-memory provider
func New() *Provider {
	return &Provider{
		enrolled: make(map[string]bool),
		actions:  make(map[string]types.Action),
		failures: make(map[string][]types.ErrorKind),
	}
}

// Fixture is the YAML shape for seeding a provider
type Fixture struct {
	Resources []types.ResourceRecord `yaml:"resources"`
	Enrolled  []string               `yaml:"enrolled,omitempty"`
}

// LoadFixture creates a provider seeded from a YAML fixture file
func LoadFixture(path string) (*Provider, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}

	var fixture Fixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}

	p := New()
	p.resources = fixture.Resources
	for _, id := range fixture.Enrolled {
		p.enrolled[id] = true
	}
	return p, nil
}

func (p *Provider) Name() string {
	return "memory"
}

// SeedResources replaces the inventory snapshot
func (p *Provider) SeedResources(records ...types.ResourceRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resources = records
}

// SeedEnrolled marks resources as already enrolled
func (p *Provider) SeedEnrolled(ids ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		p.enrolled[id] = true
	}
}

// FailWith scripts error kinds for a resource; each mutating call
// consumes one kind until the script runs out
func (p *Provider) FailWith(resourceID string, kinds ...types.ErrorKind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[resourceID] = append(p.failures[resourceID], kinds...)
}

// FailListings makes ListResources and ListEnrolled fail
func (p *Provider) FailListings(kind types.ErrorKind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listErr = types.NewProviderError(kind, fmt.Errorf("listing unavailable"))
}

func (p *Provider) ListResources(ctx context.Context, scope intent.AccountScope) ([]types.ResourceRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.listErr != nil {
		return nil, p.listErr
	}

	var result []types.ResourceRecord
	for _, record := range p.resources {
		if scope.Covers(record.AccountID) {
			result = append(result, record)
		}
	}
	return result, nil
}

func (p *Provider) ListEnrolled(ctx context.Context, scope intent.AccountScope) ([]types.EnrollmentState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.listErr != nil {
		return nil, p.listErr
	}

	result := make([]types.EnrollmentState, 0, len(p.enrolled))
	for id, enrolled := range p.enrolled {
		result = append(result, types.EnrollmentState{ResourceID: id, Enrolled: enrolled})
	}
	return result, nil
}

func (p *Provider) Enroll(ctx context.Context, resourceID string, action types.Action) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.nextFailure(resourceID); err != nil {
		return err
	}

	p.enrolled[resourceID] = true
	p.actions[resourceID] = action
	return nil
}

func (p *Provider) Unenroll(ctx context.Context, resourceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.nextFailure(resourceID); err != nil {
		return err
	}

	if !p.enrolled[resourceID] {
		return types.NewProviderError(types.KindNotFound,
			fmt.Errorf("resource %s is not enrolled", resourceID))
	}
	delete(p.enrolled, resourceID)
	delete(p.actions, resourceID)
	return nil
}

// IsEnrolled reports current enrollment for assertions
func (p *Provider) IsEnrolled(resourceID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enrolled[resourceID]
}

// ActionFor returns the enforcement action recorded at enrollment
func (p *Provider) ActionFor(resourceID string) types.Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.actions[resourceID]
}

func (p *Provider) nextFailure(resourceID string) error {
	script := p.failures[resourceID]
	if len(script) == 0 {
		return nil
	}
	kind := script[0]
	p.failures[resourceID] = script[1:]
	return types.NewProviderError(kind, fmt.Errorf("scripted %s for %s", kind, resourceID))
}

// Register wires the memory provider into the registry
func Register() {
	providers.Register("memory", func(config providers.Config) (providers.Provider, error) {
		if config.FixturePath != "" {
			return LoadFixture(config.FixturePath)
		}
		return New(), nil
	})
}
