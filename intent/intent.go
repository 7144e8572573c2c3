// Package intent loads and validates protection policy documents.
package intent

import (
	"fmt"
	"os"
	"regexp"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/yairfalse/suoja/types"
)

// Mode controls whether the policy is converged, torn down, or left alone
type Mode string

const (
	ModeEnabled  Mode = "ENABLED"
	ModeDisabled Mode = "DISABLED"
	ModeIgnored  Mode = "IGNORED"
)

// TagPair is one required tag. Order matters for reporting, so
// required tags are a slice, not a map.
type TagPair struct {
	Key   string `yaml:"key" json:"key" validate:"required"`
	Value string `yaml:"value" json:"value" validate:"required"`
}

// AccountScope limits the policy to a set of accounts. Include and
// Exclude are mutually exclusive; an empty scope covers every account.
type AccountScope struct {
	Include []string `yaml:"include,omitempty" json:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
}

// Covers reports whether accountID falls inside the scope
func (s AccountScope) Covers(accountID string) bool {
	if len(s.Include) > 0 {
		for _, id := range s.Include {
			if id == accountID {
				return true
			}
		}
		return false
	}
	for _, id := range s.Exclude {
		if id == accountID {
			return false
		}
	}
	return true
}

// PolicyIntent is the desired protection policy for one cluster.
// It is loaded once per reconciliation run and immutable afterwards.
type PolicyIntent struct {
	Version       string               `yaml:"version" json:"version"`
	ClusterID     string               `yaml:"cluster_id" json:"cluster_id" validate:"required,len=3"`
	Mode          Mode                 `yaml:"mode" json:"mode" validate:"required,oneof=ENABLED DISABLED IGNORED"`
	Action        types.Action         `yaml:"action,omitempty" json:"action,omitempty" validate:"required_if=Mode ENABLED,omitempty,oneof=BLOCK COUNT"`
	ResourceTypes []types.ResourceType `yaml:"resource_types" json:"resource_types" validate:"required,min=1,dive,oneof=cdn_distribution load_balancer dns_zone"`
	RequiredTags  []TagPair            `yaml:"required_tags" json:"required_tags" validate:"required,min=1,dive"`
	AccountScope  AccountScope         `yaml:"account_scope,omitempty" json:"account_scope,omitempty"`
}

var clusterIDPattern = regexp.MustCompile(`^\w{3}$`)

// ClusterTagKey derives the cluster-identity tag key for a cluster ID
func ClusterTagKey(clusterID string) string {
	return "IS_CLUSTER_" + clusterID
}

// CoversType reports whether t is in the policy's type allowlist
func (p *PolicyIntent) CoversType(t types.ResourceType) bool {
	for _, allowed := range p.ResourceTypes {
		if allowed == t {
			return true
		}
	}
	return false
}

// Load reads and validates an intent document from a YAML file
func Load(path string) (*PolicyIntent, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, types.NewProviderError(types.KindValidation,
			fmt.Errorf("failed to read intent document: %w", err))
	}
	return Parse(data)
}

// Parse decodes and validates an intent document
func Parse(data []byte) (*PolicyIntent, error) {
	var p PolicyIntent
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, types.NewProviderError(types.KindValidation,
			fmt.Errorf("failed to parse intent document: %w", err))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks field constraints and cross-field invariants.
// Validation failures are fail-fast: they abort the run before any
// provider call is issued.
func (p *PolicyIntent) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(p); err != nil {
		return types.NewProviderError(types.KindValidation,
			fmt.Errorf("invalid intent: %w", err))
	}

	if !clusterIDPattern.MatchString(p.ClusterID) {
		return types.NewProviderError(types.KindValidation,
			fmt.Errorf("cluster_id %q must be exactly 3 word characters", p.ClusterID))
	}

	if err := p.validateRequiredTags(); err != nil {
		return err
	}

	// Include and Exclude both set is a caller bug, not bad input
	if len(p.AccountScope.Include) > 0 && len(p.AccountScope.Exclude) > 0 {
		return types.NewProviderError(types.KindInvariantViolation,
			fmt.Errorf("account_scope cannot set both include and exclude"))
	}

	return nil
}

func (p *PolicyIntent) validateRequiredTags() error {
	seen := make(map[string]bool, len(p.RequiredTags))
	for _, pair := range p.RequiredTags {
		if seen[pair.Key] {
			return types.NewProviderError(types.KindValidation,
				fmt.Errorf("duplicate required tag key %q", pair.Key))
		}
		seen[pair.Key] = true
	}

	clusterTag := ClusterTagKey(p.ClusterID)
	if !seen[clusterTag] {
		return types.NewProviderError(types.KindValidation,
			fmt.Errorf("required_tags must include cluster identity tag %q", clusterTag))
	}

	return nil
}
