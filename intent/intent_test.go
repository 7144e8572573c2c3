package intent

import (
	"strings"
	"testing"

	"github.com/yairfalse/suoja/types"
)

func validIntent() PolicyIntent {
	return PolicyIntent{
		Version:       "1",
		ClusterID:     "vhs",
		Mode:          ModeEnabled,
		Action:        types.ActionBlock,
		ResourceTypes: []types.ResourceType{types.TypeCDNDistribution},
		RequiredTags: []TagPair{
			{Key: "USE_SHIELD_ADVANCED", Value: "true"},
			{Key: "IS_CLUSTER_vhs", Value: "true"},
		},
	}
}

func TestValidateAcceptsGoodIntent(t *testing.T) {
	p := validIntent()
	if err := p.Validate(); err != nil {
		t.Fatalf("valid intent rejected: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*PolicyIntent)
		wantKind types.ErrorKind
	}{
		{
			name:     "cluster id too long",
			mutate:   func(p *PolicyIntent) { p.ClusterID = "toolong" },
			wantKind: types.KindValidation,
		},
		{
			name: "cluster id non word characters",
			mutate: func(p *PolicyIntent) {
				p.ClusterID = "a-b"
				p.RequiredTags = append(p.RequiredTags, TagPair{Key: "IS_CLUSTER_a-b", Value: "true"})
			},
			wantKind: types.KindValidation,
		},
		{
			name:     "bad mode",
			mutate:   func(p *PolicyIntent) { p.Mode = Mode("MAYBE") },
			wantKind: types.KindValidation,
		},
		{
			name: "action required when enabled",
			mutate: func(p *PolicyIntent) {
				p.Mode = ModeEnabled
				p.Action = ""
			},
			wantKind: types.KindValidation,
		},
		{
			name:     "bad action",
			mutate:   func(p *PolicyIntent) { p.Action = types.Action("DROP") },
			wantKind: types.KindValidation,
		},
		{
			name:     "no resource types",
			mutate:   func(p *PolicyIntent) { p.ResourceTypes = nil },
			wantKind: types.KindValidation,
		},
		{
			name:     "unknown resource type",
			mutate:   func(p *PolicyIntent) { p.ResourceTypes = []types.ResourceType{"ec2"} },
			wantKind: types.KindValidation,
		},
		{
			name:     "no required tags",
			mutate:   func(p *PolicyIntent) { p.RequiredTags = nil },
			wantKind: types.KindValidation,
		},
		{
			name: "missing cluster identity tag",
			mutate: func(p *PolicyIntent) {
				p.RequiredTags = []TagPair{{Key: "USE_SHIELD_ADVANCED", Value: "true"}}
			},
			wantKind: types.KindValidation,
		},
		{
			name: "duplicate tag key",
			mutate: func(p *PolicyIntent) {
				p.RequiredTags = append(p.RequiredTags, TagPair{Key: "IS_CLUSTER_vhs", Value: "false"})
			},
			wantKind: types.KindValidation,
		},
		{
			name: "include and exclude both set",
			mutate: func(p *PolicyIntent) {
				p.AccountScope = AccountScope{Include: []string{"1"}, Exclude: []string{"2"}}
			},
			wantKind: types.KindInvariantViolation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validIntent()
			tt.mutate(&p)

			err := p.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if got := types.KindOf(err); got != tt.wantKind {
				t.Errorf("error kind = %v, want %v", got, tt.wantKind)
			}
		})
	}
}

func TestActionOptionalWhenDisabled(t *testing.T) {
	p := validIntent()
	p.Mode = ModeDisabled
	p.Action = ""
	if err := p.Validate(); err != nil {
		t.Fatalf("action should be optional when mode is DISABLED: %v", err)
	}
}

func TestParse(t *testing.T) {
	doc := `
version: "1"
cluster_id: vhs
mode: ENABLED
action: BLOCK
resource_types:
  - cdn_distribution
  - load_balancer
required_tags:
  - key: USE_SHIELD_ADVANCED
    value: "true"
  - key: IS_CLUSTER_vhs
    value: "true"
account_scope:
  include:
    - "111111111111"
`
	p, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if p.ClusterID != "vhs" || p.Mode != ModeEnabled || p.Action != types.ActionBlock {
		t.Errorf("unexpected intent: %+v", p)
	}
	if len(p.RequiredTags) != 2 || p.RequiredTags[0].Key != "USE_SHIELD_ADVANCED" {
		t.Errorf("required tag order not preserved: %+v", p.RequiredTags)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte("::not yaml::"))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "validation") {
		t.Errorf("expected validation kind, got %v", err)
	}
}

func TestAccountScopeCovers(t *testing.T) {
	tests := []struct {
		name    string
		scope   AccountScope
		account string
		want    bool
	}{
		{"empty scope covers all", AccountScope{}, "123", true},
		{"include member", AccountScope{Include: []string{"123"}}, "123", true},
		{"include non-member", AccountScope{Include: []string{"123"}}, "456", false},
		{"exclude member", AccountScope{Exclude: []string{"123"}}, "123", false},
		{"exclude non-member", AccountScope{Exclude: []string{"123"}}, "456", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.scope.Covers(tt.account); got != tt.want {
				t.Errorf("Covers(%s) = %v, want %v", tt.account, got, tt.want)
			}
		})
	}
}

func TestClusterTagKey(t *testing.T) {
	if got := ClusterTagKey("vhs"); got != "IS_CLUSTER_vhs" {
		t.Errorf("ClusterTagKey = %s", got)
	}
}
