package types

// ResourceType identifies the kind of protectable resource
type ResourceType string

const (
	TypeCDNDistribution ResourceType = "cdn_distribution"
	TypeLoadBalancer    ResourceType = "load_balancer"
	TypeDNSZone         ResourceType = "dns_zone"
)

// KnownResourceTypes lists every type the reconciler can protect
var KnownResourceTypes = []ResourceType{
	TypeCDNDistribution,
	TypeLoadBalancer,
	TypeDNSZone,
}

// IsKnownResourceType reports whether t is a protectable type
func IsKnownResourceType(t ResourceType) bool {
	for _, known := range KnownResourceTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ResourceRecord is an immutable inventory snapshot row.
// Records are never mutated after the inventory adapter returns them;
// a fresh snapshot is taken every run.
type ResourceRecord struct {
	ID        string            `yaml:"id" json:"id"`
	Type      ResourceType      `yaml:"type" json:"type"`
	Tags      map[string]string `yaml:"tags,omitempty" json:"tags,omitempty"`
	AccountID string            `yaml:"account_id" json:"account_id"`
}

// HasTag checks for an exact key/value match
func (r ResourceRecord) HasTag(key, value string) bool {
	if r.Tags == nil {
		return false
	}
	got, ok := r.Tags[key]
	return ok && got == value
}

// BuildRecordMap converts a slice of records to a map for lookup by ID
func BuildRecordMap(records []ResourceRecord) map[string]ResourceRecord {
	recordMap := make(map[string]ResourceRecord, len(records))
	for _, record := range records {
		recordMap[record.ID] = record
	}
	return recordMap
}
