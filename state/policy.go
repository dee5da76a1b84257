package state

import (
	"math"

	"github.com/xraph/subledger/store"
)

// Default lifetime parameters, in ticks.
const (
	DefaultThreshold uint32 = 100_000
	DefaultExtendTo  uint32 = 200_000
	DefaultInitial   uint32 = 4_096
)

// Policy controls when and how far a live entry's lifetime is extended.
type Policy struct {
	// Threshold is the remaining lifetime below which a bump extends.
	Threshold uint32 `json:"threshold" mapstructure:"threshold" yaml:"threshold"`
	// ExtendTo is the lifetime, counted from now, that a bump grants.
	ExtendTo uint32 `json:"extend_to" mapstructure:"extend_to" yaml:"extend_to"`
}

// Extend returns the lifetime an entry live until liveUntil has after a bump
// at tick now. Entries with at least Threshold ticks left are unchanged.
func (p Policy) Extend(now, liveUntil uint32) uint32 {
	if liveUntil >= now && liveUntil-now >= p.Threshold {
		return liveUntil
	}
	return saturatingAdd(now, p.ExtendTo)
}

// Policies groups the per-class lifetime settings.
type Policies struct {
	Instance   Policy `json:"instance" mapstructure:"instance" yaml:"instance"`
	Persistent Policy `json:"persistent" mapstructure:"persistent" yaml:"persistent"`
	// Initial is the lifetime a newly created entry receives before any bump.
	Initial uint32 `json:"initial" mapstructure:"initial" yaml:"initial"`
}

// DefaultPolicies returns the standard lifetime settings: both classes
// extend to 200,000 ticks once fewer than 100,000 remain.
func DefaultPolicies() Policies {
	p := Policy{Threshold: DefaultThreshold, ExtendTo: DefaultExtendTo}
	return Policies{Instance: p, Persistent: p, Initial: DefaultInitial}
}

// For returns the policy governing class.
func (ps Policies) For(class store.Class) Policy {
	if class == store.ClassInstance {
		return ps.Instance
	}
	return ps.Persistent
}

func saturatingAdd(a, b uint32) uint32 {
	if a > math.MaxUint32-b {
		return math.MaxUint32
	}
	return a + b
}
