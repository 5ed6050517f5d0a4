// Package field implements the policy layer that maps field names to
// encryption requirements and applies them to values, records and batches.
package field

import (
	"errors"
	"fmt"

	"github.com/root-sector/customer-data-protection-module-encryption/types"
)

var (
	// ErrEmptyPolicySet indicates a policy set with no entries. The policy
	// determines which attributes are transformed on both paths, so an empty
	// set is a configuration error, not a usable default.
	ErrEmptyPolicySet = errors.New("policy set must declare at least one field")

	// ErrConflictingPolicy indicates the same field name was declared with
	// different sensitivity flags. There is no precedence rule; the
	// configuration is rejected at startup.
	ErrConflictingPolicy = errors.New("conflicting sensitivity flags for field")
)

// PolicySet is the startup-validated registry of field policies. It is
// immutable after construction and safe for concurrent reads.
type PolicySet struct {
	policies map[string]types.FieldPolicy
}

// NewPolicySet validates and indexes the declared policies. Duplicate
// declarations are allowed only when identical; conflicting duplicates are
// rejected rather than resolved by precedence.
func NewPolicySet(policies []types.FieldPolicy) (*PolicySet, error) {
	if len(policies) == 0 {
		return nil, ErrEmptyPolicySet
	}

	indexed := make(map[string]types.FieldPolicy, len(policies))
	for _, p := range policies {
		if p.Name == "" {
			return nil, fmt.Errorf("field policy with empty name")
		}
		if existing, ok := indexed[p.Name]; ok {
			if existing.Sensitive != p.Sensitive {
				return nil, fmt.Errorf("%w: %s", ErrConflictingPolicy, p.Name)
			}
			continue
		}
		indexed[p.Name] = p
	}

	return &PolicySet{policies: indexed}, nil
}

// Lookup returns the policy for a field name.
func (s *PolicySet) Lookup(name string) (types.FieldPolicy, bool) {
	p, ok := s.policies[name]
	return p, ok
}

// Sensitive reports whether a field must be encrypted. Unknown fields are
// not sensitive; the caller decides whether to log the miss.
func (s *PolicySet) Sensitive(name string) bool {
	return s.policies[name].Sensitive
}

// SensitiveFields returns the names of all sensitive fields, unordered.
func (s *PolicySet) SensitiveFields() []string {
	names := make([]string, 0, len(s.policies))
	for name, p := range s.policies {
		if p.Sensitive {
			names = append(names, name)
		}
	}
	return names
}

// Len returns the number of declared policies.
func (s *PolicySet) Len() int {
	return len(s.policies)
}
