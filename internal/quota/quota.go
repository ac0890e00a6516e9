// Package quota bounds per-diagram and per-owner resource usage.
//
// Limits are configurable per deployment; the zero-value Limits is unusable,
// use DefaultLimits as the baseline. Every violation is reported as a typed
// *ExceededError so callers can surface resource, limit and actual count.
package quota

import (
	"fmt"

	"github.com/draftboard/draftboard/internal/spec"
)

// Default limits. Structural spec bounds are hard schema limits; these are
// the tighter operational caps applied before any write.
const (
	DefaultMaxNodes           = 500
	DefaultMaxEdges           = 1000
	DefaultMaxGroups          = 50
	DefaultMaxMessages        = 200
	DefaultMaxRelationships   = 200
	DefaultMaxSpecSizeBytes   = 1 << 20 // 1 MiB
	DefaultMaxDiagramsPerUser = 100
)

// Limits is the set of enforced caps.
type Limits struct {
	MaxNodes           int
	MaxEdges           int
	MaxGroups          int
	MaxMessages        int
	MaxRelationships   int
	MaxSpecSizeBytes   int
	MaxDiagramsPerUser int
}

// DefaultLimits returns the standard caps.
func DefaultLimits() Limits {
	return Limits{
		MaxNodes:           DefaultMaxNodes,
		MaxEdges:           DefaultMaxEdges,
		MaxGroups:          DefaultMaxGroups,
		MaxMessages:        DefaultMaxMessages,
		MaxRelationships:   DefaultMaxRelationships,
		MaxSpecSizeBytes:   DefaultMaxSpecSizeBytes,
		MaxDiagramsPerUser: DefaultMaxDiagramsPerUser,
	}
}

// ExceededError reports a quota violation.
type ExceededError struct {
	Resource string
	Limit    int
	Actual   int
	Code     string
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s %d > limit %d", e.Resource, e.Actual, e.Limit)
}

func exceeded(resource string, limit, actual int) *ExceededError {
	return &ExceededError{
		Resource: resource,
		Limit:    limit,
		Actual:   actual,
		Code:     "QUOTA_" + resource,
	}
}

// CheckSpec verifies a spec against the per-diagram caps. serialized is the
// canonical JSON encoding; it is checked first so oversized batches are
// rejected before any element counting.
func (l Limits) CheckSpec(s *spec.DiagramSpec, serialized []byte) error {
	if len(serialized) > l.MaxSpecSizeBytes {
		return exceeded("SPEC_SIZE", l.MaxSpecSizeBytes, len(serialized))
	}
	if len(s.Nodes) > l.MaxNodes {
		return exceeded("NODES", l.MaxNodes, len(s.Nodes))
	}
	if len(s.Edges) > l.MaxEdges {
		return exceeded("EDGES", l.MaxEdges, len(s.Edges))
	}
	if len(s.Groups) > l.MaxGroups {
		return exceeded("GROUPS", l.MaxGroups, len(s.Groups))
	}
	if len(s.Messages) > l.MaxMessages {
		return exceeded("MESSAGES", l.MaxMessages, len(s.Messages))
	}
	if len(s.Relationships) > l.MaxRelationships {
		return exceeded("RELATIONSHIPS", l.MaxRelationships, len(s.Relationships))
	}
	return nil
}

// CheckOwnerCount verifies a per-owner diagram count prior to a create.
// Anonymous owners (empty ownerID) are unlimited.
func (l Limits) CheckOwnerCount(ownerID string, owned int) error {
	if ownerID == "" {
		return nil
	}
	if owned >= l.MaxDiagramsPerUser {
		return exceeded("DIAGRAMS_PER_USER", l.MaxDiagramsPerUser, owned)
	}
	return nil
}
