package spec

import (
	"encoding/json"
	"fmt"
)

// Structural bounds on a single spec. These are hard schema limits; the
// configurable per-deployment quotas in the quota package may be tighter.
const (
	MaxNodes         = 1000
	MaxEdges         = 5000
	MaxGroups        = 100
	MaxMessages      = 500
	MaxRelationships = 500

	MaxIDLen         = 100
	MaxLabelLen      = 1000
	MaxDetailsLen    = 5000
	MaxAttributes    = 50
	MaxMethods       = 50
	MaxGroupNodeIDs  = 500
	MaxCoordinate    = 100000
	MaxDimension     = 10000
	MaxMessageOrder  = 10000
)

// ValidationError is returned by Parse when a document fails strict
// validation. It carries every path-qualified issue found, not just the
// first one.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 1 {
		return fmt.Sprintf("spec validation failed: %s: %s", e.Issues[0].Path, e.Issues[0].Message)
	}
	return fmt.Sprintf("spec validation failed: %d issues (first: %s: %s)",
		len(e.Issues), e.Issues[0].Path, e.Issues[0].Message)
}

// Parse decodes and strictly validates a diagram spec. Any issue fails the
// parse with a *ValidationError listing the offending paths.
func Parse(data []byte) (*DiagramSpec, error) {
	var s DiagramSpec
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &ValidationError{Issues: []Issue{{Path: "$", Message: "invalid JSON: " + err.Error()}}}
	}
	issues := Check(&s)
	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	s.Valid = true
	return &s, nil
}

// ParseLenient decodes a spec and records, rather than rejects, validation
// issues. The returned spec always carries the decoded tree; Valid is false
// and Issues is populated when strict rules are violated. Only undecodable
// JSON returns an error.
func ParseLenient(data []byte) (*DiagramSpec, error) {
	var s DiagramSpec
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode spec: %w", err)
	}
	s.Issues = Check(&s)
	s.Valid = len(s.Issues) == 0
	return &s, nil
}

// Validate strictly validates an already-decoded spec.
func Validate(s *DiagramSpec) error {
	if issues := Check(s); len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// Check runs every structural rule against s and returns the issues found.
// An empty result means the spec is valid.
func Check(s *DiagramSpec) []Issue {
	var issues []Issue
	add := func(path, format string, args ...interface{}) {
		issues = append(issues, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if !s.Type.IsValid() {
		add("$.type", "unknown diagram type %q", s.Type)
	}
	if s.Theme != "" && !s.Theme.IsValid() {
		add("$.theme", "unknown theme %q", s.Theme)
	}

	if len(s.Nodes) > MaxNodes {
		add("$.nodes", "too many nodes: %d (max %d)", len(s.Nodes), MaxNodes)
	}
	if len(s.Edges) > MaxEdges {
		add("$.edges", "too many edges: %d (max %d)", len(s.Edges), MaxEdges)
	}
	if len(s.Groups) > MaxGroups {
		add("$.groups", "too many groups: %d (max %d)", len(s.Groups), MaxGroups)
	}
	if len(s.Messages) > MaxMessages {
		add("$.messages", "too many messages: %d (max %d)", len(s.Messages), MaxMessages)
	}
	if len(s.Relationships) > MaxRelationships {
		add("$.relationships", "too many relationships: %d (max %d)", len(s.Relationships), MaxRelationships)
	}

	if len(s.Messages) > 0 && s.Type != TypeSequence {
		add("$.messages", "messages are only valid on sequence diagrams")
	}
	if len(s.Relationships) > 0 && s.Type != TypeER {
		add("$.relationships", "relationships are only valid on er diagrams")
	}

	nodeIDs := make(map[string]struct{}, len(s.Nodes))
	for i, n := range s.Nodes {
		path := fmt.Sprintf("$.nodes[%d]", i)
		checkNode(&n, path, add)
		if _, dup := nodeIDs[n.ID]; dup && n.ID != "" {
			add(path+".id", "duplicate node id %q", n.ID)
		}
		nodeIDs[n.ID] = struct{}{}
	}

	for i, e := range s.Edges {
		path := fmt.Sprintf("$.edges[%d]", i)
		if e.ID != "" && len(e.ID) > MaxIDLen {
			add(path+".id", "id too long: %d chars (max %d)", len(e.ID), MaxIDLen)
		}
		checkEndpoint(e.From, path+".from", nodeIDs, add)
		checkEndpoint(e.To, path+".to", nodeIDs, add)
		if len(e.Label) > MaxLabelLen {
			add(path+".label", "label too long: %d chars (max %d)", len(e.Label), MaxLabelLen)
		}
		if e.Style != "" && !e.Style.IsValid() {
			add(path+".style", "unknown edge style %q", e.Style)
		}
		if e.Color != "" && !IsValidColor(e.Color) {
			add(path+".color", "invalid color %q", e.Color)
		}
	}

	groupIDs := make(map[string]struct{}, len(s.Groups))
	for i, g := range s.Groups {
		path := fmt.Sprintf("$.groups[%d]", i)
		if g.ID == "" || len(g.ID) > MaxIDLen {
			add(path+".id", "id must be 1-%d characters", MaxIDLen)
		}
		if _, dup := groupIDs[g.ID]; dup && g.ID != "" {
			add(path+".id", "duplicate group id %q", g.ID)
		}
		groupIDs[g.ID] = struct{}{}
		if g.Label == "" || len(g.Label) > MaxLabelLen {
			add(path+".label", "label must be 1-%d characters", MaxLabelLen)
		}
		if len(g.NodeIDs) > MaxGroupNodeIDs {
			add(path+".nodeIds", "too many members: %d (max %d)", len(g.NodeIDs), MaxGroupNodeIDs)
		}
		for j, id := range g.NodeIDs {
			checkEndpoint(id, fmt.Sprintf("%s.nodeIds[%d]", path, j), nodeIDs, add)
		}
		if g.Color != "" && !IsValidColor(g.Color) {
			add(path+".color", "invalid color %q", g.Color)
		}
	}

	for i, m := range s.Messages {
		path := fmt.Sprintf("$.messages[%d]", i)
		checkEndpoint(m.From, path+".from", nodeIDs, add)
		checkEndpoint(m.To, path+".to", nodeIDs, add)
		if m.Label == "" || len(m.Label) > MaxLabelLen {
			add(path+".label", "label must be 1-%d characters", MaxLabelLen)
		}
		if !m.Type.IsValid() {
			add(path+".type", "unknown message type %q", m.Type)
		}
		if m.Order < 0 || m.Order > MaxMessageOrder {
			add(path+".order", "order must be 0-%d (got %d)", MaxMessageOrder, m.Order)
		}
	}

	for i, r := range s.Relationships {
		path := fmt.Sprintf("$.relationships[%d]", i)
		checkEndpoint(r.Entity1, path+".entity1", nodeIDs, add)
		checkEndpoint(r.Entity2, path+".entity2", nodeIDs, add)
		if !r.Cardinality.IsValid() {
			add(path+".cardinality", "unknown cardinality %q", r.Cardinality)
		}
		if r.Participation1 != "" && !r.Participation1.IsValid() {
			add(path+".participation1", "unknown participation %q", r.Participation1)
		}
		if r.Participation2 != "" && !r.Participation2.IsValid() {
			add(path+".participation2", "unknown participation %q", r.Participation2)
		}
	}

	return issues
}

func checkNode(n *Node, path string, add func(string, string, ...interface{})) {
	if n.ID == "" || len(n.ID) > MaxIDLen {
		add(path+".id", "id must be 1-%d characters", MaxIDLen)
	}
	if n.Label == "" || len(n.Label) > MaxLabelLen {
		add(path+".label", "label must be 1-%d characters", MaxLabelLen)
	}
	if n.Type != "" && !n.Type.IsValid() {
		add(path+".type", "unknown node shape %q", n.Type)
	}
	if n.Color != "" && !IsValidColor(n.Color) {
		add(path+".color", "invalid color %q", n.Color)
	}
	if n.Position != nil {
		if n.Position.X < -MaxCoordinate || n.Position.X > MaxCoordinate {
			add(path+".position.x", "coordinate out of range [-%d,%d]", MaxCoordinate, MaxCoordinate)
		}
		if n.Position.Y < -MaxCoordinate || n.Position.Y > MaxCoordinate {
			add(path+".position.y", "coordinate out of range [-%d,%d]", MaxCoordinate, MaxCoordinate)
		}
	}
	if n.Width != nil && (*n.Width < 1 || *n.Width > MaxDimension) {
		add(path+".width", "width must be 1-%d", MaxDimension)
	}
	if n.Height != nil && (*n.Height < 1 || *n.Height > MaxDimension) {
		add(path+".height", "height must be 1-%d", MaxDimension)
	}
	if len(n.Details) > MaxDetailsLen {
		add(path+".details", "details too long: %d chars (max %d)", len(n.Details), MaxDetailsLen)
	}
	if len(n.Attributes) > MaxAttributes {
		add(path+".attributes", "too many attributes: %d (max %d)", len(n.Attributes), MaxAttributes)
	}
	if len(n.Methods) > MaxMethods {
		add(path+".methods", "too many methods: %d (max %d)", len(n.Methods), MaxMethods)
	}
}

func checkEndpoint(id, path string, nodeIDs map[string]struct{}, add func(string, string, ...interface{})) {
	if id == "" || len(id) > MaxIDLen {
		add(path, "id must be 1-%d characters", MaxIDLen)
		return
	}
	if _, ok := nodeIDs[id]; !ok {
		add(path, "references unknown node %q", id)
	}
}
