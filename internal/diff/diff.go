// Package diff computes semantic change-sets between two diagram specs.
//
// Identity: nodes and groups by id, edges by the from→to pair. The diff is a
// pure function of its inputs and is deterministic: added/removed/changed
// slices come out in the order the elements appear in the newer spec (removed
// in the order of the older spec). Used for timeline rendering and for the
// changelog text produced by Describe.
package diff

import (
	"fmt"
	"strings"

	"github.com/draftboard/draftboard/internal/spec"
)

// FieldChange is one field-level delta on a changed element.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// NodeChange is a changed node with its field deltas.
type NodeChange struct {
	ID     string        `json:"id"`
	Fields []FieldChange `json:"fields"`
}

// EdgeChange is a changed edge, identified by endpoints.
type EdgeChange struct {
	From   string        `json:"from"`
	To     string        `json:"to"`
	Fields []FieldChange `json:"fields"`
}

// GroupChange is a changed group with its field deltas.
type GroupChange struct {
	ID     string        `json:"id"`
	Fields []FieldChange `json:"fields"`
}

// Result is the full change-set between two specs.
type Result struct {
	Meta []FieldChange `json:"meta,omitempty"`

	NodesAdded   []spec.Node  `json:"nodesAdded,omitempty"`
	NodesRemoved []spec.Node  `json:"nodesRemoved,omitempty"`
	NodesChanged []NodeChange `json:"nodesChanged,omitempty"`

	EdgesAdded   []spec.Edge  `json:"edgesAdded,omitempty"`
	EdgesRemoved []spec.Edge  `json:"edgesRemoved,omitempty"`
	EdgesChanged []EdgeChange `json:"edgesChanged,omitempty"`

	GroupsAdded   []spec.Group  `json:"groupsAdded,omitempty"`
	GroupsRemoved []spec.Group  `json:"groupsRemoved,omitempty"`
	GroupsChanged []GroupChange `json:"groupsChanged,omitempty"`
}

// Empty reports whether the two specs are semantically identical.
func (r *Result) Empty() bool {
	return len(r.Meta) == 0 &&
		len(r.NodesAdded) == 0 && len(r.NodesRemoved) == 0 && len(r.NodesChanged) == 0 &&
		len(r.EdgesAdded) == 0 && len(r.EdgesRemoved) == 0 && len(r.EdgesChanged) == 0 &&
		len(r.GroupsAdded) == 0 && len(r.GroupsRemoved) == 0 && len(r.GroupsChanged) == 0
}

// Compute diffs old against new. A nil spec is treated as empty, so diffing
// against nil yields everything as added (or removed).
func Compute(oldSpec, newSpec *spec.DiagramSpec) *Result {
	if oldSpec == nil {
		oldSpec = &spec.DiagramSpec{}
	}
	if newSpec == nil {
		newSpec = &spec.DiagramSpec{}
	}

	r := &Result{}
	r.Meta = diffMeta(oldSpec, newSpec)
	diffNodes(r, oldSpec.Nodes, newSpec.Nodes)
	diffEdges(r, oldSpec.Edges, newSpec.Edges)
	diffGroups(r, oldSpec.Groups, newSpec.Groups)
	return r
}

func diffMeta(oldSpec, newSpec *spec.DiagramSpec) []FieldChange {
	var changes []FieldChange
	if oldSpec.Type != newSpec.Type {
		changes = append(changes, FieldChange{Field: "type", Old: string(oldSpec.Type), New: string(newSpec.Type)})
	}
	if oldSpec.Theme != newSpec.Theme {
		changes = append(changes, FieldChange{Field: "theme", Old: string(oldSpec.Theme), New: string(newSpec.Theme)})
	}
	return changes
}

func diffNodes(r *Result, oldNodes, newNodes []spec.Node) {
	oldByID := make(map[string]spec.Node, len(oldNodes))
	for _, n := range oldNodes {
		oldByID[n.ID] = n
	}
	newIDs := make(map[string]struct{}, len(newNodes))

	for _, n := range newNodes {
		newIDs[n.ID] = struct{}{}
		prev, ok := oldByID[n.ID]
		if !ok {
			r.NodesAdded = append(r.NodesAdded, n)
			continue
		}
		if fields := diffNodeFields(prev, n); len(fields) > 0 {
			r.NodesChanged = append(r.NodesChanged, NodeChange{ID: n.ID, Fields: fields})
		}
	}
	for _, n := range oldNodes {
		if _, ok := newIDs[n.ID]; !ok {
			r.NodesRemoved = append(r.NodesRemoved, n)
		}
	}
}

func diffNodeFields(a, b spec.Node) []FieldChange {
	var fields []FieldChange
	add := func(name, oldVal, newVal string) {
		if oldVal != newVal {
			fields = append(fields, FieldChange{Field: name, Old: oldVal, New: newVal})
		}
	}
	add("label", a.Label, b.Label)
	add("type", string(a.Type), string(b.Type))
	add("color", a.Color, b.Color)
	add("details", a.Details, b.Details)
	add("position", formatPosition(a.Position), formatPosition(b.Position))
	add("size", formatSize(a.Width, a.Height), formatSize(b.Width, b.Height))
	return fields
}

func formatPosition(p *spec.Position) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("(%g, %g)", p.X, p.Y)
}

func formatSize(w, h *float64) string {
	if w == nil && h == nil {
		return ""
	}
	dim := func(v *float64) string {
		if v == nil {
			return "auto"
		}
		return fmt.Sprintf("%g", *v)
	}
	return dim(w) + "x" + dim(h)
}

// edgeKey identifies an edge by its endpoints.
type edgeKey struct {
	from, to string
}

func diffEdges(r *Result, oldEdges, newEdges []spec.Edge) {
	oldByKey := make(map[edgeKey]spec.Edge, len(oldEdges))
	for _, e := range oldEdges {
		oldByKey[edgeKey{e.From, e.To}] = e
	}
	newKeys := make(map[edgeKey]struct{}, len(newEdges))

	for _, e := range newEdges {
		k := edgeKey{e.From, e.To}
		newKeys[k] = struct{}{}
		prev, ok := oldByKey[k]
		if !ok {
			r.EdgesAdded = append(r.EdgesAdded, e)
			continue
		}
		if fields := diffEdgeFields(prev, e); len(fields) > 0 {
			r.EdgesChanged = append(r.EdgesChanged, EdgeChange{From: e.From, To: e.To, Fields: fields})
		}
	}
	for _, e := range oldEdges {
		if _, ok := newKeys[edgeKey{e.From, e.To}]; !ok {
			r.EdgesRemoved = append(r.EdgesRemoved, e)
		}
	}
}

func diffEdgeFields(a, b spec.Edge) []FieldChange {
	var fields []FieldChange
	add := func(name, oldVal, newVal string) {
		if oldVal != newVal {
			fields = append(fields, FieldChange{Field: name, Old: oldVal, New: newVal})
		}
	}
	add("label", a.Label, b.Label)
	add("style", string(a.Style), string(b.Style))
	add("color", a.Color, b.Color)
	return fields
}

func diffGroups(r *Result, oldGroups, newGroups []spec.Group) {
	oldByID := make(map[string]spec.Group, len(oldGroups))
	for _, g := range oldGroups {
		oldByID[g.ID] = g
	}
	newIDs := make(map[string]struct{}, len(newGroups))

	for _, g := range newGroups {
		newIDs[g.ID] = struct{}{}
		prev, ok := oldByID[g.ID]
		if !ok {
			r.GroupsAdded = append(r.GroupsAdded, g)
			continue
		}
		if fields := diffGroupFields(prev, g); len(fields) > 0 {
			r.GroupsChanged = append(r.GroupsChanged, GroupChange{ID: g.ID, Fields: fields})
		}
	}
	for _, g := range oldGroups {
		if _, ok := newIDs[g.ID]; !ok {
			r.GroupsRemoved = append(r.GroupsRemoved, g)
		}
	}
}

func diffGroupFields(a, b spec.Group) []FieldChange {
	var fields []FieldChange
	add := func(name, oldVal, newVal string) {
		if oldVal != newVal {
			fields = append(fields, FieldChange{Field: name, Old: oldVal, New: newVal})
		}
	}
	add("label", a.Label, b.Label)
	add("nodeIds", joinIDs(a.NodeIDs), joinIDs(b.NodeIDs))
	add("color", a.Color, b.Color)
	return fields
}

func joinIDs(ids []string) string {
	return strings.Join(ids, ",")
}
