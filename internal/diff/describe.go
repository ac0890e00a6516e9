package diff

import (
	"fmt"
	"strings"
)

// Describe renders a change-set as short human-readable changelog lines.
// Returns nil for an empty diff.
func Describe(r *Result) []string {
	if r == nil || r.Empty() {
		return nil
	}
	var lines []string

	for _, c := range r.Meta {
		lines = append(lines, fmt.Sprintf("Changed %s from %q to %q", c.Field, c.Old, c.New))
	}

	for _, n := range r.NodesAdded {
		lines = append(lines, fmt.Sprintf("Added node %q", labelOrID(n.Label, n.ID)))
	}
	for _, n := range r.NodesRemoved {
		lines = append(lines, fmt.Sprintf("Removed node %q", labelOrID(n.Label, n.ID)))
	}
	for _, c := range r.NodesChanged {
		lines = append(lines, fmt.Sprintf("Updated node %q (%s)", c.ID, fieldNames(c.Fields)))
	}

	for _, e := range r.EdgesAdded {
		lines = append(lines, fmt.Sprintf("Added edge %s → %s", e.From, e.To))
	}
	for _, e := range r.EdgesRemoved {
		lines = append(lines, fmt.Sprintf("Removed edge %s → %s", e.From, e.To))
	}
	for _, c := range r.EdgesChanged {
		lines = append(lines, fmt.Sprintf("Updated edge %s → %s (%s)", c.From, c.To, fieldNames(c.Fields)))
	}

	for _, g := range r.GroupsAdded {
		lines = append(lines, fmt.Sprintf("Added group %q", labelOrID(g.Label, g.ID)))
	}
	for _, g := range r.GroupsRemoved {
		lines = append(lines, fmt.Sprintf("Removed group %q", labelOrID(g.Label, g.ID)))
	}
	for _, c := range r.GroupsChanged {
		lines = append(lines, fmt.Sprintf("Updated group %q (%s)", c.ID, fieldNames(c.Fields)))
	}

	return lines
}

// Summary collapses a change-set into one line, e.g.
// "2 nodes added, 1 edge removed, 1 node updated".
func Summary(r *Result) string {
	if r == nil || r.Empty() {
		return "No changes"
	}
	var parts []string
	count := func(n int, noun, verb string) {
		if n == 0 {
			return
		}
		if n != 1 {
			noun += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s %s", n, noun, verb))
	}
	count(len(r.NodesAdded), "node", "added")
	count(len(r.NodesRemoved), "node", "removed")
	count(len(r.NodesChanged), "node", "updated")
	count(len(r.EdgesAdded), "edge", "added")
	count(len(r.EdgesRemoved), "edge", "removed")
	count(len(r.EdgesChanged), "edge", "updated")
	count(len(r.GroupsAdded), "group", "added")
	count(len(r.GroupsRemoved), "group", "removed")
	count(len(r.GroupsChanged), "group", "updated")
	if len(r.Meta) > 0 {
		parts = append(parts, "diagram settings changed")
	}
	return strings.Join(parts, ", ")
}

func labelOrID(label, id string) string {
	if label != "" {
		return label
	}
	return id
}

func fieldNames(fields []FieldChange) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Field
	}
	return strings.Join(names, ", ")
}
