// Package spec defines the diagram document model and its validation rules.
//
// A DiagramSpec is the JSON tree stored for every diagram. Writes go through
// strict validation (Parse); reads of legacy rows go through lenient
// validation (ParseLenient) so that rows persisted under older rules remain
// readable.
package spec

import "encoding/json"

// DiagramType identifies the kind of diagram a spec describes.
type DiagramType string

const (
	TypeFlowchart    DiagramType = "flowchart"
	TypeArchitecture DiagramType = "architecture"
	TypeSequence     DiagramType = "sequence"
	TypeER           DiagramType = "er"
	TypeState        DiagramType = "state"
	TypeClass        DiagramType = "class"
	TypeMindmap      DiagramType = "mindmap"
	TypeNetwork      DiagramType = "network"
	TypeFreeform     DiagramType = "freeform"
)

// IsValid reports whether t is a known diagram type.
func (t DiagramType) IsValid() bool {
	switch t {
	case TypeFlowchart, TypeArchitecture, TypeSequence, TypeER,
		TypeState, TypeClass, TypeMindmap, TypeNetwork, TypeFreeform:
		return true
	}
	return false
}

// DiagramTypes lists every valid diagram type, for enum validation at
// query boundaries.
func DiagramTypes() []DiagramType {
	return []DiagramType{
		TypeFlowchart, TypeArchitecture, TypeSequence, TypeER,
		TypeState, TypeClass, TypeMindmap, TypeNetwork, TypeFreeform,
	}
}

// Theme is a rendering theme hint carried in the spec.
type Theme string

const (
	ThemeDark         Theme = "dark"
	ThemeLight        Theme = "light"
	ThemeProfessional Theme = "professional"
)

// IsValid reports whether t is a known theme.
func (t Theme) IsValid() bool {
	switch t {
	case ThemeDark, ThemeLight, ThemeProfessional:
		return true
	}
	return false
}

// NodeShape is the visual shape of a node.
type NodeShape string

const (
	ShapeRectangle     NodeShape = "rectangle"
	ShapeRounded       NodeShape = "rounded"
	ShapeCircle        NodeShape = "circle"
	ShapeEllipse       NodeShape = "ellipse"
	ShapeDiamond       NodeShape = "diamond"
	ShapeHexagon       NodeShape = "hexagon"
	ShapeParallelogram NodeShape = "parallelogram"
	ShapeCylinder      NodeShape = "cylinder"
	ShapeCloud         NodeShape = "cloud"
	ShapeActor         NodeShape = "actor"
	ShapeDatabase      NodeShape = "database"
	ShapeQueue         NodeShape = "queue"
	ShapeComponent     NodeShape = "component"
	ShapeEntity        NodeShape = "entity"
	ShapeNote          NodeShape = "note"
	ShapeStart         NodeShape = "start"
	ShapeEnd           NodeShape = "end"
	ShapeProcess       NodeShape = "process"
	ShapeDecision      NodeShape = "decision"
)

// IsValid reports whether s is a known node shape.
func (s NodeShape) IsValid() bool {
	switch s {
	case ShapeRectangle, ShapeRounded, ShapeCircle, ShapeEllipse,
		ShapeDiamond, ShapeHexagon, ShapeParallelogram, ShapeCylinder,
		ShapeCloud, ShapeActor, ShapeDatabase, ShapeQueue, ShapeComponent,
		ShapeEntity, ShapeNote, ShapeStart, ShapeEnd, ShapeProcess,
		ShapeDecision:
		return true
	}
	return false
}

// EdgeStyle is the stroke style of an edge.
type EdgeStyle string

const (
	EdgeSolid  EdgeStyle = "solid"
	EdgeDashed EdgeStyle = "dashed"
	EdgeDotted EdgeStyle = "dotted"
)

// IsValid reports whether s is a known edge style.
func (s EdgeStyle) IsValid() bool {
	switch s {
	case EdgeSolid, EdgeDashed, EdgeDotted:
		return true
	}
	return false
}

// MessageType classifies a sequence-diagram message.
type MessageType string

const (
	MessageSync    MessageType = "sync"
	MessageAsync   MessageType = "async"
	MessageReturn  MessageType = "return"
	MessageCreate  MessageType = "create"
	MessageDestroy MessageType = "destroy"
)

// IsValid reports whether t is a known message type.
func (t MessageType) IsValid() bool {
	switch t {
	case MessageSync, MessageAsync, MessageReturn, MessageCreate, MessageDestroy:
		return true
	}
	return false
}

// Cardinality is the cardinality of an ER relationship.
type Cardinality string

const (
	CardinalityOneToOne   Cardinality = "1:1"
	CardinalityOneToMany  Cardinality = "1:N"
	CardinalityManyToOne  Cardinality = "N:1"
	CardinalityManyToMany Cardinality = "N:M"
)

// IsValid reports whether c is a known cardinality.
func (c Cardinality) IsValid() bool {
	switch c {
	case CardinalityOneToOne, CardinalityOneToMany, CardinalityManyToOne, CardinalityManyToMany:
		return true
	}
	return false
}

// Participation qualifies one side of an ER relationship.
type Participation string

const (
	ParticipationTotal   Participation = "total"
	ParticipationPartial Participation = "partial"
)

// IsValid reports whether p is a known participation.
func (p Participation) IsValid() bool {
	return p == ParticipationTotal || p == ParticipationPartial
}

// Position is a node anchor point on the canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a single diagram element.
type Node struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	Type       NodeShape `json:"type,omitempty"`
	Color      string    `json:"color,omitempty"`
	Position   *Position `json:"position,omitempty"`
	Width      *float64  `json:"width,omitempty"`
	Height     *float64  `json:"height,omitempty"`
	Details    string    `json:"details,omitempty"`
	Stereotype string    `json:"stereotype,omitempty"`
	Attributes []string  `json:"attributes,omitempty"`
	Methods    []string  `json:"methods,omitempty"`
	Swimlane   string    `json:"swimlane,omitempty"`
}

// Edge connects two nodes.
type Edge struct {
	ID    string    `json:"id,omitempty"`
	From  string    `json:"from"`
	To    string    `json:"to"`
	Label string    `json:"label,omitempty"`
	Style EdgeStyle `json:"style,omitempty"`
	Color string    `json:"color,omitempty"`
}

// Group is a named cluster of nodes.
type Group struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	NodeIDs []string `json:"nodeIds"`
	Color   string   `json:"color,omitempty"`
}

// SequenceMessage is one arrow in a sequence diagram.
type SequenceMessage struct {
	From  string      `json:"from"`
	To    string      `json:"to"`
	Label string      `json:"label"`
	Type  MessageType `json:"type"`
	Order int         `json:"order"`
}

// ERRelationship links two entities in an ER diagram.
type ERRelationship struct {
	Entity1        string        `json:"entity1"`
	Entity2        string        `json:"entity2"`
	Cardinality    Cardinality   `json:"cardinality"`
	Participation1 Participation `json:"participation1,omitempty"`
	Participation2 Participation `json:"participation2,omitempty"`
}

// DiagramSpec is the full validated document for one diagram.
//
// Valid is false only for lenient parses of legacy rows that no longer pass
// strict validation; Issues then carries the problems found. Both fields are
// runtime observability and never serialized back into storage.
type DiagramSpec struct {
	Type          DiagramType       `json:"type"`
	Theme         Theme             `json:"theme,omitempty"`
	Nodes         []Node            `json:"nodes"`
	Edges         []Edge            `json:"edges"`
	Groups        []Group           `json:"groups,omitempty"`
	Messages      []SequenceMessage `json:"messages,omitempty"`
	Relationships []ERRelationship  `json:"relationships,omitempty"`

	Valid  bool    `json:"-"`
	Issues []Issue `json:"-"`
}

// Issue is one path-qualified validation problem.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Marshal serializes the spec to its canonical JSON form.
func (s *DiagramSpec) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// NodeIDSet returns the set of node ids in the spec, used for
// referential-integrity checks.
func (s *DiagramSpec) NodeIDSet() map[string]struct{} {
	ids := make(map[string]struct{}, len(s.Nodes))
	for _, n := range s.Nodes {
		ids[n.ID] = struct{}{}
	}
	return ids
}
