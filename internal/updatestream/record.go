// Package updatestream implements the pipeline's external, newline-delimited
// JSON event protocol (section 6's "Update stream" table) and a FlatViewTree
// that replays a sequence of Records into a UI-consumable state tree,
// tolerant of leaf completions arriving out of order (section 8 invariant
// 8). Every Record.Index refers to the same FlatTree index minted by the
// ResourceParams record, per internal/tree's arena/tombstone model.
package updatestream

import "encoding/json"

// Kind discriminates the wire record types. Each stage of
// internal/pipeline's spine emits a Start record, zero or more per-node
// records, and a Complete record; because JSON gives each its own literal
// discriminator there's no ambiguity despite several stages sharing a
// logical shape ("a Start", "a per-node record", "a Complete").
type Kind string

const (
	KindResourceParams Kind = "resource_params"

	KindResourcesStart    Kind = "resources_start"
	KindResourcesNode     Kind = "resources_node"
	KindResourcesComplete Kind = "resources_complete"

	KindStatesStart        Kind = "resource_states_start"
	KindStatesNodeStart    Kind = "states_node_start"
	KindStatesNodeComplete Kind = "states_node_complete"
	KindStatesComplete     Kind = "states_complete"

	KindChangesStart    Kind = "resource_changes_start"
	KindChangesNode     Kind = "changes_node"
	KindChangesComplete Kind = "changes_complete"

	KindOperationsStart    Kind = "operations_start"
	KindOperationsNode     Kind = "operations_node"
	KindOperationsComplete Kind = "operations_complete"

	KindApplyStart    Kind = "operations_apply_start"
	KindOpStart       Kind = "op_start"
	KindStdout        Kind = "stdout"
	KindStderr        Kind = "stderr"
	KindOpComplete    Kind = "op_complete"
	KindApplyComplete Kind = "apply_complete"

	KindError Kind = "error"
)

// Record is the single wire type every event marshals to: a Kind
// discriminator plus the union of every field any stage's payload needs.
// Unused fields are omitted from the JSON via omitempty, so a given record
// on the wire only carries the keys its Kind actually uses.
type Record struct {
	Kind Kind `json:"type"`

	// Index addresses a node in the FlatTree minted by the ResourceParams
	// record; set on every per-node record.
	Index *int `json:"index,omitempty"`

	// Tree carries a serialized WireNode subtree: the full PlanTree for
	// ResourceParams, or the expansion replacing one leaf for
	// ResourcesNode.
	Tree json.RawMessage `json:"tree,omitempty"`

	// State/Change/Ops carry one node's probe/diff/lower payload.
	State  json.RawMessage `json:"state,omitempty"`
	Change json.RawMessage `json:"change,omitempty"`
	Ops    json.RawMessage `json:"ops,omitempty"`

	// HasChanges is set on a ChangesComplete record: the root's has-change
	// after HasChange is bubbled up branches by OR. ChangesNode records
	// leave it unset; their Change payload carries the node's own HasChange.
	HasChanges *bool `json:"has_changes,omitempty"`

	// Line carries one streamed stdout/stderr line for an in-flight
	// operation.
	Line string `json:"line,omitempty"`

	// Status carries an operation's terminal exit code.
	Status *int `json:"status,omitempty"`

	// Stage/Message/Span describe a terminal Error record.
	Stage   string          `json:"stage,omitempty"`
	Message string          `json:"message,omitempty"`
	Span    json.RawMessage `json:"span,omitempty"`
}

func intPtr(i int) *int    { return &i }
func boolPtr(b bool) *bool { return &b }

func ResourceParams(tree json.RawMessage) Record {
	return Record{Kind: KindResourceParams, Tree: tree}
}

func ResourcesStart() Record    { return Record{Kind: KindResourcesStart} }
func ResourcesComplete() Record { return Record{Kind: KindResourcesComplete} }
func ResourcesNode(index int, tree json.RawMessage) Record {
	return Record{Kind: KindResourcesNode, Index: intPtr(index), Tree: tree}
}

func StatesStart() Record    { return Record{Kind: KindStatesStart} }
func StatesComplete() Record { return Record{Kind: KindStatesComplete} }
func StatesNodeStart(index int) Record {
	return Record{Kind: KindStatesNodeStart, Index: intPtr(index)}
}
func StatesNodeComplete(index int, state json.RawMessage) Record {
	return Record{Kind: KindStatesNodeComplete, Index: intPtr(index), State: state}
}

func ChangesStart() Record { return Record{Kind: KindChangesStart} }
func ChangesComplete(hasChanges bool) Record {
	return Record{Kind: KindChangesComplete, HasChanges: boolPtr(hasChanges)}
}
func ChangesNode(index int, change json.RawMessage) Record {
	return Record{Kind: KindChangesNode, Index: intPtr(index), Change: change}
}

func OperationsStart() Record    { return Record{Kind: KindOperationsStart} }
func OperationsComplete() Record { return Record{Kind: KindOperationsComplete} }
func OperationsNode(index int, ops json.RawMessage) Record {
	return Record{Kind: KindOperationsNode, Index: intPtr(index), Ops: ops}
}

func ApplyStart() Record    { return Record{Kind: KindApplyStart} }
func ApplyComplete() Record { return Record{Kind: KindApplyComplete} }
func OpStart(index int) Record {
	return Record{Kind: KindOpStart, Index: intPtr(index)}
}
func Stdout(index int, line string) Record {
	return Record{Kind: KindStdout, Index: intPtr(index), Line: line}
}
func Stderr(index int, line string) Record {
	return Record{Kind: KindStderr, Index: intPtr(index), Line: line}
}
func OpComplete(index, status int) Record {
	return Record{Kind: KindOpComplete, Index: intPtr(index), Status: intPtr(status)}
}

func Error(stage, message string, span json.RawMessage) Record {
	return Record{Kind: KindError, Stage: stage, Message: message, Span: span}
}
