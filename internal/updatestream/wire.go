package updatestream

import "encoding/json"

// WireCausalityMeta is the JSON projection of tree.CausalityMeta.
type WireCausalityMeta struct {
	ID     string   `json:"id,omitempty"`
	Before []string `json:"before,omitempty"`
	After  []string `json:"after,omitempty"`
}

// WireNode is the JSON-serializable projection of a tree.Node[Branch,Leaf]:
// branch and leaf payloads are opaque json.RawMessage, since the update
// stream crosses the process boundary to the CLI/UI layer, which has no Go
// type for internal/planlang.ResourceParams or internal/registry.Resource.
type WireNode struct {
	IsLeaf   bool               `json:"is_leaf"`
	Meta     *WireCausalityMeta `json:"meta,omitempty"`
	Value    json.RawMessage    `json:"value"`
	Children []*WireNode        `json:"children,omitempty"`
}
