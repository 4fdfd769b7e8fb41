package tree

import "fmt"

// FlatNode is one arena slot of a FlatTree: a node's value, its causality
// metadata, and (for branches) the indices of its children.
type FlatNode[T any] struct {
	Value    T
	Meta     *CausalityMeta
	Children []int
	IsLeaf   bool
}

// FlatTree is the arena-indexed counterpart of Tree: a slice of optional
// slots, root always at index 0, children addressed by index rather than by
// pointer. Descendant slots are never reused — "replacing" a subtree keeps
// its root slot, tombstones its old descendants (sets them to nil) and
// appends fresh slots for the new ones.
type FlatTree[T any] struct {
	slots []*FlatNode[T]
}

// RootIndex is always 0 by construction.
func (ft *FlatTree[T]) RootIndex() int { return 0 }

// Len returns the number of slots ever allocated, including tombstoned ones.
func (ft *FlatTree[T]) Len() int { return len(ft.slots) }

// IsEmpty reports whether the tree has never had a root appended.
func (ft *FlatTree[T]) IsEmpty() bool { return len(ft.slots) == 0 }

var (
	ErrIndexOutOfBounds = fmt.Errorf("flattree: index out of bounds")
	ErrNodeMissing      = fmt.Errorf("flattree: node missing (tombstoned)")
)

// Get returns the slot at i, or an error if i is out of bounds or the slot
// has been tombstoned.
func (ft *FlatTree[T]) Get(i int) (*FlatNode[T], error) {
	if i < 0 || i >= len(ft.slots) {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfBounds, i)
	}
	n := ft.slots[i]
	if n == nil {
		return nil, fmt.Errorf("%w: %d", ErrNodeMissing, i)
	}
	return n, nil
}

// Root returns the slot at the root index, if present.
func (ft *FlatTree[T]) Root() (*FlatNode[T], error) {
	if ft.IsEmpty() {
		return nil, fmt.Errorf("flattree: empty tree")
	}
	return ft.Get(ft.RootIndex())
}

// Flatten converts a recursive Tree into a FlatTree, mapping branch and leaf
// payloads into the single arena value type T. The root is always assigned
// index 0; children are appended in pre-order (a node's own slot is
// reserved before its children are appended, matching the order produced by
// the original append_tree_nodes algorithm).
func Flatten[Branch, Leaf, T any](root *Node[Branch, Leaf], mapBranch func(Branch) T, mapLeaf func(Leaf) T) *FlatTree[T] {
	ft := &FlatTree[T]{}
	if root == nil {
		return ft
	}
	appendTreeNode(ft, root, mapBranch, mapLeaf)
	return ft
}

func appendTreeNode[Branch, Leaf, T any](ft *FlatTree[T], n *Node[Branch, Leaf], mapBranch func(Branch) T, mapLeaf func(Leaf) T) int {
	idx := len(ft.slots)
	ft.slots = append(ft.slots, nil) // reserve this node's slot before recursing into children

	if n.Kind == KindLeaf {
		ft.slots[idx] = &FlatNode[T]{Value: mapLeaf(n.Leaf), Meta: n.Meta, IsLeaf: true}
		return idx
	}

	childIndices := make([]int, 0, len(n.Children))
	for _, c := range n.Children {
		childIndices = append(childIndices, appendTreeNode(ft, c, mapBranch, mapLeaf))
	}
	ft.slots[idx] = &FlatNode[T]{Value: mapBranch(n.Branch), Meta: n.Meta, Children: childIndices, IsLeaf: false}
	return idx
}

// ReplaceSubtree appends newRoot's descendants as fresh slots, reuses slot i
// for newRoot itself, and tombstones every slot that was reachable from i's
// old children. Passing a nil newRoot simply tombstones i and its
// descendants (a pruned subtree). Returns an error if i is out of bounds.
func ReplaceSubtree[Branch, Leaf, T any](ft *FlatTree[T], i int, newRoot *Node[Branch, Leaf], mapBranch func(Branch) T, mapLeaf func(Leaf) T) error {
	if i < 0 || i >= len(ft.slots) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfBounds, i)
	}

	old := ft.slots[i]
	if old != nil {
		tombstoneChildren(ft, old)
	}

	if newRoot == nil {
		ft.slots[i] = nil
		return nil
	}

	if newRoot.Kind == KindLeaf {
		ft.slots[i] = &FlatNode[T]{Value: mapLeaf(newRoot.Leaf), Meta: newRoot.Meta, IsLeaf: true}
		return nil
	}

	childIndices := make([]int, 0, len(newRoot.Children))
	for _, c := range newRoot.Children {
		childIndices = append(childIndices, appendTreeNode(ft, c, mapBranch, mapLeaf))
	}
	ft.slots[i] = &FlatNode[T]{Value: mapBranch(newRoot.Branch), Meta: newRoot.Meta, Children: childIndices, IsLeaf: false}
	return nil
}

// tombstoneChildren recursively sets every descendant of n (not n itself)
// to nil, skipping already-tombstoned or out-of-range slots.
func tombstoneChildren[T any](ft *FlatTree[T], n *FlatNode[T]) {
	for _, ci := range n.Children {
		if ci < 0 || ci >= len(ft.slots) {
			continue
		}
		child := ft.slots[ci]
		if child == nil {
			continue
		}
		tombstoneChildren(ft, child)
		ft.slots[ci] = nil
	}
}

// DepthFirstSearch walks present (non-tombstoned) slots post-order,
// tolerating gaps left by pruned or replaced subtrees.
func (ft *FlatTree[T]) DepthFirstSearch(visit func(index int, node *FlatNode[T])) {
	if ft.IsEmpty() {
		return
	}
	ft.dfs(ft.RootIndex(), visit)
}

func (ft *FlatTree[T]) dfs(i int, visit func(index int, node *FlatNode[T])) {
	if i < 0 || i >= len(ft.slots) {
		return
	}
	n := ft.slots[i]
	if n == nil {
		return
	}
	for _, ci := range n.Children {
		ft.dfs(ci, visit)
	}
	visit(i, n)
}

// Reconstruct builds a lenient Tree from a FlatTree, skipping tombstoned
// children and defaulting to an empty branch if the root itself is missing.
// toBranch/toLeaf invert the mapping functions used by Flatten.
func Reconstruct[Branch, Leaf, T any](ft *FlatTree[T], toBranch func(T) Branch, toLeaf func(T) Leaf) *Node[Branch, Leaf] {
	if ft.IsEmpty() {
		var zero Branch
		return &Node[Branch, Leaf]{Kind: KindBranch, Branch: zero}
	}
	node, ok := buildNode(ft, ft.RootIndex(), toBranch, toLeaf)
	if !ok {
		var zero Branch
		return &Node[Branch, Leaf]{Kind: KindBranch, Branch: zero}
	}
	return node
}

func buildNode[Branch, Leaf, T any](ft *FlatTree[T], i int, toBranch func(T) Branch, toLeaf func(T) Leaf) (*Node[Branch, Leaf], bool) {
	if i < 0 || i >= len(ft.slots) {
		return nil, false
	}
	slot := ft.slots[i]
	if slot == nil {
		return nil, false
	}
	if slot.IsLeaf {
		return &Node[Branch, Leaf]{Kind: KindLeaf, Meta: slot.Meta, Leaf: toLeaf(slot.Value)}, true
	}
	children := make([]*Node[Branch, Leaf], 0, len(slot.Children))
	for _, ci := range slot.Children {
		if c, ok := buildNode[Branch, Leaf](ft, ci, toBranch, toLeaf); ok {
			children = append(children, c)
		}
	}
	return &Node[Branch, Leaf]{Kind: KindBranch, Meta: slot.Meta, Branch: toBranch(slot.Value), Children: children}, true
}
