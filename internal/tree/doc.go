// Package tree implements the two tree representations that the pipeline
// passes between stages: Tree, a recursive branch/leaf structure used while
// planning, and FlatTree, an arena of stable-indexed slots used once a tree
// crosses the streaming boundary and its nodes must be addressable by index
// across a sequence of incremental updates.
package tree
