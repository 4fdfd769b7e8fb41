// Package causality computes dependency epochs from per-node (id, before,
// after) annotations: a topological layering via Kahn's algorithm where each
// layer ("epoch") is a maximal set of nodes that may run concurrently given
// every preceding epoch has already completed.
package causality
