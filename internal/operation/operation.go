// Package operation implements the lowered, executable form of a
// ResourceChange: Operation.Merge folds same-kind operations within one
// scheduler epoch before Apply runs each of them against an
// internal/exec.Executor, streaming their stdout/stderr line by line.
package operation

import "fmt"

// Kind discriminates the tagged-union Operation type over the built-in
// resource kinds, mirroring internal/registry.Kind. KindGroup is the
// synthetic non-semantic node produced when Lower needs to wrap more than
// one operation under a single Tree root.
type Kind string

const (
	KindGroup     Kind = "group"
	KindApt       Kind = "apt"
	KindPacman    Kind = "pacman"
	KindFile      Kind = "file"
	KindCommand   Kind = "command"
	KindGit       Kind = "git"
	KindService   Kind = "service"
	KindExtension Kind = "extension"
)

// Operation is the kind-tagged union of every operation this registry's
// resource kinds can lower a Change into. Extension operations are applied
// by internal/registry/extpoint directly, not by this package's Apply (see
// ExtensionOp).
type Operation struct {
	Kind      Kind
	Apt       *AptOp
	Pacman    *PacmanOp
	File      *FileOp
	Command   *CommandOp
	Git       *GitOp
	Service   *ServiceOp
	Extension *ExtensionOp
}

// ExtensionOp carries an opaque JSON change payload for a non-core kind
// loaded through internal/registry/extpoint. It is opaque to Merge (passed
// through unmerged, like Command/Git/Service) and to Apply, whose default
// implementation cannot run it — the pipeline orchestrator recognizes
// KindExtension and calls the owning extpoint.Provider's Apply method
// instead of decomposing a WASM provider's changes into primitive
// exec.Executor calls.
type ExtensionOp struct {
	Module string
	Raw    []byte
}

func ExtensionApply(module string, raw []byte) Operation {
	return Operation{Kind: KindExtension, Extension: &ExtensionOp{Module: module, Raw: raw}}
}

// GroupOperation returns the synthetic no-op wrapper node value.
func GroupOperation() Operation { return Operation{Kind: KindGroup} }

// Merge folds a set of same-epoch operations: operations are partitioned by
// Kind, each partition is merged independently (e.g. many apt Install
// operations become one, carrying the union of their package lists), and
// the results are concatenated back together. Order among different kinds
// is preserved by first-occurrence; order within a kind follows each
// kind's own merge rule. An error is returned rather than silently picking
// a winner when two file-write operations target the same path with
// different content.
func Merge(ops []Operation) ([]Operation, error) {
	var aptOps, pacmanOps, fileOps, commandOps, gitOps, serviceOps, extensionOps []Operation
	order := make([]Kind, 0, 7)
	seen := make(map[Kind]bool, 7)

	for _, op := range ops {
		if op.Kind == KindGroup {
			continue
		}
		if !seen[op.Kind] {
			seen[op.Kind] = true
			order = append(order, op.Kind)
		}
		switch op.Kind {
		case KindApt:
			aptOps = append(aptOps, op)
		case KindPacman:
			pacmanOps = append(pacmanOps, op)
		case KindFile:
			fileOps = append(fileOps, op)
		case KindCommand:
			commandOps = append(commandOps, op)
		case KindGit:
			gitOps = append(gitOps, op)
		case KindService:
			serviceOps = append(serviceOps, op)
		case KindExtension:
			extensionOps = append(extensionOps, op)
		}
	}

	mergedFile, err := mergeFile(fileOps)
	if err != nil {
		return nil, err
	}

	merged := make(map[Kind][]Operation, 7)
	merged[KindApt] = mergeApt(aptOps)
	merged[KindPacman] = mergePacman(pacmanOps)
	merged[KindFile] = mergedFile
	merged[KindCommand] = commandOps
	merged[KindGit] = gitOps
	merged[KindService] = serviceOps
	merged[KindExtension] = extensionOps

	out := make([]Operation, 0, len(ops))
	for _, k := range order {
		out = append(out, merged[k]...)
	}
	return out, nil
}

// mergeConflictError reports two file-write operations targeting the same
// path with different content: rather than silently ordering or picking a
// winner, the epoch is rejected.
type mergeConflictError struct {
	path string
}

func (e *mergeConflictError) Error() string {
	return fmt.Sprintf("operation: conflicting writes to %s in the same epoch", e.path)
}
