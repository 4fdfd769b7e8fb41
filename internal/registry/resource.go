// Package registry holds the built-in ("core") resource kinds: apt, pacman,
// file, command, git, and service. Each kind is a static Go type
// implementing ResourceType — schema/expand/probe/diff/lower — registered
// once at startup, with no dynamic dispatch in the hot path. Non-core kinds
// are loaded instead through the WASM extension point in
// internal/registry/extpoint.
package registry

// Kind discriminates the tagged-union Resource/ResourceState/ResourceChange
// types over the built-in resource kinds. KindGroup marks a synthetic node
// used only to wrap multiple sibling resources/changes/operations under one
// Tree root when a ResourceParams expands to more than one atomic resource;
// it carries no payload of its own and every stage skips over it to its
// children.
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

// Resource is the atomic, kind-tagged unit expand() produces from
// ResourceParams. Extension is used by non-core kinds loaded through
// internal/registry/extpoint, which only knows its payload as JSON.
type Resource struct {
	Kind      Kind
	Apt       *AptResource
	Pacman    *PacmanResource
	File      *FileResource
	Command   *CommandResource
	Git       *GitResource
	Service   *ServiceResource
	Extension *ExtensionResource
}

// State is the observed counterpart of a Resource, produced by probe().
type State struct {
	Kind      Kind
	Apt       *AptState
	Pacman    *PacmanState
	File      *FileState
	Command   *CommandState
	Git       *GitState
	Service   *ServiceState
	Extension *ExtensionState
}

// Change is the pure diff between a desired Resource and its observed
// State; a nil Change (HasChange == false) means probe already matches
// desired.
type Change struct {
	Kind      Kind
	HasChange bool
	Apt       *AptChange
	Pacman    *PacmanChange
	File      *FileChange
	Command   *CommandChange
	Git       *GitChange
	Service   *ServiceChange
	Extension *ExtensionChange
}

// ExtensionResource carries an opaque JSON payload for a non-core kind;
// internal/registry/extpoint is the only package that interprets it.
type ExtensionResource struct {
	Module string
	Params []byte // JSON
}

// ExtensionState is the opaque JSON probe result for an ExtensionResource.
type ExtensionState struct {
	Raw []byte // JSON
}

// ExtensionChange is the opaque JSON diff result for an ExtensionResource.
type ExtensionChange struct {
	Raw []byte // JSON
}

func groupResource() Resource { return Resource{Kind: KindGroup} }
func groupChange() Change     { return Change{Kind: KindGroup} }
