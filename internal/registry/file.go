package registry

import (
	"bytes"
	"context"
	"os"

	"github.com/driftless/driftless/internal/exec"
	"github.com/driftless/driftless/internal/operation"
	"github.com/driftless/driftless/internal/paramschema"
	"github.com/driftless/driftless/internal/span"
	"github.com/driftless/driftless/internal/tree"
)

// FileResourceKind discriminates the atomic resources @core/file can
// expand into: the main file/directory presence resource, and the
// permission sub-resources (mode/owner/group) that apply once it exists.
type FileResourceKind string

const (
	FileResSource           FileResourceKind = "source"
	FileResFilePresent      FileResourceKind = "file-present"
	FileResFileAbsent       FileResourceKind = "file-absent"
	FileResDirectoryPresent FileResourceKind = "directory-present"
	FileResDirectoryAbsent  FileResourceKind = "directory-absent"
	FileResMode             FileResourceKind = "mode"
	FileResUser             FileResourceKind = "user"
	FileResGroup            FileResourceKind = "group"
)

// FileResource is one atomic file-system assertion.
type FileResource struct {
	ResKind    FileResourceKind
	Path       string
	SourcePath string // FileResSource only: absolute host path to copy from
	Mode       uint32 // FileResMode only
	Owner      string // FileResUser only
	Group      string // FileResGroup only
}

// FileProbeResult is the observed condition for one FileResource.
type FileProbeResult string

const (
	FileProbeSourced          FileProbeResult = "sourced"
	FileProbeNotSourced       FileProbeResult = "not-sourced"
	FileProbePresent          FileProbeResult = "present"
	FileProbeAbsent           FileProbeResult = "absent"
	FileProbeDirectoryPresent FileProbeResult = "directory-present"
	FileProbeDirectoryAbsent  FileProbeResult = "directory-absent"
	FileProbeModeCorrect      FileProbeResult = "mode-correct"
	FileProbeModeIncorrect    FileProbeResult = "mode-incorrect"
	FileProbeOwnerCorrect     FileProbeResult = "owner-correct"
	FileProbeOwnerIncorrect   FileProbeResult = "owner-incorrect"
)

// FileState wraps the probe outcome for one FileResource.
type FileState struct {
	Probe FileProbeResult
}

// FileChange is the pure diff result for one FileResource.
type FileChange struct {
	ResKind    FileResourceKind
	Path       string
	SourcePath string
	Mode       uint32
	Owner      string
	Group      string
}

// File is the @core/file resource kind: assert a file (optionally sourced
// from a host-local template), an absent file, a directory, or an absent
// directory, with optional mode/owner/group. Grounded on
// original_source/resource/src/resources/file.rs.
//
// The original discriminates its five param shapes with a serde "type"
// literal tag; this schema algebra only discriminates unions structurally
// by best-fit over field keys (section 4.3), so each case instead carries
// its own uniquely-named required path field ("source"+"file", "file",
// "file_absent", "directory", "directory_absent") — unknown-field
// rejection during validation resolves what would otherwise be an
// ambiguous match between the file and directory cases.
type File struct{}

var _ ResourceType = (*File)(nil)

func (File) Module() string { return "@core/file" }

func (File) Schema() span.Spanned[paramschema.ParamType] {
	perms := func(pathField string) []paramschema.Field {
		return []paramschema.Field{
			{Name: pathField, Type: paramschema.TargetPath()},
			{Name: "mode", Type: paramschema.Int(), Optional: true},
			{Name: "user", Type: paramschema.String(), Optional: true},
			{Name: "group", Type: paramschema.String(), Optional: true},
		}
	}

	pt := paramschema.Union(
		append([]paramschema.Field{{Name: "source", Type: paramschema.HostPath()}}, perms("file")...),
		perms("file"),
		[]paramschema.Field{{Name: "file_absent", Type: paramschema.TargetPath()}},
		perms("directory"),
		[]paramschema.Field{{Name: "directory_absent", Type: paramschema.TargetPath()}},
	)
	return span.New(pt, span.Span{})
}

func (File) Expand(params paramschema.Value) (*tree.Node[Resource, Resource], error) {
	if path, ok := optionalStringField(params, "file_absent"); ok {
		return leafResource(KindFile, tree.CausalityMeta{}, fileResourceValue(FileResFileAbsent, path)), nil
	}
	if path, ok := optionalStringField(params, "directory_absent"); ok {
		return leafResource(KindFile, tree.CausalityMeta{}, fileResourceValue(FileResDirectoryAbsent, path)), nil
	}

	if source, ok := optionalStringField(params, "source"); ok {
		path := stringField(params, "file")
		main := Resource{Kind: KindFile, File: &FileResource{ResKind: FileResSource, Path: path, SourcePath: source}}
		return expandWithPermissions(params, "file", "source-file", main), nil
	}

	if path, ok := optionalStringField(params, "file"); ok {
		main := Resource{Kind: KindFile, File: &FileResource{ResKind: FileResFilePresent, Path: path}}
		return expandWithPermissions(params, "file", "file", main), nil
	}

	path := stringField(params, "directory")
	main := Resource{Kind: KindFile, File: &FileResource{ResKind: FileResDirectoryPresent, Path: path}}
	return expandWithPermissions(params, "directory", "directory", main), nil
}

func expandWithPermissions(params paramschema.Value, pathField, rootID string, main Resource) *tree.Node[Resource, Resource] {
	path := main.File.Path
	nodes := []*tree.Node[Resource, Resource]{leafResource(KindFile, tree.CausalityMeta{ID: rootID}, main)}

	if mode, ok := optionalIntField(params, "mode"); ok {
		r := Resource{Kind: KindFile, File: &FileResource{ResKind: FileResMode, Path: path, Mode: uint32(mode)}}
		nodes = append(nodes, leafResource(KindFile, tree.CausalityMeta{After: []string{rootID}}, r))
	}
	if user, ok := optionalStringField(params, "user"); ok {
		r := Resource{Kind: KindFile, File: &FileResource{ResKind: FileResUser, Path: path, Owner: user}}
		nodes = append(nodes, leafResource(KindFile, tree.CausalityMeta{After: []string{rootID}}, r))
	}
	if group, ok := optionalStringField(params, "group"); ok {
		r := Resource{Kind: KindFile, File: &FileResource{ResKind: FileResGroup, Path: path, Group: group}}
		nodes = append(nodes, leafResource(KindFile, tree.CausalityMeta{After: []string{rootID}}, r))
	}
	return groupResources(nodes...)
}

func fileResourceValue(kind FileResourceKind, path string) Resource {
	return Resource{Kind: KindFile, File: &FileResource{ResKind: kind, Path: path}}
}

func (File) Probe(ctx context.Context, ex exec.Executor, resource Resource) (State, error) {
	fr := resource.File
	switch fr.ResKind {
	case FileResSource:
		info, err := ex.Stat(ctx, fr.Path)
		if err != nil {
			return State{}, err
		}
		if !info.Exists {
			return fileState(FileProbeNotSourced), nil
		}
		sourceContents, err := os.ReadFile(fr.SourcePath)
		if err != nil {
			return State{}, err
		}
		pathContents, err := ex.ReadFile(ctx, fr.Path)
		if err != nil {
			return State{}, err
		}
		if bytes.Equal(sourceContents, pathContents) {
			return fileState(FileProbeSourced), nil
		}
		return fileState(FileProbeNotSourced), nil

	case FileResFilePresent:
		info, err := ex.Stat(ctx, fr.Path)
		if err != nil {
			return State{}, err
		}
		if info.Exists {
			return fileState(FileProbePresent), nil
		}
		return fileState(FileProbeAbsent), nil

	case FileResFileAbsent:
		info, err := ex.Stat(ctx, fr.Path)
		if err != nil {
			return State{}, err
		}
		if info.Exists {
			return fileState(FileProbePresent), nil
		}
		return fileState(FileProbeAbsent), nil

	case FileResDirectoryPresent, FileResDirectoryAbsent:
		info, err := ex.Stat(ctx, fr.Path)
		if err != nil {
			return State{}, err
		}
		if info.Exists {
			return fileState(FileProbeDirectoryPresent), nil
		}
		return fileState(FileProbeDirectoryAbsent), nil

	case FileResMode:
		info, err := ex.Stat(ctx, fr.Path)
		if err != nil {
			return State{}, err
		}
		if info.Exists && info.Mode == fr.Mode {
			return fileState(FileProbeModeCorrect), nil
		}
		return fileState(FileProbeModeIncorrect), nil

	case FileResUser:
		info, err := ex.Stat(ctx, fr.Path)
		if err != nil {
			return State{}, err
		}
		if info.Exists && info.Owner == fr.Owner {
			return fileState(FileProbeOwnerCorrect), nil
		}
		return fileState(FileProbeOwnerIncorrect), nil

	case FileResGroup:
		info, err := ex.Stat(ctx, fr.Path)
		if err != nil {
			return State{}, err
		}
		if info.Exists && info.Group == fr.Group {
			return fileState(FileProbeOwnerCorrect), nil
		}
		return fileState(FileProbeOwnerIncorrect), nil
	}
	return State{}, nil
}

func fileState(result FileProbeResult) State {
	return State{Kind: KindFile, File: &FileState{Probe: result}}
}

func (File) Diff(resource Resource, state State) Change {
	fr := resource.File
	switch fr.ResKind {
	case FileResSource:
		if state.File.Probe == FileProbeSourced {
			return Change{Kind: KindFile, HasChange: false}
		}
		return fileChange(FileResSource, fr.Path, fr.SourcePath, 0, "", "")
	case FileResFilePresent:
		if state.File.Probe == FileProbePresent {
			return Change{Kind: KindFile, HasChange: false}
		}
		return fileChange(FileResFilePresent, fr.Path, "", 0, "", "")
	case FileResFileAbsent:
		if state.File.Probe == FileProbeAbsent {
			return Change{Kind: KindFile, HasChange: false}
		}
		return fileChange(FileResFileAbsent, fr.Path, "", 0, "", "")
	case FileResDirectoryPresent:
		if state.File.Probe == FileProbeDirectoryPresent {
			return Change{Kind: KindFile, HasChange: false}
		}
		return fileChange(FileResDirectoryPresent, fr.Path, "", 0, "", "")
	case FileResDirectoryAbsent:
		if state.File.Probe == FileProbeDirectoryAbsent {
			return Change{Kind: KindFile, HasChange: false}
		}
		return fileChange(FileResDirectoryAbsent, fr.Path, "", 0, "", "")
	case FileResMode:
		if state.File.Probe == FileProbeModeCorrect {
			return Change{Kind: KindFile, HasChange: false}
		}
		return fileChange(FileResMode, fr.Path, "", fr.Mode, "", "")
	case FileResUser:
		if state.File.Probe == FileProbeOwnerCorrect {
			return Change{Kind: KindFile, HasChange: false}
		}
		return fileChange(FileResUser, fr.Path, "", 0, fr.Owner, "")
	case FileResGroup:
		if state.File.Probe == FileProbeOwnerCorrect {
			return Change{Kind: KindFile, HasChange: false}
		}
		return fileChange(FileResGroup, fr.Path, "", 0, "", fr.Group)
	}
	return Change{Kind: KindFile, HasChange: false}
}

func fileChange(kind FileResourceKind, path, sourcePath string, mode uint32, owner, group string) Change {
	return Change{Kind: KindFile, HasChange: true, File: &FileChange{
		ResKind: kind, Path: path, SourcePath: sourcePath, Mode: mode, Owner: owner, Group: group,
	}}
}

func (File) Lower(change Change) *tree.Node[operation.Operation, operation.Operation] {
	fc := change.File
	var op operation.Operation
	switch fc.ResKind {
	case FileResSource:
		op = operation.FileWrite(fc.Path, nil, fc.SourcePath)
	case FileResFilePresent:
		op = operation.FileWrite(fc.Path, []byte{}, "")
	case FileResFileAbsent:
		op = operation.FileRemove(fc.Path)
	case FileResDirectoryPresent:
		op = operation.DirectoryCreate(fc.Path)
	case FileResDirectoryAbsent:
		op = operation.DirectoryRemove(fc.Path)
	case FileResMode:
		op = operation.ChangeMode(fc.Path, fc.Mode)
	case FileResUser:
		op = operation.ChangeOwner(fc.Path, fc.Owner, "")
	case FileResGroup:
		op = operation.ChangeOwner(fc.Path, "", fc.Group)
	}
	return leafOperation(tree.CausalityMeta{}, op)
}
