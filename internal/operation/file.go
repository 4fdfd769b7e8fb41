package operation

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/driftless/driftless/internal/exec"
)

// FileOp is one file-system mutation. OpKind selects the variant; only the
// fields that variant uses (see the per-field comments) are meaningful.
type FileOp struct {
	OpKind FileOpKind

	// WriteFile / RemoveFile / ChangeMode / ChangeOwner
	Path  string
	Mode  uint32
	Owner string
	Group string

	// WriteFile: literal contents, mutually exclusive with SourcePath.
	Contents []byte
	// WriteFile: contents are read from this path on the controller's
	// machine rather than supplied literally.
	SourcePath string
}

// FileOpKind discriminates the FileOp variants.
type FileOpKind string

const (
	FileOpWriteFile       FileOpKind = "write-file"
	FileOpRemoveFile      FileOpKind = "remove-file"
	FileOpCreateDirectory FileOpKind = "create-directory"
	FileOpRemoveDirectory FileOpKind = "remove-directory"
	FileOpChangeMode      FileOpKind = "change-mode"
	FileOpChangeOwner     FileOpKind = "change-owner"
)

func FileWrite(path string, contents []byte, sourcePath string) Operation {
	return Operation{Kind: KindFile, File: &FileOp{OpKind: FileOpWriteFile, Path: path, Contents: contents, SourcePath: sourcePath}}
}

func FileRemove(path string) Operation {
	return Operation{Kind: KindFile, File: &FileOp{OpKind: FileOpRemoveFile, Path: path}}
}

func DirectoryCreate(path string) Operation {
	return Operation{Kind: KindFile, File: &FileOp{OpKind: FileOpCreateDirectory, Path: path}}
}

func DirectoryRemove(path string) Operation {
	return Operation{Kind: KindFile, File: &FileOp{OpKind: FileOpRemoveDirectory, Path: path}}
}

func ChangeMode(path string, mode uint32) Operation {
	return Operation{Kind: KindFile, File: &FileOp{OpKind: FileOpChangeMode, Path: path, Mode: mode}}
}

func ChangeOwner(path, owner, group string) Operation {
	return Operation{Kind: KindFile, File: &FileOp{OpKind: FileOpChangeOwner, Path: path, Owner: owner, Group: group}}
}

// mergeFile passes file operations through unchanged, except that two
// WriteFile operations targeting the same path must agree on content; a
// mismatch is a conflict error rather than a silently-resolved ordering.
func mergeFile(ops []Operation) ([]Operation, error) {
	writesByPath := make(map[string]*FileOp)
	for _, op := range ops {
		if op.File.OpKind != FileOpWriteFile {
			continue
		}
		if existing, ok := writesByPath[op.File.Path]; ok {
			if existing.SourcePath != op.File.SourcePath || string(existing.Contents) != string(op.File.Contents) {
				return nil, &mergeConflictError{path: op.File.Path}
			}
			continue
		}
		writesByPath[op.File.Path] = op.File
	}
	return ops, nil
}

func applyFile(ctx context.Context, ex exec.Executor, op *FileOp, stdout, stderr io.Writer) (Result, error) {
	switch op.OpKind {
	case FileOpWriteFile:
		contents := op.Contents
		if op.SourcePath != "" {
			data, err := os.ReadFile(op.SourcePath)
			if err != nil {
				return Result{}, fmt.Errorf("reading source %s: %w", op.SourcePath, err)
			}
			contents = data
		}
		if err := ex.WriteFile(ctx, exec.WriteParams{Path: op.Path, Content: contents, Mode: op.Mode, Create: true}); err != nil {
			return Result{}, err
		}
	case FileOpRemoveFile:
		if err := ex.Remove(ctx, op.Path); err != nil {
			return Result{}, err
		}
	case FileOpCreateDirectory:
		if err := ex.Mkdir(ctx, op.Path, op.Mode); err != nil {
			return Result{}, err
		}
	case FileOpRemoveDirectory:
		if err := ex.Remove(ctx, op.Path); err != nil {
			return Result{}, err
		}
	case FileOpChangeMode:
		if err := ex.Chmod(ctx, op.Path, op.Mode); err != nil {
			return Result{}, err
		}
	case FileOpChangeOwner:
		if err := ex.Chown(ctx, op.Path, op.Owner, op.Group); err != nil {
			return Result{}, err
		}
	default:
		return Result{}, fmt.Errorf("operation: unknown file op kind %q", op.OpKind)
	}
	fmt.Fprintf(stdout, "%s %s\n", op.OpKind, op.Path)
	return Result{ExitCode: 0}, nil
}
