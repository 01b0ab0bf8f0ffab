// Package fileutil provides shared filesystem helpers for sandbox assembly
// and transfers: tree copying, context-aware reads, and path traversal
// validation.
package fileutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CopyTree copies src (a file or a directory) into dstDir, preserving the
// relative layout and permission bits. A directory keeps its own name under
// dstDir, mirroring how the archive packer names entries.
func CopyTree(src, dstDir string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return copyFile(src, filepath.Join(dstDir, filepath.Base(src)), info.Mode().Perm())
	}

	base := filepath.Dir(src)

	return filepath.Walk(src, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}

		target := filepath.Join(dstDir, rel)
		if err := CheckPathTraversal(dstDir, target); err != nil {
			return err
		}

		if fi.IsDir() {
			return os.MkdirAll(target, fi.Mode().Perm())
		}

		if !fi.Mode().IsRegular() {
			return nil
		}

		return copyFile(path, target, fi.Mode().Perm())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}

	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()

		return err
	}

	return out.Close()
}

// ContextReader wraps an io.Reader to check for context cancellation before
// each Read call, so long-running io.Copy operations can be interrupted.
type ContextReader struct {
	Ctx    context.Context //nolint:containedctx
	Reader io.Reader
}

// Read checks for context cancellation before delegating to the underlying
// reader.
func (cr *ContextReader) Read(p []byte) (int, error) {
	if cr.Ctx.Err() != nil {
		return 0, cr.Ctx.Err()
	}

	return cr.Reader.Read(p)
}

// CheckPathTraversal validates that target is a child of root using local
// filesystem path conventions. Returns an error if target escapes the root
// directory.
func CheckPathTraversal(root, target string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("illegal file path: cannot resolve root %s: %w", root, err)
	}

	absTarget, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("illegal file path: cannot resolve target %s: %w", target, err)
	}

	if absRoot == absTarget {
		return nil
	}

	if !strings.HasPrefix(absTarget, absRoot+string(os.PathSeparator)) {
		return fmt.Errorf("illegal file path: %s is not within %s", target, root)
	}

	return nil
}
