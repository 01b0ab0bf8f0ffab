// Package archive packages local paths into a single gzip-compressed
// tar-format stream for transfer to an instance.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
)

// Pack writes every path (files as-is, directories recursively) into a
// tar-format temp file, gzip-compresses it into a second temp file, and
// invokes fn exactly once with the compressed file's path. Both temp files
// are removed on every exit path: normal return, error, or panic in fn.
//
// Entry names are relative to the parent of each input path, so a directory
// keeps its own name inside the archive. Permission bits are preserved and
// directory entries are written before their contents. Entry order follows
// the enumeration order of the inputs and their descendants; no sorting is
// imposed, so byte-identical output across runs is not guaranteed.
func Pack(paths []string, fn func(gzPath string) error) error {
	tarFile, err := os.CreateTemp("", "galley-*.tar")
	if err != nil {
		return err
	}

	defer func() {
		_ = tarFile.Close()
		_ = os.Remove(tarFile.Name())
	}()

	if err := writeTar(tarFile, paths); err != nil {
		return err
	}

	if _, err := tarFile.Seek(0, io.SeekStart); err != nil {
		return err
	}

	gzFile, err := os.CreateTemp("", "galley-*.tar.gz")
	if err != nil {
		return err
	}

	defer func() {
		_ = gzFile.Close()
		_ = os.Remove(gzFile.Name())
	}()

	if err := compress(gzFile, tarFile); err != nil {
		return err
	}

	if err := gzFile.Close(); err != nil {
		return err
	}

	return fn(gzFile.Name())
}

func writeTar(w io.Writer, paths []string) error {
	tw := tar.NewWriter(w)

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return err
		}

		// Entries are named relative to the parent of the input path so the
		// top-level directory name survives extraction.
		base := filepath.Dir(p)

		if info.IsDir() {
			err = filepath.Walk(p, func(path string, fi os.FileInfo, err error) error {
				if err != nil {
					return err
				}

				return writeEntry(tw, base, path, fi)
			})
		} else {
			err = writeEntry(tw, base, p, info)
		}

		if err != nil {
			return err
		}
	}

	return tw.Close()
}

// writeEntry writes one directory or regular-file entry named relative to
// base. Irregular entries (sockets, devices, symlinks) are skipped.
func writeEntry(tw *tar.Writer, base, path string, fi os.FileInfo) error {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return err
	}

	name := filepath.ToSlash(rel)

	if fi.IsDir() {
		return tw.WriteHeader(&tar.Header{
			Typeflag: tar.TypeDir,
			Name:     name + "/",
			Mode:     int64(fi.Mode().Perm()),
		})
	}

	if !fi.Mode().IsRegular() {
		return nil
	}

	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     int64(fi.Mode().Perm()),
		Size:     fi.Size(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}

	defer func() { _ = f.Close() }()

	_, err = io.Copy(tw, f)

	return err
}

func compress(dst io.Writer, src io.Reader) error {
	gz := gzip.NewWriter(dst)

	if _, err := io.Copy(gz, src); err != nil {
		return err
	}

	return gz.Close()
}
