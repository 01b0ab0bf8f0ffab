package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	name string
	dir  bool
	mode int64
	body string
}

func readArchive(t *testing.T, gzPath string) []entry {
	t.Helper()

	f, err := os.Open(gzPath)
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	tr := tar.NewReader(gz)

	var entries []entry

	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		require.NoError(t, err)

		e := entry{
			name: hdr.Name,
			dir:  hdr.Typeflag == tar.TypeDir,
			mode: hdr.Mode,
		}

		if !e.dir {
			body, err := io.ReadAll(tr)
			require.NoError(t, err)
			e.body = string(body)
		}

		entries = append(entries, e)
	}

	return entries
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestPack_RoundTrip(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"payload/a.txt":       "alpha",
		"payload/sub/b.txt":   "beta",
		"payload/sub/empty":   "",
		"payload/deep/c/d.sh": "#!/bin/sh\n",
	})

	var entries []entry

	err := Pack([]string{filepath.Join(src, "payload")}, func(gzPath string) error {
		entries = readArchive(t, gzPath)

		return nil
	})
	require.NoError(t, err)

	byName := map[string]entry{}
	for _, e := range entries {
		byName[e.name] = e
	}

	// Entries are named relative to the input's parent, so the top-level
	// directory name survives extraction.
	require.Contains(t, byName, "payload/")
	assert.True(t, byName["payload/"].dir)

	require.Contains(t, byName, "payload/a.txt")
	assert.Equal(t, "alpha", byName["payload/a.txt"].body)

	require.Contains(t, byName, "payload/sub/b.txt")
	assert.Equal(t, "beta", byName["payload/sub/b.txt"].body)

	require.Contains(t, byName, "payload/sub/empty")
	assert.Empty(t, byName["payload/sub/empty"].body)

	require.Contains(t, byName, "payload/deep/c/d.sh")
}

func TestPack_DirectoryEntriesPrecedeContents(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeTree(t, src, map[string]string{"payload/sub/b.txt": "beta"})

	var entries []entry

	err := Pack([]string{filepath.Join(src, "payload")}, func(gzPath string) error {
		entries = readArchive(t, gzPath)

		return nil
	})
	require.NoError(t, err)

	index := map[string]int{}
	for i, e := range entries {
		index[e.name] = i
	}

	assert.Less(t, index["payload/"], index["payload/sub/"])
	assert.Less(t, index["payload/sub/"], index["payload/sub/b.txt"])
}

func TestPack_PreservesPermissionBits(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	script := filepath.Join(src, "run.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"), 0o755))

	var entries []entry

	err := Pack([]string{script}, func(gzPath string) error {
		entries = readArchive(t, gzPath)

		return nil
	})
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, "run.sh", entries[0].name)
	assert.Equal(t, int64(0o755), entries[0].mode)
}

func TestPack_MixedFilesAndDirectories(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"solo.txt":    "solo",
		"tree/in.txt": "in",
	})

	var names []string

	err := Pack(
		[]string{filepath.Join(src, "solo.txt"), filepath.Join(src, "tree")},
		func(gzPath string) error {
			for _, e := range readArchive(t, gzPath) {
				names = append(names, e.name)
			}

			return nil
		},
	)
	require.NoError(t, err)

	assert.Contains(t, names, "solo.txt")
	assert.Contains(t, names, "tree/")
	assert.Contains(t, names, "tree/in.txt")
}

func TestPack_MissingInputFails(t *testing.T) {
	t.Parallel()

	called := false

	err := Pack([]string{filepath.Join(t.TempDir(), "absent")}, func(string) error {
		called = true

		return nil
	})

	assert.Error(t, err)
	assert.False(t, called, "fn must not run when packaging fails")
}

// tmpEntries lists what Pack left behind in its temp directory.
func tmpEntries(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "galley-") {
			names = append(names, e.Name())
		}
	}

	return names
}

func TestPack_CleansUpTempFiles(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	src := t.TempDir()
	writeTree(t, src, map[string]string{"payload/a.txt": "alpha"})
	input := []string{filepath.Join(src, "payload")}

	t.Run("after success", func(t *testing.T) {
		require.NoError(t, Pack(input, func(gzPath string) error {
			_, err := os.Stat(gzPath)

			return err
		}))
		assert.Empty(t, tmpEntries(t, tmp))
	})

	t.Run("after fn error", func(t *testing.T) {
		cause := errors.New("upload refused")
		err := Pack(input, func(string) error { return cause })
		assert.ErrorIs(t, err, cause)
		assert.Empty(t, tmpEntries(t, tmp))
	})

	t.Run("after fn panic", func(t *testing.T) {
		require.Panics(t, func() {
			_ = Pack(input, func(string) error { panic("boom") })
		})
		assert.Empty(t, tmpEntries(t, tmp))
	})

	t.Run("after packaging error", func(t *testing.T) {
		err := Pack([]string{filepath.Join(src, "absent")}, func(string) error { return nil })
		assert.Error(t, err)
		assert.Empty(t, tmpEntries(t, tmp))
	})
}
