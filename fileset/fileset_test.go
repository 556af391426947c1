/*
 * arachne-fileset: immutable, content-addressed filesets
 * Copyright © 2026 arachne-fileset contributors
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package fileset_test

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arachne-framework/arachne-fileset/blobstore"
	"github.com/arachne-framework/arachne-fileset/commit"
	"github.com/arachne-framework/arachne-fileset/fileset"
	"github.com/arachne-framework/arachne-fileset/hashutil"
	"github.com/arachne-framework/arachne-fileset/scratch"
)

func newTestStore(t *testing.T) *blobstore.Store {
	t.Helper()
	store, err := blobstore.Open(t.TempDir())
	require.NoError(t, err)
	return store
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func readAll(t *testing.T, fs *fileset.Fileset, path string) string {
	t.Helper()
	f, found, err := fs.OpenContent(path)
	require.NoError(t, err)
	require.True(t, found, "expected %s to be present", path)
	defer f.Close()
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(b)
}

func testAssets(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"file1.md":      "this is a file",
		"file2.md":      "second file",
		"dir1/file3.md": "third file",
	})
	return dir
}

func TestAddDirectoryRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	fs := fileset.New(store, nil, nil)

	fs2, err := fs.AddDirectory(testAssets(t), fileset.AddOptions{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"dir1/file3.md", "file1.md", "file2.md"}, fs2.Ls())
	assert.Equal(t, "this is a file", readAll(t, fs2, "file1.md"))

	// Immutability: the original fileset is untouched by AddDirectory.
	assert.Empty(t, fs.Ls())
}

func TestOpenContentHashInvariant(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	fs := fileset.New(store, nil, nil)
	fs, err := fs.AddDirectory(testAssets(t), fileset.AddOptions{})
	require.NoError(t, err)

	for _, p := range fs.Ls() {
		content := readAll(t, fs, p)
		h, ok := fs.HashOf(p)
		require.True(t, ok)

		gotHash, err := hashutil.HashReader(strings.NewReader(content))
		require.NoError(t, err)
		assert.Equal(t, gotHash, h)
	}
}

func TestUpdateThenAdd(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	fs := fileset.New(store, nil, nil)
	fs, err := fs.AddDirectory(testAssets(t), fileset.AddOptions{})
	require.NoError(t, err)

	target := t.TempDir()
	_, err = commit.Commit(nil, fs, target)
	require.NoError(t, err)

	// Committed files are hard links into the blob store; replace, never
	// modify in place.
	require.NoError(t, os.Remove(filepath.Join(target, "file1.md")))
	require.NoError(t, os.WriteFile(filepath.Join(target, "file1.md"), []byte("NEW CONTENT"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(target, "dir1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "dir1", "file4.md"), []byte("NEW FILE"), 0o644))

	fs2, err := fs.AddDirectory(target, fileset.AddOptions{})
	require.NoError(t, err)

	target2 := t.TempDir()
	committed, err := commit.Commit(nil, fs2, target2)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"file1.md", "file2.md", "dir1/file3.md", "dir1/file4.md"}, committed.Ls())

	b, err := os.ReadFile(filepath.Join(target2, "file1.md"))
	require.NoError(t, err)
	assert.Equal(t, "NEW CONTENT", string(b))
}

func TestRemove(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	fs := fileset.New(store, nil, nil)
	fs, err := fs.AddDirectory(testAssets(t), fileset.AddOptions{})
	require.NoError(t, err)

	fs2, err := fs.Remove("dir1/file3.md")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"file1.md", "file2.md"}, fs2.Ls())
	assert.ElementsMatch(t, []string{"file1.md", "file2.md", "dir1/file3.md"}, fs.Ls())
}

func TestDiffScenario(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	fs := fileset.New(store, nil, nil)
	fs, err := fs.AddDirectory(testAssets(t), fileset.AddOptions{})
	require.NoError(t, err)

	working := t.TempDir()
	target := t.TempDir()
	_, err = commit.Commit(nil, fs, target)
	require.NoError(t, err)
	copyDir(t, target, working)

	require.NoError(t, os.WriteFile(filepath.Join(working, "file1.md"), []byte("changed"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(working, "dir1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(working, "dir1", "file4.md"), []byte("new"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(working, "file2.md")))

	fs2, err := fs.AddDirectory(working, fileset.AddOptions{})
	require.NoError(t, err)
	fs2, err = fs2.Remove("dir1/file3.md")
	require.NoError(t, err)

	d := fileset.Compare(fs, fs2, nil)
	assert.ElementsMatch(t, []string{"file1.md", "dir1/file4.md"}, d.Ls())
	assert.ElementsMatch(t, []string{"dir1/file4.md"}, keysOf(d.Added))
	assert.ElementsMatch(t, []string{"dir1/file3.md"}, keysOf(d.Removed))
	assert.ElementsMatch(t, []string{"file1.md"}, keysOf(d.Changed))
}

func TestFilterByMeta(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	alloc, err := scratch.NewAllocator(filepath.Join(t.TempDir(), "scratch"))
	require.NoError(t, err)

	fs := fileset.New(store, alloc, nil)
	fs, err = fs.AddDirectory(testAssets(t), fileset.AddOptions{Meta: fileset.Meta{"input": true}})
	require.NoError(t, err)

	w := t.TempDir()
	_, err = commit.Commit(nil, fs, w)
	require.NoError(t, err)

	outDir := filepath.Join(w, "out")
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "file1.out"), []byte("out1"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "file2.out"), []byte("out2"), 0o644))

	fs2, err := fs.AddDirectory(w, fileset.AddOptions{
		Include: []*regexp.Regexp{regexp.MustCompile(`\.out$`)},
		Meta:    fileset.Meta{"output": true},
	})
	require.NoError(t, err)

	outputs, err := fs2.FilterByMeta(func(m fileset.Meta) bool {
		v, _ := m["output"].(bool)
		return v
	})
	require.NoError(t, err)

	d3 := t.TempDir()
	committed, err := commit.Commit(nil, outputs, d3)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"out/file1.out", "out/file2.out"}, committed.Ls())
}

func TestChecksumDeterminismAndTimestampSensitivity(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	dirA := t.TempDir()
	dirB := t.TempDir()
	writeTree(t, dirA, map[string]string{"a.txt": "same bytes"})
	writeTree(t, dirB, map[string]string{"a.txt": "same bytes"})

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dirB, "a.txt"), past, past))

	fsA, err := fileset.New(store, nil, nil).AddDirectory(dirA, fileset.AddOptions{})
	require.NoError(t, err)
	fsB, err := fileset.New(store, nil, nil).AddDirectory(dirB, fileset.AddOptions{})
	require.NoError(t, err)

	csA, err := fsA.Checksum(false)
	require.NoError(t, err)
	csB, err := fsB.Checksum(false)
	require.NoError(t, err)
	assert.Equal(t, csA, csB, "checksum without timestamps should ignore mtime")

	csAts, err := fsA.Checksum(true)
	require.NoError(t, err)
	csBts, err := fsB.Checksum(true)
	require.NoError(t, err)
	assert.NotEqual(t, csAts, csBts, "checksum with timestamps should reflect mtime")

	// Checksum determinism via merge with an empty fileset.
	empty := fileset.New(store, nil, nil)
	merged, err := empty.Merge(fsA)
	require.NoError(t, err)
	csMerged, err := merged.Checksum(false)
	require.NoError(t, err)
	assert.Equal(t, csA, csMerged)
}

func TestRenameConflict(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	fs, err := fileset.New(store, nil, nil).AddDirectory(testAssets(t), fileset.AddOptions{})
	require.NoError(t, err)

	_, err = fs.Rename("file1.md", "file2.md")
	assert.ErrorIs(t, err, fileset.ErrConflict)

	fs2, err := fs.Rename("file1.md", "renamed.md")
	require.NoError(t, err)
	_, stillThere := fs2.HashOf("file1.md")
	assert.False(t, stillThere)
	h1, _ := fs.HashOf("file1.md")
	h2, _ := fs2.HashOf("renamed.md")
	assert.Equal(t, h1, h2)
}

func TestRenameSamePathIsNoop(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	fs, err := fileset.New(store, nil, nil).AddDirectory(testAssets(t), fileset.AddOptions{})
	require.NoError(t, err)

	fs2, err := fs.Rename("file1.md", "file1.md")
	require.NoError(t, err)
	assert.Same(t, fs, fs2)
}

func TestMergeTimeWins(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	dirOld := t.TempDir()
	dirNew := t.TempDir()
	writeTree(t, dirOld, map[string]string{"f.txt": "old"})
	writeTree(t, dirNew, map[string]string{"f.txt": "new"})

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dirOld, "f.txt"), old, old))

	fsOld, err := fileset.New(store, nil, nil).AddDirectory(dirOld, fileset.AddOptions{})
	require.NoError(t, err)
	fsNew, err := fileset.New(store, nil, nil).AddDirectory(dirNew, fileset.AddOptions{})
	require.NoError(t, err)

	merged, err := fsOld.Merge(fsNew)
	require.NoError(t, err)
	assert.Equal(t, "new", readAll(t, merged, "f.txt"))
}

func TestMergeWithNestedAndListMetaDoesNotPanic(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	dirOld := t.TempDir()
	dirNew := t.TempDir()
	writeTree(t, dirOld, map[string]string{"f.txt": "old"})
	writeTree(t, dirNew, map[string]string{"f.txt": "new"})

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dirOld, "f.txt"), old, old))

	fsOld, err := fileset.New(store, nil, nil).AddDirectory(dirOld, fileset.AddOptions{
		Meta: fileset.Meta{"tags": []any{"a"}, "info": fileset.Meta{"owner": "old"}},
	})
	require.NoError(t, err)
	fsNew, err := fileset.New(store, nil, nil).AddDirectory(dirNew, fileset.AddOptions{
		Meta: fileset.Meta{"tags": []any{"b"}, "info": fileset.Meta{"owner": "new"}},
	})
	require.NoError(t, err)

	var merged *fileset.Fileset
	assert.NotPanics(t, func() {
		merged, err = fsOld.Merge(fsNew)
	})
	require.NoError(t, err)
	assert.Equal(t, "new", readAll(t, merged, "f.txt"))

	e, ok := merged.EntryAt("f.txt")
	require.True(t, ok)
	assert.Equal(t, []any{"b"}, e.Meta["tags"])
	assert.Equal(t, fileset.Meta{"owner": "new"}, e.Meta["info"])
}

func TestIncludeExcludePrecedence(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"keep.md":       "kept",
		"keep.tmp":      "excluded by pattern",
		"other/skip.go": "not included",
	})

	fs, err := fileset.New(store, nil, nil).AddDirectory(src, fileset.AddOptions{
		Include: []*regexp.Regexp{regexp.MustCompile(`\.md$`), regexp.MustCompile(`\.tmp$`)},
		Exclude: []*regexp.Regexp{regexp.MustCompile(`\.tmp$`)},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"keep.md"}, fs.Ls(), "exclude should take priority over include")
}

func TestMergerCombinesCollidingPaths(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	alloc, err := scratch.NewAllocator(filepath.Join(t.TempDir(), "scratch"))
	require.NoError(t, err)

	dirA := t.TempDir()
	dirB := t.TempDir()
	writeTree(t, dirA, map[string]string{"conf/app.properties": "a=1\n"})
	writeTree(t, dirB, map[string]string{"conf/app.properties": "b=2\n"})

	concat := func(old, new io.Reader, out io.Writer) error {
		if _, err := io.Copy(out, old); err != nil {
			return err
		}
		_, err := io.Copy(out, new)
		return err
	}

	fs, err := fileset.New(store, alloc, nil).AddDirectory(dirA, fileset.AddOptions{
		Meta: fileset.Meta{"origin": "a"},
	})
	require.NoError(t, err)
	fs2, err := fs.AddDirectory(dirB, fileset.AddOptions{
		Mergers: []fileset.MergerRule{{Pattern: regexp.MustCompile(`\.properties$`), Combine: concat}},
		Meta:    fileset.Meta{"merged": true},
	})
	require.NoError(t, err)

	assert.Equal(t, "a=1\nb=2\n", readAll(t, fs2, "conf/app.properties"))

	// The merged entry keeps the colliding entry's meta, overlaid by the
	// new options' meta.
	e, ok := fs2.EntryAt("conf/app.properties")
	require.True(t, ok)
	assert.Equal(t, "a", e.Meta["origin"])
	assert.Equal(t, true, e.Meta["merged"])
	// The merged entry is a fresh blob; the original fileset still sees
	// the old bytes.
	assert.Equal(t, "a=1\n", readAll(t, fs, "conf/app.properties"))
}

func TestOpenFileRecoversDeletedBlob(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	fs, err := fileset.New(store, nil, nil).AddDirectory(testAssets(t), fileset.AddOptions{})
	require.NoError(t, err)

	e, ok := fs.EntryAt("file1.md")
	require.True(t, ok)
	require.NoError(t, os.Remove(filepath.Join(store.Dir(), e.BlobID)))

	assert.Equal(t, "this is a file", readAll(t, fs, "file1.md"))
}

func TestCompareWithHashProjectionIgnoresTimestamps(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	dirA := t.TempDir()
	dirB := t.TempDir()
	writeTree(t, dirA, map[string]string{"f.txt": "same bytes"})
	writeTree(t, dirB, map[string]string{"f.txt": "same bytes"})

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dirB, "f.txt"), past, past))

	fsA, err := fileset.New(store, nil, nil).AddDirectory(dirA, fileset.AddOptions{})
	require.NoError(t, err)
	fsB, err := fileset.New(store, nil, nil).AddDirectory(dirB, fileset.AddOptions{})
	require.NoError(t, err)

	// Default identity is the blob id, which embeds the mtime.
	d := fileset.Compare(fsA, fsB, nil)
	assert.ElementsMatch(t, []string{"f.txt"}, keysOf(d.Changed))

	// A hash-only projection sees the two captures as identical.
	d = fileset.Compare(fsA, fsB, func(e fileset.Entry) any { return e.Hash })
	assert.Empty(t, d.Changed)
	assert.Empty(t, d.Added)
	assert.Empty(t, d.Removed)
}

func keysOf(m map[string]fileset.Entry) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func copyDir(t *testing.T, src, dst string) {
	t.Helper()
	entries, err := os.ReadDir(src)
	require.NoError(t, err)
	for _, e := range entries {
		sp := filepath.Join(src, e.Name())
		dp := filepath.Join(dst, e.Name())
		if e.IsDir() {
			require.NoError(t, os.MkdirAll(dp, 0o755))
			copyDir(t, sp, dp)
			continue
		}
		b, err := os.ReadFile(sp)
		require.NoError(t, err)
		require.NoError(t, os.MkdirAll(filepath.Dir(dp), 0o755))
		require.NoError(t, os.WriteFile(dp, b, 0o644))
	}
}
