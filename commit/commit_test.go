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

package commit_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arachne-framework/arachne-fileset/blobstore"
	"github.com/arachne-framework/arachne-fileset/commit"
	"github.com/arachne-framework/arachne-fileset/fileset"
)

func newStore(t *testing.T) *blobstore.Store {
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

func TestCommitCreatesHardLinks(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "hello"})

	fs, err := fileset.New(store, nil, nil).AddDirectory(src, fileset.AddOptions{})
	require.NoError(t, err)

	target := t.TempDir()
	shadow := commit.NewMemoryShadowStore()
	_, err = commit.Commit(shadow, fs, target)
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(target, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	info, err := os.Stat(filepath.Join(target, "a.txt"))
	require.NoError(t, err)
	assert.False(t, info.Mode().Perm()&0o200 != 0, "committed file should be read-only, sharing the blob's inode permissions")
}

func TestCommitIsIncremental(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "hello", "b.txt": "world"})

	fs, err := fileset.New(store, nil, nil).AddDirectory(src, fileset.AddOptions{})
	require.NoError(t, err)

	target := t.TempDir()
	shadow := commit.NewMemoryShadowStore()
	_, err = commit.Commit(shadow, fs, target)
	require.NoError(t, err)

	unchangedInfo, err := os.Stat(filepath.Join(target, "b.txt"))
	require.NoError(t, err)

	fs2, err := fs.Remove("a.txt")
	require.NoError(t, err)
	_, err = commit.Commit(shadow, fs2, target)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(target, "a.txt"))
	assert.True(t, os.IsNotExist(err))

	stillThereInfo, err := os.Stat(filepath.Join(target, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, unchangedInfo.ModTime(), stillThereInfo.ModTime())
}

func TestCommitFromScratchWhenShadowAbsent(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	target := t.TempDir()
	writeTree(t, target, map[string]string{"preexisting.txt": "already here"})

	fs, err := fileset.New(store, nil, nil).AddDirectory(t.TempDir(), fileset.AddOptions{})
	require.NoError(t, err)
	fs, err = fs.AddDirectory(mustWrite(t, map[string]string{"new.txt": "fresh"}), fileset.AddOptions{})
	require.NoError(t, err)

	_, err = commit.Commit(nil, fs, target)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(target, "preexisting.txt"))
	assert.True(t, os.IsNotExist(err), "files not in fs should be removed even on a cold shadow state")

	b, err := os.ReadFile(filepath.Join(target, "new.txt"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(b))
}

func TestCommitDropsEntryThatEscapesTargetDir(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "hello"})

	fs, err := fileset.New(store, nil, nil).AddDirectory(src, fileset.AddOptions{})
	require.NoError(t, err)

	escaped, err := fs.Rename("a.txt", "../escaped.txt")
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "nested")
	require.NoError(t, os.MkdirAll(target, 0o755))

	committed, err := commit.Commit(commit.NewMemoryShadowStore(), escaped, target)
	require.NoError(t, err)

	assert.Empty(t, committed.Ls(), "entry escaping targetDir should be dropped, not written")

	_, err = os.Stat(filepath.Join(filepath.Dir(target), "escaped.txt"))
	assert.True(t, os.IsNotExist(err), "commit must never write outside targetDir")
}

func mustWrite(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func TestSQLiteShadowStorePersists(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "shadow.db")
	store, err := commit.OpenSQLiteShadowStore(context.Background(), dbPath)
	require.NoError(t, err)
	defer store.Close()

	entry := commit.ShadowEntry{
		Snapshot: []fileset.EntrySnapshot{
			{Path: "a.txt", BlobID: "deadbeef.123", Hash: "deadbeef", Time: 123},
		},
		LastModifiedMs: 42,
	}
	require.NoError(t, store.Save("/tmp/example", entry))

	got, ok, err := store.Load("/tmp/example")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry.LastModifiedMs, got.LastModifiedMs)
	assert.Equal(t, entry.Snapshot, got.Snapshot)
}
