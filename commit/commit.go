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

package commit

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arachne-framework/arachne-fileset/blobstore"
	"github.com/arachne-framework/arachne-fileset/fileset"
	"github.com/arachne-framework/arachne-fileset/internal/pathutil"
)

// Commit materializes fs into targetDir using hard links, diffing
// against targetDir's last known committed state (tracked in shadow)
// to touch only what changed. It returns a fileset equal to fs, minus
// any entry that hit an unresolvable merge conflict while
// materializing (logged via fs.Logger(), not returned as an error).
// fs itself is never mutated.
//
// If shadow is nil, an in-memory store shared across calls within the
// process is used; shadow state from a prior process is then treated
// as absent and targetDir's on-disk contents are ingested as the
// previous state instead.
//
// Commits within one process are serialized, so the shadow-state
// Load and Save of two commits never interleave.
func Commit(shadow ShadowStore, fs *fileset.Fileset, targetDir string) (*fileset.Fileset, error) {
	commitMu.Lock()
	defer commitMu.Unlock()

	if shadow == nil {
		shadow = defaultShadowStore
	}
	log := fs.Logger()
	commitID := uuid.NewString()

	canonicalDir, err := pathutil.CanonicalDir(targetDir)
	if err != nil {
		return nil, fmt.Errorf("commit: canonicalize %s: %w", targetDir, err)
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, fmt.Errorf("commit: create %s: %w", targetDir, err)
	}

	observedMs, err := dirLastModifiedMs(targetDir)
	if err != nil {
		return nil, fmt.Errorf("commit: stat %s: %w", targetDir, err)
	}

	previous, err := resolvePrevious(shadow, fs, canonicalDir, targetDir, observedMs)
	if err != nil {
		return nil, err
	}

	d := fileset.Compare(previous, fs, nil)

	for path := range mergeSets(d.Removed, d.Changed) {
		abs := filepath.Join(targetDir, pathutil.ToNative(path))
		if under, err := pathutil.IsUnderDir(abs, targetDir); err != nil || !under {
			log.Warnf("commit: %s: resolves outside %s, refusing to unlink", path, targetDir)
			continue
		}
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("commit: unlink %s: %w", abs, err)
		}
	}

	toPlace := mergeSets(d.Added, d.Changed)
	paths := make([]string, 0, len(toPlace))
	for p := range toPlace {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return len(paths[i]) > len(paths[j]) })

	dropped := make(map[string]struct{})
	for _, path := range paths {
		entry, _ := fs.EntryAt(path)
		abs := filepath.Join(targetDir, pathutil.ToNative(path))

		if under, err := pathutil.IsUnderDir(abs, targetDir); err != nil || !under {
			log.Warnf("commit: %s: resolves outside %s, dropping entry", path, targetDir)
			dropped[path] = struct{}{}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			log.Warnf("commit: %s: cannot create parent directory, dropping entry: %v", path, err)
			dropped[path] = struct{}{}
			continue
		}

		ref := blobstore.Ref{BlobID: entry.BlobID, Hash: entry.Hash, Time: entry.Time}
		blobPath, err := fs.Store().Get(ref)
		if err != nil {
			log.Warnf("commit: %s: cannot materialize blob, dropping entry: %v", path, err)
			dropped[path] = struct{}{}
			continue
		}

		if err := os.Link(blobPath, abs); err != nil {
			if os.IsExist(err) {
				if rmErr := os.Remove(abs); rmErr == nil {
					if linkErr := os.Link(blobPath, abs); linkErr == nil {
						continue
					}
				}
			}
			log.Warnf("commit: merge conflict materializing %s, dropping entry: %v", path, err)
			dropped[path] = struct{}{}
			continue
		}

		if entry.Time != 0 {
			mtime := time.UnixMilli(entry.Time)
			_ = os.Chtimes(abs, mtime, mtime)
		}
	}

	result := fs
	if len(dropped) > 0 {
		result, err = fs.Filter(func(e fileset.Entry) bool {
			_, gone := dropped[e.Path]
			return !gone
		})
		if err != nil {
			return nil, fmt.Errorf("commit: drop conflicted entries: %w", err)
		}
	}

	finishedMs, err := dirLastModifiedMs(targetDir)
	if err != nil {
		return nil, fmt.Errorf("commit: stat %s: %w", targetDir, err)
	}
	if err := shadow.Save(canonicalDir, ShadowEntry{Snapshot: result.Snapshot(), LastModifiedMs: finishedMs, CommitID: commitID}); err != nil {
		return nil, fmt.Errorf("commit: save shadow state: %w", err)
	}
	log.Debugf("commit %s: wrote %d path(s) into %s", commitID, len(toPlace), targetDir)

	return result, nil
}

// resolvePrevious implements the shadow-state lookup in step 1 of the
// algorithm: use the cached fileset if it is still fresh relative to
// targetDir's observed last-modified time, otherwise fall back to
// ingesting targetDir's current on-disk contents as the previous
// state.
func resolvePrevious(shadow ShadowStore, fs *fileset.Fileset, canonicalDir, targetDir string, observedMs int64) (*fileset.Fileset, error) {
	cached, ok, err := shadow.Load(canonicalDir)
	if err != nil {
		return nil, fmt.Errorf("commit: load shadow state: %w", err)
	}
	if ok && observedMs <= cached.LastModifiedMs {
		return fileset.FromSnapshot(fs.Store(), cached.Snapshot), nil
	}

	scratchFs := fileset.New(fs.Store(), nil, fs.Logger())
	ingested, err := scratchFs.AddDirectory(targetDir, fileset.AddOptions{})
	if err != nil {
		return nil, fmt.Errorf("commit: ingest current state of %s: %w", targetDir, err)
	}
	// ingested retained blobs it discovered on disk purely to compute a
	// diff; release them immediately, the diff only reads entries.
	defer ingested.Close()

	return fileset.FromSnapshot(fs.Store(), ingested.Snapshot()), nil
}

// commitMu is held for the whole of each Commit call.
var commitMu sync.Mutex

func mergeSets(a, b map[string]fileset.Entry) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for p := range a {
		out[p] = struct{}{}
	}
	for p := range b {
		out[p] = struct{}{}
	}
	return out
}

func dirLastModifiedMs(dir string) (int64, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return 0, err
	}
	return info.ModTime().UnixMilli(), nil
}
