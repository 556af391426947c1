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

package fileset

import "github.com/arachne-framework/arachne-fileset/blobstore"

// EntrySnapshot is the persisted shape of one Entry, independent of any
// live Fileset or Store. Shadow-state stores (see the commit package)
// serialize a fileset's tree to a slice of these between process runs.
type EntrySnapshot struct {
	Path   string
	BlobID string
	Hash   string
	Time   int64
	Meta   Meta
}

// Snapshot returns the fileset's tree as a serializable, blob-store
// independent slice, sorted by path.
func (fs *Fileset) Snapshot() []EntrySnapshot {
	paths := fs.Ls()
	out := make([]EntrySnapshot, 0, len(paths))
	for _, p := range paths {
		e := fs.entries[p]
		out = append(out, EntrySnapshot{Path: e.Path, BlobID: e.BlobID, Hash: e.Hash, Time: e.Time, Meta: e.Meta})
	}
	return out
}

// FromSnapshot reconstructs a read-only Fileset view over snapshot
// entries, for diffing against a live fileset. Unlike every other
// fileset constructor, the result does NOT hold blob-store references
// for its entries: callers must never Close it, and must not rely on
// its blobs still existing in store unless something else also
// references them. It exists solely so the commit package can treat
// previously persisted shadow state as a Fileset for diff purposes.
func FromSnapshot(store *blobstore.Store, snapshot []EntrySnapshot) *Fileset {
	entries := make(map[string]Entry, len(snapshot))
	for _, s := range snapshot {
		entries[s.Path] = Entry{Path: s.Path, BlobID: s.BlobID, Hash: s.Hash, Time: s.Time, Meta: s.Meta}
	}
	return &Fileset{store: store, entries: entries}
}
