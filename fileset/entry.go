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

// Package fileset implements an immutable, persistent mapping from
// logical path to content-addressed entry: add, remove, filter,
// rename, merge, diff and materialization all produce a new Fileset
// value and never mutate their inputs.
package fileset

import (
	"reflect"

	"github.com/arachne-framework/arachne-fileset/blobstore"
)

// Meta is a schema-free bag of short symbolic keys to arbitrary values,
// used for filtering. Values are expected to be one of string, int64,
// bool, Meta (nested), or []any, but Meta itself does not enforce
// that; it is deliberately untyped so downstream consumers can define
// their own tag conventions.
type Meta map[string]any

// Clone returns a shallow copy of m, or nil if m is nil. Callers must
// never mutate a Meta value reachable from a live Entry; always clone
// before changing it so existing filesets are unaffected.
func (m Meta) Clone() Meta {
	if m == nil {
		return nil
	}
	out := make(Meta, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// mergeMeta returns a new Meta containing base's keys overlaid by
// overlay's keys (overlay wins on collision).
func mergeMeta(base, overlay Meta) Meta {
	out := base.Clone()
	if out == nil {
		out = make(Meta, len(overlay))
	}
	for k, v := range overlay {
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func metaEqual(a, b Meta) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok || !reflect.DeepEqual(bv, v) {
			return false
		}
	}
	return true
}

// Entry is one row of a fileset's tree: a logical path paired with the
// blob it currently resolves to and the metadata tagged onto it.
// Invariant: BlobID == Hash + "." + Time.
type Entry struct {
	Path   string
	BlobID string
	Hash   string
	Time   int64 // captured last-modified milliseconds
	Meta   Meta
}

func entryFromRef(path string, ref blobstore.Ref, meta Meta) Entry {
	return Entry{
		Path:   path,
		BlobID: ref.BlobID,
		Hash:   ref.Hash,
		Time:   ref.Time,
		Meta:   meta,
	}
}

func (e Entry) ref() blobstore.Ref {
	return blobstore.Ref{BlobID: e.BlobID, Hash: e.Hash, Time: e.Time}
}
