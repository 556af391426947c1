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

import "sort"

// Identity projects an Entry down to the value diff uses for equality
// comparison. The zero value of Identity (nil) compares by BlobID.
type Identity func(Entry) any

func blobIDIdentity(e Entry) any { return e.BlobID }

// Diff describes the set-algebraic difference between two filesets'
// trees, computed path-by-path using an Identity projection (BlobID by
// default). Added, Removed and Changed partition paths(before) ∪
// paths(after): every path belongs to exactly one of Added, Removed,
// Changed or the implicit unchanged set.
type Diff struct {
	// Added holds entries (from after) whose path is not in before.
	Added map[string]Entry
	// Removed holds entries (from before) whose path is not in after.
	Removed map[string]Entry
	// Changed holds entries (from after) whose path is in both trees
	// but whose identity projection differs.
	Changed map[string]Entry
}

// Compare computes the Diff between before and after using ident as the
// entry-identity projection. If ident is nil, BlobID equality is used.
// before may be nil, in which case every path in after is Added and
// Removed/Changed are empty.
func Compare(before, after *Fileset, ident Identity) Diff {
	if ident == nil {
		ident = blobIDIdentity
	}

	d := Diff{
		Added:   make(map[string]Entry),
		Removed: make(map[string]Entry),
		Changed: make(map[string]Entry),
	}

	var beforeEntries map[string]Entry
	if before != nil {
		beforeEntries = before.entries
	}

	for p, ae := range after.entries {
		be, ok := beforeEntries[p]
		switch {
		case !ok:
			d.Added[p] = ae
		case ident(be) != ident(ae):
			d.Changed[p] = ae
		}
	}
	for p, be := range beforeEntries {
		if _, ok := after.entries[p]; !ok {
			d.Removed[p] = be
		}
	}

	return d
}

// Ls returns the sorted paths present in the diff's result: Added and
// Changed entries, the paths that exist in after with new content.
// Removed paths are queried separately; they name entries that no
// longer exist.
func (d Diff) Ls() []string {
	seen := make(map[string]struct{}, len(d.Added)+len(d.Changed))
	for p := range d.Added {
		seen[p] = struct{}{}
	}
	for p := range d.Changed {
		seen[p] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Added returns the paths present in after but not before. before may
// be nil.
func Added(before, after *Fileset) map[string]Entry {
	return Compare(before, after, nil).Added
}

// Removed returns the paths present in before but not after. before may
// be nil, in which case the result is always empty.
func Removed(before, after *Fileset) map[string]Entry {
	return Compare(before, after, nil).Removed
}

// Changed returns the paths present in both trees whose BlobID differs.
func Changed(before, after *Fileset) map[string]Entry {
	return Compare(before, after, nil).Changed
}
