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

import (
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/arachne-framework/arachne-fileset/blobstore"
	"github.com/arachne-framework/arachne-fileset/env"
	"github.com/arachne-framework/arachne-fileset/internal/pathutil"
	"github.com/arachne-framework/arachne-fileset/scratch"
)

// ErrNotFound is returned by point operations (Rename) that require a
// path to already be present. Accessors (HashOf, TimeOf, Open...)
// report absence via a boolean instead.
var ErrNotFound = errors.New("fileset: path not found")

// ErrConflict is returned by Rename when the destination path is
// already occupied, rather than silently overwriting it.
var ErrConflict = errors.New("fileset: destination path already exists")

// Fileset is an immutable mapping from logical path to Entry. Every
// operation below returns a new Fileset; the receiver is left intact.
type Fileset struct {
	store   *blobstore.Store
	scratch *scratch.Allocator
	log     env.Logger

	entries map[string]Entry
}

// New returns an empty fileset backed by store. scratchAlloc is only
// required if AddDirectory will be called with Mergers that match a
// colliding path; it may be nil otherwise. logger may be nil, in which case diagnostics are
// discarded.
func New(store *blobstore.Store, scratchAlloc *scratch.Allocator, logger env.Logger) *Fileset {
	if logger == nil {
		logger = env.Nop
	}
	return &Fileset{
		store:   store,
		scratch: scratchAlloc,
		log:     logger,
		entries: make(map[string]Entry),
	}
}

func (fs *Fileset) derive(entries map[string]Entry) *Fileset {
	return &Fileset{store: fs.store, scratch: fs.scratch, log: fs.log, entries: entries}
}

// Store returns the blob store this fileset is backed by.
func (fs *Fileset) Store() *blobstore.Store { return fs.store }

// Logger returns the diagnostics sink this fileset reports degraded
// operations to. Never nil.
func (fs *Fileset) Logger() env.Logger { return fs.log }

// Close releases this fileset's reference to every blob its tree
// points to. It does not affect any other fileset that independently
// references the same blobs. Close is idempotent.
func (fs *Fileset) Close() error {
	var firstErr error
	for _, e := range fs.entries {
		if err := fs.store.Release(e.BlobID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	fs.entries = make(map[string]Entry)
	return firstErr
}

// Ls returns the logical paths present in the fileset, sorted for
// deterministic iteration and easier debugging.
func (fs *Fileset) Ls() []string {
	paths := make([]string, 0, len(fs.entries))
	for p := range fs.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Len reports the number of entries in the fileset.
func (fs *Fileset) Len() int { return len(fs.entries) }

// HashOf returns the content hash recorded for path, and whether path
// is present.
func (fs *Fileset) HashOf(path string) (string, bool) {
	e, ok := fs.entries[pathutil.Clean(path)]
	return e.Hash, ok
}

// TimeOf returns the captured last-modified milliseconds for path, and
// whether path is present.
func (fs *Fileset) TimeOf(path string) (int64, bool) {
	e, ok := fs.entries[pathutil.Clean(path)]
	return e.Time, ok
}

// EntryAt returns the full Entry at path, and whether path is present.
func (fs *Fileset) EntryAt(path string) (Entry, bool) {
	e, ok := fs.entries[pathutil.Clean(path)]
	return e, ok
}

// OpenFile returns a readable, caller-closed file handle to the current
// on-disk blob for path. found is false (err nil) if path is absent.
// err is non-nil only for an underlying I/O failure, including the
// deletion-recovery path failing.
func (fs *Fileset) OpenFile(path string) (f *os.File, found bool, err error) {
	e, ok := fs.entries[pathutil.Clean(path)]
	if !ok {
		return nil, false, nil
	}

	blobPath, err := fs.store.Get(e.ref())
	if err != nil {
		return nil, true, fmt.Errorf("fileset: open %s: %w", path, err)
	}

	f, err = os.Open(blobPath)
	if err != nil {
		return nil, true, fmt.Errorf("fileset: open %s: %w", path, err)
	}
	return f, true, nil
}

// OpenContent is OpenFile's io.ReadCloser-typed counterpart, for
// callers that only want to stream bytes.
func (fs *Fileset) OpenContent(path string) (io.ReadCloser, bool, error) {
	f, found, err := fs.OpenFile(path)
	if f == nil {
		return nil, found, err
	}
	return f, found, err
}

// AddOptions configures AddDirectory.
type AddOptions struct {
	// Include, if non-empty, requires at least one pattern to partially
	// match the entry's logical (forward-slash) relative path.
	Include []*regexp.Regexp
	// Exclude drops any path matched by any pattern. Exclude takes
	// priority over Include.
	Exclude []*regexp.Regexp
	// Mergers resolves path collisions against the fileset's existing
	// entries; the first matching rule wins.
	Mergers []MergerRule
	// Meta is merged into every ingested entry's metadata.
	Meta Meta
}

func (o AddOptions) accepts(logicalPath string) bool {
	for _, re := range o.Exclude {
		if re.MatchString(logicalPath) {
			return false
		}
	}
	if len(o.Include) == 0 {
		return true
	}
	for _, re := range o.Include {
		if re.MatchString(logicalPath) {
			return true
		}
	}
	return false
}

// AddDirectory recursively walks dir (following symlinks, skipping
// anything that isn't ultimately a regular file), ingests every
// accepted file into the blob store, and unions the result into a copy
// of fs's tree. On a path collision: if a Mergers rule matches, the
// combiner's output becomes a fresh entry replacing both sides;
// otherwise the newly walked file wins.
func (fs *Fileset) AddDirectory(dir string, opts AddOptions) (*Fileset, error) {
	newEntries := make(map[string]Entry, len(fs.entries))
	for p, e := range fs.entries {
		newEntries[p] = e
	}
	touched := make(map[string]struct{})

	err := walkDir(dir, fs.log, func(relPath, absPath string, _ os.FileInfo) error {
		logical := pathutil.ToLogical(relPath)
		if !opts.accepts(logical) {
			return nil
		}

		existing, collides := fs.entries[logical]
		if collides {
			if rule, matched := firstMatchingMerger(opts.Mergers, logical); matched {
				merged, err := fs.runMerger(rule, existing, absPath)
				if err != nil {
					return fmt.Errorf("add_directory: merge %s: %w", logical, err)
				}
				merged.Path = logical
				merged.Meta = mergeMeta(existing.Meta, opts.Meta)
				newEntries[logical] = merged
				touched[logical] = struct{}{}
				return nil
			}
		}

		ref, err := fs.store.Add(absPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				fs.log.Debugf("add_directory: %s vanished before it could be ingested, skipping", absPath)
				return nil
			}
			return fmt.Errorf("add_directory: ingest %s: %w", absPath, err)
		}
		meta := opts.Meta
		if collides {
			meta = mergeMeta(existing.Meta, opts.Meta)
		}
		newEntries[logical] = entryFromRef(logical, ref, meta)
		touched[logical] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("add_directory: walk %s: %w", dir, err)
	}

	for p, e := range newEntries {
		if _, wasTouched := touched[p]; wasTouched {
			continue
		}
		if err := fs.store.Retain(e.BlobID); err != nil {
			return nil, fmt.Errorf("add_directory: retain %s: %w", p, err)
		}
	}

	return fs.derive(newEntries), nil
}

// runMerger invokes rule's combiner over the existing entry's current
// bytes and the freshly walked file, ingesting the combined output as a
// new blob. Neither input blob's refcount is touched: the existing
// entry remains owned by fs, and the walked file was never ingested.
func (fs *Fileset) runMerger(rule MergerRule, existing Entry, newPath string) (Entry, error) {
	if fs.scratch == nil {
		return Entry{}, errors.New("fileset: mergers require a scratch allocator")
	}

	oldBlobPath, err := fs.store.Get(existing.ref())
	if err != nil {
		return Entry{}, err
	}
	oldFile, err := os.Open(oldBlobPath)
	if err != nil {
		return Entry{}, err
	}
	defer oldFile.Close()

	newFile, err := os.Open(newPath)
	if err != nil {
		return Entry{}, err
	}
	defer newFile.Close()

	dir, err := fs.scratch.New("merge")
	if err != nil {
		return Entry{}, err
	}
	outPath := dir + string(os.PathSeparator) + "merged"
	out, err := os.Create(outPath)
	if err != nil {
		return Entry{}, err
	}

	if err := rule.Combine(oldFile, newFile, out); err != nil {
		out.Close()
		return Entry{}, err
	}
	if err := out.Close(); err != nil {
		return Entry{}, err
	}

	ref, err := fs.store.Add(outPath)
	if err != nil {
		return Entry{}, err
	}
	return entryFromRef("", ref, nil), nil
}

// Remove returns fs with the given paths absent. Unknown paths are
// silently ignored.
func (fs *Fileset) Remove(paths ...string) (*Fileset, error) {
	drop := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		drop[pathutil.Clean(p)] = struct{}{}
	}

	newEntries := make(map[string]Entry, len(fs.entries))
	for p, e := range fs.entries {
		if _, gone := drop[p]; gone {
			continue
		}
		if err := fs.store.Retain(e.BlobID); err != nil {
			return nil, fmt.Errorf("remove: retain %s: %w", p, err)
		}
		newEntries[p] = e
	}
	return fs.derive(newEntries), nil
}

// Rename moves the entry at from to to, sharing the same blob. from
// must be present or ErrNotFound is returned. If from == to, fs is
// returned unchanged. If to is already occupied, ErrConflict is
// returned rather than silently overwriting the destination.
func (fs *Fileset) Rename(from, to string) (*Fileset, error) {
	from = pathutil.Clean(from)
	to = pathutil.Clean(to)

	if from == to {
		return fs, nil
	}

	e, ok := fs.entries[from]
	if !ok {
		return nil, fmt.Errorf("rename %s -> %s: %w", from, to, ErrNotFound)
	}
	if _, occupied := fs.entries[to]; occupied {
		return nil, fmt.Errorf("rename %s -> %s: %w", from, to, ErrConflict)
	}

	newEntries := make(map[string]Entry, len(fs.entries))
	for p, ee := range fs.entries {
		if p == from {
			continue
		}
		if err := fs.store.Retain(ee.BlobID); err != nil {
			return nil, fmt.Errorf("rename: retain %s: %w", p, err)
		}
		newEntries[p] = ee
	}

	if err := fs.store.Retain(e.BlobID); err != nil {
		return nil, fmt.Errorf("rename: retain %s: %w", to, err)
	}
	renamed := e
	renamed.Path = to
	renamed.Meta = e.Meta.Clone()
	newEntries[to] = renamed

	return fs.derive(newEntries), nil
}

// Filter returns fs narrowed to entries for which pred returns true.
func (fs *Fileset) Filter(pred func(Entry) bool) (*Fileset, error) {
	newEntries := make(map[string]Entry)
	for p, e := range fs.entries {
		if !pred(e) {
			continue
		}
		if err := fs.store.Retain(e.BlobID); err != nil {
			return nil, fmt.Errorf("filter: retain %s: %w", p, err)
		}
		newEntries[p] = e
	}
	return fs.derive(newEntries), nil
}

// FilterByMeta returns fs narrowed to entries whose metadata satisfies
// pred.
func (fs *Fileset) FilterByMeta(pred func(Meta) bool) (*Fileset, error) {
	return fs.Filter(func(e Entry) bool { return pred(e.Meta) })
}

// Merge unions fs with others. For a path present in more than one
// input, the entry with the greatest captured Time wins; its metadata
// overlays (rather than replaces) the union of the losing entries'
// metadata. A collision between entries with different BlobIDs but an
// equal Time is a genuine divergence with no principled winner; it is
// logged via the fileset's Logger and broken by comparing BlobID
// strings, so the result is still deterministic.
func (fs *Fileset) Merge(others ...*Fileset) (*Fileset, error) {
	type candidate struct {
		entry Entry
		meta  Meta
	}
	byPath := make(map[string][]candidate)

	all := append([]*Fileset{fs}, others...)
	for _, other := range all {
		for p, e := range other.entries {
			byPath[p] = append(byPath[p], candidate{entry: e, meta: e.Meta})
		}
	}

	newEntries := make(map[string]Entry, len(byPath))
	for p, cands := range byPath {
		winner := cands[0]
		for _, c := range cands[1:] {
			switch {
			case c.entry.Time > winner.entry.Time:
				winner = c
			case c.entry.Time == winner.entry.Time && c.entry.BlobID != winner.entry.BlobID:
				fs.log.Warnf("merge: %s has colliding versions with equal timestamp, breaking tie by blob id", p)
				if c.entry.BlobID > winner.entry.BlobID {
					winner = c
				}
			}
		}

		var losersUnion Meta
		for _, c := range cands {
			if c.entry.BlobID == winner.entry.BlobID {
				continue
			}
			losersUnion = mergeMeta(losersUnion, c.meta)
			if c.entry.Hash != winner.entry.Hash || !metaEqual(c.meta, winner.meta) {
				fs.log.Warnf("merge: %s: losing entry diverges from winner (hash or meta differs)", p)
			}
		}
		folded := mergeMeta(losersUnion, winner.meta)

		merged := winner.entry
		merged.Meta = folded
		newEntries[p] = merged

		if err := fs.store.Retain(merged.BlobID); err != nil {
			return nil, fmt.Errorf("merge: retain %s: %w", p, err)
		}
	}

	return fs.derive(newEntries), nil
}

// Checksum returns a single MD5 digest, hex-encoded, summarizing the
// fileset's contents: the MD5 of the path-sorted concatenation of each
// entry's "path\x00hash" (and, if includeTimestamps is true,
// "\x00time") record, each record terminated by "\n". Two filesets with the same entries produce the
// same checksum regardless of how they were built; adding
// includeTimestamps makes the digest sensitive to capture time as well
// as content.
func (fs *Fileset) Checksum(includeTimestamps bool) (string, error) {
	paths := fs.Ls()
	h := md5.New()
	for _, p := range paths {
		e := fs.entries[p]
		h.Write([]byte(p))
		h.Write([]byte{0})
		h.Write([]byte(e.Hash))
		if includeTimestamps {
			h.Write([]byte{0})
			h.Write([]byte(strconv.FormatInt(e.Time, 10)))
		}
		h.Write([]byte{'\n'})
	}
	return fmt.Sprintf("%032x", h.Sum(nil)), nil
}

// String renders a compact, human-readable summary, handy for logging
// and tests.
func (fs *Fileset) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fileset(%d entries)", len(fs.entries))
	return b.String()
}
