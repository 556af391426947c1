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

// Package blobstore implements the content-addressed, reference-counted
// repository of immutable regular files that backs a fileset. Every
// blob is named by its BlobID ("<32-char hex md5>.<mtime millis>") and
// is read-only once created.
//
// The store keeps an open read handle on every live blob so that if the
// blob file is removed out-of-band (an administrator rm's the store
// directory, a disk cleanup job runs), it can be recreated byte-for-byte
// the next time it's requested. Callers must not modify committed files
// in place; copy first.
package blobstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arachne-framework/arachne-fileset/hashutil"
)

// ErrNotFound is returned by Release, Retain and PathForID when the
// given blob id is not tracked by this store instance, and by Get when
// the blob file is missing on disk and the id is not tracked.
var ErrNotFound = errors.New("blobstore: blob not found")

// Ref identifies one immutable blob: its content hash, the timestamp
// captured at ingestion, and the derived BlobID ("hash.time"). It
// carries no path — a fileset entry pairs a Ref with a logical path and
// metadata.
type Ref struct {
	BlobID string
	Hash   string
	Time   int64 // last-modified milliseconds, captured at ingestion
}

// MakeBlobID joins a content hash and a captured mtime into the
// canonical blob identifier.
func MakeBlobID(hash string, millis int64) string {
	return hash + "." + strconv.FormatInt(millis, 10)
}

// SplitBlobID is the inverse of MakeBlobID; it fails if id doesn't look
// like "<hash>.<millis>".
func SplitBlobID(id string) (hash string, millis int64, err error) {
	idx := strings.LastIndexByte(id, '.')
	if idx < 0 {
		return "", 0, fmt.Errorf("blobstore: malformed blob id %q", id)
	}
	hash = id[:idx]
	millis, err = strconv.ParseInt(id[idx+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("blobstore: malformed blob id %q: %w", id, err)
	}
	return hash, millis, nil
}

type record struct {
	refcount int
	handle   *os.File // held open so the blob survives out-of-band deletion
	handleMu sync.Mutex
}

// Store is a process-owned, reference-counted repository of blobs living
// under a single directory. The zero value is not usable; construct one
// with Open.
type Store struct {
	dir string

	mu      sync.Mutex // guards records and the unlink-on-release path
	records map[string]*record
}

// Open prepares a blob store rooted at dir, creating it if necessary.
// The directory is exclusively owned by the returned Store for as long
// as the process runs.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create store dir: %w", err)
	}
	return &Store{dir: dir, records: make(map[string]*record)}, nil
}

// Dir returns the directory this store is rooted at.
func (s *Store) Dir() string { return s.dir }

func (s *Store) pathFor(id string) string {
	return filepath.Join(s.dir, id)
}

// Add hashes srcPath, interns it into the store, and returns a Ref.
// If a blob with the same content and mtime already exists, its
// refcount is incremented and no bytes are copied (dedup). Otherwise
// srcPath's bytes are copied into the store via the copy protocol
// (temp file in the same directory, then atomic rename) and the new
// blob is marked read-only. The source file is left untouched.
func (s *Store) Add(srcPath string) (Ref, error) {
	return s.add(srcPath, false)
}

// AddLinked behaves like Add but, when the blob does not already exist,
// hard-links srcPath into the store instead of copying its bytes. This
// is an internal optimization intended for bulk ingestion from a
// directory tree known to be immutable for the duration of the link
// (e.g. a seeded cache); the returned Ref is the same as Add's. Unlike
// Add, a linked srcPath shares its inode with the blob and is therefore
// left read-only.
func (s *Store) AddLinked(srcPath string) (Ref, error) {
	return s.add(srcPath, true)
}

func (s *Store) add(srcPath string, preferLink bool) (Ref, error) {
	hash, err := hashutil.HashFile(srcPath)
	if err != nil {
		return Ref{}, err
	}

	info, err := os.Stat(srcPath)
	if err != nil {
		return Ref{}, fmt.Errorf("blobstore: stat %s: %w", srcPath, err)
	}
	millis := info.ModTime().UnixMilli()
	id := MakeBlobID(hash, millis)
	ref := Ref{BlobID: id, Hash: hash, Time: millis}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[id]; ok {
		rec.refcount++
		return ref, nil
	}

	if err := s.materialize(srcPath, id, millis, preferLink); err != nil {
		return Ref{}, err
	}

	handle, err := os.Open(s.pathFor(id))
	if err != nil {
		return Ref{}, fmt.Errorf("blobstore: open new blob %s: %w", id, err)
	}

	s.records[id] = &record{refcount: 1, handle: handle}
	return ref, nil
}

// materialize places the blob bytes at <dir>/<id>, either by hard-link
// or by the copy protocol: write to a temp file in the same directory
// (same filesystem, so rename is atomic), then rename into place with
// replace-existing semantics (idempotent if a concurrent Add won), then
// mark the file read-only. In the copy path the blob's mtime is set to
// the captured millis — commit hard-links blobs straight into target
// directories, so the blob file itself must carry the entry's time.
func (s *Store) materialize(srcPath, id string, millis int64, preferLink bool) error {
	final := s.pathFor(id)

	if preferLink {
		if err := os.Link(srcPath, final); err == nil {
			return os.Chmod(final, 0o444)
		}
		// Fall through to the copy protocol: cross-device links and
		// similar failures are recoverable by copying instead.
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("blobstore: open src %s: %w", srcPath, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(s.dir, ".blob-"+uuid.NewString())
	if err != nil {
		return fmt.Errorf("blobstore: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName) // no-op once renamed
	}()

	if _, err := io.Copy(tmp, src); err != nil {
		return fmt.Errorf("blobstore: copy into temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("blobstore: fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("blobstore: close temp: %w", err)
	}

	if err := os.Rename(tmpName, final); err != nil {
		return fmt.Errorf("blobstore: rename into place: %w", err)
	}

	_ = fsyncDir(s.dir)

	mtime := time.UnixMilli(millis)
	if err := os.Chtimes(final, mtime, mtime); err != nil {
		return fmt.Errorf("blobstore: set mtime for %s: %w", id, err)
	}

	return os.Chmod(final, 0o444)
}

// Get returns a path to a readable file containing ref's bytes. If the
// blob file is missing on disk — e.g. deleted out-of-band — it is
// recreated from the store's held read handle: the handle is rewound
// and its bytes copied back out to the expected location, and the
// recreated file's mtime is restored to ref.Time.
func (s *Store) Get(ref Ref) (string, error) {
	final := s.pathFor(ref.BlobID)
	if _, err := os.Stat(final); err == nil {
		return final, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("blobstore: stat %s: %w", final, err)
	}

	s.mu.Lock()
	rec, ok := s.records[ref.BlobID]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("blobstore: %s: %w", ref.BlobID, ErrNotFound)
	}

	if err := s.recoverFromHandle(rec, ref); err != nil {
		return "", err
	}
	return final, nil
}

// recoverFromHandle rewinds the blob's held handle and streams its
// bytes back out to disk, restoring the original mtime. The handle's
// own mutex (distinct from the table mutex) serializes the rewind
// against concurrent recovery attempts for the same blob.
func (s *Store) recoverFromHandle(rec *record, ref Ref) error {
	rec.handleMu.Lock()
	defer rec.handleMu.Unlock()

	final := s.pathFor(ref.BlobID)
	if _, err := os.Stat(final); err == nil {
		return nil // someone else recovered it first
	}

	if _, err := rec.handle.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("blobstore: rewind handle for %s: %w", ref.BlobID, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".recover-"+uuid.NewString())
	if err != nil {
		return fmt.Errorf("blobstore: create recovery temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := io.Copy(tmp, rec.handle); err != nil {
		return fmt.Errorf("blobstore: recover %s: %w", ref.BlobID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("blobstore: close recovery temp: %w", err)
	}

	if err := os.Rename(tmpName, final); err != nil {
		return fmt.Errorf("blobstore: rename recovered blob into place: %w", err)
	}

	mtime := time.UnixMilli(ref.Time)
	if err := os.Chtimes(final, mtime, mtime); err != nil {
		return fmt.Errorf("blobstore: restore mtime for %s: %w", ref.BlobID, err)
	}

	return os.Chmod(final, 0o444)
}

// Release decrements id's refcount. At zero, the held read handle is
// closed and the blob file is unlinked.
func (s *Store) Release(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("blobstore: release %s: %w", id, ErrNotFound)
	}

	rec.refcount--
	if rec.refcount > 0 {
		return nil
	}

	delete(s.records, id)
	_ = rec.handle.Close()
	if err := os.Remove(s.pathFor(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blobstore: unlink %s: %w", id, err)
	}
	return nil
}

// Retain increments id's refcount without creating a new blob. Used
// when a caller already holds a Ref (e.g. a renamed fileset entry) and
// needs a second independent reference to the same blob.
func (s *Store) Retain(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("blobstore: retain %s: %w", id, ErrNotFound)
	}
	rec.refcount++
	return nil
}

// RefCount reports the current refcount for id, for tests and the
// doctor health check. Returns false if id is not tracked.
func (s *Store) RefCount(id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return 0, false
	}
	return rec.refcount, true
}

// Stats summarizes the store's current contents.
type Stats struct {
	BlobCount  int
	LiveRefs   int
	TotalBytes int64
}

// Stats walks the tracked blobs and reports aggregate counts. It does
// not hash anything; see doctor-style deep verification for that.
func (s *Store) Stats() (Stats, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.records))
	refs := 0
	for id, rec := range s.records {
		ids = append(ids, id)
		refs += rec.refcount
	}
	s.mu.Unlock()

	var total int64
	for _, id := range ids {
		info, err := os.Stat(s.pathFor(id))
		if err != nil {
			continue
		}
		total += info.Size()
	}

	return Stats{BlobCount: len(ids), LiveRefs: refs, TotalBytes: total}, nil
}

// BlobIDs returns every blob id currently tracked by the store, for
// the doctor health check's integrity sweep.
func (s *Store) BlobIDs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	return ids, nil
}

// PathForID returns the on-disk path a tracked blob id resolves to,
// without performing deletion recovery. Used by read-only tooling that
// wants to inspect the file directly (e.g. rehashing it).
func (s *Store) PathForID(id string) (string, error) {
	s.mu.Lock()
	_, ok := s.records[id]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("blobstore: %s: %w", id, ErrNotFound)
	}
	return s.pathFor(id), nil
}

// fsyncDir calls fsync on dir so that a preceding rename's directory
// entry is durable. Best-effort: non-fatal if the filesystem ignores
// directory fsync.
func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
