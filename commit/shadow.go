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

// Package commit materializes filesets into concrete directories using
// hard links, diffing against a directory's last known committed state
// (the "shadow state") to minimize filesystem work.
package commit

import (
	"sync"

	"github.com/arachne-framework/arachne-fileset/fileset"
)

// ShadowEntry is the persisted record of a directory's last committed
// state: the fileset tree at that point, the directory's observed
// last-modified time when the commit finished, and the identifier of
// the commit run that produced it (for correlating with log output).
type ShadowEntry struct {
	Snapshot       []fileset.EntrySnapshot
	LastModifiedMs int64
	CommitID       string
}

// ShadowStore persists, per canonical target directory, the last
// fileset committed there. Implementations must make each Load and
// Save safe for concurrent use; Commit itself holds a process-wide lock
// across its Load/Save pair, so two commits within one process never
// interleave their read-modify-write.
type ShadowStore interface {
	Load(canonicalDir string) (ShadowEntry, bool, error)
	Save(canonicalDir string, entry ShadowEntry) error
}

// MemoryShadowStore is an in-process ShadowStore backed by a map. It is
// the default used by Commit when no store is supplied, and is
// sufficient for a single long-lived process; it does not survive
// restarts.
type MemoryShadowStore struct {
	mu      sync.Mutex
	entries map[string]ShadowEntry
}

// NewMemoryShadowStore returns an empty in-memory shadow store.
func NewMemoryShadowStore() *MemoryShadowStore {
	return &MemoryShadowStore{entries: make(map[string]ShadowEntry)}
}

func (s *MemoryShadowStore) Load(canonicalDir string) (ShadowEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[canonicalDir]
	return e, ok, nil
}

func (s *MemoryShadowStore) Save(canonicalDir string, entry ShadowEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[canonicalDir] = entry
	return nil
}

var defaultShadowStore = NewMemoryShadowStore()
