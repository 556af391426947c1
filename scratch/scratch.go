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

// Package scratch allocates per-operation temporary subdirectories
// inside a process-global scratch root, for merger output and commit
// staging. The root itself is reclaimed by the caller at shutdown —
// the host integration's responsibility.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Allocator hands out unique subdirectories under a single root.
type Allocator struct {
	root string

	mu      sync.Mutex
	claimed []string
}

// NewAllocator creates (if necessary) and returns an Allocator rooted
// at root. root is not itself unique — callers typically derive it from
// os.MkdirTemp or an XDG cache directory once per process.
func NewAllocator(root string) (*Allocator, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("scratch: create root %s: %w", root, err)
	}
	return &Allocator{root: root}, nil
}

// NewProcessAllocator creates a fresh, uniquely named root under the
// host's temp directory and returns an Allocator over it.
func NewProcessAllocator() (*Allocator, error) {
	root, err := os.MkdirTemp("", "arachne-fileset-")
	if err != nil {
		return nil, fmt.Errorf("scratch: create process root: %w", err)
	}
	return &Allocator{root: root}, nil
}

// Root returns the scratch root directory.
func (a *Allocator) Root() string { return a.root }

// New allocates a fresh, uniquely named subdirectory under the root and
// returns its path. label is a short, human-readable hint (e.g. the
// merger or commit operation requesting it) embedded in the directory
// name for debuggability; it is not itself required to be unique.
func (a *Allocator) New(label string) (string, error) {
	if label == "" {
		label = "op"
	}
	dir := filepath.Join(a.root, label+"-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("scratch: allocate %s: %w", dir, err)
	}

	a.mu.Lock()
	a.claimed = append(a.claimed, dir)
	a.mu.Unlock()

	return dir, nil
}

// Close removes every subdirectory this allocator has handed out, plus
// the root itself. Safe to call once at process shutdown.
func (a *Allocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return os.RemoveAll(a.root)
}
