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

// Package workspace bundles the collaborators a host application needs
// to use filesets end-to-end: a blob store, a scratch allocator, a
// shadow-state store for commits, and a logger. By default the blob
// store and shadow database live under the XDG data directory and the
// scratch root is a fresh directory under the host's temp directory.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"

	"github.com/arachne-framework/arachne-fileset/blobstore"
	"github.com/arachne-framework/arachne-fileset/commit"
	"github.com/arachne-framework/arachne-fileset/env"
	"github.com/arachne-framework/arachne-fileset/scratch"
)

// Workspace is the process-lifetime handle a host application keeps to
// work with filesets: it owns the blob store directory, the scratch
// root, and the shadow-state database.
type Workspace struct {
	Store   *blobstore.Store
	Scratch *scratch.Allocator
	Shadow  *commit.SQLiteShadowStore
	Logger  env.Logger

	scratchOwned bool
}

// Options configures Open. When left empty, BlobDir and ShadowDB default
// to paths under the XDG data directory's "arachne-fileset" namespace,
// ScratchDir to a fresh directory under the host's temp directory
// (removed by Close), and Logger to a standard logger on stderr.
type Options struct {
	BlobDir    string
	ScratchDir string
	ShadowDB   string
	Logger     env.Logger
}

// Open creates or reopens a Workspace. Directories that don't yet exist
// are created. The caller must call Close when done.
func Open(ctx context.Context, opts Options) (*Workspace, error) {
	logger := opts.Logger
	if logger == nil {
		logger = env.NewStdLogger(os.Stderr)
	}

	blobDir := opts.BlobDir
	if blobDir == "" {
		dir, err := xdg.DataFile("arachne-fileset/blobs/.keep")
		if err != nil {
			return nil, fmt.Errorf("workspace: resolve default blob dir: %w", err)
		}
		blobDir = filepath.Dir(dir)
	}
	store, err := blobstore.Open(blobDir)
	if err != nil {
		return nil, fmt.Errorf("workspace: open blob store: %w", err)
	}

	scratchDir := opts.ScratchDir
	scratchOwned := scratchDir == ""
	var alloc *scratch.Allocator
	if scratchOwned {
		alloc, err = scratch.NewProcessAllocator()
	} else {
		alloc, err = scratch.NewAllocator(scratchDir)
	}
	if err != nil {
		return nil, fmt.Errorf("workspace: open scratch allocator: %w", err)
	}

	shadowPath := opts.ShadowDB
	if shadowPath == "" {
		shadowPath, err = xdg.DataFile("arachne-fileset/shadow.db")
		if err != nil {
			if scratchOwned {
				_ = alloc.Close()
			}
			return nil, fmt.Errorf("workspace: resolve default shadow database: %w", err)
		}
	}
	shadow, err := commit.OpenSQLiteShadowStore(ctx, shadowPath)
	if err != nil {
		if scratchOwned {
			_ = alloc.Close()
		}
		return nil, fmt.Errorf("workspace: open shadow store: %w", err)
	}

	return &Workspace{
		Store:        store,
		Scratch:      alloc,
		Shadow:       shadow,
		Logger:       logger,
		scratchOwned: scratchOwned,
	}, nil
}

// Close releases the shadow database handle and, if the scratch root
// was allocated by Open rather than supplied by the caller, removes it.
// The blob store directory itself is left on disk; it is durable
// storage, not scratch space.
func (w *Workspace) Close() error {
	var firstErr error
	if err := w.Shadow.Close(); err != nil {
		firstErr = err
	}
	if w.scratchOwned {
		if err := w.Scratch.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
