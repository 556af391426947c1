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
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/arachne-framework/arachne-fileset/env"
)

// walkFn is invoked for every regular file found under the walked root.
// relPath is OS-native, relative to root.
type walkFn func(relPath, absPath string, info os.FileInfo) error

// walkDir recursively visits root, following symbolic links and
// descending into whatever they resolve to. Anything that is not
// ultimately a regular file (directories aside) is skipped. A path
// that disappears between listing and statting it is logged at debug
// and skipped rather than treated as fatal.
func walkDir(root string, log env.Logger, fn walkFn) error {
	if log == nil {
		log = env.Nop
	}
	return walkRel(root, ".", log, fn)
}

func walkRel(root, relDir string, log env.Logger, fn walkFn) error {
	absDir := filepath.Join(root, relDir)

	entries, err := os.ReadDir(absDir)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(entries))
	for _, de := range entries {
		names = append(names, de.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		relPath := filepath.Join(relDir, name)
		absPath := filepath.Join(root, relPath)

		info, err := os.Stat(absPath) // Stat follows symlinks.
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				log.Debugf("walk: %s vanished before it could be read, skipping", absPath)
				continue
			}
			return err
		}

		if info.IsDir() {
			if err := walkRel(root, relPath, log, fn); err != nil {
				return err
			}
			continue
		}

		if !info.Mode().IsRegular() {
			log.Debugf("walk: %s is not a regular file, skipping", absPath)
			continue
		}

		if err := fn(relPath, absPath, info); err != nil {
			return err
		}
	}

	return nil
}
