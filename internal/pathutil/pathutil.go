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

// Package pathutil normalizes and validates the logical, forward-slash
// paths that entries are keyed by, independent of host OS conventions.
package pathutil

import (
	"path"
	"path/filepath"
	"strings"
)

// ToLogical converts an OS-native relative path (as produced by
// filepath.Walk/filepath.Rel) into the canonical forward-slash form
// used as a fileset entry key.
func ToLogical(p string) string {
	return filepath.ToSlash(p)
}

// ToNative converts a canonical forward-slash logical path back into
// an OS-native path suitable for filepath.Join with a root directory.
func ToNative(p string) string {
	return filepath.FromSlash(p)
}

// Clean normalizes separators first, then applies path.Clean so the
// result is comparable and stable regardless of the host OS the caller
// used to construct it.
func Clean(p string) string {
	return path.Clean(ToLogical(p))
}

// IsUnderDir reports whether path resides within dir, comparing absolute
// paths so that relative-path surprises and unsafe string-prefix checks
// (e.g. "/foo/bar-baz" matching a prefix check against "/foo/bar") are
// avoided. Does not resolve symlinks.
func IsUnderDir(p, dir string) (bool, error) {
	ap, err := filepath.Abs(p)
	if err != nil {
		return false, err
	}

	ad, err := filepath.Abs(dir)
	if err != nil {
		return false, err
	}

	rel, err := filepath.Rel(ad, ap)
	if err != nil {
		return false, err
	}

	if rel == "." {
		return true, nil
	}

	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false, nil
	}

	if filepath.IsAbs(rel) {
		return false, nil
	}

	return true, nil
}

// CanonicalDir returns an absolute, cleaned form of dir suitable for use
// as a shadow-state lookup key, so that "./out", "out", and "/abs/out"
// all resolve to the same committed-directory identity.
func CanonicalDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}
