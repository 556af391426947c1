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

// Package hashutil computes content hashes over file bytes. It is
// strictly pure: given the same bytes, it returns the same digest, and
// it never touches anything but the reader it is handed.
package hashutil

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"
)

// readBufSize is the chunk size used to stream file content through the
// hash accumulator. Any fixed size works; 1 KiB keeps memory use low
// without materializing the whole file.
const readBufSize = 1024

// HashReader streams r through an MD5 accumulator and returns the
// 32-character lowercase hex digest, left-padded with zeros so that
// big-integer-style hex shortening never produces a short string.
func HashReader(r io.Reader) (string, error) {
	h := md5.New()
	buf := make([]byte, readBufSize)

	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("hash: read: %w", err)
	}

	return fmt.Sprintf("%032x", h.Sum(nil)), nil
}

// HashFile opens path and returns its MD5 digest per HashReader.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hash: open %s: %w", path, err)
	}
	defer f.Close()

	return HashReader(f)
}
