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
	"io"
	"regexp"
)

// Combiner resolves a path collision encountered during AddDirectory by
// producing merged bytes from the old and new content streams into
// out. Combiners must fully consume old and new and write out eagerly;
// the caller closes all three streams afterward.
type Combiner func(old, new io.Reader, out io.Writer) error

// MergerRule pairs a path regex with the Combiner invoked when a
// colliding path matches it.
type MergerRule struct {
	Pattern *regexp.Regexp
	Combine Combiner
}

func firstMatchingMerger(mergers []MergerRule, logicalPath string) (MergerRule, bool) {
	for _, m := range mergers {
		if m.Pattern != nil && m.Pattern.MatchString(logicalPath) {
			return m, true
		}
	}
	return MergerRule{}, false
}
