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

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arachne-framework/arachne-fileset/commit"
	"github.com/arachne-framework/arachne-fileset/fileset"
)

var commitCmd = &cobra.Command{
	Use:   "commit [directory] [target]",
	Short: "Ingest a directory fresh and materialize it into target, replacing target's tracked contents",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := fileset.New(ws.Store, ws.Scratch, ws.Logger).AddDirectory(args[0], fileset.AddOptions{})
		if err != nil {
			return fmt.Errorf("ingest %s: %w", args[0], err)
		}

		committed, err := commitFileset(fs, args[1])
		if err != nil {
			return err
		}

		fmt.Printf("committed %d entries into %s\n", committed.Len(), args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commitCmd)
}

func commitFileset(fs *fileset.Fileset, targetDir string) (*fileset.Fileset, error) {
	return commit.Commit(ws.Shadow, fs, targetDir)
}
