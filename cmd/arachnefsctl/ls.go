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

	"github.com/arachne-framework/arachne-fileset/fileset"
)

var lsCmd = &cobra.Command{
	Use:   "ls [directory]",
	Short: "Ingest a directory and list its fileset entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs, err := fileset.New(ws.Store, ws.Scratch, ws.Logger).AddDirectory(args[0], fileset.AddOptions{})
		if err != nil {
			return fmt.Errorf("ingest %s: %w", args[0], err)
		}

		for _, p := range fs.Ls() {
			hash, _ := fs.HashOf(p)
			fmt.Printf("%s  %s\n", hash, p)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
