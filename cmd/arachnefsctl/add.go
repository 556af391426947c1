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
	"regexp"

	"github.com/spf13/cobra"

	"github.com/arachne-framework/arachne-fileset/fileset"
)

var (
	addInclude []string
	addExclude []string
)

var addCmd = &cobra.Command{
	Use:   "ingest [directory] [target]",
	Short: "Ingest a directory and commit it into a target directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := buildAddOptions()
		if err != nil {
			return err
		}

		fs := fileset.New(ws.Store, ws.Scratch, ws.Logger)
		fs, err = fs.AddDirectory(args[0], opts)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", args[0], err)
		}

		committed, err := commitFileset(fs, args[1])
		if err != nil {
			return err
		}

		fmt.Printf("ingested %d entries into %s\n", committed.Len(), args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringArrayVar(&addInclude, "include", nil, "only ingest paths matching this regex (repeatable)")
	addCmd.Flags().StringArrayVar(&addExclude, "exclude", nil, "skip paths matching this regex (repeatable, takes priority over --include)")
}

func buildAddOptions() (fileset.AddOptions, error) {
	opts := fileset.AddOptions{}
	for _, p := range addInclude {
		re, err := regexp.Compile(p)
		if err != nil {
			return opts, fmt.Errorf("invalid --include pattern %q: %w", p, err)
		}
		opts.Include = append(opts.Include, re)
	}
	for _, p := range addExclude {
		re, err := regexp.Compile(p)
		if err != nil {
			return opts, fmt.Errorf("invalid --exclude pattern %q: %w", p, err)
		}
		opts.Exclude = append(opts.Exclude, re)
	}
	return opts, nil
}
