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
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/arachne-framework/arachne-fileset/fileset"
)

var diffCmd = &cobra.Command{
	Use:   "diff [before-dir] [after-dir]",
	Short: "Show the set-algebraic difference between two directories' ingested filesets",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		before, err := fileset.New(ws.Store, ws.Scratch, ws.Logger).AddDirectory(args[0], fileset.AddOptions{})
		if err != nil {
			return fmt.Errorf("ingest %s: %w", args[0], err)
		}
		after, err := fileset.New(ws.Store, ws.Scratch, ws.Logger).AddDirectory(args[1], fileset.AddOptions{})
		if err != nil {
			return fmt.Errorf("ingest %s: %w", args[1], err)
		}

		d := fileset.Compare(before, after, nil)

		addedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
		removedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
		changedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("3"))

		for _, p := range sortedKeys(d.Added) {
			fmt.Println(addedStyle.Render("+ " + p))
		}
		for _, p := range sortedKeys(d.Removed) {
			fmt.Println(removedStyle.Render("- " + p))
		}
		for _, p := range sortedKeys(d.Changed) {
			fmt.Println(changedStyle.Render("~ " + p))
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(diffCmd)
}

func sortedKeys(m map[string]fileset.Entry) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
