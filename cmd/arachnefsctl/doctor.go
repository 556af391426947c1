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
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/arachne-framework/arachne-fileset/blobstore"
	"github.com/arachne-framework/arachne-fileset/hashutil"
)

var doctorRehash bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on the blob store and scratch directory",
	Long: `Run a read-only health check to confirm arachnefsctl can operate
safely.

Doctor verifies:
  - Blob store directory exists and is a directory
  - Scratch root exists and is a directory
  - How many blobs the store tracks, and (with --recheck) that every
    tracked blob's file is present and hashes to the value its name claims`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkPaths(); err != nil {
			return err
		}
		if err := checkBlobs(); err != nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorRehash, "recheck", false, "rehashes all blobs in the blob store to ensure integrity")
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

func checkPaths() error {
	fmt.Println(headerStyle.Render("Path Checks"))
	fmt.Println(subtleStyle.Render("  blobs:   " + ws.Store.Dir()))
	fmt.Println(subtleStyle.Render("  scratch: " + ws.Scratch.Root()))
	fmt.Println()

	var fatalErr error
	for _, dir := range []string{ws.Store.Dir(), ws.Scratch.Root()} {
		info, err := os.Stat(dir)
		if err != nil {
			fmt.Println(errStyle.Render(fmt.Sprintf("  ✗ %s: does not exist", dir)))
			fatalErr = errors.New("missing required directory")
			continue
		}
		if !info.IsDir() {
			fmt.Println(errStyle.Render(fmt.Sprintf("  ✗ %s: not a directory", dir)))
			fatalErr = errors.New("invalid directory type")
			continue
		}
		fmt.Println(okStyle.Render(fmt.Sprintf("  ✓ %s: OK", dir)))
	}

	fmt.Println()
	return fatalErr
}

func checkBlobs() error {
	fmt.Println(headerStyle.Render("Blob Store Checks"))

	stats, err := ws.Store.Stats()
	if err != nil {
		fmt.Println(errStyle.Render("  ✗ could not enumerate blobs"))
		fmt.Println(subtleStyle.Render("    " + err.Error()))
		return fmt.Errorf("enumerate blobs: %w", err)
	}

	fmt.Println(okStyle.Render(fmt.Sprintf("  ✓ %d blobs tracked", stats.BlobCount)))

	if doctorRehash {
		fmt.Println()
		if err := rehashAll(); err != nil {
			return err
		}
	}

	fmt.Println()
	return nil
}

func rehashAll() error {
	ids, err := ws.Store.BlobIDs()
	if err != nil {
		return fmt.Errorf("list blob ids: %w", err)
	}

	var mismatched, missing int
	for _, id := range ids {
		hash, _, err := blobstore.SplitBlobID(id)
		if err != nil {
			fmt.Println(errStyle.Render(fmt.Sprintf("  ✗ %s: %v", id, err)))
			mismatched++
			continue
		}

		path, err := ws.Store.PathForID(id)
		if err != nil {
			fmt.Println(errStyle.Render(fmt.Sprintf("  ✗ %s: %v", id, err)))
			missing++
			continue
		}

		got, err := hashutil.HashFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				fmt.Println(warnStyle.Render(fmt.Sprintf("  ⚠ %s: blob file missing", id)))
				missing++
				continue
			}
			return fmt.Errorf("hash %s: %w", path, err)
		}

		if got != hash {
			fmt.Println(errStyle.Render(fmt.Sprintf("  ✗ %s: hash mismatch (got %s)", id, got)))
			mismatched++
		}
	}

	if mismatched == 0 && missing == 0 {
		fmt.Println(okStyle.Render(fmt.Sprintf("  ✓ rehashed %d blobs, all verified", len(ids))))
		return nil
	}

	fmt.Println(subtleStyle.Render(fmt.Sprintf("  rehashed %d blobs: %d mismatched, %d missing", len(ids), mismatched, missing)))
	if mismatched > 0 {
		return fmt.Errorf("blob integrity check failed: %d mismatched blobs", mismatched)
	}
	return nil
}
