// Command dbdump prints the on-disk structure of a coredb database:
// file header fields, a column's B+-tree shape, and commit log state.
// Adapted from the teacher's flag-based dump_hdf5 into a cobra command
// tree, since the rest of this pack reaches for cobra over flag.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gocoredb/coredb/internal/arena"
	"github.com/gocoredb/coredb/internal/bptree"
	"github.com/gocoredb/coredb/internal/commitlog"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dbdump",
		Short:         "Inspect a coredb database's on-disk structure",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newInfoCmd(), newTreeCmd(), newLogCmd())
	return root
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <dir>",
		Short: "Print the file header: top ref, version, free-list ref",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := arena.Open(args[0]+"/data.db", nil)
			if err != nil {
				return err
			}
			defer a.Close()

			h := a.Header()
			ref, version := h.ActiveTopRef()
			fmt.Printf("magic:          0x%016x\n", h.Magic)
			fmt.Printf("format version: %d\n", h.Version)
			fmt.Printf("top ref:        %d\n", ref)
			fmt.Printf("top version:    %d\n", version)
			fmt.Printf("free list ref:  %d\n", h.FreeListRef)
			fmt.Printf("generation:     %d\n", h.Generation)
			fmt.Printf("file size:      %d bytes\n", h.FileSize)
			return nil
		},
	}
}

func newTreeCmd() *cobra.Command {
	var column string
	cmd := &cobra.Command{
		Use:   "tree <dir>",
		Short: "Walk a column's B+-tree and print its node structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := arena.Open(args[0]+"/data.db", nil)
			if err != nil {
				return err
			}
			defer a.Close()

			ref, err := strconv.ParseUint(column, 10, 64)
			if err != nil {
				return fmt.Errorf("--column must be a ref (decimal integer): %w", err)
			}

			return bptree.Walk(a, arena.Ref(ref), func(n bptree.NodeInfo) {
				indent := ""
				for i := 0; i < n.Depth; i++ {
					indent += "  "
				}
				if n.Children > 0 {
					fmt.Printf("%sref=%d inner children=%d size=%d\n", indent, n.Ref, n.Children, n.Header.Size)
				} else {
					fmt.Printf("%sref=%d leaf encoding=%s width=%d size=%d\n", indent, n.Ref, n.Header.Encoding, n.Header.Width, n.Header.Size)
				}
			})
		},
	}
	cmd.Flags().StringVar(&column, "column", "", "ref of the column's tree root")
	_ = cmd.MarkFlagRequired("column")
	return cmd
}

func newLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log <dir>",
		Short: "Print the commit log's active preamble",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := commitlog.Open(args[0] + "/log")
			if err != nil {
				return err
			}
			defer log.Close()

			p, err := log.Stat()
			if err != nil {
				return err
			}
			fmt.Printf("active file:   %s\n", activeFileName(p.ActiveIsA))
			fmt.Printf("begin oldest:  %d\n", p.BeginOldest)
			fmt.Printf("begin newest:  %d\n", p.BeginNewest)
			fmt.Printf("end:           %d\n", p.End)
			fmt.Printf("write offset:  %d\n", p.WriteOffset)
			fmt.Printf("last seen:     %d\n", p.LastSeen)
			fmt.Printf("entry count:   %d\n", p.End-p.BeginOldest)
			return nil
		},
	}
}

func activeFileName(activeIsA bool) string {
	if activeIsA {
		return "log_a"
	}
	return "log_b"
}
