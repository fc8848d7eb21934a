package main

import (
	"github.com/spf13/cobra"

	"github.com/edgecomet/pdfgen/internal/render/dump"
)

func newDumpCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Inspect markup dumped for failed renders",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <path>",
		Short: "Print a dump file, decompressing snappy and lz4 dumps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			markup, err := dump.Read(args[0])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(markup)
			return err
		},
	})
	return cmd
}
