package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edgecomet/pdfgen/internal/render/compose"
)

func newTemplatesCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List templates and fragments with the registry checksum",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			registry, err := compose.Load(cfg.Templates, zap.NewNop())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tNAME\tSIZE\tPATH")
			for _, name := range registry.Templates() {
				path := filepath.Join(cfg.Templates.Dir, name+compose.TemplateExt)
				fmt.Fprintf(w, "template\t%s\t%s\t%s\n", name, fileSize(path), path)
			}
			for _, name := range registry.Fragments() {
				path := registry.FragmentPath(name)
				fmt.Fprintf(w, "fragment\t%s\t%s\t%s\n", name, fileSize(path), path)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nchecksum: %s\n", registry.Checksum())
			return nil
		},
	}
}

func fileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "-"
	}
	return humanize.Bytes(uint64(info.Size()))
}
