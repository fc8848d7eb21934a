package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/pdf-service.yaml"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "pdf-service",
		Short:         "Idempotent HTML template to PDF rendering service",
		SilenceErrors: true,
		SilenceUsage:  true,
		Example: `
  # Run the HTTP service
  pdf-service serve -c configs/pdf-service.yaml

  # Render one request file without the HTTP layer
  pdf-service render -c configs/pdf-service.yaml -i request.json -o invoice.pdf

  # List loaded templates and fragments
  pdf-service templates -c configs/pdf-service.yaml

  # Print the markup kept for a failed render
  pdf-service dump show dumps/2024-03-09/a1b2c.html.lz4
`,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to configuration file")

	cmd.AddCommand(newServeCommand(&configPath))
	cmd.AddCommand(newRenderCommand(&configPath))
	cmd.AddCommand(newTemplatesCommand(&configPath))
	cmd.AddCommand(newDumpCommand())
	return cmd
}
