package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edgecomet/pdfgen/internal/common/config"
	logutil "github.com/edgecomet/pdfgen/internal/common/logger"
	"github.com/edgecomet/pdfgen/internal/common/requestid"
	"github.com/edgecomet/pdfgen/internal/render/pipeline"
	"github.com/edgecomet/pdfgen/pkg/types"
)

func newRenderCommand(configPath *string) *cobra.Command {
	var (
		input     string
		output    string
		requestID string
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one request file through the full pipeline",
		Long: `Runs fingerprinting, locking, enrichment, composition and rendering once
against the configured Redis and browser. Reads the request JSON from --input
("-" for stdin) and writes the PDF to --output, defaulting to the derived file name.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			req, err := readRequest(input)
			if err != nil {
				return err
			}
			return runRender(cmd, cfg, req, requestid.GenerateRequestID(requestID), output)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "request JSON file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output PDF path")
	cmd.Flags().StringVar(&requestID, "request-id", "", "request ID suffix")
	return cmd
}

func readRequest(path string) (*types.RenderRequest, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read request: %w", err)
	}

	var req types.RenderRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("invalid request JSON: %w", err)
	}
	return &req, nil
}

func runRender(cmd *cobra.Command, cfg *config.Config, req *types.RenderRequest, reqID, output string) error {
	dynamicLogger, err := logutil.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	logger := dynamicLogger.Logger
	defer logger.Sync()

	comps, err := buildComponents(cfg, nil, logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	_, err = comps.pipeline.Run(cmd.Context(), req, reqID, func(a *pipeline.Artifact) error {
		path := output
		if path == "" {
			path = a.FileName
		}
		if err := os.WriteFile(path, a.Body, 0644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s written (%s, %d attempt(s), %d warning(s))\n",
			path, humanize.Bytes(uint64(len(a.Body))), a.Attempts, len(a.Warnings))
		for _, w := range a.Warnings {
			fmt.Fprintf(cmd.OutOrStdout(), "  warning: %s\n", w)
		}
		return nil
	})
	if err != nil {
		logger.Debug("Render command failed", zap.String("request_id", reqID), zap.Error(err))
		return fmt.Errorf("request %s: %w", reqID, err)
	}
	return nil
}
