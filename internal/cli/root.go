package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/docchat-backend/internal/app"
	"github.com/yungbote/docchat-backend/internal/ingestion"
	"github.com/yungbote/docchat-backend/internal/platform/logger"
)

// Opener builds the ingestion process for one command invocation.
type Opener func(ctx context.Context, log *logger.Logger) (*app.Ingest, error)

// NewRootCommand returns the docchat-ingest command tree.
func NewRootCommand(log *logger.Logger, open Opener) *cobra.Command {
	if open == nil {
		open = app.NewIngest
	}
	root := &cobra.Command{
		Use:           "docchat-ingest",
		Short:         "Load, chunk and index documents for retrieval",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRunCommand(log, open),
		newWatchCommand(log, open),
		newSourcesCommand(log, open),
		newForgetCommand(log, open),
	)
	return root
}

func withIngest(cmd *cobra.Command, log *logger.Logger, open Opener, fn func(ctx context.Context, in *app.Ingest) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	in, err := open(ctx, log)
	if err != nil {
		return fmt.Errorf("init ingestion: %w", err)
	}
	defer in.Close()
	return fn(ctx, in)
}

func parseSource(raw string) (ingestion.Source, error) {
	switch src := ingestion.Source(strings.ToLower(strings.TrimSpace(raw))); src {
	case ingestion.SourceLocal, ingestion.SourceBucket:
		return src, nil
	default:
		return "", fmt.Errorf("unknown source %q (want local or bucket)", raw)
	}
}

func newRunCommand(log *logger.Logger, open Opener) *cobra.Command {
	var (
		source string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Ingest every document from a source once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := parseSource(source)
			if err != nil {
				return err
			}
			return withIngest(cmd, log, open, func(ctx context.Context, in *app.Ingest) error {
				rep, err := in.Pipeline.Run(ctx, src)
				if err != nil {
					return err
				}
				return printReport(cmd, rep, asJSON)
			})
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", string(ingestion.SourceLocal), "document source: local or bucket")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run report as JSON")
	return cmd
}

func newWatchCommand(log *logger.Logger, open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Ingest the docs directory, then re-ingest on every change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIngest(cmd, log, open, func(ctx context.Context, in *app.Ingest) error {
				rep, err := in.Pipeline.Run(ctx, ingestion.SourceLocal)
				switch {
				case errors.Is(err, ingestion.ErrNoDocuments):
					cmd.Println("No documents yet; waiting for changes.")
				case err != nil:
					return err
				default:
					if err := printReport(cmd, rep, false); err != nil {
						return err
					}
				}
				err = in.Watch(ctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
}

func newSourcesCommand(log *logger.Logger, open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List source keys recorded in the ingestion ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIngest(cmd, log, open, func(ctx context.Context, in *app.Ingest) error {
				keys, err := in.Pipeline.IngestedSources(ctx)
				if err != nil {
					return err
				}
				if len(keys) == 0 {
					cmd.Println("No ingested sources.")
					return nil
				}
				for _, k := range keys {
					cmd.Println(k)
				}
				return nil
			})
		},
	}
}

func newForgetCommand(log *logger.Logger, open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "forget [source-key...]",
		Short: "Remove a source's chunks from the index and the ledger",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIngest(cmd, log, open, func(ctx context.Context, in *app.Ingest) error {
				n, err := in.Pipeline.Forget(ctx, args)
				if err != nil {
					return err
				}
				cmd.Printf("Removed %d chunks from %d sources.\n", n, len(args))
				return nil
			})
		},
	}
}

func printReport(cmd *cobra.Command, rep *ingestion.Report, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	cmd.Printf("Ingested %s: %d files, %d documents, %d chunks (%d upserted, %d pruned) in %s\n",
		rep.Source, rep.Files, rep.Documents, rep.Chunks, rep.Upserted, rep.Pruned, rep.Duration.Round(time.Millisecond))
	return nil
}
