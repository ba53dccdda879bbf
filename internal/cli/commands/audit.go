package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/metalayer-labs/metasync/internal/audit"
	"github.com/metalayer-labs/metasync/internal/config"
	"github.com/metalayer-labs/metasync/pkg/core"
)

// NewAuditCommand creates the audit command group.
func NewAuditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect and export the audit trail",
	}
	cmd.AddCommand(newAuditExportCommand())
	cmd.AddCommand(newAuditTrailCommand())
	return cmd
}

// AuditExportOptions holds options for audit export.
type AuditExportOptions struct {
	Format string
	Output string
	Limit  int
}

func newAuditExportCommand() *cobra.Command {
	opts := &AuditExportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export audit entries for compliance review",
		Long: `Export the audit trail as line-delimited JSON or CSV. Entries are
written oldest first; --limit keeps only the newest N.`,
		Example: `  # Full trail to stdout
  metasync audit export

  # Latest thousand entries as CSV
  metasync audit export --format csv --limit 1000 --output audit.csv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAuditExport(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "jsonl", "Export format: jsonl or csv")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Export at most the newest N entries (0 = all)")

	return cmd
}

func runAuditExport(cmd *cobra.Command, opts *AuditExportOptions) error {
	cfg := config.FromContext(cmd.Context())
	logger := config.LoggerFromContext(cmd.Context())

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	entries, err := store.ListAudit(opts.Limit)
	if err != nil {
		return fmt.Errorf("failed to list audit entries: %w", err)
	}
	// ListAudit returns newest first; exports read oldest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	var w io.Writer = cmd.OutOrStdout()
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	switch opts.Format {
	case "jsonl", "json":
		err = audit.ExportJSONL(w, entries)
	case "csv":
		err = audit.ExportCSV(w, entries)
	default:
		return fmt.Errorf("unknown export format %q (want jsonl or csv)", opts.Format)
	}
	if err != nil {
		return err
	}
	if opts.Output != "" {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Exported %d entries to %s\n", len(entries), opts.Output)
	}
	return nil
}

func newAuditTrailCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trail <correlation-id>",
		Short: "Show the causal chain of one sync",
		Long: `Print every audit entry sharing a correlation id, in the order it was
recorded: discovery, mapping, queueing, dispatch, conflict handling,
and the final outcome.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuditTrail(cmd, args[0])
		},
	}
	return cmd
}

func runAuditTrail(cmd *cobra.Command, correlationID string) error {
	cfg := config.FromContext(cmd.Context())
	logger := config.LoggerFromContext(cmd.Context())

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	entries, err := store.AuditByCorrelation(correlationID)
	if err != nil {
		return fmt.Errorf("failed to query audit trail: %w", err)
	}
	if len(entries) == 0 {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "No audit entries for correlation id %s\n", correlationID)
		return nil
	}

	renderTrail(cmd.OutOrStdout(), entries)
	return nil
}

func renderTrail(w io.Writer, entries []*core.AuditLogEntry) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"TIMESTAMP", "EVENT", "SEVERITY", "ASSET", "DETAILS"})
	for _, e := range entries {
		t.AppendRow(table.Row{
			e.Timestamp.Local().Format(time.RFC3339),
			string(e.Event),
			string(e.Severity),
			e.AssetID,
			e.Details,
		})
	}
	t.Render()
}
