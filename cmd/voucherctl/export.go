package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	exportapp "github.com/erp/voucher-export/internal/application/export"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Run voucher exports and reverse their markers",
}

var exportRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Export the vouchers of matching documents and wait for the file",
	Long: `Submit an export task and run it in this process. Filters use the same
syntax as the API, e.g. --where document_date=2024-01-01,2024-01-31.
With --out the produced file is copied to the given path.`,
	Example: `  voucherctl export run --tenant $T --user $U --type PAYMENT \
    --where document_date=2024-01-01,2024-01-31 --format xlsx --out jan.xlsx`,
	RunE: runExportRun,
}

var exportCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Clear the export markers set within a time window",
	Example: `  voucherctl export cancel --tenant $T --user $U --type RECEIPT \
    --from 2024-01-01T00:00:00Z --to 2024-01-31T23:59:59Z --reason "ledger fix"`,
	RunE: runExportCancel,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportRunCmd)
	exportCmd.AddCommand(exportCancelCmd)

	f := exportRunCmd.Flags()
	f.String("type", "", "Document type code (RECEIPT, PAYMENT, INVOICE, REQUISITION)")
	f.StringToString("where", nil, "Filter condition field=value, repeatable")
	f.String("format", "", "Output format: dbf or xlsx (default from config)")
	f.String("name", "", "Display name of the export file")
	f.String("remark", "", "Remark stored with the file")
	f.Bool("reexport", false, "Include documents that were already exported")
	f.String("out", "", "Copy the produced file to this path")
	_ = exportRunCmd.MarkFlagRequired("type")
	_ = exportRunCmd.MarkFlagRequired("where")

	f = exportCancelCmd.Flags()
	f.String("type", "", "Document type code")
	f.String("from", "", "Window start (RFC 3339)")
	f.String("to", "", "Window end (RFC 3339)")
	f.StringToString("where", nil, "Extra filter field=value, repeatable")
	f.String("reason", "", "Reason recorded on each reversal")
	_ = exportCancelCmd.MarkFlagRequired("type")
	_ = exportCancelCmd.MarkFlagRequired("from")
	_ = exportCancelCmd.MarkFlagRequired("to")
}

func runExportRun(cmd *cobra.Command, args []string) error {
	actor, err := operator()
	if err != nil {
		return err
	}
	typeCode, _ := cmd.Flags().GetString("type")
	conditions, _ := cmd.Flags().GetStringToString("where")
	format, _ := cmd.Flags().GetString("format")
	name, _ := cmd.Flags().GetString("name")
	remark, _ := cmd.Flags().GetString("remark")
	reexport, _ := cmd.Flags().GetBool("reexport")
	out, _ := cmd.Flags().GetString("out")

	// Ctrl-C cancels the run between documents
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	submitted, err := s.stack.Exports.Submit(ctx, exportapp.SubmitExportCommand{
		Actor:       actor,
		TypeCode:    typeCode,
		Conditions:  conditions,
		DisplayName: name,
		Remark:      remark,
		Format:      format,
		Reexport:    reexport,
	})
	if err != nil {
		return err
	}

	// the run may have been interrupted; read the final state on a fresh context
	task, err := s.stack.Exports.GetTask(context.Background(), actor.TenantID, submitted.TaskID)
	if err != nil {
		return err
	}
	if err := printJSON(task); err != nil {
		return err
	}
	if out == "" || task.FileID == nil {
		return nil
	}

	location, err := s.stack.Exports.FileLocation(context.Background(), actor.TenantID, task.ID)
	if err != nil {
		return err
	}
	if err := download(context.Background(), location.URL, out); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d bytes)\n", out, location.Size)
	return nil
}

func runExportCancel(cmd *cobra.Command, args []string) error {
	actor, err := operator()
	if err != nil {
		return err
	}
	typeCode, _ := cmd.Flags().GetString("type")
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	extra, _ := cmd.Flags().GetStringToString("where")
	reason, _ := cmd.Flags().GetString("reason")

	start, err := time.Parse(time.RFC3339, from)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	end, err := time.Parse(time.RFC3339, to)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}

	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := s.stack.Cancellations.Cancel(cmd.Context(), exportapp.CancelExportCommand{
		Actor:       actor,
		TypeCode:    typeCode,
		WindowStart: start,
		WindowEnd:   end,
		ExtraFilter: extra,
		Reason:      reason,
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}

// download copies the object behind a file location to dest. Local storage
// hands out file:// URLs, S3 presigned https URLs.
func download(ctx context.Context, rawURL, dest string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse file location: %w", err)
	}

	var src io.ReadCloser
	switch u.Scheme {
	case "file":
		src, err = os.Open(u.Path)
		if err != nil {
			return fmt.Errorf("open exported file: %w", err)
		}
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("fetch exported file: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("fetch exported file: unexpected status %s", resp.Status)
		}
		src = resp.Body
	default:
		return fmt.Errorf("unsupported file location scheme %q", u.Scheme)
	}
	defer src.Close()

	dst, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return dst.Close()
}
