package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	app "github.com/mohammadpnp/account-reconcile/internal/application/reconcile"
	"github.com/mohammadpnp/account-reconcile/internal/bootstrap"
	infrafile "github.com/mohammadpnp/account-reconcile/internal/infrastructure/file"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *bootstrap.App) error {
				return a.Migrate(ctx)
			})
		},
	}
}

type previewOutput struct {
	BatchID       string   `json:"batch_id"`
	Status        string   `json:"status"`
	PreviewSHA256 string   `json:"preview_sha256"`
	Summary       any      `json:"summary"`
	Warnings      []string `json:"warnings"`
	TotalItems    int      `json:"total_items"`
	Items         any      `json:"items,omitempty"`
}

func newPreviewCmd() *cobra.Command {
	var (
		targetID   string
		path       string
		actor      string
		reportPath string
		showItems  bool
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Diff a CSV against a target and persist the plan as a batch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *bootstrap.App) error {
				raw, err := infrafile.NewLocalSource(a.Config.ImportBaseDir, a.Config.MaxUploadBytes).ReadAll(ctx, path)
				if err != nil {
					return err
				}

				out, err := a.UseCases.Preview.Execute(ctx, app.PreviewBatchInput{TargetID: targetID, Actor: actor, CSV: raw})
				if err != nil {
					return err
				}

				if reportPath != "" {
					report, err := a.UseCases.Report.Execute(ctx, app.ExportBatchReportInput{
						TargetID: targetID,
						BatchID:  out.BatchID,
						Format:   formatFromPath(reportPath),
					})
					if err != nil {
						return err
					}
					if err := writeContent(cmd.OutOrStdout(), reportPath, report.Content); err != nil {
						return err
					}
				}

				result := previewOutput{
					BatchID:       out.BatchID,
					Status:        string(out.Status),
					PreviewSHA256: out.PreviewSHA256,
					Summary:       out.Summary,
					Warnings:      out.Warnings,
					TotalItems:    out.TotalItems,
				}
				if showItems {
					result.Items = out.Items
				}
				return writeJSON(cmd.OutOrStdout(), result)
			})
		},
	}

	cmd.Flags().StringVar(&targetID, "target", "", "Target id from the targets file (required)")
	cmd.Flags().StringVar(&path, "file", "", "CSV file, relative to IMPORT_BASE_DIR, or - for stdin (required)")
	cmd.Flags().StringVar(&actor, "actor", defaultActor(), "Actor recorded on the batch")
	cmd.Flags().StringVar(&reportPath, "report", "", "Also write the full preview report (.csv or .xlsx)")
	cmd.Flags().BoolVar(&showItems, "items", false, "Include the first preview items in the output")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newApplyCmd() *cobra.Command {
	var (
		targetID    string
		batchID     string
		previewHash string
		actor       string
		yes         bool
		confirmText string
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a previewed batch to its target",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *bootstrap.App) error {
				out, err := a.UseCases.Apply.Execute(ctx, app.ApplyBatchInput{
					TargetID:      targetID,
					BatchID:       batchID,
					Actor:         actor,
					PreviewSHA256: previewHash,
					Confirm:       yes,
					ConfirmText:   confirmText,
				})
				if err != nil {
					return err
				}
				if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
					return err
				}
				if out.Failed > 0 {
					return fmt.Errorf("%d rows failed; batch is %s", out.Failed, out.Status)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&targetID, "target", "", "Target id (required)")
	cmd.Flags().StringVar(&batchID, "batch", "", "Batch id returned by preview (required)")
	cmd.Flags().StringVar(&previewHash, "sha", "", "preview_sha256 returned by preview (required)")
	cmd.Flags().StringVar(&actor, "actor", defaultActor(), "Actor recorded in the audit log")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the apply")
	cmd.Flags().StringVar(&confirmText, "confirm-text", "", "Typed confirmation, APPLY, when required")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("batch")
	_ = cmd.MarkFlagRequired("sha")
	return cmd
}

func newRecoverCmd() *cobra.Command {
	var (
		targetID string
		batchID  string
		actor    string
	)

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Mark a batch left in applying by a crashed run as failed so it can be retried",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *bootstrap.App) error {
				out, err := a.UseCases.Recover.Execute(ctx, app.RecoverBatchInput{TargetID: targetID, BatchID: batchID, Actor: actor})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}

	cmd.Flags().StringVar(&targetID, "target", "", "Target id (required)")
	cmd.Flags().StringVar(&batchID, "batch", "", "Batch id (required)")
	cmd.Flags().StringVar(&actor, "actor", defaultActor(), "Actor recorded in the log")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("batch")
	return cmd
}

func newReportCmd() *cobra.Command {
	var (
		targetID string
		batchID  string
		format   string
		outPath  string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export the preview report of a persisted batch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *bootstrap.App) error {
				if format == "" {
					format = formatFromPath(outPath)
				}
				out, err := a.UseCases.Report.Execute(ctx, app.ExportBatchReportInput{TargetID: targetID, BatchID: batchID, Format: format})
				if err != nil {
					return err
				}
				return writeContent(cmd.OutOrStdout(), outPath, out.Content)
			})
		},
	}

	cmd.Flags().StringVar(&targetID, "target", "", "Target id (required)")
	cmd.Flags().StringVar(&batchID, "batch", "", "Batch id (required)")
	cmd.Flags().StringVar(&format, "format", "", "csv or xlsx; defaults from --out extension")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file, stdout when empty")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("batch")
	return cmd
}

func newExportUsersCmd() *cobra.Command {
	var (
		targetID string
		outPath  string
	)

	cmd := &cobra.Command{
		Use:   "export-users",
		Short: "Export the target's current users in the import CSV format",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *bootstrap.App) error {
				out, err := a.UseCases.ExportUsers.Execute(ctx, app.ExportTargetUsersInput{TargetID: targetID})
				if err != nil {
					return err
				}
				return writeContent(cmd.OutOrStdout(), outPath, out.Content)
			})
		},
	}

	cmd.Flags().StringVar(&targetID, "target", "", "Target id (required)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file, stdout when empty")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func formatFromPath(path string) string {
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return string(app.ReportXLSX)
	}
	return string(app.ReportCSV)
}
