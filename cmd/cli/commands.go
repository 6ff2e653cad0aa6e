package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/grocery-tracker/internal/app"
	"github.com/dvloznov/grocery-tracker/internal/blob"
	"github.com/dvloznov/grocery-tracker/internal/domain"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload receipt images to the blob store",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		blobs, err := blob.Open(cmd.Context(), cfg.Blob, cfg.AWS, log)
		if err != nil {
			return err
		}

		urls := make([]string, 0, len(args))
		for _, path := range args {
			url, err := uploadFile(cmd.Context(), blobs, cfg.Blob.Prefix, path)
			if err != nil {
				return err
			}
			log.Info().Str("file", path).Str("url", url).Msg("Uploaded")
			urls = append(urls, url)
		}
		return printJSON(map[string][]string{"file_urls": urls})
	},
}

func uploadFile(ctx context.Context, blobs blob.Store, prefix, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return blobs.Put(ctx, blob.ObjectKey(prefix, filepath.Base(path)), f, contentType)
}

var (
	flagForce       bool
	flagWait        time.Duration
	flagStartDate   string
	flagEndDate     string
	flagHouseholdID string
	flagUserEmail   string
	flagUserID      string
	flagAction      string
)

var reprocessCmd = &cobra.Command{
	Use:   "reprocess <receipt-id>",
	Short: "Send a receipt back through OCR and enhancement and wait for the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.StartWorkers(ctx); err != nil {
				return err
			}
			res, err := a.Receipts.Reprocess(ctx, args[0], flagForce)
			if err != nil {
				return err
			}

			waitCtx, cancel := context.WithTimeout(ctx, flagWait)
			defer cancel()
			if err := waitForJob(waitCtx, a, res.JobID); err != nil {
				return err
			}

			receipt, err := a.Receipts.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(receipt)
		})
	},
}

// waitForJob polls the job store until the job reaches a terminal status.
func waitForJob(ctx context.Context, a *app.App, jobID string) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		job, err := a.JobStore.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status.Terminal() {
			a.Log.Info().Str("job_id", jobID).Str("status", string(job.Status)).Int("retries", job.RetryCount).Msg("Job finished")
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for job %s: %w", jobID, ctx.Err())
		case <-ticker.C:
		}
	}
}

var creditReportCmd = &cobra.Command{
	Use:   "credit-report",
	Short: "Summarize credit usage between two dates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		from, err := parseDateFlag(flagStartDate, false)
		if err != nil {
			return err
		}
		to, err := parseDateFlag(flagEndDate, true)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			report, err := a.Housekeeping.CreditReport(ctx, from, to)
			if err != nil {
				return err
			}
			return printJSON(report)
		})
	},
}

// parseDateFlag parses YYYY-MM-DD; an end date covers the whole day.
func parseDateFlag(raw string, end bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q, want YYYY-MM-DD", domain.ErrValidation, raw)
	}
	if end {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Fold reviewed receipt items into per-store price histories",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Housekeeping.AggregateGroceryData(ctx)
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

var rolloverCmd = &cobra.Command{
	Use:   "rollover",
	Short: "Roll a household's active budget into the next period, or every expired budget",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if flagHouseholdID != "" {
				res, err := a.Housekeeping.RolloverBudget(ctx, flagHouseholdID, flagUserEmail)
				if err != nil {
					return err
				}
				return printJSON(res)
			}
			n, err := a.Housekeeping.RolloverExpiredBudgets(ctx)
			if err != nil {
				return err
			}
			return printJSON(map[string]int{"rolled_over": n})
		})
	},
}

var modeledDataCmd = &cobra.Command{
	Use:   "modeled-data",
	Short: "Generate or remove test receipts for a user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if flagUserEmail == "" {
			return fmt.Errorf("--user-email is required")
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Housekeeping.GenerateModeledData(ctx, flagAction, flagUserEmail, flagHouseholdID)
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

var deleteAccountCmd = &cobra.Command{
	Use:   "delete-account",
	Short: "Delete every document owned by a user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if flagUserEmail == "" {
			return fmt.Errorf("--user-email is required")
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Housekeeping.DeleteUserAccount(ctx, flagUserID, flagUserEmail)
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

func init() {
	reprocessCmd.Flags().BoolVar(&flagForce, "force", false, "Reprocess even a reviewed receipt, discarding its edits")
	reprocessCmd.Flags().DurationVar(&flagWait, "wait", 5*time.Minute, "How long to wait for the pipeline")

	creditReportCmd.Flags().StringVar(&flagStartDate, "start-date", "", "First day, YYYY-MM-DD")
	creditReportCmd.Flags().StringVar(&flagEndDate, "end-date", "", "Last day, YYYY-MM-DD")

	rolloverCmd.Flags().StringVar(&flagHouseholdID, "household-id", "", "Household to roll over (default: every expired budget)")
	rolloverCmd.Flags().StringVar(&flagUserEmail, "user-email", "", "Owner of the new budget")

	modeledDataCmd.Flags().StringVar(&flagAction, "action", "generate", "generate or remove")
	modeledDataCmd.Flags().StringVar(&flagUserEmail, "user-email", "", "Owner of the test receipts")
	modeledDataCmd.Flags().StringVar(&flagHouseholdID, "household-id", "", "Household of the test receipts")

	deleteAccountCmd.Flags().StringVar(&flagUserEmail, "user-email", "", "Email of the account to delete")
	deleteAccountCmd.Flags().StringVar(&flagUserID, "user-id", "", "User ID, for the audit log")

	rootCmd.AddCommand(uploadCmd, reprocessCmd, creditReportCmd, aggregateCmd, rolloverCmd, modeledDataCmd, deleteAccountCmd)
}
