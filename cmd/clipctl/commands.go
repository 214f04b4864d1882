package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/maheshrc27/clipcast/internal/models"
	"github.com/maheshrc27/clipcast/internal/scheduler"
	"github.com/maheshrc27/clipcast/internal/service"
	"github.com/maheshrc27/clipcast/pkg/utils"
	"github.com/spf13/cobra"
)

func newTickCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one scheduler pass in this process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			report, err := a.Scheduler.RunTick(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tick at %s, reset %d stuck job(s)\n", report.At.Format(time.RFC3339), report.Reset)
			for _, platform := range models.Platforms {
				if reason, ok := report.Held[platform]; ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s held: %s\n", platform, reason)
				}
			}
			if len(report.Items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing due")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Job", "Platform", "Outcome", "Post ID", "Note"},
				tickRows(report.Items),
			))
			return nil
		},
	}
}

func tickRows(items []scheduler.ItemResult) [][]string {
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{it.JobID, it.Platform, string(it.Outcome), it.Publish.ExternalPostID, it.Note})
	}
	return rows
}

func newPostNowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "post-now <job-id>...",
		Short: "Publish pending jobs immediately, still honouring the daily limit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			results, err := a.Scheduler.ForcePost(cmd.Context(), args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Job", "Success", "Deduped", "Post ID", "Note"},
				forceRows(results),
			))
			return nil
		},
	}
}

func forceRows(results []scheduler.ForceResult) [][]string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, []string{r.ID, yesNo(r.Success), yesNo(r.Deduped), r.ExternalPostID, r.Note})
	}
	return rows
}

func newDiagCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "diag",
		Short: "Explain why each platform is or is not posting today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			diags, err := a.Diagnostics.Diagnose(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Platform", "Enabled", "Creds", "Today", "Left", "Pending", "Failed", "Blockers"},
				diagRows(diags),
				4, 5, 6, 7,
			))
			for _, d := range diags {
				for _, f := range d.RecentFailures {
					fmt.Fprintf(cmd.OutOrStdout(), "%s failure %s: %s\n", d.Platform, f.Key, f.Error)
				}
			}
			return nil
		},
	}
}

func diagRows(diags []service.PlatformDiagnosis) [][]string {
	rows := make([][]string, 0, len(diags))
	for _, d := range diags {
		blockers := strings.Join(d.Blockers, "; ")
		if blockers == "" {
			blockers = "-"
		}
		rows = append(rows, []string{
			d.Platform,
			yesNo(d.Enabled),
			yesNo(d.CredentialsPresent),
			fmt.Sprintf("%d/%d", d.PostedToday, d.DailyLimit),
			strconv.Itoa(d.RemainingSlots),
			strconv.Itoa(d.Pending),
			strconv.Itoa(d.Failed),
			blockers,
		})
	}
	return rows
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var platform, status string
	var limit int
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List publish jobs by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			jobs, err := a.Jobs.List(cmd.Context(), platform, status, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Platform", "Status", "Scheduled", "Retries", "Last error"},
				jobRows(jobs),
				5,
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "", "Only jobs for this platform")
	cmd.Flags().StringVar(&status, "status", models.JobStatusPending, "pending, processing, posted or failed")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows")
	return cmd
}

func jobRows(jobs []*models.PublishJob) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, []string{
			j.ID,
			j.Platform,
			j.Status,
			j.ScheduledAt.Format("2006-01-02 15:04"),
			strconv.Itoa(j.RetryCount),
			j.LastError,
		})
	}
	return rows
}

func newRefillCommand(ctx *commandContext) *cobra.Command {
	var want int
	cmd := &cobra.Command{
		Use:   "refill <platform>",
		Short: "Select and enqueue new content for a platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !models.IsKnownPlatform(args[0]) {
				return fmt.Errorf("unknown platform %q", args[0])
			}
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			report, err := a.Selector.Select(cmd.Context(), args[0], want)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fetched %d, enqueued %d\n", report.Fetched, len(report.Enqueued))
			rows := make([][]string, 0, len(report.Skipped))
			for _, s := range report.Skipped {
				rows = append(rows, []string{s.ContentID, s.Reason, string(s.Rule), s.Ref})
			}
			if len(rows) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Content", "Skipped because", "Rule", "Matched"}, rows))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&want, "want", 3, "Number of jobs to enqueue")
	return cmd
}

func newKeygenCommand() *cobra.Command {
	var length int
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Print a random value for OPERATOR_API_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := utils.GenerateRandomKey(length)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	cmd.Flags().IntVar(&length, "bytes", 32, "Random bytes before encoding")
	return cmd
}

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var operator string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator bearer token signed with SECRET_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.ensureConfig()
			if cfg.SecretKey == "" {
				return fmt.Errorf("SECRET_KEY is not set")
			}
			token, err := utils.GenerateToken(cfg.SecretKey, operator, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&operator, "operator", "clipctl", "Operator name carried in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
