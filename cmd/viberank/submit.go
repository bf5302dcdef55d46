package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ncecere/viberank/internal/app"
	"github.com/ncecere/viberank/internal/models"
	"github.com/ncecere/viberank/internal/submitclient"
	"github.com/ncecere/viberank/internal/validation"
)

type submitOptions struct {
	input      string
	url        string
	githubUser string
	usageCmd   string
	dryRun     bool
	run        submitclient.Runner
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Faint(true).Width(14)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

func newSubmitCmd() *cobra.Command {
	opts := submitOptions{run: submitclient.ExecRunner}
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Collect usage and submit it to the leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.input, "input", "", "Read the ccusage JSON from a file instead of running the usage command")
	cmd.Flags().StringVar(&opts.url, "url", submitclient.DefaultBaseURL, "viberank server URL")
	cmd.Flags().StringVar(&opts.githubUser, "github-user", "", "GitHub username (defaults to git config github.user, then user.name)")
	cmd.Flags().StringVar(&opts.usageCmd, "usage-cmd", submitclient.DefaultUsageCommand, "Command that prints the usage JSON")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Validate and print the summary without submitting")
	return cmd
}

func runSubmit(ctx context.Context, opts submitOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	run := opts.run
	if run == nil {
		run = submitclient.ExecRunner
	}

	username, err := submitclient.ResolveGitHubUser(ctx, run, opts.githubUser)
	if err != nil {
		return err
	}
	if !app.ValidUsername(username) {
		return fmt.Errorf("%q is not a valid GitHub username; pass --github-user", username)
	}

	raw, err := submitclient.CollectUsage(ctx, run, opts.usageCmd, opts.input)
	if err != nil {
		return err
	}
	report, body, err := submitclient.ParseReport(raw)
	if err != nil {
		return err
	}

	result, err := validation.New(validation.DefaultLimits()).Validate(report)
	if err != nil {
		return fmt.Errorf("usage data rejected: %w", err)
	}

	printSummary(out, username, report, result)
	if opts.dryRun {
		fmt.Fprintln(out, "dry run: nothing submitted")
		return nil
	}

	client := submitclient.New(opts.url, nil)
	res, err := client.Submit(ctx, username, body, uuid.NewString())
	if err != nil {
		if submitclient.IsRateLimited(err) {
			return fmt.Errorf("submission rate limited, try again later: %w", err)
		}
		return err
	}

	fmt.Fprintln(out, okStyle.Render(res.Message))
	fmt.Fprintf(out, "%s/profile/%s\n", client.BaseURL(), username)
	return nil
}

func printSummary(out io.Writer, username string, report models.Report, result validation.Result) {
	dates := make([]string, 0, len(report.Daily))
	for _, day := range report.Daily {
		dates = append(dates, day.Date)
	}
	start, end := dates[0], dates[0]
	for _, d := range dates {
		if d < start {
			start = d
		}
		if d > end {
			end = d
		}
	}

	lines := []string{
		titleStyle.Render("Claude Code usage"),
		labelStyle.Render("user") + username,
		labelStyle.Render("period") + start + " to " + end,
		labelStyle.Render("days") + fmt.Sprintf("%d", len(report.Daily)),
		labelStyle.Render("tokens") + formatTokens(report.Totals.TotalTokens),
		labelStyle.Render("cost") + fmt.Sprintf("$%.2f", report.Totals.TotalCost),
	}
	fmt.Fprintln(out, strings.Join(lines, "\n"))
	if result.Flagged {
		fmt.Fprintln(out, warnStyle.Render("this submission will be flagged for review:"))
		for _, reason := range result.FlagReasons {
			fmt.Fprintf(out, "  - %s\n", reason)
		}
	}
}

func formatTokens(n int64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.2fB", float64(n)/1e9)
	case n >= 1_000_000:
		return fmt.Sprintf("%.2fM", float64(n)/1e6)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1e3)
	default:
		return fmt.Sprintf("%d", n)
	}
}
