package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"scribe/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "submit <url>",
		Short: "Submit a video for transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			job, err := client.submit(cmd.Context(), args[0], userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %d queued for %s\n", job.ID, job.URL)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User identifier to associate with the job")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			job, err := client.jobStatus(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderJobDetail(job))
			return nil
		},
	}
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			listing, err := client.listJobs(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if len(listing.Jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs found.")
				return nil
			}

			rows := make([][]string, 0, len(listing.Jobs))
			for _, job := range listing.Jobs {
				rows = append(rows, []string{
					strconv.FormatInt(job.ID, 10),
					job.Status,
					fmt.Sprintf("%d%%", job.Progress),
					jobTitle(job),
					job.URL,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Status", "Progress", "Title", "URL"}, rows, 0, 2))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "Only list jobs for this user")
	return cmd
}

func newInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "info <url>",
		Short: "Look up video metadata without submitting a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			info, err := client.videoInfo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Title:    %s\n", info.Title)
			fmt.Fprintf(out, "Author:   %s\n", info.Author)
			fmt.Fprintf(out, "Duration: %ds\n", info.Duration)
			if info.Description != "" {
				fmt.Fprintf(out, "\n%s\n", info.Description)
			}
			return nil
		},
	}
}

func newResultCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "result <url>",
		Short: "Show the stored transcription and analysis for a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			detail, err := client.videoDetail(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Title:  %s\n", detail.Title)
			fmt.Fprintf(out, "Status: %s\n", detail.Status)
			if detail.Transcription == nil {
				fmt.Fprintln(out, "\nNo transcription stored yet.")
				return nil
			}
			if detail.Transcription.IsMusic {
				fmt.Fprintln(out, "\nContent classified as music; transcription was skipped.")
				return nil
			}
			fmt.Fprintf(out, "\nTranscript (confidence %.2f):\n%s\n", detail.Transcription.Confidence, detail.Transcription.Text)
			if detail.Analysis != nil {
				fmt.Fprintf(out, "\nSummary:   %s\n", detail.Analysis.Summary)
				fmt.Fprintf(out, "Sentiment: %s\n", detail.Analysis.Sentiment)
				for _, point := range detail.Analysis.KeyPoints {
					fmt.Fprintf(out, "  - %s\n", point)
				}
			}
			return nil
		},
	}
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show queue health counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			health, err := client.health(cmd.Context())
			if err != nil {
				return err
			}
			rows := [][]string{
				{"waiting", strconv.Itoa(health.Waiting)},
				{"active", strconv.Itoa(health.Active)},
				{"delayed", strconv.Itoa(health.Delayed)},
				{"completed", strconv.Itoa(health.Completed)},
				{"failed", strconv.Itoa(health.Failed)},
				{"total", strconv.Itoa(health.Total)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Bucket", "Jobs"}, rows, 1))
			return nil
		},
	}
}

func jobTitle(job api.JobView) string {
	if job.Video != nil && job.Video.Title != "" {
		return job.Video.Title
	}
	return "-"
}

func renderJobDetail(job api.JobView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job:      %d\n", job.ID)
	fmt.Fprintf(&b, "URL:      %s\n", job.URL)
	fmt.Fprintf(&b, "Status:   %s\n", job.Status)
	fmt.Fprintf(&b, "Progress: %d%%\n", job.Progress)
	fmt.Fprintf(&b, "Attempts: %d/%d\n", job.Attempts, job.MaxAttempts)
	if job.FailureReason != "" {
		fmt.Fprintf(&b, "Failure:  %s\n", job.FailureReason)
		if job.Final {
			fmt.Fprintf(&b, "Final:    yes (no further retries)\n")
		} else {
			fmt.Fprintf(&b, "Final:    no (retry scheduled)\n")
		}
	}
	if job.IsMusic {
		fmt.Fprintf(&b, "Content:  music (transcription skipped)\n")
	}
	if job.Video != nil {
		fmt.Fprintf(&b, "Video:    %s (%s)\n", jobTitle(job), job.Video.Status)
		fmt.Fprintf(&b, "Records:  transcription=%v analysis=%v\n",
			job.Video.HasTranscription, job.Video.HasAnalysis)
	}
	return strings.TrimRight(b.String(), "\n")
}
