package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect artifact generation jobs",
	Long: `List your artifact generation jobs or inspect a specific job by ID.

Examples:
  studygen jobs           # List your jobs
  studygen jobs abc123    # Show details for job abc123`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// If job ID provided, show that specific job
	if len(args) == 1 {
		return showJob(ctx, args[0])
	}

	// List all jobs
	return listJobs(ctx)
}

func listJobs(ctx context.Context) error {
	jobs, err := getJobService().ListJobs(ctx, userID, 50)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-38s %-12s %-12s %-9s %s\n", "ID", "TYPE", "STATUS", "PROGRESS", "CREATED")
	fmt.Println("--------------------------------------------------------------------------------")

	for _, job := range jobs {
		created := job.CreatedAt.Local().Format("Jan 02 15:04")
		fmt.Printf("%-38s %-12s %-12s %8d%% %s\n",
			job.JobID(), job.ArtifactType, defaultTheme.statusLabel(job.Status), job.Progress, created)
	}

	return nil
}

func showJob(ctx context.Context, id string) error {
	job, err := getJobService().GetJob(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Printf("Job: %s\n", job.JobID())
	fmt.Printf("  Type: %s\n", job.ArtifactType)
	fmt.Printf("  Notebook: %s\n", job.NotebookID)
	fmt.Printf("  Status: %s\n", defaultTheme.statusLabel(job.Status))
	fmt.Printf("  Progress: %d%%\n", job.Progress)
	fmt.Printf("  Tokens: %d/%d\n", job.TokensUsed, job.TokenBudget)
	fmt.Printf("  Snapshot: %d chunks (%s / %s)\n",
		len(job.Snapshot.Chunks), job.Snapshot.EmbeddingModel, job.Snapshot.ChunkingVersion)
	fmt.Printf("  Created: %s\n", job.CreatedAt.Format(time.RFC3339))
	if job.StartedAt != nil {
		fmt.Printf("  Started: %s\n", job.StartedAt.Format(time.RFC3339))
	}
	if job.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", job.CompletedAt.Format(time.RFC3339))
		if job.StartedAt != nil {
			fmt.Printf("  Duration: %s\n", job.CompletedAt.Sub(*job.StartedAt).Round(time.Second))
		}
	}
	if job.WorkerID != nil {
		fmt.Printf("  Worker: %s\n", *job.WorkerID)
	}
	if job.RetryCount > 0 {
		fmt.Printf("  Resubmissions: %d\n", job.RetryCount)
	}

	if job.Error != nil {
		fmt.Println(defaultTheme.errorStyle().Render("\nError: " + job.Error.String()))
	}

	if job.Result != nil {
		fmt.Println("\nResult:")
		fmt.Println(job.Result.JSON())
	}

	return nil
}
