package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/raphaelgruber/studygen-go/internal/db"
	"github.com/raphaelgruber/studygen-go/internal/models"
	"github.com/raphaelgruber/studygen-go/internal/service"
	"github.com/raphaelgruber/studygen-go/internal/snapshot"
	"github.com/spf13/cobra"
)

var (
	createNotebook string
	createBudget   int
	createWait     bool
	createOptions  []string
)

var createCmd = &cobra.Command{
	Use:   "create <quiz|flashcards|mindmap> <notes-file>...",
	Short: "Create an artifact generation job from note files",
	Long: `Create an artifact generation job. The note files are chunked into a
retrieval snapshot at creation time; later edits to the files do not
affect the job.

Submitting the same files, type and options again while a job is still
running returns the running job instead of creating a duplicate.

Examples:
  studygen create quiz notes/biology.md
  studygen create flashcards notes/*.md --notebook bio101 --wait
  studygen create mindmap notes/photosynthesis.md -o difficulty=hard`,
	Args: cobra.MinimumNArgs(2),
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVarP(&createNotebook, "notebook", "n", "default", "notebook id")
	createCmd.Flags().IntVarP(&createBudget, "budget", "b", 0, "token budget (0 = server default)")
	createCmd.Flags().BoolVarP(&createWait, "wait", "w", false, "wait for the job to finish")
	createCmd.Flags().StringArrayVarP(&createOptions, "option", "o", nil, "generation option as key=value (repeatable)")
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	artifactType := models.ArtifactType(args[0])
	if !models.ValidArtifactType(artifactType) {
		return fmt.Errorf("unknown artifact type %q (expected quiz, flashcards or mindmap)", args[0])
	}

	options, err := parseOptions(createOptions)
	if err != nil {
		return err
	}

	snap, err := buildSnapshot(args[1:])
	if err != nil {
		return err
	}

	svc := getJobService()
	job, created, err := svc.CreateOrGet(ctx, service.JobRequest{
		UserID:       userID,
		NotebookID:   createNotebook,
		ArtifactType: artifactType,
		Options:      options,
		TokenBudget:  createBudget,
	}, snap)
	if err != nil {
		return err
	}

	if created {
		fmt.Printf("Created job %s (%d chunks, budget %d tokens)\n",
			job.JobID(), len(snap.Chunks), job.TokenBudget)
	} else {
		fmt.Printf("Matching job %s is already %s\n", job.JobID(), job.Status)
	}

	if !createWait {
		fmt.Println(defaultTheme.hintStyle().Render(
			fmt.Sprintf("Use 'studygen jobs %s' to check status.", job.JobID())))
		return nil
	}

	return waitForJob(ctx, svc, job.JobID())
}

// buildSnapshot chunks the given note files into one snapshot. Each file
// becomes its own source.
func buildSnapshot(paths []string) (models.RetrievalSnapshot, error) {
	combined := models.RetrievalSnapshot{
		EmbeddingModel:  cfg.EmbeddingModel,
		ChunkingVersion: cfg.ChunkingVersion,
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return models.RetrievalSnapshot{}, fmt.Errorf("read notes file: %w", err)
		}
		sourceID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		snap := snapshot.BuildFromText(string(data), sourceID,
			cfg.EmbeddingModel, cfg.ChunkingVersion, snapshot.DefaultChunkConfig())
		combined.Chunks = append(combined.Chunks, snap.Chunks...)
	}

	if len(combined.Chunks) == 0 {
		return models.RetrievalSnapshot{}, fmt.Errorf("note files contain no usable text")
	}
	return combined, nil
}

func parseOptions(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	options := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid option %q (expected key=value)", pair)
		}
		options[key] = value
	}
	return options, nil
}

// waitForJob polls the job until it reaches a terminal state, redrawing a
// single progress line.
func waitForJob(ctx context.Context, svc *service.JobService, jobID string) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		job, err := svc.GetJob(ctx, userID, jobID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return fmt.Errorf("job disappeared: %s", jobID)
			}
			return err
		}

		fmt.Printf("\r%s %s  ", defaultTheme.statusLabel(job.Status), progressBar(job.Progress, 30))

		if job.Status.Terminal() {
			fmt.Println()
			return printOutcome(job)
		}

		select {
		case <-ctx.Done():
			fmt.Println()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func printOutcome(job *models.Job) error {
	if job.Status == models.StatusFailed {
		detail := "unknown error"
		if job.Error != nil {
			detail = job.Error.String()
		}
		fmt.Println(defaultTheme.errorStyle().Render("✗ Job failed: " + detail))
		return fmt.Errorf("job %s failed", job.JobID())
	}

	fmt.Println(defaultTheme.successStyle().Render("✓ Completed") +
		fmt.Sprintf("  (%d/%d tokens used)", job.TokensUsed, job.TokenBudget))
	if job.Result != nil {
		fmt.Println(job.Result.JSON())
	}
	return nil
}
