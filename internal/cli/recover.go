package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var recoverTimeout time.Duration

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Fail jobs stranded by a crashed worker",
	Long: `Mark in-flight jobs as failed when their worker has not made progress
within the timeout. Workers run this sweep automatically on startup;
this command exists for operating on a wedged deployment by hand.`,
	RunE: runRecover,
}

func init() {
	recoverCmd.Flags().DurationVar(&recoverTimeout, "timeout", 10*time.Minute, "age after which a claimed job counts as stranded")
	rootCmd.AddCommand(recoverCmd)
}

func runRecover(cmd *cobra.Command, args []string) error {
	count, err := dbClient.RecoverStuckJobs(context.Background(), recoverTimeout)
	if err != nil {
		return fmt.Errorf("recover stuck jobs: %w", err)
	}

	if count == 0 {
		fmt.Println("No stranded jobs found")
	} else {
		fmt.Printf("Failed %d stranded job(s) as worker_restart\n", count)
	}
	return nil
}
