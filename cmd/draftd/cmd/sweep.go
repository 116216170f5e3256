package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/motiongranted/draftengine/internal/checkpoint"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one recovery sweep and exit",
	Long: `Run the stale-state recovery sweep once: overdue holds, abandoned
approvals, and stuck refund locks. Detections alert the operator; the
serve command runs the same sweep periodically.`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := buildLogger(cfg)

	eng, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Drain alerts enqueued by the sweep before exiting.
	queueCtx, stopQueue := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		eng.queue.Run(queueCtx)
		close(done)
	}()

	sweep := checkpoint.NewSweep(eng.store, eng.alerter, logger)
	err = sweep.Run(ctx)

	stopQueue()
	<-done
	return err
}
