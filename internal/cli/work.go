package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Run a worker pool draining the job queues",
	Long: `Run a standalone worker pool that pops chat, embed, and index jobs
from the broker and executes them with bounded concurrency.

Point WORKER_CONCURRENCY or queue.concurrency at the number of jobs to
run in parallel. Workers and the API server share jobs through the
broker, so any number of "troupe work" processes can drain the same
queues.`,
	RunE: runWork,
}

func runWork(cmd *cobra.Command, args []string) error {
	rt, err := buildRuntime(projectDir)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pingCtx, cancel := context.WithTimeout(ctx, brokerPingTimeout)
	defer cancel()
	if err := rt.broker.Ping(pingCtx); err != nil {
		return err
	}

	pool := rt.newWorkers()

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	pool.Start(workerCtx)

	<-ctx.Done()
	rt.logger.Info("Stopping workers...")

	graceCtx, graceCancel := context.WithTimeout(context.Background(), workerGracePeriod)
	defer graceCancel()
	err = pool.Stop(graceCtx)

	summary := pool.Metrics().GetSummary()
	rt.logger.Info("Worker pool stopped",
		"jobs_processed", summary["jobs_processed"],
		"jobs_failed", summary["jobs_failed"],
	)
	return err
}
