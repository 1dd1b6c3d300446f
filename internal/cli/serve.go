package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stxkxs/troupe/internal/server"
)

const (
	brokerPingTimeout = 5 * time.Second
	workerGracePeriod = 30 * time.Second
)

var (
	servePort    int
	serveHost    string
	serveWorkers bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the troupe API server",
	Long: `Start the HTTP server: the async chat/embed/index shim, synchronous
chat, vector search, run history, and health endpoints.

By default an embedded worker pool drains the job queues in the same
process. Pass --workers=false to serve the API alone and run workers
separately with "troupe work".`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "port to listen on (default from config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "host to bind to (default from config)")
	serveCmd.Flags().BoolVar(&serveWorkers, "workers", true, "run an embedded worker pool")
}

func runServe(cmd *cobra.Command, args []string) error {
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

	host := rt.cfg.Server.Host
	if serveHost != "" {
		host = serveHost
	}
	port := rt.cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	srv := server.New(rt.cfg, rt.broker, rt.chat, rt.pipeline, rt.runs, rt.logger)

	g, gctx := errgroup.WithContext(ctx)

	if serveWorkers {
		pool := rt.newWorkers()

		// Workers run on their own context so in-flight jobs survive the
		// signal until the grace period ends.
		workerCtx, cancelWorkers := context.WithCancel(context.Background())
		pool.Start(workerCtx)

		g.Go(func() error {
			<-gctx.Done()
			defer cancelWorkers()
			graceCtx, cancel := context.WithTimeout(context.Background(), workerGracePeriod)
			defer cancel()
			return pool.Stop(graceCtx)
		})
	}

	g.Go(func() error {
		return srv.Start(gctx, addr)
	})

	return g.Wait()
}
