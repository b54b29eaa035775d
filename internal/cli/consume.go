package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/pkganalyzer/pkg/analyze"
	"github.com/matzehuels/pkganalyzer/pkg/buildinfo"
	"github.com/matzehuels/pkganalyzer/pkg/config"
	"github.com/matzehuels/pkganalyzer/pkg/consumer"
	"github.com/matzehuels/pkganalyzer/pkg/observability"
	"github.com/matzehuels/pkganalyzer/pkg/queue"
	"github.com/matzehuels/pkganalyzer/pkg/status"
	"github.com/matzehuels/pkganalyzer/pkg/store"
)

// consumeOptions holds flags for the consume command.
type consumeOptions struct {
	concurrency int
	recover     bool
	refresh     bool
}

// consumeCommand creates the consume command.
func (c *CLI) consumeCommand() *cobra.Command {
	var opts consumeOptions

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Consume analysis jobs from the queue",
		Long: `Consume analysis jobs from the queue until interrupted.

Each job is analyzed and the result is saved to NPMS_ADDR. Jobs that fail
transiently are requeued; jobs that can never succeed are dropped. The
process exits with an error when the queue or the database stops working.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runConsume(cmd.Context(), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", 0, "jobs analyzed at once (overrides CONCURRENCY)")
	cmd.Flags().BoolVar(&opts.recover, "recover", false, "requeue jobs left in progress by a crashed worker (single worker deployments only)")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", true, "bypass cached repository metadata")

	return cmd
}

func (c *CLI) runConsume(ctx context.Context, opts consumeOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.concurrency > 0 {
		cfg.Concurrency = opts.concurrency
		cfg.Sanitize()
	}

	counters := observability.NewCounters()
	observability.SetJobHooks(counters)
	observability.SetToolHooks(counters)
	observability.SetCacheHooks(counters)
	observability.SetHTTPHooks(counters)

	cch, err := newCache(ctx, cfg.Cache, "")
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer cch.Close()

	st, err := store.DialMongo(ctx, cfg.NPMSAddr)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer st.Close(context.WithoutCancel(ctx))

	broker, err := queue.DialRedisBroker(ctx, cfg.Queue.URL, queue.RedisOptions{
		Name:        cfg.Queue.Name,
		MaxAttempts: cfg.Queue.MaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("connect queue: %w", err)
	}
	defer broker.Close()

	if opts.recover {
		n, err := broker.Recover(ctx)
		if err != nil {
			return fmt.Errorf("recover jobs: %w", err)
		}
		c.Logger.Info("requeued jobs left in progress", "count", n)
	}

	w, err := c.newWorker(&cfg, cch, st, opts.refresh)
	if err != nil {
		return err
	}

	cons := &consumer.Consumer{
		Broker:       broker,
		Handler:      analyzeJob(w.analyzer),
		Concurrency:  cfg.Concurrency,
		DrainTimeout: cfg.DrainTimeout,
		Logger:       c.Logger,
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.StatusAddr != "" {
		srv := status.New(status.Options{
			Addr:     cfg.StatusAddr,
			Version:  buildinfo.Version,
			Counters: counters,
			Pool:     w.pool,
			Queue:    broker,
			Logger:   c.Logger,
		})
		g.Go(func() error { return srv.Run(gctx) })
	}
	g.Go(func() error { return cons.Run(gctx) })

	c.Logger.Info("consuming", "queue", cfg.Queue.Name, "concurrency", cfg.Concurrency, "credentials", w.pool.Size())
	err = g.Wait()
	stats := counters.Snapshot()
	c.Logger.Info("consumer stopped", "acked", stats.Acked, "requeued", stats.Requeued, "dropped", stats.Dropped)
	return err
}

// analyzeJob adapts an analyzer to a consumer handler.
func analyzeJob(a *analyze.Analyzer) consumer.Handler {
	return func(ctx context.Context, job queue.Job) error {
		_, err := a.Analyze(ctx, job.Name, job.Data)
		return err
	}
}
