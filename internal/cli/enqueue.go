package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/pkganalyzer/pkg/config"
	perrors "github.com/matzehuels/pkganalyzer/pkg/errors"
	"github.com/matzehuels/pkganalyzer/pkg/queue"
)

// enqueueCommand creates the enqueue command.
func (c *CLI) enqueueCommand() *cobra.Command {
	var fromStdin bool

	cmd := &cobra.Command{
		Use:   "enqueue [package...]",
		Short: "Publish analysis jobs to the queue",
		Example: `  pkganalyzer enqueue cross-spawn react
  cat names.txt | pkganalyzer enqueue --stdin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := args
			if fromStdin {
				more, err := readNames(cmd.InOrStdin())
				if err != nil {
					return err
				}
				names = append(names, more...)
			}
			if len(names) == 0 {
				return perrors.New(perrors.ErrCodeInvalidInput, "no packages given")
			}
			return c.runEnqueue(cmd.Context(), names)
		},
	}

	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "read package names from stdin, one per line")

	return cmd
}

func (c *CLI) runEnqueue(ctx context.Context, names []string) error {
	for _, name := range names {
		if err := perrors.ValidateNpmPackageName(name); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	broker, err := queue.DialRedisBroker(ctx, cfg.Queue.URL, queue.RedisOptions{
		Name:        cfg.Queue.Name,
		MaxAttempts: cfg.Queue.MaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("connect queue: %w", err)
	}
	defer broker.Close()

	n, err := publish(ctx, broker, names)
	if err != nil {
		return err
	}
	printSuccess("Enqueued %d jobs", n)

	stats, err := broker.Stats(ctx)
	if err != nil {
		printWarning("Queue stats unavailable: %v", err)
		return nil
	}
	printKeyValue("pending", strconv.FormatInt(stats.Pending, 10))
	printKeyValue("processing", strconv.FormatInt(stats.Processing, 10))
	printKeyValue("failed", strconv.FormatInt(stats.Failed, 10))
	return nil
}

// publish enqueues one job per name and returns how many were published.
func publish(ctx context.Context, broker queue.Broker, names []string) (int, error) {
	for i, name := range names {
		if err := broker.Publish(ctx, queue.Job{Name: name}); err != nil {
			return i, fmt.Errorf("publish %s: %w", name, err)
		}
	}
	return len(names), nil
}

// readNames reads one package name per line, skipping blank lines and
// lines starting with #.
func readNames(r io.Reader) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read names: %w", err)
	}
	return names, nil
}
