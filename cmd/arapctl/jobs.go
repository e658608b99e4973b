package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/arap/jobs"
)

// jobsCLI wraps manual management helpers for Asynq jobs.
type jobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

func newJobsCLI(redisAddr string) (*jobsCLI, error) {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client, err := jobs.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &jobsCLI{client: client, inspector: asynq.NewInspector(opts)}, nil
}

func (c *jobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		err = errors.Join(err, c.inspector.Close())
	}
	if c.client != nil {
		err = errors.Join(err, c.client.Close())
	}
	return err
}

// taskFor builds the default payload of a job that can be triggered by hand.
func taskFor(name string, asOf *time.Time) (*asynq.Task, error) {
	switch name {
	case "overdue-scan", jobs.TaskObligationsOverdueScan:
		return jobs.NewOverdueScanTask(asOf)
	case "idempotency-cleanup", jobs.TaskIdempotencyCleanup:
		return jobs.NewIdempotencyCleanupTask(jobs.DefaultIdempotencyRetention)
	default:
		return nil, fmt.Errorf("unsupported job %q", name)
	}
}

func (c *jobsCLI) Trigger(ctx context.Context, task *asynq.Task) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect background jobs",
	}
	cmd.PersistentFlags().String("redis", "", "Redis address (defaults to REDIS_ADDR)")

	open := func(cmd *cobra.Command) (*jobsCLI, error) {
		addr, _ := cmd.Flags().GetString("redis")
		if addr == "" {
			cfg, err := loadConfig()
			if err != nil {
				return nil, err
			}
			addr = cfg.RedisAddr
		}
		return newJobsCLI(addr)
	}

	trigger := &cobra.Command{
		Use:       "trigger <overdue-scan|idempotency-cleanup>",
		Short:     "Enqueue a job immediately",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"overdue-scan", "idempotency-cleanup"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var asOf *time.Time
			if s, _ := cmd.Flags().GetString("as-of"); s != "" {
				d, err := time.Parse(time.DateOnly, s)
				if err != nil {
					return fmt.Errorf("invalid --as-of, use YYYY-MM-DD: %w", err)
				}
				asOf = &d
			}
			task, err := taskFor(args[0], asOf)
			if err != nil {
				return err
			}
			cli, err := open(cmd)
			if err != nil {
				return err
			}
			defer cli.Close()
			info, err := cli.Trigger(cmd.Context(), task)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	trigger.Flags().String("as-of", "", "Reference date for overdue-scan (YYYY-MM-DD)")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print default queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := open(cmd)
			if err != nil {
				return err
			}
			defer cli.Close()
			info, err := cli.inspector.GetQueueInfo(jobs.QueueDefault)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
				jobs.QueueDefault, info.Pending, info.Active, info.Scheduled, info.Retry)
			return nil
		},
	}

	cmd.AddCommand(trigger, stats)
	return cmd
}
