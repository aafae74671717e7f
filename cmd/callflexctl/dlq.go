package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"callflex/internal/billing"
	"callflex/internal/config"
	"callflex/internal/queue"
	"callflex/pkg/utils"
)

// dlqStore is the pair of queues the API's retry worker uses. The CLI always
// talks to Redis: an in-memory DLQ lives only inside the API process.
type dlqStore struct {
	rdb     *redis.Client
	pending queue.Queue
	dead    queue.DeadLetterQueue
}

func openDLQ(ctx context.Context) (*dlqStore, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Queue.Backend != "redis" {
		return nil, fmt.Errorf("QUEUE_BACKEND=%s: dead letters are only reachable with the redis backend", cfg.Queue.Backend)
	}
	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
	if err != nil {
		return nil, err
	}
	return &dlqStore{
		rdb:     rdb,
		pending: queue.NewRedisQueue(rdb, billing.RetryQueueName),
		dead:    queue.NewRedisDeadLetterQueue(rdb, billing.RetryQueueName),
	}, nil
}

func (s *dlqStore) Close() error { return s.rdb.Close() }

func dlqCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and act on billing events parked in the dead-letter queue",
	}
	cmd.AddCommand(dlqListCmd(), dlqRetryCmd(), dlqDropCmd())
	return cmd
}

func dlqListCmd() *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead letters, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := openDLQ(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			items, err := s.dead.List(ctx, limit)
			if err != nil {
				return err
			}
			pending, err := s.pending.Length(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"pending": pending, "deadLetters": items})
			}
			return printDeadLetters(cmd.OutOrStdout(), pending, items)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of entries")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON")
	return cmd
}

func dlqRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Move dead letters back onto the retry queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openDLQ(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			for _, id := range args {
				if err := billing.Replay(ctx, s.pending, s.dead, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "requeued %s\n", id)
			}
			return nil
		},
	}
}

func dlqDropCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drop [id...]",
		Short: "Discard dead letters",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openDLQ(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			for _, id := range args {
				if err := s.dead.Remove(ctx, id); err != nil {
					return fmt.Errorf("drop %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "dropped %s\n", id)
			}
			return nil
		},
	}
}

func printDeadLetters(w io.Writer, pending int, items []queue.DeadLetterItem) error {
	fmt.Fprintf(w, "pending: %d  dead letters: %d\n", pending, len(items))
	if len(items) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEVENT\tRETRIES\tPARKED\tERROR")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			it.ID, eventLabel(it.Item), it.Retries, it.Timestamp.Format(time.RFC3339), it.Error)
	}
	return tw.Flush()
}

// eventLabel shows "type/id" for a parked billing.PendingEvent.
func eventLabel(raw json.RawMessage) string {
	var ev billing.PendingEvent
	if err := json.Unmarshal(raw, &ev); err != nil || ev.EventID == "" {
		return "-"
	}
	return ev.EventType + "/" + ev.EventID
}
