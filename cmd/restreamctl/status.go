package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/restream/internal/cache"
	"github.com/therealutkarshpriyadarshi/restream/internal/queue"
	"github.com/therealutkarshpriyadarshi/restream/pkg/models"
)

func newStatusCmd(root *rootOptions) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the broadcast status published by the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}

			c, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.StatusTTL)
			if err != nil {
				return err
			}
			defer c.Close()

			var status models.BroadcastStatus
			if id == "" {
				status, err = c.GetCurrent(cmd.Context())
				if err != nil {
					return err
				}
			} else {
				found, err := c.GetStatus(cmd.Context(), id)
				if err != nil {
					return err
				}
				if found == nil {
					return fmt.Errorf("no cached status for broadcast %s", id)
				}
				status = *found
			}

			out := cmd.OutOrStdout()
			if err := printStatus(out, status, time.Now()); err != nil {
				return err
			}
			if id != "" {
				return nil
			}
			return printTelemetry(cmd.Context(), out, c)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "look up a specific broadcast instead of the current one")
	return cmd
}

func printStatus(w io.Writer, status models.BroadcastStatus, now time.Time) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	if status.StartedAt != nil {
		fmt.Fprintf(w, "uptime: %s\n", models.FormatUptime(status.Uptime(now)))
	}
	return nil
}

// telemetryReader is the part of the cache holding stream telemetry
type telemetryReader interface {
	GetHealth(ctx context.Context) (*models.StreamHealth, error)
	GetAnalytics(ctx context.Context) (*models.StreamAnalytics, error)
}

// printTelemetry appends the cached telemetry summary; absent entries are skipped
func printTelemetry(ctx context.Context, w io.Writer, c telemetryReader) error {
	health, err := c.GetHealth(ctx)
	if err != nil {
		return err
	}
	if health != nil {
		fmt.Fprintf(w, "health: %s (score %d, viewers %d)\n", health.Status, health.Score, health.Viewers)
	}

	analytics, err := c.GetAnalytics(ctx)
	if err != nil {
		return err
	}
	if analytics != nil {
		fmt.Fprintf(w, "analytics: %d points, peak viewers %d, avg viewers %d\n",
			len(analytics.Points), analytics.PeakViewers, analytics.AvgViewers)
	}
	return nil
}

func newWatchCmd(root *rootOptions) *cobra.Command {
	var pattern string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print broadcast events from the message queue as they happen",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}

			q, err := queue.New(cfg.Queue)
			if err != nil {
				return err
			}
			defer q.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			err = q.Subscribe(ctx, pattern, func(event models.BroadcastEvent) {
				fmt.Fprintln(out, formatEvent(event))
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", queue.AllEvents, "routing key pattern to subscribe to")
	return cmd
}

func formatEvent(event models.BroadcastEvent) string {
	line := fmt.Sprintf("%s %-22s %s", event.Timestamp.Format(time.RFC3339), event.Type, event.BroadcastID)
	if exit := event.Status.Exit; exit != nil {
		line += fmt.Sprintf(" reason=%s exit_code=%d", exit.Reason, exit.ExitCode)
		if exit.Signal != "" {
			line += " signal=" + exit.Signal
		}
	}
	return line
}
