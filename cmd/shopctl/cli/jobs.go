package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/garagedesk/garagedesk/internal/app"
	"github.com/garagedesk/garagedesk/internal/records"
	"github.com/garagedesk/garagedesk/jobs"
)

// Job names accepted by trigger and remind.
const (
	JobAppointments = "appointments"
	JobMOT          = "mot"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) *JobsCLI {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return &JobsCLI{client: jobs.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	return errors.Join(c.inspector.Close(), c.client.Close())
}

// Trigger enqueues a reminder sweep by name. days only applies to MOT sweeps.
func (c *JobsCLI) Trigger(ctx context.Context, name string, days int) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	switch name {
	case JobAppointments:
		return c.client.EnqueueAppointmentReminders(ctx)
	case JobMOT:
		return c.client.EnqueueMOTReminders(ctx, days)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue() (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	return QueueStats{
		Queue:     jobs.QueueDefault,
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Archived:  info.Archived,
	}, nil
}

func newJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}

	var days int
	trigger := &cobra.Command{
		Use:       "trigger {appointments|mot}",
		Short:     "Enqueue a reminder sweep for the worker",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{JobAppointments, JobMOT},
		RunE: func(cmd *cobra.Command, args []string) error {
			jc, err := jobsCLI(cmd)
			if err != nil {
				return err
			}
			defer jc.Close()
			info, err := jc.Trigger(cmd.Context(), args[0], days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	trigger.Flags().IntVar(&days, "days", 0, "MOT look-ahead in days (default from REMINDER_MOT_DAYS)")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print queue depth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jc, err := jobsCLI(cmd)
			if err != nil {
				return err
			}
			defer jc.Close()
			s, err := jc.InspectQueue()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
			return nil
		},
	}
	cmd.AddCommand(trigger, stats)
	return cmd
}

func jobsCLI(cmd *cobra.Command) (*JobsCLI, error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.RedisAddr == "" {
		return nil, errors.New("jobs: REDIS_ADDR is not set")
	}
	return NewJobsCLI(cfg.RedisAddr), nil
}

func newRemindCommand() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:       "remind {appointments|mot}",
		Short:     "Run a reminder sweep in-process",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{JobAppointments, JobMOT},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			c, err := app.NewContainer(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()

			if days <= 0 {
				days = cfg.ReminderMOTDays
			}
			var res records.ReminderResult
			if args[0] == JobMOT {
				res, err = c.Records.SendMOTReminders(cmd.Context(), days)
			} else {
				res, err = c.Records.SendAppointmentReminders(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "considered=%d sent=%d failed=%d skipped=%d\n",
				res.Considered, res.Sent, res.Failed, res.Skipped)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "MOT look-ahead in days (default from REMINDER_MOT_DAYS)")
	return cmd
}
