package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/garagedesk/garagedesk/internal/jobs"
	"github.com/garagedesk/garagedesk/internal/notify"
	"github.com/garagedesk/garagedesk/internal/records"
)

// NotifyJob delivers queued messages through a direct dispatcher.
type NotifyJob struct {
	Dispatcher notify.Dispatcher
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewNotifyJob wires dependencies for the notify:send handler.
func NewNotifyJob(dispatcher notify.Dispatcher, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotifyJob {
	return &NotifyJob{Dispatcher: dispatcher, Logger: logger, Metrics: metrics}
}

// Handle processes notify:send tasks. Malformed or undeliverable messages are not retried.
func (j *NotifyJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Dispatcher == nil {
		return errors.New("notify: handler not configured")
	}
	tracker := j.Metrics.Track(TaskNotifySend)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	var payload NotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	msg := payload.Message
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid message: %v: %w", err, asynq.SkipRetry)
	}
	if err := j.Dispatcher.Send(ctx, msg); err != nil {
		j.logger().WarnContext(ctx, "notification delivery failed",
			slog.String("channel", string(msg.Channel)),
			slog.Any("error", err),
		)
		j.Metrics.AddNotifications(string(msg.Channel), "failed", 1)
		return err
	}
	j.Metrics.AddNotifications(string(msg.Channel), "sent", 1)
	return nil
}

func (j *NotifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// Reminders is the part of the records service the reminder jobs drive.
type Reminders interface {
	SendAppointmentReminders(ctx context.Context) (records.ReminderResult, error)
	SendMOTReminders(ctx context.Context, days int) (records.ReminderResult, error)
}

// ReminderJob runs the daily reminder sweeps.
type ReminderJob struct {
	Reminders Reminders
	// MOTDays is used when a task does not carry its own horizon.
	MOTDays int
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReminderJob wires dependencies for the reminder handlers.
func NewReminderJob(reminders Reminders, motDays int, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReminderJob {
	return &ReminderJob{Reminders: reminders, MOTDays: motDays, Logger: logger, Metrics: metrics}
}

// HandleAppointments processes reminders:appointments tasks.
func (j *ReminderJob) HandleAppointments(ctx context.Context, _ *asynq.Task) (resultErr error) {
	if j == nil || j.Reminders == nil {
		return errors.New("reminders: handler not configured")
	}
	tracker := j.Metrics.Track(TaskAppointmentReminders)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	result, err := j.Reminders.SendAppointmentReminders(ctx)
	if err != nil {
		j.logger().ErrorContext(ctx, "appointment reminders", slog.Any("error", err))
		return err
	}
	j.record("appointment", result)
	return nil
}

// HandleMOT processes reminders:mot tasks.
func (j *ReminderJob) HandleMOT(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Reminders == nil {
		return errors.New("reminders: handler not configured")
	}
	tracker := j.Metrics.Track(TaskMOTReminders)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	payload := MOTRemindersPayload{Days: j.MOTDays}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	if payload.Days <= 0 {
		payload.Days = j.MOTDays
	}
	result, err := j.Reminders.SendMOTReminders(ctx, payload.Days)
	if err != nil {
		j.logger().ErrorContext(ctx, "mot reminders", slog.Int("days", payload.Days), slog.Any("error", err))
		return err
	}
	j.record("mot", result)
	return nil
}

func (j *ReminderJob) record(kind string, result records.ReminderResult) {
	j.Metrics.AddReminders(kind, "sent", result.Sent)
	j.Metrics.AddReminders(kind, "failed", result.Failed)
	j.Metrics.AddReminders(kind, "skipped", result.Skipped)
}

func (j *ReminderJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
