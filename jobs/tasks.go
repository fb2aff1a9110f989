package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/garagedesk/garagedesk/internal/notify"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskNotifySend delivers one notification message.
	TaskNotifySend = "notify:send"
	// TaskAppointmentReminders reminds customers of next-day appointments.
	TaskAppointmentReminders = "reminders:appointments"
	// TaskMOTReminders reminds owners of vehicles whose MOT expires soon.
	TaskMOTReminders = "reminders:mot"
)

// NotifyPayload carries a message through the queue.
type NotifyPayload struct {
	Message notify.Message `json:"message"`
}

// MOTRemindersPayload selects how many days ahead of expiry to remind.
type MOTRemindersPayload struct {
	Days int `json:"days"`
}

// NewNotifyTask constructs a notify:send task.
func NewNotifyTask(msg notify.Message) (*asynq.Task, error) {
	data, err := json.Marshal(NotifyPayload{Message: msg})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifySend, data), nil
}

// NewAppointmentRemindersTask constructs the daily appointment reminder task.
func NewAppointmentRemindersTask() *asynq.Task {
	return asynq.NewTask(TaskAppointmentReminders, nil)
}

// NewMOTRemindersTask constructs the daily MOT reminder task.
func NewMOTRemindersTask(days int) (*asynq.Task, error) {
	data, err := json.Marshal(MOTRemindersPayload{Days: days})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMOTReminders, data), nil
}
