package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/garagedesk/garagedesk/internal/notify"
	"github.com/garagedesk/garagedesk/internal/shared"
)

// DefaultMOTReminderDays is how far ahead of expiry MOT reminders go out.
const DefaultMOTReminderDays = 30

// ReminderResult summarises one reminder run.
type ReminderResult struct {
	Considered int `json:"considered"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

var errNoDispatcher = errors.New("no notification dispatcher configured")

// SendAppointmentReminders notifies customers of open appointments starting the
// next calendar day. Each appointment is reminded at most once.
func (s *Service) SendAppointmentReminders(ctx context.Context) (ReminderResult, error) {
	const op = "records.SendAppointmentReminders"
	var result ReminderResult
	if s.dispatcher == nil {
		return result, shared.External(op, "dispatcher", errNoDispatcher)
	}
	start := s.startOfDay(s.now()).AddDate(0, 0, 1)
	appts, err := s.repo.ListAppointments(ctx, AppointmentFilter{From: start, To: start.AddDate(0, 0, 1)})
	if err != nil {
		return result, fmt.Errorf("list appointments: %w", err)
	}
	for _, appt := range appts {
		if !appt.Status.Open() || appt.RemindedAt != nil {
			continue
		}
		result.Considered++
		customer, err := s.repo.GetCustomer(ctx, appt.CustomerID)
		if err != nil {
			result.Failed++
			s.logger.WarnContext(ctx, "reminder customer missing", slog.String("appointment_id", appt.ID), slog.Any("error", err))
			continue
		}
		data := map[string]any{
			"CustomerName": customer.Name,
			"Title":        appt.Title,
			"StartsAt":     s.formatSlot(appt.StartsAt),
		}
		if appt.VehicleID != "" {
			if v, err := s.repo.GetVehicle(ctx, appt.VehicleID); err == nil {
				data["Registration"] = v.Registration
			}
		}
		sent, err := s.notifyCustomer(ctx, customer, notify.TemplateAppointmentReminder, data)
		switch {
		case err != nil:
			result.Failed++
			s.logger.WarnContext(ctx, "appointment reminder failed", slog.String("appointment_id", appt.ID), slog.Any("error", err))
			continue
		case !sent:
			result.Skipped++
			continue
		}
		result.Sent++
		reminded := s.now()
		appt.RemindedAt = &reminded
		if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.UpdateAppointment(ctx, appt)
		}); err != nil {
			s.logger.WarnContext(ctx, "mark appointment reminded failed", slog.String("appointment_id", appt.ID), slog.Any("error", err))
		}
	}
	s.logger.InfoContext(ctx, "appointment reminders processed",
		slog.Int("considered", result.Considered),
		slog.Int("sent", result.Sent),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

// SendMOTReminders notifies owners of vehicles whose MOT expires exactly days from today.
func (s *Service) SendMOTReminders(ctx context.Context, days int) (ReminderResult, error) {
	const op = "records.SendMOTReminders"
	var result ReminderResult
	if s.dispatcher == nil {
		return result, shared.External(op, "dispatcher", errNoDispatcher)
	}
	if days <= 0 {
		days = DefaultMOTReminderDays
	}
	y, m, d := s.startOfDay(s.now()).AddDate(0, 0, days).Date()
	target := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	vehicles, err := s.repo.ListVehiclesByMOTExpiry(ctx, target)
	if err != nil {
		return result, fmt.Errorf("list vehicles by mot expiry: %w", err)
	}
	for _, v := range vehicles {
		result.Considered++
		customer, err := s.repo.GetCustomer(ctx, v.CustomerID)
		if err != nil {
			result.Failed++
			continue
		}
		sent, err := s.notifyCustomer(ctx, customer, notify.TemplateMOTReminder, map[string]any{
			"CustomerName": customer.Name,
			"Registration": v.Registration,
			"ExpiresOn":    target.Format("02 Jan 2006"),
		})
		switch {
		case err != nil:
			result.Failed++
			s.logger.WarnContext(ctx, "mot reminder failed", slog.String("vehicle_id", v.ID), slog.Any("error", err))
		case sent:
			result.Sent++
		default:
			result.Skipped++
		}
	}
	s.logger.InfoContext(ctx, "mot reminders processed",
		slog.String("expiry", target.Format(time.DateOnly)),
		slog.Int("considered", result.Considered),
		slog.Int("sent", result.Sent),
	)
	return result, nil
}

// notifyCustomer renders template and sends it by email, falling back to SMS.
// It reports false when the customer has no usable contact.
func (s *Service) notifyCustomer(ctx context.Context, c *Customer, template string, data map[string]any) (bool, error) {
	msg, ok := contactMessage(c)
	if !ok {
		return false, nil
	}
	subject, body, err := s.templates.Render(template, data)
	if err != nil {
		return false, err
	}
	msg.Subject, msg.Body = subject, body
	if err := s.dispatcher.Send(ctx, msg); err != nil {
		return false, err
	}
	return true, nil
}

func contactMessage(c *Customer) (notify.Message, bool) {
	recipient := notify.Recipient{Name: c.Name, Email: c.Email, Phone: c.Phone}
	switch {
	case c.Email != "":
		return notify.Message{Channel: notify.ChannelEmail, Recipients: []notify.Recipient{recipient}}, true
	case c.Phone != "":
		return notify.Message{Channel: notify.ChannelSMS, Recipients: []notify.Recipient{recipient}}, true
	}
	return notify.Message{}, false
}

func (s *Service) startOfDay(t time.Time) time.Time {
	y, m, d := t.In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

func (s *Service) formatSlot(t time.Time) string {
	return t.In(s.loc).Format("02 Jan 2006 15:04")
}
