package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/garagedesk/garagedesk/internal/integrations/calendar"
	"github.com/garagedesk/garagedesk/internal/shared"
)

const (
	defaultAppointmentLength = time.Hour
	calendarTimeout          = 10 * time.Second
)

// CreateAppointment books a slot for a customer and mirrors it to the calendar.
func (s *Service) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (*Appointment, error) {
	const op = "records.CreateAppointment"
	if err := shared.ValidateStruct(s.validate, op, req); err != nil {
		return nil, err
	}
	appt, err := s.newAppointment(ctx, op, req, SourceStaff)
	if err != nil {
		return nil, err
	}
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertAppointment(ctx, appt)
	}); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	s.logger.InfoContext(ctx, "appointment created",
		slog.String("appointment_id", appt.ID),
		slog.Time("starts_at", appt.StartsAt),
	)
	s.syncCalendar(ctx, &appt)
	return &appt, nil
}

func (s *Service) newAppointment(ctx context.Context, op string, req CreateAppointmentRequest, source AppointmentSource) (Appointment, error) {
	if err := s.requireCustomer(ctx, op, req.CustomerID); err != nil {
		return Appointment{}, err
	}
	if req.VehicleID != "" {
		if err := s.CheckVehicle(ctx, req.VehicleID, req.CustomerID); err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return Appointment{}, shared.ValidationFields(op, map[string]string{"vehicle_id": "unknown vehicle"})
			}
			return Appointment{}, err
		}
	}
	endsAt := req.StartsAt.Add(defaultAppointmentLength)
	if req.EndsAt != nil {
		endsAt = *req.EndsAt
	}
	if !endsAt.After(req.StartsAt) {
		return Appointment{}, shared.ValidationFields(op, map[string]string{"ends_at": "must be after starts_at"})
	}
	now := s.now()
	return Appointment{
		ID:          uuid.NewString(),
		CustomerID:  req.CustomerID,
		VehicleID:   req.VehicleID,
		Title:       req.Title,
		Description: req.Description,
		StartsAt:    req.StartsAt,
		EndsAt:      endsAt,
		Status:      AppointmentScheduled,
		Source:      source,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// syncCalendar pushes appt to the calendar. Failures are logged; the local
// appointment stays as written.
func (s *Service) syncCalendar(ctx context.Context, appt *Appointment) {
	if s.calendar == nil {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), calendarTimeout)
	defer cancel()

	ev := calendar.Event{
		Summary:     appt.Title,
		Description: appt.Description,
		Start:       appt.StartsAt,
		End:         appt.EndsAt,
	}
	if c, err := s.repo.GetCustomer(ctx, appt.CustomerID); err == nil {
		ev.Summary = appt.Title + " - " + c.Name
	}
	if appt.VehicleID != "" {
		if v, err := s.repo.GetVehicle(ctx, appt.VehicleID); err == nil {
			ev.Summary += " (" + v.Registration + ")"
		}
	}
	eventID, err := s.calendar.CreateEvent(cctx, ev)
	if err != nil {
		s.logger.WarnContext(ctx, "calendar sync failed",
			slog.String("appointment_id", appt.ID),
			slog.Any("error", err),
		)
		return
	}
	updated := *appt
	updated.CalendarEventID = eventID
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateAppointment(ctx, updated)
	}); err != nil {
		s.logger.WarnContext(ctx, "store calendar event id failed",
			slog.String("appointment_id", appt.ID),
			slog.Any("error", err),
		)
		return
	}
	*appt = updated
}

// GetAppointment returns one appointment.
func (s *Service) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	return s.repo.GetAppointment(ctx, id)
}

// ListAppointments returns a page of appointments ordered by start time.
func (s *Service) ListAppointments(ctx context.Context, filter AppointmentFilter) (ListResult[Appointment], error) {
	all, err := s.repo.ListAppointments(ctx, filter)
	if err != nil {
		return ListResult[Appointment]{}, fmt.Errorf("list appointments: %w", err)
	}
	return paginate(all, filter.Page, filter.PerPage), nil
}

// UpdateAppointmentStatus moves an appointment along its lifecycle.
func (s *Service) UpdateAppointmentStatus(ctx context.Context, id, status string) (*Appointment, error) {
	const op = "records.UpdateAppointmentStatus"
	next := AppointmentStatus(status)
	switch next {
	case AppointmentScheduled, AppointmentConfirmed, AppointmentCompleted, AppointmentCancelled, AppointmentNoShow:
	default:
		return nil, shared.ValidationFields(op, map[string]string{"status": "unknown appointment status"})
	}
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransitionAppointment(appt.Status, next) {
		return nil, shared.InvalidTransition(op, string(appt.Status), string(next))
	}
	appt.Status = next
	appt.UpdatedAt = s.now()
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateAppointment(ctx, *appt)
	}); err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	if next == AppointmentCancelled {
		s.removeCalendarEvent(ctx, appt)
	}
	return appt, nil
}

// DeleteAppointment removes an appointment and its calendar event.
func (s *Service) DeleteAppointment(ctx context.Context, id string) error {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteAppointment(ctx, id)
	}); err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	s.logger.InfoContext(ctx, "appointment deleted", slog.String("appointment_id", id))
	s.removeCalendarEvent(ctx, appt)
	return nil
}

func (s *Service) removeCalendarEvent(ctx context.Context, appt *Appointment) {
	if s.calendar == nil || appt.CalendarEventID == "" {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), calendarTimeout)
	defer cancel()
	if err := s.calendar.DeleteEvent(cctx, appt.CalendarEventID); err != nil {
		s.logger.WarnContext(ctx, "calendar event removal failed",
			slog.String("appointment_id", appt.ID),
			slog.String("event_id", appt.CalendarEventID),
			slog.Any("error", err),
		)
	}
}
