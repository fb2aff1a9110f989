package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/garagedesk/garagedesk/internal/integrations/vehiclelookup"
	"github.com/garagedesk/garagedesk/internal/notify"
	"github.com/garagedesk/garagedesk/internal/shared"
)

const defaultBookingTitle = "Online booking"

// Book records a public booking. The customer is reused by email and the vehicle
// by registration; missing records are created together with the appointment.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	const op = "records.Book"
	if err := shared.ValidateStruct(s.validate, op, req); err != nil {
		return nil, err
	}
	now := s.now()
	if !req.StartsAt.After(now) {
		return nil, shared.ValidationFields(op, map[string]string{"starts_at": "must be in the future"})
	}
	reg := vehiclelookup.NormalizeRegistration(req.Registration)
	if req.Registration != "" && reg == "" {
		return nil, shared.ValidationFields(op, map[string]string{"registration": "must contain letters or digits"})
	}

	customer, newCustomer, err := s.bookingCustomer(ctx, req)
	if err != nil {
		return nil, err
	}
	var (
		vehicle    *Vehicle
		newVehicle bool
	)
	if reg != "" {
		vehicle, err = s.repo.FindVehicleByRegistration(ctx, customer.ID, reg)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			newVehicle = true
			vehicle = &Vehicle{
				ID:           uuid.NewString(),
				CustomerID:   customer.ID,
				Registration: reg,
				Make:         strings.TrimSpace(req.Make),
				Model:        strings.TrimSpace(req.Model),
				CreatedAt:    now,
				UpdatedAt:    now,
			}
		case err != nil:
			return nil, fmt.Errorf("find vehicle: %w", err)
		}
	}

	title := strings.TrimSpace(req.Service)
	if title == "" {
		title = defaultBookingTitle
	}
	appt := Appointment{
		ID:          uuid.NewString(),
		CustomerID:  customer.ID,
		Title:       title,
		Description: req.Notes,
		StartsAt:    req.StartsAt,
		EndsAt:      req.StartsAt.Add(defaultAppointmentLength),
		Status:      AppointmentScheduled,
		Source:      SourceOnline,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if vehicle != nil {
		appt.VehicleID = vehicle.ID
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if newCustomer {
			if err := tx.InsertCustomer(ctx, *customer); err != nil {
				return err
			}
		}
		if newVehicle {
			if err := tx.InsertVehicle(ctx, *vehicle); err != nil {
				return err
			}
		}
		return tx.InsertAppointment(ctx, appt)
	})
	if err != nil {
		return nil, fmt.Errorf("book appointment: %w", err)
	}
	s.logger.InfoContext(ctx, "online booking received",
		slog.String("appointment_id", appt.ID),
		slog.String("customer_id", customer.ID),
		slog.Bool("new_customer", newCustomer),
		slog.Time("starts_at", appt.StartsAt),
	)

	s.syncCalendar(ctx, &appt)
	s.confirmBooking(ctx, customer, appt)

	return &BookingResult{
		AppointmentID: appt.ID,
		CustomerID:    customer.ID,
		VehicleID:     appt.VehicleID,
		StartsAt:      appt.StartsAt,
	}, nil
}

func (s *Service) bookingCustomer(ctx context.Context, req BookingRequest) (*Customer, bool, error) {
	email := strings.TrimSpace(req.Email)
	existing, err := s.repo.FindCustomerByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, false, fmt.Errorf("find customer: %w", err)
	}
	now := s.now()
	return &Customer{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Email:     email,
		Phone:     strings.TrimSpace(req.Phone),
		CreatedAt: now,
		UpdatedAt: now,
	}, true, nil
}

// confirmBooking emails the customer. The booking stands even when this fails.
func (s *Service) confirmBooking(ctx context.Context, customer *Customer, appt Appointment) {
	if s.dispatcher == nil || customer.Email == "" {
		return
	}
	subject, body, err := s.templates.Render(notify.TemplateBookingConfirmation, map[string]any{
		"CustomerName": customer.Name,
		"StartsAt":     s.formatSlot(appt.StartsAt),
		"Title":        appt.Title,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "render booking confirmation", slog.Any("error", err))
		return
	}
	msg := notify.Message{
		Channel:    notify.ChannelEmail,
		Recipients: []notify.Recipient{{Name: customer.Name, Email: customer.Email}},
		Subject:    subject,
		Body:       body,
	}
	if err := s.dispatcher.Send(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "booking confirmation not sent",
			slog.String("appointment_id", appt.ID),
			slog.Any("error", err),
		)
	}
}
