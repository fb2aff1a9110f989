package records

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/garagedesk/garagedesk/internal/notify"
	"github.com/garagedesk/garagedesk/internal/shared"
)

// Broadcast sends a templated message to every customer reachable on the channel.
// Subject and body are text/template sources rendered per customer. Individual
// delivery failures are counted, not returned.
func (s *Service) Broadcast(ctx context.Context, req BroadcastRequest) (BroadcastResult, error) {
	const op = "records.Broadcast"
	var result BroadcastResult
	if err := shared.ValidateStruct(s.validate, op, req); err != nil {
		return result, err
	}
	if s.dispatcher == nil {
		return result, shared.External(op, "dispatcher", errNoDispatcher)
	}
	src := notify.TemplateSource{Subject: req.Subject, Body: req.Body}
	if _, _, err := notify.RenderInline(src, map[string]any{"CustomerName": ""}); err != nil {
		return result, shared.ValidationFields(op, map[string]string{"body": "invalid template: " + err.Error()})
	}

	customers, err := s.repo.ListCustomers(ctx, CustomerFilter{})
	if err != nil {
		return result, fmt.Errorf("list customers: %w", err)
	}
	channel := notify.Channel(req.Channel)
	for _, c := range customers {
		recipient := notify.Recipient{Name: c.Name, Email: c.Email, Phone: c.Phone}
		msg := notify.Message{Channel: channel, Recipients: []notify.Recipient{recipient}}
		if len(msg.Addresses()) == 0 {
			result.Skipped++
			continue
		}
		result.Recipients++
		subject, body, err := notify.RenderInline(src, map[string]any{"CustomerName": c.Name})
		if err != nil {
			result.Failed++
			continue
		}
		msg.Subject, msg.Body = subject, body
		if err := s.dispatcher.Send(ctx, msg); err != nil {
			result.Failed++
			s.logger.WarnContext(ctx, "broadcast delivery failed", slog.String("customer_id", c.ID), slog.Any("error", err))
			continue
		}
		result.Sent++
	}
	s.logger.InfoContext(ctx, "broadcast sent",
		slog.String("channel", req.Channel),
		slog.Int("recipients", result.Recipients),
		slog.Int("sent", result.Sent),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}
