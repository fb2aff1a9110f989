// Package calendar pushes workshop appointments to a Google Calendar.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the Google Calendar v3 REST endpoint.
const DefaultBaseURL = "https://www.googleapis.com/calendar/v3"

// ErrNotConfigured is returned when the client has no calendar id or token.
var ErrNotConfigured = errors.New("calendar: not configured")

// Event is the subset of a calendar event the workshop writes.
type Event struct {
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// Client talks to the Google Calendar events API.
type Client struct {
	baseURL    string
	calendarID string
	token      string
	httpClient *http.Client
}

// NewClient constructs a client for one calendar. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL, calendarID, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		calendarID: calendarID,
		token:      token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type eventTime struct {
	DateTime string `json:"dateTime"`
}

type eventBody struct {
	ID          string    `json:"id,omitempty"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       eventTime `json:"start"`
	End         eventTime `json:"end"`
}

// CreateEvent inserts ev and returns the provider event id.
func (c *Client) CreateEvent(ctx context.Context, ev Event) (string, error) {
	if c.calendarID == "" || c.token == "" {
		return "", ErrNotConfigured
	}
	if !ev.End.After(ev.Start) {
		return "", fmt.Errorf("calendar: event must end after it starts")
	}
	payload, err := json.Marshal(eventBody{
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       eventTime{DateTime: ev.Start.Format(time.RFC3339)},
		End:         eventTime{DateTime: ev.End.Format(time.RFC3339)},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.eventsURL(""), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var created eventBody
	if err := c.do(req, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("calendar: response without event id")
	}
	return created.ID, nil
}

// DeleteEvent removes an event. Events that are already gone are not an error.
func (c *Client) DeleteEvent(ctx context.Context, eventID string) error {
	if c.calendarID == "" || c.token == "" {
		return ErrNotConfigured
	}
	if eventID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.eventsURL(eventID), nil)
	if err != nil {
		return err
	}
	err = c.do(req, nil)
	var status *StatusError
	if errors.As(err, &status) && (status.Code == http.StatusNotFound || status.Code == http.StatusGone) {
		return nil
	}
	return err
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("calendar: status %d: %s", e.Code, e.Body)
}

func (c *Client) eventsURL(eventID string) string {
	u := fmt.Sprintf("%s/calendars/%s/events", c.baseURL, url.PathEscape(c.calendarID))
	if eventID != "" {
		u += "/" + url.PathEscape(eventID)
	}
	return u
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calendar: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("calendar: decode response: %w", err)
	}
	return nil
}
