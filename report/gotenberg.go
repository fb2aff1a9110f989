// Package report converts rendered HTML documents to PDF through Gotenberg.
package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// PageOptions controls paper size and margins in inches.
type PageOptions struct {
	PaperWidth  float64
	PaperHeight float64
	Margin      float64
}

// A4 is the default page layout for invoices and estimates.
var A4 = PageOptions{PaperWidth: 8.27, PaperHeight: 11.7, Margin: 0.4}

// StatusError is returned when Gotenberg answers with a non-success status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("gotenberg returned status %d", e.Code)
	}
	return fmt.Sprintf("gotenberg returned status %d: %s", e.Code, e.Body)
}

// Client wraps interactions with the Gotenberg API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	page       PageOptions
}

// NewClient constructs a new client using the A4 layout.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		page: A4,
	}
}

// WithPage returns a copy of the client that renders with page.
func (c *Client) WithPage(page PageOptions) *Client {
	clone := *c
	clone.page = page
	return &clone
}

// Ping checks if the remote Gotenberg service is available.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	return nil
}

// RenderHTML converts raw HTML into a PDF document using Gotenberg.
func (c *Client) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(part, html); err != nil {
		return nil, err
	}
	fields := map[string]float64{
		"paperWidth":   c.page.PaperWidth,
		"paperHeight":  c.page.PaperHeight,
		"marginTop":    c.page.Margin,
		"marginBottom": c.page.Margin,
		"marginLeft":   c.page.Margin,
		"marginRight":  c.page.Margin,
	}
	for name, value := range fields {
		if value <= 0 {
			continue
		}
		if err := writer.WriteField(name, strconv.FormatFloat(value, 'f', -1, 64)); err != nil {
			return nil, err
		}
	}
	if err := writer.WriteField("printBackground", "true"); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/forms/chromium/convert/html", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return nil, statusError(resp)
	}
	return io.ReadAll(resp.Body)
}

func statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
}
