// Package vehiclelookup fetches vehicle details and MOT history by registration.
package vehiclelookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
)

// ErrNotFound is returned when the provider has no record of a registration.
var ErrNotFound = errors.New("vehiclelookup: registration not found")

// ErrInvalidRegistration is returned for registrations that are empty after normalisation.
var ErrInvalidRegistration = errors.New("vehiclelookup: invalid registration")

// MOTTest is one entry of a vehicle's MOT history.
type MOTTest struct {
	CompletedAt   time.Time  `json:"completed_at"`
	Result        string     `json:"result"`
	ExpiresOn     *time.Time `json:"expires_on,omitempty"`
	OdometerMiles int        `json:"odometer_miles,omitempty"`
}

// Passed reports whether the test result was a pass.
func (t MOTTest) Passed() bool {
	return strings.EqualFold(t.Result, "passed") || strings.EqualFold(t.Result, "pass")
}

// VehicleInfo is what the provider knows about a registration.
type VehicleInfo struct {
	Registration string    `json:"registration"`
	Make         string    `json:"make"`
	Model        string    `json:"model"`
	Year         int       `json:"year,omitempty"`
	Color        string    `json:"color,omitempty"`
	VIN          string    `json:"vin,omitempty"`
	MOTHistory   []MOTTest `json:"mot_history,omitempty"`
}

// MOTExpiry returns the latest expiry date among passed tests.
func (v VehicleInfo) MOTExpiry() (time.Time, bool) {
	var latest time.Time
	for _, test := range v.MOTHistory {
		if test.Passed() && test.ExpiresOn != nil && test.ExpiresOn.After(latest) {
			latest = *test.ExpiresOn
		}
	}
	return latest, !latest.IsZero()
}

// Lookuper resolves a registration.
type Lookuper interface {
	Lookup(ctx context.Context, registration string) (VehicleInfo, error)
}

// NormalizeRegistration upper-cases a registration and strips spaces and separators.
func NormalizeRegistration(reg string) string {
	var b strings.Builder
	for _, r := range reg {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// Client calls an MOT-history style HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a lookup client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type providerTest struct {
	CompletedDate string `json:"completedDate"`
	TestResult    string `json:"testResult"`
	ExpiryDate    string `json:"expiryDate"`
	OdometerValue string `json:"odometerValue"`
	OdometerUnit  string `json:"odometerUnit"`
}

type providerVehicle struct {
	Registration  string         `json:"registration"`
	Make          string         `json:"make"`
	Model         string         `json:"model"`
	ManufactureAt string         `json:"manufactureDate"`
	PrimaryColour string         `json:"primaryColour"`
	VIN           string         `json:"vin"`
	MOTTests      []providerTest `json:"motTests"`
}

// Lookup fetches a registration from the provider. It does not retry.
func (c *Client) Lookup(ctx context.Context, registration string) (VehicleInfo, error) {
	reg := NormalizeRegistration(registration)
	if reg == "" {
		return VehicleInfo{}, ErrInvalidRegistration
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/vehicles/"+url.PathEscape(reg), nil)
	if err != nil {
		return VehicleInfo{}, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return VehicleInfo{}, fmt.Errorf("vehiclelookup: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode == http.StatusNotFound {
		return VehicleInfo{}, ErrNotFound
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return VehicleInfo{}, fmt.Errorf("vehiclelookup: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var pv providerVehicle
	if err := json.NewDecoder(resp.Body).Decode(&pv); err != nil {
		return VehicleInfo{}, fmt.Errorf("vehiclelookup: decode: %w", err)
	}
	return pv.toInfo(reg), nil
}

func (pv providerVehicle) toInfo(reg string) VehicleInfo {
	info := VehicleInfo{
		Registration: reg,
		Make:         pv.Make,
		Model:        pv.Model,
		Color:        pv.PrimaryColour,
		VIN:          pv.VIN,
	}
	if made, ok := parseDate(pv.ManufactureAt); ok {
		info.Year = made.Year()
	}
	for _, t := range pv.MOTTests {
		test := MOTTest{Result: strings.ToLower(t.TestResult)}
		if completed, ok := parseDate(t.CompletedDate); ok {
			test.CompletedAt = completed
		}
		if expiry, ok := parseDate(t.ExpiryDate); ok {
			test.ExpiresOn = &expiry
		}
		if miles, err := parseMiles(t.OdometerValue, t.OdometerUnit); err == nil {
			test.OdometerMiles = miles
		}
		info.MOTHistory = append(info.MOTHistory, test)
	}
	return info
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000Z", "2006-01-02", "2006.01.02 15:04:05", "2006.01.02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseMiles(value, unit string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
		return 0, err
	}
	if strings.EqualFold(unit, "km") {
		n = int(float64(n) * 0.621371)
	}
	return n, nil
}
