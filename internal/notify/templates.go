package notify

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Template names used by the application.
const (
	TemplateInvoiceSent         = "invoice_sent"
	TemplateEstimateSent        = "estimate_sent"
	TemplateAppointmentReminder = "appointment_reminder"
	TemplateMOTReminder         = "mot_reminder"
	TemplateBookingConfirmation = "booking_confirmation"
)

// TemplateSource is the raw subject/body pair of a message template.
type TemplateSource struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

var defaultSources = map[string]TemplateSource{
	TemplateInvoiceSent: {
		Subject: "Invoice {{.Number}}",
		Body: "Hello {{.CustomerName}},\n\nPlease find invoice {{.Number}} for {{.Total}}." +
			"{{if .DueDate}} Payment is due by {{.DueDate}}.{{end}}\n\nThank you for your business.",
	},
	TemplateEstimateSent: {
		Subject: "Estimate {{.Number}}",
		Body: "Hello {{.CustomerName}},\n\nYour estimate {{.Number}} totals {{.Total}}." +
			"{{if .ValidUntil}} It is valid until {{.ValidUntil}}.{{end}}\n\nReply to approve the work.",
	},
	TemplateAppointmentReminder: {
		Subject: "Appointment reminder",
		Body:    "Hello {{.CustomerName}}, this is a reminder of your {{.Title}} appointment on {{.StartsAt}}{{if .Registration}} for {{.Registration}}{{end}}.",
	},
	TemplateMOTReminder: {
		Subject: "MOT due for {{.Registration}}",
		Body:    "Hello {{.CustomerName}}, the MOT for {{.Registration}} expires on {{.ExpiresOn}}. Book your test with us today.",
	},
	TemplateBookingConfirmation: {
		Subject: "Booking received",
		Body:    "Hello {{.CustomerName}}, we received your booking for {{.StartsAt}}. We will confirm shortly.",
	},
}

// Templates renders named message templates.
type Templates struct {
	subjects map[string]*template.Template
	bodies   map[string]*template.Template
}

// DefaultTemplates returns the built-in templates.
func DefaultTemplates() *Templates {
	t, err := newTemplates(defaultSources)
	if err != nil {
		panic(err)
	}
	return t
}

// LoadTemplates reads YAML overrides from path on top of the defaults.
func LoadTemplates(path string) (*Templates, error) {
	if path == "" {
		return DefaultTemplates(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("notify: read templates: %w", err)
	}
	var overrides map[string]TemplateSource
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("notify: parse templates: %w", err)
	}
	sources := make(map[string]TemplateSource, len(defaultSources)+len(overrides))
	for name, src := range defaultSources {
		sources[name] = src
	}
	for name, src := range overrides {
		sources[name] = src
	}
	return newTemplates(sources)
}

func newTemplates(sources map[string]TemplateSource) (*Templates, error) {
	t := &Templates{
		subjects: make(map[string]*template.Template, len(sources)),
		bodies:   make(map[string]*template.Template, len(sources)),
	}
	for name, src := range sources {
		subject, err := template.New(name + ".subject").Option("missingkey=zero").Parse(src.Subject)
		if err != nil {
			return nil, fmt.Errorf("notify: template %s subject: %w", name, err)
		}
		body, err := template.New(name + ".body").Option("missingkey=zero").Parse(src.Body)
		if err != nil {
			return nil, fmt.Errorf("notify: template %s body: %w", name, err)
		}
		t.subjects[name] = subject
		t.bodies[name] = body
	}
	return t, nil
}

// Render executes the named template with data.
func (t *Templates) Render(name string, data any) (subject, body string, err error) {
	st, ok := t.subjects[name]
	if !ok {
		return "", "", fmt.Errorf("notify: unknown template %q", name)
	}
	if subject, err = execute(st, data); err != nil {
		return "", "", err
	}
	if body, err = execute(t.bodies[name], data); err != nil {
		return "", "", err
	}
	return subject, body, nil
}

// RenderInline parses and executes an ad hoc subject/body pair.
func RenderInline(src TemplateSource, data any) (subject, body string, err error) {
	t, err := newTemplates(map[string]TemplateSource{"inline": src})
	if err != nil {
		return "", "", err
	}
	return t.Render("inline", data)
}

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("notify: execute %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
