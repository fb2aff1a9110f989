package notify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTemplatesRender(t *testing.T) {
	tpl := DefaultTemplates()

	subject, body, err := tpl.Render(TemplateInvoiceSent, map[string]any{
		"CustomerName": "Jane",
		"Number":       "INV-202407-0001",
		"Total":        "$81.35",
		"DueDate":      "14 Aug 2024",
	})
	require.NoError(t, err)
	assert.Equal(t, "Invoice INV-202407-0001", subject)
	assert.Contains(t, body, "Hello Jane")
	assert.Contains(t, body, "$81.35")

	_, body, err = tpl.Render(TemplateAppointmentReminder, map[string]any{
		"CustomerName": "Jane",
		"Title":        "Service",
		"StartsAt":     "16 Jul 2024 09:30",
	})
	require.NoError(t, err)
	assert.NotContains(t, body, " for ", "registration is optional")

	_, _, err = tpl.Render("missing", nil)
	assert.Error(t, err)
}

func TestLoadTemplatesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mot_reminder:
  subject: "MOT reminder for {{.Registration}}"
  body: "Your MOT expires {{.ExpiresOn}}."
`), 0o600))

	tpl, err := LoadTemplates(path)
	require.NoError(t, err)

	subject, body, err := tpl.Render(TemplateMOTReminder, map[string]any{"Registration": "AB12 CDE", "ExpiresOn": "01 Aug 2024"})
	require.NoError(t, err)
	assert.Equal(t, "MOT reminder for AB12 CDE", subject)
	assert.Equal(t, "Your MOT expires 01 Aug 2024.", body)

	_, _, err = tpl.Render(TemplateEstimateSent, map[string]any{"Number": "EST-1"})
	require.NoError(t, err, "defaults survive overrides")
}

func TestLoadTemplatesErrors(t *testing.T) {
	_, err := LoadTemplates(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("invoice_sent:\n  subject: \"{{.Number\"\n  body: x\n"), 0o600))
	_, err = LoadTemplates(path)
	assert.Error(t, err)

	tpl, err := LoadTemplates("")
	require.NoError(t, err)
	assert.NotNil(t, tpl)
}

func TestRenderInline(t *testing.T) {
	subject, body, err := RenderInline(TemplateSource{Subject: "Closed {{.Day}}", Body: "Hi {{.CustomerName}}, we are closed on {{.Day}}."},
		map[string]any{"CustomerName": "Sam", "Day": "Monday"})
	require.NoError(t, err)
	assert.Equal(t, "Closed Monday", subject)
	assert.Equal(t, "Hi Sam, we are closed on Monday.", body)
}
