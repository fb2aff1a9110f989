package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMailer struct {
	to      []string
	subject string
	body    string
	err     error
}

func (m *recordingMailer) SendMail(_ context.Context, to []string, subject, body string) error {
	m.to, m.subject, m.body = to, subject, body
	return m.err
}

func TestMessageValidate(t *testing.T) {
	msg := Message{Channel: ChannelSMS, Recipients: []Recipient{{Email: "a@example.com"}}, Body: "hi"}
	assert.ErrorIs(t, msg.Validate(), ErrNoRecipients, "sms needs a phone number")

	msg.Recipients = append(msg.Recipients, Recipient{Phone: " +4470000 "})
	require.NoError(t, msg.Validate())
	assert.Equal(t, []string{"+4470000"}, msg.Addresses())

	msg.Body = "  "
	assert.ErrorIs(t, msg.Validate(), ErrEmptyBody)

	msg.Channel = "pigeon"
	assert.ErrorIs(t, msg.Validate(), ErrBadChannel)
}

func TestDirectDispatcherEmail(t *testing.T) {
	mailer := &recordingMailer{}
	d := &DirectDispatcher{Mailer: mailer}

	err := d.Send(context.Background(), Message{
		Channel:    ChannelEmail,
		Recipients: []Recipient{{Name: "Jane", Email: "jane@example.com"}, {Name: "No mail"}},
		Subject:    "Invoice",
		Body:       "Body",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"jane@example.com"}, mailer.to)
	assert.Equal(t, "Invoice", mailer.subject)

	mailer.err = errors.New("smtp down")
	err = d.Send(context.Background(), Message{Channel: ChannelEmail, Recipients: []Recipient{{Email: "x@example.com"}}, Body: "b"})
	assert.EqualError(t, err, "smtp down")

	err = d.Send(context.Background(), Message{Channel: ChannelSMS, Recipients: []Recipient{{Phone: "1"}}, Body: "b"})
	assert.Error(t, err, "sms provider missing")
}

func TestSMSGateway(t *testing.T) {
	var (
		mu       sync.Mutex
		received []smsRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req smsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.To == "bad" {
			http.Error(w, "invalid number", http.StatusUnprocessableEntity)
			return
		}
		mu.Lock()
		received = append(received, req)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	gw := NewSMSGateway(srv.URL, "secret", "GARAGE")
	d := &DirectDispatcher{SMS: gw}
	err := d.Send(context.Background(), Message{
		Channel:    ChannelSMS,
		Recipients: []Recipient{{Phone: "+441"}, {Phone: "+442"}},
		Body:       "MOT due",
	})
	require.NoError(t, err)
	require.Len(t, received, 2)
	assert.Equal(t, smsRequest{From: "GARAGE", To: "+441", Body: "MOT due"}, received[0])

	err = gw.SendSMS(context.Background(), []string{"bad"}, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "invalid number")

	assert.ErrorIs(t, gw.SendSMS(context.Background(), nil, "x"), ErrNoRecipients)
}
