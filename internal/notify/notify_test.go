package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jw6ventures/bookings/internal/platform/retry"
)

type recordingMailer struct {
	mu       sync.Mutex
	sent     []Message
	attempts map[string]int
	failFor  map[string]error
}

func (m *recordingMailer) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attempts == nil {
		m.attempts = map[string]int{}
	}
	m.attempts[msg.To]++
	if err := m.failFor[msg.To]; err != nil {
		return err
	}
	m.sent = append(m.sent, msg)
	return nil
}

var fastPolicy = retry.Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond}

func TestRenderPicksBodyByContext(t *testing.T) {
	etID := int64(12)

	withET := Notice{RecipientEmail: "a@example.com", RecipientName: "Ada", AppName: "Giphy", Categories: []string{"other"}, EventTypeID: &etID}.Render()
	assert.Equal(t, "Giphy has been disabled", withET.Subject)
	assert.Contains(t, withET.Body, "event type #12")

	cred := Notice{RecipientEmail: "b@example.com", AppName: "Zoom", Categories: []string{"video"}}.Render()
	assert.Contains(t, cred.Body, "Hi b@example.com")
	assert.Contains(t, cred.Body, "connected account")

	de := Notice{RecipientEmail: "c@example.com", RecipientName: "Carl", Locale: "de", AppName: "Zoom", Categories: []string{"video"}}.Render()
	assert.Equal(t, "Zoom wurde deaktiviert", de.Subject)
}

func TestDispatchSendsEveryNoticeIndependently(t *testing.T) {
	mailer := &recordingMailer{failFor: map[string]error{"broken@example.com": errors.New("mailbox unavailable")}}
	d := NewDispatcher(mailer, WithPolicy(fastPolicy))

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, []Notice{
		{RecipientEmail: "one@example.com", AppName: "Zoom"},
		{RecipientEmail: "broken@example.com", AppName: "Zoom"},
		{RecipientEmail: "two@example.com", AppName: "Zoom"},
	})
	// Cancelling the request context must not abort sends already started.
	cancel()

	require.NoError(t, d.Wait(context.Background()))

	mailer.mu.Lock()
	defer mailer.mu.Unlock()
	assert.Len(t, mailer.sent, 2)
	assert.Equal(t, 2, mailer.attempts["broken@example.com"])
	for _, msg := range mailer.sent {
		assert.NotEmpty(t, msg.ID)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	block := make(chan struct{})
	d := NewDispatcher(mailerFunc(func(ctx context.Context, msg Message) error {
		<-block
		return nil
	}))
	d.Dispatch(context.Background(), []Notice{{RecipientEmail: "slow@example.com"}})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Wait(ctx), context.DeadlineExceeded)

	close(block)
	require.NoError(t, d.Wait(context.Background()))
}

type mailerFunc func(ctx context.Context, msg Message) error

func (f mailerFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

func TestSMTPMailerComposesAndTripsBreaker(t *testing.T) {
	m := NewSMTPMailer("smtp.example.com:587", "user", "pw", "noreply@example.com")
	m.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	var raw string
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		raw = string(msg)
		return nil
	}
	require.NoError(t, m.Send(context.Background(), Message{ID: "n1", To: "a@example.com", Subject: "Zoom has been disabled", Body: "hello"}))
	assert.True(t, strings.HasPrefix(raw, "From: noreply@example.com\r\nTo: a@example.com\r\n"))
	assert.Contains(t, raw, "Message-ID: <n1@bookings>")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\nhello\r\n"))

	m.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("connection refused") }
	for i := 0; i < 5; i++ {
		assert.Error(t, m.Send(context.Background(), Message{To: "a@example.com"}))
	}
	err := m.Send(context.Background(), Message{To: "a@example.com"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, retry.Stop, classify(err))
}
