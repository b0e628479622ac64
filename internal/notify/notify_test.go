package notify

import (
	"context"
	"errors"
	"standings-sync/internal/testutil"
	"testing"

	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	sent []*email.Email
	err  error
}

func (f *fakeTransport) Send(ctx context.Context, mail *email.Email) error {
	f.sent = append(f.sent, mail)
	return f.err
}

func newNotifier(transport Transport, tel *testutil.RecordingAPI) Notifier {
	return NewNotifier(Options{
		From:          "bot@example.com",
		To:            ParseRecipients("a@example.com, b@example.com,"),
		Title:         "Weds. Mixers",
		PublicBaseURL: "https://example.com/league_pdfs/weds-mixers/",
	}, transport, tel)
}

func TestNotifySendsOneMessage(t *testing.T) {
	transport := &fakeTransport{}
	n := newNotifier(transport, &testutil.RecordingAPI{})

	err := n.Notify(context.Background(), "standings_2024-10-02.pdf")
	require.NoError(t, err)
	require.Len(t, transport.sent, 1)

	mail := transport.sent[0]
	require.Equal(t, "bot@example.com", mail.From)
	require.Equal(t, []string{"a@example.com", "b@example.com"}, mail.To)
	require.Equal(t, "New Weds. Mixers PDF Posted!", mail.Subject)
	require.Equal(
		t,
		"A new Weds. Mixers PDF is available: https://example.com/league_pdfs/weds-mixers/standings_2024-10-02.pdf",
		string(mail.Text),
	)
}

func TestNotifyFailureIsNotRetried(t *testing.T) {
	transport := &fakeTransport{err: errors.New("535 authentication failed")}
	tel := &testutil.RecordingAPI{}
	n := newNotifier(transport, tel)

	err := n.Notify(context.Background(), "standings_2024-10-02.pdf")
	var notifyErr *Error
	require.ErrorAs(t, err, &notifyErr)
	require.Equal(t, []string{"a@example.com", "b@example.com"}, notifyErr.To)
	require.ErrorContains(t, err, "535")
	require.Len(t, transport.sent, 1)
	require.True(t, tel.HasReport("broken", "notify.send"))
}

func TestParseRecipients(t *testing.T) {
	require.Empty(t, ParseRecipients(" , "))
	require.Equal(t, []string{"one@example.com"}, ParseRecipients("one@example.com"))
}

func TestSMTPAddr(t *testing.T) {
	require.Equal(t, "smtp.example.com:587", SMTPConfig{Server: "smtp.example.com"}.Addr())
	require.Equal(t, "smtp.example.com:2525", SMTPConfig{Server: "smtp.example.com", Port: 2525}.Addr())
}

func TestSMTPTransportHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	transport := NewSMTPTransport(SMTPConfig{Server: "127.0.0.1", Port: 1})
	err := transport.Send(ctx, email.NewEmail())
	require.ErrorIs(t, err, context.Canceled)
}
