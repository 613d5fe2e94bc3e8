package services

import (
	"context"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reportaciudad/internal/config"
	"reportaciudad/internal/models"
)

type memNotificationStore struct{ saved []*models.Notification }

func (m *memNotificationStore) Create(_ context.Context, n *models.Notification) error {
	m.saved = append(m.saved, n)
	return nil
}

func TestNotificationServiceRendersMarkdown(t *testing.T) {
	store := &memNotificationStore{}
	svc := NewNotificationService(store)
	rid := "r1"

	err := svc.Notify(context.Background(), "u1", models.NotificationReportRejected,
		"Reporte <b>rechazado</b>", "Tu reporte **Hueco** fue rechazado <script>x()</script>", &rid)
	require.NoError(t, err)
	require.Len(t, store.saved, 1)

	n := store.saved[0]
	assert.Equal(t, "u1", n.UserID)
	assert.Equal(t, "Reporte rechazado", n.Title)
	assert.Contains(t, n.Message, "<strong>Hueco</strong>")
	assert.NotContains(t, n.Message, "<script>")
	assert.Equal(t, &rid, n.ReportID)
}

func TestMailServiceDisabledWithoutSMTP(t *testing.T) {
	svc := NewMailService(&config.Config{}, zap.NewNop())
	assert.False(t, svc.Enabled)

	called := false
	svc.send = func(string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	}
	svc.SendAccountValidated("ana@example.org", "Ana", "")
	assert.False(t, called)
}

func TestMailServiceDeliver(t *testing.T) {
	cfg := &config.Config{SMTPHost: "smtp.example.org", SMTPPort: "587", SMTPUser: "u", SMTPPass: "p", SMTPFrom: "no-reply@example.org"}
	svc := NewMailService(cfg, zap.NewNop())
	require.True(t, svc.Enabled)

	var gotAddr string
	var gotMsg []byte
	svc.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotMsg = msg
		return nil
	}

	body, err := svc.render("account_rejected", map[string]string{"Name": "Ana", "Reason": "Datos <incompletos>"})
	require.NoError(t, err)
	svc.deliver([]string{"ana@example.org"}, "Solicitud", body)

	assert.Equal(t, "smtp.example.org:587", gotAddr)
	assert.Contains(t, string(gotMsg), "To: ana@example.org")
	assert.Contains(t, string(gotMsg), "From: ReportaCiudad <no-reply@example.org>")
	assert.Contains(t, string(gotMsg), "Datos &lt;incompletos&gt;")
}
