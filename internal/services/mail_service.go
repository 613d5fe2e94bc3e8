package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"reportaciudad/internal/config"

	"go.uber.org/zap"
)

var mailTemplates = template.Must(template.New("mail").Parse(`
{{define "account_validated"}}<p>Hola {{.Name}},</p>
<p>Tu cuenta en <strong>ReportaCiudad</strong> fue validada. Ya puedes iniciar sesión y reportar problemas de tu ciudad.</p>
{{if .Comments}}<p>Comentarios del equipo: {{.Comments}}</p>{{end}}{{end}}
{{define "account_rejected"}}<p>Hola {{.Name}},</p>
<p>Revisamos tu solicitud de registro en <strong>ReportaCiudad</strong> y no pudimos aprobarla.</p>
<p>Motivo: {{.Reason}}</p>{{end}}
`))

// sendFunc 便于测试替换
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type MailService struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	Enabled  bool

	logger *zap.Logger
	send   sendFunc
}

func NewMailService(cfg *config.Config, logger *zap.Logger) *MailService {
	enabled := cfg.MailEnabled()
	if !enabled {
		logger.Warn("MailService disabled: missing SMTP environment variables")
	}

	return &MailService{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.SMTPFrom,
		Enabled:  enabled,
		logger:   logger,
		send:     smtp.SendMail,
	}
}

func (s *MailService) buildMessage(to []string, subject, body string) []byte {
	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	return []byte(fmt.Sprintf("To: %s\r\n"+
		"From: ReportaCiudad <%s>\r\n"+
		"Subject: %s\r\n"+
		"%s\r\n%s", strings.Join(to, ","), s.From, subject, mime, body))
}

func (s *MailService) deliver(to []string, subject, body string) {
	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
	addr := fmt.Sprintf("%s:%s", s.Host, s.Port)

	if err := s.send(addr, auth, s.From, to, s.buildMessage(to, subject, body)); err != nil {
		s.logger.Error("Failed to send email", zap.Strings("to", to), zap.Error(err))
		return
	}
	s.logger.Info("Email sent", zap.Strings("to", to), zap.String("subject", subject))
}

func (s *MailService) sendAsync(to []string, subject string, body string) {
	if !s.Enabled {
		return
	}
	go s.deliver(to, subject, body)
}

func (s *MailService) render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := mailTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	return buf.String(), nil
}

func (s *MailService) SendAccountValidated(email, name, comments string) {
	body, err := s.render("account_validated", map[string]string{"Name": name, "Comments": comments})
	if err != nil {
		s.logger.Error("Error rendering account validated email", zap.Error(err))
		return
	}
	s.sendAsync([]string{email}, "Tu cuenta en ReportaCiudad fue validada", body)
}

func (s *MailService) SendAccountRejected(email, name, reason string) {
	body, err := s.render("account_rejected", map[string]string{"Name": name, "Reason": reason})
	if err != nil {
		s.logger.Error("Error rendering account rejected email", zap.Error(err))
		return
	}
	s.sendAsync([]string{email}, "Tu solicitud de registro en ReportaCiudad", body)
}
