package notification

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"text/template"
	"time"

	"github.com/smukkama/traffic-monitor/internal/protocol"
	"github.com/smukkama/traffic-monitor/pkg/config"
)

var alertTemplate = template.Must(template.New("alert").Parse(`
{{if .Triggered}}Sustained Congestion Detected{{else}}Congestion Cleared{{end}}
=============================

Location:   {{.Location}}
Sensor:     {{.SensorID}}
Vehicles:   {{.VehicleCount}}
Avg Speed:  {{.AvgSpeed}} km/h
High Since: {{.StartTime.Format "15:04:05"}}
Observed:   {{.ObservedAt.Format "15:04:05"}} ({{printf "%.0f" .Duration}}s of High congestion)
{{if .Triggered}}
Traffic at {{.Location}} has stayed in the High congestion band.
Consider rerouting or adjusting signal timing.
{{else}}
Traffic at {{.Location}} has dropped out of the High congestion band.
{{end}}
---
Traffic Monitor
`))

type alertView struct {
	*protocol.CongestionAlert
	Triggered bool
}

// sendMailFunc matches smtp.SendMail
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier emails congestion alerts
type EmailNotifier struct {
	config   *config.SMTPConfig
	sendMail sendMailFunc
	now      func() time.Time
	logger   *slog.Logger
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier(cfg *config.SMTPConfig, logger *slog.Logger) *EmailNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailNotifier{
		config:   cfg,
		sendMail: smtp.SendMail,
		now:      time.Now,
		logger:   logger,
	}
}

// Subject returns the mail subject for alert
func Subject(alert *protocol.CongestionAlert) (string, error) {
	switch alert.Type {
	case protocol.AlertTypeTriggered:
		return fmt.Sprintf("Congestion alert TRIGGERED - %s", alert.Location), nil
	case protocol.AlertTypeCleared:
		return fmt.Sprintf("Congestion alert CLEARED - %s", alert.Location), nil
	}
	return "", fmt.Errorf("unknown alert type: %s", alert.Type)
}

// Body renders the plain-text mail body for alert
func Body(alert *protocol.CongestionAlert) (string, error) {
	var buf bytes.Buffer
	view := alertView{CongestionAlert: alert, Triggered: alert.Type == protocol.AlertTypeTriggered}
	if err := alertTemplate.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SendAlert emails alert. Without SMTP credentials the mail is only logged.
func (e *EmailNotifier) SendAlert(alert *protocol.CongestionAlert) error {
	subject, err := Subject(alert)
	if err != nil {
		return err
	}
	body, err := Body(alert)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	if e.config.Username == "" || e.config.Password == "" {
		e.logger.Info("SMTP not configured, skipping email", "subject", subject)
		return nil
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", e.config.From)
	fmt.Fprintf(&msg, "To: %s\r\n", e.config.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Date: %s\r\n", e.now().Format(time.RFC1123Z))
	msg.WriteString("\r\n")
	msg.WriteString(body)

	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	if err := e.sendMail(addr, auth, e.config.From, []string{e.config.To}, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	e.logger.Info("email sent", "subject", subject)
	return nil
}

// TestConnection dials the SMTP server
func (e *EmailNotifier) TestConnection() error {
	if e.config.Username == "" {
		return fmt.Errorf("SMTP not configured")
	}

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()
	return nil
}
