// Package sender отвечает за формирование и отправку писем-напоминаний по SMTP.
package sender

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ratishjain12/subscription-management-api/internal/lib/sl"
	"github.com/ratishjain12/subscription-management-api/internal/lib/smtp"
	"github.com/ratishjain12/subscription-management-api/internal/models"
)

var remindersSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reminder_emails_sent_total",
	Help: "Number of reminder emails delivered, by threshold label.",
}, []string{"threshold"})

// SenderService отправляет письма через SMTP транспорт.
type SenderService struct {
	transport smtp.TransportInterface
	log       *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(transport smtp.TransportInterface, log *slog.Logger) *SenderService {
	return &SenderService{
		transport: transport,
		log:       log,
	}
}

// ThresholdLabel возвращает метку порога напоминания, например "7 days before reminder".
// Метка попадает в тему письма, логи и метрики.
func ThresholdLabel(daysBefore int) string {
	return fmt.Sprintf("%d days before reminder", daysBefore)
}

// SendReminder отправляет одно письмо-напоминание для заданного порога.
// Ошибка доставки возвращается вызывающему шагу workflow как его сбой.
func (s *SenderService) SendReminder(_ context.Context, info *models.SubscriptionInfo, daysBefore int) error {
	label := ThresholdLabel(daysBefore)
	to := []string{info.Email}
	subject := fmt.Sprintf("%s: подписка %s", label, info.ServiceName)
	bodyText := fmt.Sprintf("Здравствуйте, %s!\n\nВаша подписка на сервис %s будет продлена %s (через %d дн.), стоимость продления %d.\n\nЕсли продление не требуется, отмените подписку заранее.",
		info.Username, info.ServiceName, info.RenewalDate.Format("02-01-2006"), daysBefore, info.Price)

	if err := s.sendEmail(to, subject, bodyText); err != nil {
		return err
	}

	remindersSent.WithLabelValues(label).Inc()
	s.log.Info("reminder email sent",
		slog.String("threshold", label),
		slog.String("subscription_id", info.SubscriptionID))
	return nil
}

func (s *SenderService) sendEmail(to []string, subject, bodyText string) error {
	msg := strings.Join([]string{
		"From: " + s.transport.GetSMTPUser(),
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer client.Close()

	if err := client.Mail(s.transport.GetSMTPUser()); err != nil {
		s.log.Error("failed to set MAIL FROM", "from", s.transport.GetSMTPUser(), "error", sl.Err(err))
		return err
	}

	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", "recipient", addr, "error", sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get Data writer", "error", sl.Err(err))
		return err
	}

	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", "error", sl.Err(err))
		return err
	}

	if err = wc.Close(); err != nil {
		s.log.Error("failed to close Data writer", "error", sl.Err(err))
		return err
	}

	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", "error", sl.Err(err))
		return err
	}

	s.log.Info("email sent successfully", "to", to)
	return nil
}
