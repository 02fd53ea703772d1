package notifier

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"

	"pricetracker/internal/models"
)

// Sender delivers one message. Implementations never retry: the alert
// engine treats a failed send as final and surfaces it.
type Sender interface {
	Send(ctx context.Context, msg models.EmailMessage) error
}

// SMTPSender delivers mail directly over SMTP.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTP(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg models.EmailMessage) error {
	const op = "notifier.SMTPSender.Send"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.Body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Publisher is the queue side of delivery; satisfied by the rabbitmq
// producer.
type Publisher interface {
	PublishJSON(ctx context.Context, msg any) error
}

// QueueSender hands messages to the mail worker through the broker.
// Delivery to the queue counts as a successful send here; the worker
// owns the SMTP leg.
type QueueSender struct {
	producer Publisher
}

func NewQueue(producer Publisher) *QueueSender {
	return &QueueSender{producer: producer}
}

func (s *QueueSender) Send(ctx context.Context, msg models.EmailMessage) error {
	const op = "notifier.QueueSender.Send"

	if err := s.producer.PublishJSON(ctx, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// LogSender writes messages to the log instead of sending them, for
// setups with no mail transport configured.
type LogSender struct {
	log *slog.Logger
}

func NewLog(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, msg models.EmailMessage) error {
	s.log.Info("mail transport not configured, logging message",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)

	return nil
}
