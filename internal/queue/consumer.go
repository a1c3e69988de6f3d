package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// MailConsumer drains the email queue and delivers each message by appending
// it to an outbox file.  A real SMTP transport would replace deliver.
type MailConsumer struct {
	URL    string
	Queue  string
	Outbox string
	Log    *zap.Logger
}

// Run connects to RabbitMQ, declares the queue and consumes until ctx is
// cancelled.  Broker failures trigger a reconnect with exponential backoff.
func (m *MailConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(m.URL)
		if err != nil {
			m.Log.Warn("mail consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = m.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.Log.Warn("mail consumer: consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (m *MailConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		m.Log.Warn("mail consumer: set QoS failed", zap.Error(err))
	}
	if err := declare(ch, m.Queue); err != nil {
		return err
	}
	msgs, err := ch.Consume(m.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := m.handle(d.Body); err != nil {
				m.Log.Error("mail consumer: handle message failed", zap.Error(err))
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (m *MailConsumer) handle(body []byte) error {
	var ev EmailEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	msg, err := Render(ev)
	if err != nil {
		return err
	}
	if err := m.deliver(msg); err != nil {
		return err
	}
	m.Log.Info("email delivered", zap.String("kind", ev.Kind), zap.String("to", ev.To))
	return nil
}

func (m *MailConsumer) deliver(msg Message) error {
	if err := os.MkdirAll(filepath.Dir(m.Outbox), 0o755); err != nil {
		return fmt.Errorf("mkdir outbox: %w", err)
	}
	f, err := os.OpenFile(m.Outbox, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open outbox: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] To: %s | Subject: %s\n", time.Now().UTC().Format(time.RFC3339), msg.To, msg.Subject)
	b.WriteString(msg.Text)
	b.WriteString("\n---\n")
	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("write outbox: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
