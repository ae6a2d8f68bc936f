package notifier

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/techx/identity/internal/logger"
)

const otpQueueName = "identity.otp.requested"

// AMQPSender publishes OTP delivery requests to a RabbitMQ queue,
// where a mail worker picks them up. Connections are short-lived:
// one dial per publish keeps the sender free of channel state.
type AMQPSender struct {
	URL    string
	Logger logger.Logger
}

type otpMessage struct {
	Email       string    `json:"email"`
	Code        string    `json:"code"`
	RequestedAt time.Time `json:"requested_at"`
}

func (s AMQPSender) SendOTP(ctx context.Context, email string, code string) error {
	conn, err := amqp.Dial(s.URL)
	if err != nil {
		s.Logger.Error("amqp dial failed", "error", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		s.Logger.Error("amqp channel open failed", "error", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Idempotent declare, durable so messages survive broker restarts
	if _, err := ch.QueueDeclare(otpQueueName, true, false, false, false, nil); err != nil {
		s.Logger.Error("amqp queue declare failed", "error", err)
		return err
	}

	body, err := json.Marshal(otpMessage{
		Email:       email,
		Code:        code,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx,
		"",           // default exchange
		otpQueueName, // routing key = queue name
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		s.Logger.Error("amqp publish failed", "error", err)
		return err
	}

	return nil
}
