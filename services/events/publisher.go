package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/enrollment"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/quiz"
)

const (
	RoutingStudentProgressChanged = "student.progress.changed"

	publishTimeout = 5 * time.Second
)

var NowFunc = time.Now // mockable

// Event is the envelope of every published message.
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher publishes domain events to a RabbitMQ topic exchange.
// Without a broker URL it is disabled and drops events.
type Publisher struct {
	conn     io.Closer
	ch       channel
	exchange string
	logger   core.Logger
}

var (
	_ enrollment.EventPublisher = (*Publisher)(nil)
	_ quiz.ProgressNotifier     = (*Publisher)(nil)
)

func NewPublisher(conf core.RabbitMQConfig, logger core.Logger) (*Publisher, error) {
	if conf.URL == "" {
		logger.Warn("rabbitmq url is empty, event publishing is disabled")
		return &Publisher{exchange: conf.Exchange, logger: logger}, nil
	}

	conn, err := amqp091.Dial(conf.URL)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "opening channel")
	}
	err = ch.ExchangeDeclare(
		conf.Exchange, // name
		"topic",       // type
		true,          // durable
		false,         // auto-deleted
		false,         // internal
		false,         // no-wait
		nil,           // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declaring exchange %s", conf.Exchange)
	}

	logger.Info(fmt.Sprintf("event publisher ready on exchange %s", conf.Exchange))
	return &Publisher{conn: conn, ch: ch, exchange: conf.Exchange, logger: logger}, nil
}

func (p *Publisher) Enabled() bool { return p.ch != nil }

// Publish sends payload as the data of an Event of type routingKey.
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	if !p.Enabled() {
		p.logger.Debug(fmt.Sprintf("event publishing disabled, dropping %s", routingKey))
		return nil
	}

	evt := Event{
		ID:         uuid.New().String(),
		Type:       routingKey,
		OccurredAt: NowFunc().UTC(),
		Data:       payload,
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrapf(err, "encoding %s event", routingKey)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = p.ch.PublishWithContext(ctx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    evt.ID,
			Timestamp:    evt.OccurredAt,
			Type:         routingKey,
			Body:         body,
		},
	)
	if err != nil {
		return errors.Wrapf(err, "publishing %s", routingKey)
	}
	return nil
}

// StudentProgressChanged publishes a student.progress.changed event.
func (p *Publisher) StudentProgressChanged(ctx context.Context, studentID, courseID string) error {
	return p.Publish(ctx, RoutingStudentProgressChanged, map[string]string{
		"student_id": studentID,
		"course_id":  courseID,
	})
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			p.logger.Warn(fmt.Sprintf("closing rabbitmq channel: %v", err), err)
		}
	}
	if p.conn != nil {
		return errors.Wrap(p.conn.Close(), "closing rabbitmq connection")
	}
	return nil
}
