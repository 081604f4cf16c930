/*
Copyright 2025 The Aibrix Team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/autoserve/autoserve/pkg/controller/autoscaler/types"
)

const DefaultExchange = "autoserve.events"

// publisher is the subset of *amqp.Channel used for publishing.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQP publishes events to a topic exchange with routing key
// "<kind>.<service>", e.g. "alert.frontend".
type AMQP struct {
	channel  publisher
	exchange string
}

var _ Notifier = &AMQP{}

// NewAMQP declares the durable topic exchange on channel and returns a publisher for it.
func NewAMQP(channel *amqp.Channel, exchange string) (*AMQP, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	err := channel.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &AMQP{channel: channel, exchange: exchange}, nil
}

// DialAMQP connects to the broker and opens a channel. The returned close
// function releases both.
func DialAMQP(url, exchange string) (*AMQP, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}
	n, err := NewAMQP(ch, exchange)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return n, conn.Close, nil
}

func routingKey(event Event) string {
	return fmt.Sprintf("%s.%s", event.Kind, event.Service)
}

func (a *AMQP) Send(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrNotifier, err)
	}

	err = a.channel.PublishWithContext(
		ctx,
		a.exchange,
		routingKey(event),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Timestamp:    event.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("%w: publish to %s: %v", types.ErrNotifier, a.exchange, err)
	}
	return nil
}
