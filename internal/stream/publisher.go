package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher publishes committed operations to NATS for downstream consumers.
// Subjects follow the pattern: lend.ledger.events.{event_type}
type Publisher struct {
	js        jetstream.JetStream
	inputChan <-chan PublishableEvent
}

// PublishableEvent is a committed operation ready for outbound publishing.
// Only plaintext facts leave the service; the encrypted side travels as
// opaque handle strings.
type PublishableEvent struct {
	Sequence       int64     `json:"sequence"`
	OperationID    string    `json:"operation_id"`
	EventType      string    `json:"event_type"`
	Account        string    `json:"account"`
	Amount         uint64    `json:"amount"`
	EncStakeHandle string    `json:"enc_stake_handle"`
	EncDebtHandle  string    `json:"enc_debt_handle"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewPublisher(js jetstream.JetStream, inputChan <-chan PublishableEvent) *Publisher {
	return &Publisher{
		js:        js,
		inputChan: inputChan,
	}
}

// Run starts the publisher loop. Publish failures are non-fatal: consumers
// can read the operation log directly.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-p.inputChan:
			if !ok {
				return nil
			}

			if err := p.publish(ctx, evt); err != nil {
				log.Printf("WARN: outbound publish failed seq=%d: %v", evt.Sequence, err)
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, evt PublishableEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("lend.ledger.events.%s", strings.ToLower(evt.EventType))
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// Connect opens a NATS connection and its JetStream context.
func Connect(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream context: %w", err)
	}

	return nc, js, nil
}

// EnsureStream creates the outbound events stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "LEND_LEDGER_EVENTS",
		Subjects:  []string{"lend.ledger.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Println("INFO: ensured outbound stream LEND_LEDGER_EVENTS")
	return nil
}
