package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"ledger/internal/core"
	"ledger/internal/linking"
	"ledger/internal/log"
	"ledger/internal/metrics"
)

var (
	errForeignApp     = errors.New("message from unexpected application")
	errForeignAccount = errors.New("signal for another account")
	errUnscopedSignal = errors.New("signal without account id")
)

// SignalRoutingKey is the routing key completion signals for accountID are
// published with.
func SignalRoutingKey(prefix string, accountID int64) string {
	return fmt.Sprintf("%s.%d", prefix, accountID)
}

// SignalSource receives completion signals published by the Ledger API. Each
// attempt declares its own exclusive queue bound to the account's routing key,
// so signals for other accounts never reach it. Only messages stamped with the
// expected AppId are trusted.
type SignalSource struct {
	client *Client
	prefix string
	appID  string
}

var _ linking.SignalSource = (*SignalSource)(nil)

func NewSignalSource(client *Client, prefix, appID string) *SignalSource {
	return &SignalSource{client: client, prefix: prefix, appID: appID}
}

func (s *SignalSource) Listen(ctx context.Context, accountID int64) (linking.Listener, error) {
	if s.client.isClosed() {
		if err := s.client.connect(); err != nil {
			return nil, err
		}
	}

	s.client.mu.Lock()
	conn := s.client.conn
	s.client.mu.Unlock()

	// A dedicated channel, so cancelling the consumer leaves publishing alone.
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	// Server-named, exclusive and auto-deleted: the queue lives as long as
	// this attempt's channel.
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare signal queue: %w", err)
	}
	key := SignalRoutingKey(s.prefix, accountID)
	if err := ch.QueueBind(q.Name, key, s.client.exchangeName, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("bind signal queue to %s: %w", key, err)
	}

	tag := "link-" + uuid.NewString()
	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, tag, false, true, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("consume %s: %w", q.Name, err)
	}

	l := &signalListener{
		ch:     ch,
		tag:    tag,
		out:    make(chan core.Signal, 1),
		done:   make(chan struct{}),
		logger: s.client.logger,
	}
	go l.run(deliveries, s.appID, accountID)
	return l, nil
}

type signalListener struct {
	ch     *amqp091.Channel
	tag    string
	out    chan core.Signal
	done   chan struct{}
	once   sync.Once
	logger *log.Logger
}

func (l *signalListener) Signals() <-chan core.Signal { return l.out }

func (l *signalListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		_ = l.ch.Cancel(l.tag, false)
		err = l.ch.Close()
	})
	return err
}

func (l *signalListener) run(deliveries <-chan amqp091.Delivery, appID string, accountID int64) {
	for {
		select {
		case <-l.done:
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			sig, err := acceptSignal(d.AppId, d.Body, appID, accountID)
			// The queue only carries this account's routing key, so nothing
			// acked here was meant for another listener.
			_ = d.Ack(false)
			if err != nil {
				metrics.SignalsIgnored.WithLabelValues("amqp").Inc()
				l.logger.Debug("Ignored completion signal", log.FieldAccountID, accountID, log.FieldReason, err.Error())
				continue
			}
			select {
			case l.out <- sig:
			case <-l.done:
				return
			}
		}
	}
}

// acceptSignal checks a delivery's origin and shape and its target account.
// Queued signals must name their account.
func acceptSignal(gotAppID string, body []byte, wantAppID string, accountID int64) (core.Signal, error) {
	if wantAppID != "" && gotAppID != wantAppID {
		return core.Signal{}, fmt.Errorf("%w: %q", errForeignApp, gotAppID)
	}
	sig, err := core.ParseSignal(body)
	if err != nil {
		return core.Signal{}, err
	}
	if sig.AccountID == 0 {
		return core.Signal{}, errUnscopedSignal
	}
	if !sig.For(accountID) {
		return core.Signal{}, errForeignAccount
	}
	return sig, nil
}
