package zulip

import (
	"context"
	"errors"
	"time"

	"github.com/okian/oraculus/internal/domain/model"
	"github.com/okian/oraculus/pkg/logger"
	"github.com/okian/oraculus/pkg/metrics"
)

// Poll failure backoff bounds.
const (
	pollBackoffMin = time.Second
	pollBackoffMax = 30 * time.Second
)

// Enqueuer is where the listener hands off accepted messages.
type Enqueuer interface {
	Enqueue(ctx context.Context, m model.InboundMessage) bool
}

// Listener pumps private messages from the Zulip event queue into the sink.
type Listener struct {
	client *Client
	sink   Enqueuer
	logger logger.Logger
}

// NewListener creates a Listener feeding sink.
func NewListener(client *Client, sink Enqueuer) *Listener {
	return &Listener{
		client: client,
		sink:   sink,
		logger: logger.Get().Named("zulip-listener"),
	}
}

// Run registers an event queue and long-polls it until ctx is canceled.
// Expired queues are re-registered; transient failures back off and retry.
func (l *Listener) Run(ctx context.Context) error {
	backoff := pollBackoffMin

	queueID, lastEventID, err := l.register(ctx)
	if err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		events, err := l.client.Events(ctx, queueID, lastEventID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.RecordTransportPollError()
			l.logger.Warn(ctx, "event poll failed", logger.Error(err))

			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, pollBackoffMax)

			if errors.Is(err, ErrBadQueue) {
				if queueID, lastEventID, err = l.register(ctx); err != nil {
					return err
				}
			}
			continue
		}
		backoff = pollBackoffMin

		for _, ev := range events {
			if ev.ID > lastEventID {
				lastEventID = ev.ID
			}
			l.accept(ctx, ev)
		}
	}
}

// accept filters one event and enqueues it if it is a private message from
// someone else.
func (l *Listener) accept(ctx context.Context, ev Event) {
	if ev.Type != "message" || ev.Message == nil {
		return
	}
	msg := ev.Message
	if msg.Type != "private" || msg.SenderEmail == l.client.Email() {
		return
	}

	ok := l.sink.Enqueue(ctx, model.InboundMessage{
		SenderID:       msg.SenderID,
		SenderEmail:    msg.SenderEmail,
		SenderFullName: msg.SenderFullName,
		Content:        msg.Content,
	})
	if !ok {
		l.logger.Warn(ctx, "inbound queue rejected message",
			logger.String("sender", msg.SenderEmail),
		)
	}
}

// register retries queue registration with backoff until it succeeds or ctx
// is canceled.
func (l *Listener) register(ctx context.Context) (string, int64, error) {
	backoff := pollBackoffMin
	for {
		queueID, lastEventID, err := l.client.RegisterQueue(ctx)
		if err == nil {
			l.logger.Info(ctx, "event queue registered", logger.String("queue_id", queueID))
			return queueID, lastEventID, nil
		}
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		metrics.RecordTransportPollError()
		l.logger.Warn(ctx, "event queue registration failed", logger.Error(err))

		if !sleep(ctx, backoff) {
			return "", 0, ctx.Err()
		}
		backoff = min(backoff*2, pollBackoffMax)
	}
}

// sleep waits d or returns false if ctx is canceled first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
