// Package worker defines worker contracts for asynchronous command handling.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/oraculus/internal/domain/model"
	"github.com/okian/oraculus/pkg/logger"
	"github.com/okian/oraculus/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount    = 4
	workerShutdownTimeout = 5 * time.Second
)

// internalErrorReply is sent when a handler panics mid-command so the sender
// is never left without an answer.
const internalErrorReply = "❌ Internal error while processing your message. Please try again."

// Message abstracts what workers read off the queue.
// Using the model.InboundMessage type for consistency.
type Message = model.InboundMessage

// Handler turns an inbound message into a reply.
type Handler interface {
	Handle(ctx context.Context, msg Message) string
}

// Responder delivers replies back to the chat transport.
type Responder interface {
	SendPrivate(ctx context.Context, email, content string) error
}

// Queue defines how workers receive messages.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Message
}

// Worker processes messages and sends replies using the provided interfaces.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for processing inbound messages.
type InMemoryWorker struct {
	queue     Queue
	handler   Handler
	responder Responder
	name      string

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	// Logging
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, handler Handler, responder Responder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     queue,
		handler:   handler,
		responder: responder,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer func() {
		close(w.done)
	}()

	msgChan := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case msg, ok := <-msgChan:
			if !ok {
				// Channel closed, worker should stop
				return
			}

			if err := w.processMessage(ctx, msg); err != nil {
				w.logger.Error(ctx, "error processing message", logger.Error(err))
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processMessage handles a single message end to end: handler, then reply.
func (w *InMemoryWorker) processMessage(ctx context.Context, msg Message) error {
	reply := w.handle(ctx, msg)
	if reply == "" {
		return nil
	}

	if err := w.responder.SendPrivate(ctx, msg.SenderEmail, reply); err != nil {
		metrics.RecordTransportSendError()
		w.logger.Error(ctx, "reply delivery failed",
			logger.String("sender", msg.SenderEmail),
			logger.Error(err),
		)
		return fmt.Errorf("send reply to %s: %w", msg.SenderEmail, err)
	}
	return nil
}

// handle invokes the handler with panic recovery. A panicking command must
// not take the worker down or leave the sender without a reply.
func (w *InMemoryWorker) handle(ctx context.Context, msg Message) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error(ctx, "handler panicked",
				logger.String("sender", msg.SenderEmail),
				logger.Any("panic", r),
			)
			reply = internalErrorReply
		}
	}()
	return w.handler.Handle(ctx, msg)
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker

	// Logging
	logger logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, queue Queue, handler Handler, responder Responder) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		logger:  logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(
			queue,
			handler,
			responder,
			WithName("worker-"+strconv.Itoa(i)),
		)
	}

	metrics.UpdateWorkerCount(workerCount)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
}

// Stop gracefully stops all workers, bounding the total wait.
func (p *Pool) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), workerShutdownTimeout)
	defer cancel()

	for _, worker := range p.workers {
		if err := worker.Shutdown(ctx); err != nil {
			p.logger.Warn(ctx, "worker did not stop in time", logger.String("worker", worker.name))
		}
	}

	metrics.UpdateWorkerCount(0)
}
