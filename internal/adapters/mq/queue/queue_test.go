package queue

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/okian/oraculus/internal/domain/model"
)

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	// Test empty queue
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	// Test enqueue
	msg1 := model.InboundMessage{SenderID: 1, SenderEmail: "a@example.com", Content: "help"}
	if !q.Enqueue(ctx, msg1) {
		t.Error("expected enqueue to succeed")
	}

	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	// Test dequeue
	msgChan := q.Dequeue(ctx)
	msg := <-msgChan
	if msg.SenderEmail != "a@example.com" {
		t.Errorf("expected a@example.com, got %v", msg.SenderEmail)
	}

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	msg1 := model.InboundMessage{SenderID: 1, Content: "one"}
	msg2 := model.InboundMessage{SenderID: 2, Content: "two"}
	msg3 := model.InboundMessage{SenderID: 3, Content: "three"}

	if !q.Enqueue(ctx, msg1) {
		t.Error("expected enqueue to succeed")
	}
	if !q.Enqueue(ctx, msg2) {
		t.Error("expected enqueue to succeed")
	}

	// Try to enqueue when full
	if q.Enqueue(ctx, msg3) {
		t.Error("expected enqueue to fail when full")
	}

	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if q.IsClosed() {
		t.Error("expected queue to start open")
	}

	if err := q.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed")
	}

	// Closing again is a no-op
	if err := q.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}

	// Enqueue after close must be rejected
	if q.Enqueue(ctx, model.InboundMessage{Content: "late"}) {
		t.Error("expected enqueue to fail after close")
	}

	// Dequeue channel must drain and close
	for range q.Dequeue(ctx) {
		t.Error("expected no messages")
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	const total = 100
	q := NewInMemoryQueue(WithCapacity(total), WithBufferSize(total))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			q.Enqueue(ctx, model.InboundMessage{SenderID: int64(n), Content: strconv.Itoa(n)})
		}(i)
	}
	wg.Wait()

	if l := q.Len(ctx); l != total {
		t.Errorf("expected length %d, got %d", total, l)
	}

	if err := q.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}

	received := 0
	for range q.Dequeue(ctx) {
		received++
	}
	if received != total {
		t.Errorf("expected %d messages, got %d", total, received)
	}
}
