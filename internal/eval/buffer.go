package eval

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ResultBuffer is a fixed set of per-image slots filled by other workers
// during distributed evaluation. The coordinator checks it is empty before
// starting and then waits for every slot.
type ResultBuffer interface {
	// Len is the number of slots.
	Len() int
	// AnyFilled reports whether at least one slot holds a result.
	AnyFilled(ctx context.Context) (bool, error)
	// Wait blocks until every slot is filled, ctx is done or timeout
	// elapses. Expiry returns an error wrapping ErrBufferTimeout.
	Wait(ctx context.Context, timeout time.Duration) (Result, error)
}

// SlotBuffer is an in-process ResultBuffer.
type SlotBuffer struct {
	mu     sync.Mutex
	slots  [][]BoxRecord
	filled []bool
	count  int
	done   chan struct{}
}

// NewSlotBuffer returns an empty buffer with n slots.
func NewSlotBuffer(n int) *SlotBuffer {
	b := &SlotBuffer{
		slots:  make([][]BoxRecord, n),
		filled: make([]bool, n),
		done:   make(chan struct{}),
	}
	if n == 0 {
		close(b.done)
	}
	return b
}

// Len returns the number of slots.
func (b *SlotBuffer) Len() int {
	return len(b.slots)
}

// Fill stores boxes in slot i. Each slot can be filled once.
func (b *SlotBuffer) Fill(i int, boxes []BoxRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if i < 0 || i >= len(b.slots) {
		return fmt.Errorf("slot %d out of range [0, %d)", i, len(b.slots))
	}
	if b.filled[i] {
		return fmt.Errorf("slot %d already filled", i)
	}
	if boxes == nil {
		boxes = []BoxRecord{}
	}
	b.slots[i] = boxes
	b.filled[i] = true
	b.count++
	if b.count == len(b.slots) {
		close(b.done)
	}
	return nil
}

// AnyFilled implements ResultBuffer.
func (b *SlotBuffer) AnyFilled(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count > 0, nil
}

// Wait implements ResultBuffer.
func (b *SlotBuffer) Wait(ctx context.Context, timeout time.Duration) (Result, error) {
	select {
	case <-b.done:
		return b.snapshot(), nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-b.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w after %v: %w", ErrBufferTimeout, timeout, context.DeadlineExceeded)
	}
	return b.snapshot(), nil
}

func (b *SlotBuffer) snapshot() Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(Result, len(b.slots))
	copy(out, b.slots)
	return out
}
