// Package queue distributes detection over asynq workers and collects their
// results in Redis.
//
// A coordinator creates a run with Dispatcher.Prepare, which returns a
// PendingRun backed by a RedisBuffer with one slot per image. The run is
// handed to eval.WarmEvaluate; after the empty-buffer check its first Wait
// enqueues one craft:detect task per image. Workers run the detector and
// write their boxes into the slot named by the task, and Wait returns once
// every slot is filled.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ironsheep/craft-text-demo/internal/eval"
)

const (
	keyPrefix = "craft:buffer:"

	// DefaultPollInterval is how often Wait checks the slot count.
	DefaultPollInterval = 200 * time.Millisecond
	// DefaultBufferTTL bounds how long an abandoned run stays in Redis.
	DefaultBufferTTL = 24 * time.Hour
)

// ErrSlotFilled is returned when a slot already holds a result.
var ErrSlotFilled = errors.New("slot already filled")

// BufferKey returns the Redis hash holding a run's slots.
func BufferKey(runID string) string {
	return keyPrefix + runID
}

// RedisBuffer is an eval.ResultBuffer stored as a Redis hash whose fields
// are slot numbers and whose values are JSON encoded box lists.
type RedisBuffer struct {
	client redis.Cmdable
	runID  string
	slots  int

	PollInterval time.Duration
	TTL          time.Duration
}

var _ eval.ResultBuffer = (*RedisBuffer)(nil)

// NewRedisBuffer returns the buffer of run runID with the given slot count.
func NewRedisBuffer(client redis.Cmdable, runID string, slots int) *RedisBuffer {
	return &RedisBuffer{
		client:       client,
		runID:        runID,
		slots:        slots,
		PollInterval: DefaultPollInterval,
		TTL:          DefaultBufferTTL,
	}
}

// RunID returns the run the buffer belongs to.
func (b *RedisBuffer) RunID() string {
	return b.runID
}

// Len implements eval.ResultBuffer.
func (b *RedisBuffer) Len() int {
	return b.slots
}

// Fill writes boxes into slot i unless it is already set.
func (b *RedisBuffer) Fill(ctx context.Context, i int, boxes []eval.BoxRecord) error {
	return fillSlot(ctx, b.client, b.runID, i, boxes, b.TTL)
}

// AnyFilled implements eval.ResultBuffer.
func (b *RedisBuffer) AnyFilled(ctx context.Context) (bool, error) {
	n, err := b.client.HLen(ctx, BufferKey(b.runID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read buffer %s: %w", b.runID, err)
	}
	return n > 0, nil
}

// Wait implements eval.ResultBuffer by polling the slot count.
func (b *RedisBuffer) Wait(ctx context.Context, timeout time.Duration) (eval.Result, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := b.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := b.client.HLen(waitCtx, BufferKey(b.runID)).Result()
		if err == nil && int(n) >= b.slots {
			return b.collect(ctx)
		}
		if err != nil && waitCtx.Err() == nil {
			return nil, fmt.Errorf("failed to read buffer %s: %w", b.runID, err)
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: run %s after %v: %w", eval.ErrBufferTimeout, b.runID, timeout, context.DeadlineExceeded)
		case <-ticker.C:
		}
	}
}

// Delete removes the run's hash.
func (b *RedisBuffer) Delete(ctx context.Context) error {
	return b.client.Del(ctx, BufferKey(b.runID)).Err()
}

func (b *RedisBuffer) collect(ctx context.Context) (eval.Result, error) {
	fields, err := b.client.HGetAll(ctx, BufferKey(b.runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read buffer %s: %w", b.runID, err)
	}
	return decodeSlots(fields, b.slots)
}

func decodeSlots(fields map[string]string, slots int) (eval.Result, error) {
	out := make(eval.Result, slots)
	for k, v := range fields {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || i >= slots {
			return nil, fmt.Errorf("unexpected buffer field %q", k)
		}
		var boxes []eval.BoxRecord
		if err := json.Unmarshal([]byte(v), &boxes); err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		if boxes == nil {
			boxes = []eval.BoxRecord{}
		}
		out[i] = boxes
	}
	return out, nil
}

func fillSlot(ctx context.Context, client redis.Cmdable, runID string, i int, boxes []eval.BoxRecord, ttl time.Duration) error {
	if boxes == nil {
		boxes = []eval.BoxRecord{}
	}
	data, err := json.Marshal(boxes)
	if err != nil {
		return err
	}

	key := BufferKey(runID)
	ok, err := client.HSetNX(ctx, key, strconv.Itoa(i), data).Result()
	if err != nil {
		return fmt.Errorf("failed to write slot %d of %s: %w", i, runID, err)
	}
	if !ok {
		return fmt.Errorf("%w: slot %d of %s", ErrSlotFilled, i, runID)
	}
	if ttl > 0 {
		if err := client.Expire(ctx, key, ttl).Err(); err != nil {
			return fmt.Errorf("failed to set expiry on %s: %w", key, err)
		}
	}
	return nil
}
