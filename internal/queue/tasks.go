package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/craft-text-demo/internal/eval"
	"github.com/ironsheep/craft-text-demo/internal/logging"
)

// TypeDetect is the asynq task type for a single image.
const TypeDetect = "craft:detect"

// DetectPayload is the payload of a TypeDetect task.
type DetectPayload struct {
	RunID     string `json:"run_id"`
	Slot      int    `json:"slot"`
	ImagePath string `json:"image_path"`
}

// NewDetectTask builds a TypeDetect task.
func NewDetectTask(p DetectPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDetect, data), nil
}

// ParseDetectPayload decodes and checks a TypeDetect payload.
func ParseDetectPayload(data []byte) (DetectPayload, error) {
	var p DetectPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if p.RunID == "" || p.ImagePath == "" || p.Slot < 0 {
		return p, fmt.Errorf("incomplete payload %+v", p)
	}
	return p, nil
}

// enqueuer is the part of *asynq.Client the dispatcher uses.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Dispatcher fans images out to workers.
type Dispatcher struct {
	client enqueuer
	redis  redis.UniversalClient
	queue  string
	log    logrus.FieldLogger
}

// NewDispatcher connects to Redis at redisURL and enqueues on queueName.
func NewDispatcher(redisURL, queueName string, log logrus.FieldLogger) (*Dispatcher, error) {
	if redisURL == "" {
		return nil, errors.New("redis URL is required")
	}
	if queueName == "" {
		return nil, errors.New("queue name is required")
	}

	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if log == nil {
		log = logging.Discard()
	}

	return &Dispatcher{
		client: asynq.NewClient(redisOpt),
		redis:  redis.NewClient(opt),
		queue:  queueName,
		log:    log,
	}, nil
}

// Ping checks the Redis connection.
func (d *Dispatcher) Ping(ctx context.Context) error {
	if err := d.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

// Prepare creates a run over images without enqueuing anything yet. The
// tasks go out on the first Wait, so a caller can check the buffer is
// empty before any worker can fill it.
func (d *Dispatcher) Prepare(images []string) *PendingRun {
	return &PendingRun{
		RedisBuffer: NewRedisBuffer(d.redis, uuid.NewString(), len(images)),
		dispatcher:  d,
		images:      images,
	}
}

func (d *Dispatcher) enqueue(ctx context.Context, runID string, images []string) error {
	log := d.log.WithField("run_id", runID)
	for i, path := range images {
		task, err := NewDetectTask(DetectPayload{RunID: runID, Slot: i, ImagePath: path})
		if err != nil {
			return err
		}
		info, err := d.client.EnqueueContext(ctx, task, asynq.Queue(d.queue), asynq.MaxRetry(3))
		if err != nil {
			return fmt.Errorf("failed to enqueue %s: %w", path, err)
		}
		log.WithFields(logrus.Fields{"image": path, "task": info.ID, "slot": i}).Debug("Task enqueued")
	}

	log.WithField("images", len(images)).Info("Run dispatched")
	return nil
}

// PendingRun is a RedisBuffer whose tasks are enqueued on the first Wait.
type PendingRun struct {
	*RedisBuffer

	dispatcher *Dispatcher
	images     []string

	once sync.Once
	err  error
}

var _ eval.ResultBuffer = (*PendingRun)(nil)

// Wait enqueues the run's tasks once, then waits for every slot.
func (r *PendingRun) Wait(ctx context.Context, timeout time.Duration) (eval.Result, error) {
	r.once.Do(func() {
		r.err = r.dispatcher.enqueue(ctx, r.RunID(), r.images)
	})
	if r.err != nil {
		return nil, r.err
	}
	return r.RedisBuffer.Wait(ctx, timeout)
}

// Close releases the client connections.
func (d *Dispatcher) Close() error {
	return errors.Join(d.client.Close(), d.redis.Close())
}
