package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/craft-text-demo/internal/detection"
	"github.com/ironsheep/craft-text-demo/internal/eval"
	"github.com/ironsheep/craft-text-demo/internal/imaging"
	"github.com/ironsheep/craft-text-demo/internal/logging"
)

// SlotStore receives the boxes of one finished task.
type SlotStore interface {
	Fill(ctx context.Context, runID string, slot int, boxes []eval.BoxRecord) error
}

// RedisSlots writes slots straight into the run's Redis hash.
type RedisSlots struct {
	Client redis.Cmdable
	TTL    time.Duration
}

// Fill implements SlotStore.
func (s *RedisSlots) Fill(ctx context.Context, runID string, slot int, boxes []eval.BoxRecord) error {
	return fillSlot(ctx, s.Client, runID, slot, boxes, s.TTL)
}

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	RedisURL    string
	QueueName   string
	Concurrency int
	Network     detection.Network
	Logger      *logrus.Logger
}

// taskServer is the part of *asynq.Server a Worker drives.
type taskServer interface {
	Start(handler asynq.Handler) error
	Shutdown()
}

// Worker runs craft:detect tasks.
type Worker struct {
	network detection.Network
	slots   SlotStore
	log     logrus.FieldLogger

	server taskServer
	mux    *asynq.ServeMux
	redis  *redis.Client
}

// NewWorker builds a worker for cfg.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.RedisURL == "" {
		return nil, errors.New("redis URL is required")
	}
	if cfg.QueueName == "" {
		return nil, errors.New("queue name is required")
	}
	if cfg.Network == nil {
		return nil, errors.New("network is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			cfg.QueueName: 10,
			"default":     1,
		},
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			delay := time.Duration(5*(1<<uint(n))) * time.Second
			if delay > 60*time.Second {
				delay = 60 * time.Second
			}
			return delay
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.WithFields(logrus.Fields{
				"type":    task.Type(),
				"payload": string(task.Payload()),
			}).WithError(err).Error("Task processing error")
		}),
		Logger:   log,
		LogLevel: asynqLevel(log.GetLevel()),
	})

	w := newWorker(cfg.Network, &RedisSlots{Client: client, TTL: DefaultBufferTTL}, log)
	w.server = server
	w.redis = client
	return w, nil
}

func newWorker(net detection.Network, slots SlotStore, log logrus.FieldLogger) *Worker {
	w := &Worker{
		network: net,
		slots:   slots,
		log:     log,
		mux:     asynq.NewServeMux(),
	}
	w.mux.HandleFunc(TypeDetect, w.HandleDetect)
	return w
}

// Run processes tasks until ctx is done and then shuts the server down,
// letting in-flight tasks finish.
//
// Parameters:
//   - ctx: Cancelled by the caller to stop the worker, usually on SIGINT or SIGTERM
//
// Returns:
//   - error: Failure to start the asynq server
func (w *Worker) Run(ctx context.Context) error {
	if w.redis != nil {
		defer w.redis.Close()
	}
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	w.log.Info("Detection worker started")

	<-ctx.Done()
	w.log.Info("Stopping detection worker")
	w.Shutdown()
	return nil
}

// Shutdown stops the server gracefully.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

// HandleDetect runs the detector on the task's image and fills its slot.
func (w *Worker) HandleDetect(ctx context.Context, task *asynq.Task) error {
	start := time.Now()
	p, err := ParseDetectPayload(task.Payload())
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	log := w.log.WithFields(logrus.Fields{"run_id": p.RunID, "slot": p.Slot, "image": p.ImagePath})

	img, err := imaging.Open(p.ImagePath)
	if err != nil {
		return fmt.Errorf("failed to read image: %v: %w", err, asynq.SkipRetry)
	}

	res, err := w.network.Detect(ctx, img)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}

	boxes := make([]eval.BoxRecord, 0, len(res.Boxes))
	for _, b := range res.Boxes {
		boxes = append(boxes, eval.BoxRecord{Points: b, Text: eval.UnlabeledText})
	}

	if err := w.slots.Fill(ctx, p.RunID, p.Slot, boxes); err != nil {
		if errors.Is(err, ErrSlotFilled) {
			log.Warn("Slot already filled, dropping duplicate result")
			return nil
		}
		return err
	}

	log.WithFields(logrus.Fields{"boxes": len(boxes), "duration": time.Since(start)}).Info("Slot filled")
	return nil
}

func asynqLevel(l logrus.Level) asynq.LogLevel {
	switch {
	case l >= logrus.DebugLevel:
		return asynq.DebugLevel
	case l == logrus.InfoLevel:
		return asynq.InfoLevel
	case l == logrus.WarnLevel:
		return asynq.WarnLevel
	case l == logrus.ErrorLevel:
		return asynq.ErrorLevel
	default:
		return asynq.FatalLevel
	}
}
