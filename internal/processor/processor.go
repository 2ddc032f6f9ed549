package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nimasrn/school-treasury/internal/events"
	"github.com/nimasrn/school-treasury/pkg/logger"
	"github.com/nimasrn/school-treasury/pkg/redis"
	"github.com/nimasrn/school-treasury/pkg/worker"
)

const ProcessingTimeout = time.Second * 5
const StatsInterval = time.Second * 30
const ShutdownTimeout = time.Second * 30

// Processor handles one delivered ledger event.
type Processor interface {
	Process(ctx context.Context, msg *events.Message) error
	GetType() string
}

type Options struct {
	Stream     events.StreamConfig
	Consumers  int
	Workers    int
	BufferSize int
}

// ProcessorService reads the ledger event stream with a few consumers and
// fans the work out to a worker pool.
type ProcessorService struct {
	adapter   redis.RedisAdapter
	opts      Options
	streams   []*events.Stream
	processor Processor
	metrics   *ServiceMetrics
	worker    *worker.WorkerManager
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewProcessorService(adapter redis.RedisAdapter, opts Options, metrics *ServiceMetrics) *ProcessorService {
	if opts.Consumers < 1 {
		opts.Consumers = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	if opts.BufferSize < 1 {
		opts.BufferSize = 1_000
	}
	if metrics == nil {
		metrics = NewServiceMetrics()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessorService{
		adapter: adapter,
		opts:    opts,
		metrics: metrics,
		worker:  worker.NewWorkerManager(opts.BufferSize, opts.Workers, nil),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *ProcessorService) RegisterProcessor(p Processor) {
	s.processor = p
	logger.Info("Registered processor", "type", p.GetType())
}

func (s *ProcessorService) Start() error {
	if s.processor == nil {
		return fmt.Errorf("no processor registered")
	}
	logger.Info("Starting Processor Service...")

	s.worker.SetWorker(s.workerHandler)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.worker.Start(s.ctx)
	}()

	for i := 0; i < s.opts.Consumers; i++ {
		cfg := s.opts.Stream
		cfg.ConsumerName = fmt.Sprintf("%s-instance-%d", cfg.ConsumerName, i)

		st, err := events.NewStream(s.adapter, cfg)
		if err != nil {
			return fmt.Errorf("failed to create consumer %d: %w", i, err)
		}
		if err := st.Consume(s.messageHandler); err != nil {
			return fmt.Errorf("failed to start consumer %d: %w", i, err)
		}
		s.streams = append(s.streams, st)
	}

	s.wg.Add(1)
	go s.statsReporter()

	logger.Info("Processor Service started", "consumers", len(s.streams), "workers", s.opts.Workers)
	return nil
}

func (s *ProcessorService) statsReporter() {
	defer s.wg.Done()

	ticker := time.NewTicker(StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reportStats()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) reportStats() {
	st := s.metrics.Snapshot()
	logger.Info("processor stats",
		"handled", st.Handled,
		"failed", st.Failed,
		"duplicates", st.Duplicates,
		"escalations", st.Escalations,
		"rate_per_second", st.RatePerSecond,
		"avg_duration_ms", st.AvgDuration.Milliseconds(),
		"uptime_seconds", st.Uptime.Seconds())

	if len(s.streams) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if qs, err := s.streams[0].Stats(ctx); err == nil {
		logger.Info("stream stats", "stream", s.streams[0].Name(), "total", qs.TotalMessages, "pending", qs.PendingMessages, "dead_letters", qs.DeadLetters)
	}
}

// Stop stops consumers first so no new work arrives, then the worker pool.
func (s *ProcessorService) Stop() {
	logger.Info("Shutting down Processor Service...")

	var wg sync.WaitGroup
	for i, st := range s.streams {
		wg.Add(1)
		go func(index int, st *events.Stream) {
			defer wg.Done()
			if err := st.Stop(ShutdownTimeout); err != nil {
				logger.Error("Error stopping consumer", "consumer", index, "error", err)
			}
		}(i, st)
	}
	wg.Wait()

	s.cancel()
	s.wg.Wait()
	s.reportStats()
	logger.Info("Processor Service stopped")
}

func (s *ProcessorService) Metrics() *ServiceMetrics { return s.metrics }

type job struct {
	msg    *events.Message
	result chan error
	ctx    context.Context
}

// messageHandler hands the event to the pool and waits for its result so the
// stream acks only what was actually handled.
func (s *ProcessorService) messageHandler(ctx context.Context, msg *events.Message) error {
	jobCtx, cancel := context.WithTimeout(ctx, ProcessingTimeout+time.Second)
	defer cancel()

	j := &job{msg: msg, result: make(chan error, 1), ctx: jobCtx}
	if !s.worker.Enqueue(jobCtx, j) {
		return fmt.Errorf("worker pool unavailable: %w", jobCtx.Err())
	}

	select {
	case err := <-j.result:
		return err
	case <-jobCtx.Done():
		return fmt.Errorf("timeout waiting for worker to process event: %w", jobCtx.Err())
	}
}

func (s *ProcessorService) workerHandler(_ context.Context, workerIndex int, v interface{}) {
	j, ok := v.(*job)
	if !ok {
		logger.Error("Invalid job type in worker", "worker", workerIndex)
		return
	}

	select {
	case <-j.ctx.Done():
		logger.Warn("Job context cancelled before processing started", "worker", workerIndex, "message_id", j.msg.ID)
		return
	default:
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(j.ctx, ProcessingTimeout)
	err := s.processor.Process(ctx, j.msg)
	cancel()

	if err != nil {
		s.metrics.RecordFailure()
		logger.Error("Failed to process ledger event", "worker", workerIndex, "message_id", j.msg.ID, "kind", j.msg.Event.Kind, "error", err)
	} else {
		s.metrics.RecordSuccess(time.Since(start))
	}
	// buffered, never blocks
	j.result <- err
}
