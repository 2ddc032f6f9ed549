package worker

import (
	"context"
	"sync"

	"github.com/nimasrn/school-treasury/pkg/logger"
)

type WorkerHandler = func(ctx context.Context, workerIndex int, job interface{})

type WorkerManager struct {
	bufferSize     int
	jobChannel     chan interface{}
	numberOfWorker int
	do             WorkerHandler
	waiter         *sync.WaitGroup
}

// NewWorkerManager
// is a job manager based on go routines. Define the number of internal
// workers, and start publishing jobs using WorkerManager Enqueue() API. It will distribute the job
// among its internal pool. Workers stop when the context given to Start is cancelled;
// jobs still buffered at that point are drained first.
func NewWorkerManager(bufferSize, numberOfWorkers int, jobChannel chan interface{}) *WorkerManager {
	if jobChannel == nil {
		jobChannel = make(chan interface{}, bufferSize)
	}
	if numberOfWorkers < 1 {
		numberOfWorkers = 1
	}

	return &WorkerManager{
		bufferSize:     bufferSize,
		numberOfWorker: numberOfWorkers,
		jobChannel:     jobChannel,
		waiter:         &sync.WaitGroup{},
	}
}

func (w *WorkerManager) GetUnreadCount() int64 {
	if w.jobChannel == nil {
		return 0
	}
	return int64(len(w.jobChannel))
}

func (w *WorkerManager) SetWorker(worker WorkerHandler) {
	w.do = worker
}

// Enqueue
// Publishes a job onto the channel, blocking while the buffer is full.
// It returns false when ctx is done before the job could be queued.
func (w *WorkerManager) Enqueue(ctx context.Context, val interface{}) bool {
	select {
	case w.jobChannel <- val:
		return true
	case <-ctx.Done():
		return false
	}
}

// Start
// starts off the workers as many as defined
// by w.numberOfWorker and blocks until all of them returned.
func (w *WorkerManager) Start(ctx context.Context) {
	w.waiter.Add(w.numberOfWorker)
	for i := 0; i < w.numberOfWorker; i++ {
		go func(index int) {
			defer w.waiter.Done()
			for {
				select {
				case job := <-w.jobChannel:
					w.do(ctx, index, job)
				case <-ctx.Done():
					w.drain(index)
					return
				}
			}
		}(i)
	}
	w.waiter.Wait()
	logger.Info("worker manager stopped", "workers", w.numberOfWorker)
}

func (w *WorkerManager) drain(index int) {
	for {
		select {
		case job := <-w.jobChannel:
			w.do(context.Background(), index, job)
		default:
			return
		}
	}
}
