package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrPoolStopped = errors.New("worker pool stopped")

type Task func(ctx context.Context) error

// Pool - фиксированное число воркеров, читающих задачи из общего буферизованного канала
type Pool struct {
	wg   sync.WaitGroup
	jobs chan Task
	quit chan struct{}
	once sync.Once
	n    int
}

func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{jobs: make(chan Task, workers*4), quit: make(chan struct{}), n: workers}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					p.drain(ctx)
					return
				case task := <-p.jobs:
					p.run(ctx, id, task)
				}
			}
		}(i)
	}
}

// drain выполняет задачи, успевшие попасть в очередь до остановки
func (p *Pool) drain(ctx context.Context) {
	for {
		select {
		case task := <-p.jobs:
			p.run(ctx, -1, task)
		default:
			return
		}
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	if task == nil {
		return
	}
	if err := task(ctx); err != nil {
		logrus.WithError(err).WithField("worker", id).Debug("Worker task failed")
	}
}

// Stop останавливает воркеров и ждет, пока они доделают очередь
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
}

// Submit ставит задачу в очередь. Если очередь заполнена, ждет освобождения
// места или отмены ctx.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if task == nil {
		return errors.New("nil task")
	}

	select {
	case <-p.quit:
		return ErrPoolStopped
	default:
	}

	select {
	case p.jobs <- task:
		return nil
	case <-p.quit:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
