package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"invite-link-bot/internal/metrics"
	"invite-link-bot/internal/worker"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

const (
	DefaultDelay      = 15 * time.Second
	DefaultWorkers    = 4
	DefaultMaxPending = 10000

	deleteTimeout = 10 * time.Second
)

var (
	ErrQueueFull = errors.New("too many pending deletions")
	ErrStopped   = errors.New("scheduler stopped")
)

// Deleter удаляет сообщение из чата
type Deleter interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

type Config struct {
	DefaultDelay time.Duration
	Workers      int
	MaxPending   int
	// FlushOnStop - при остановке сразу удалить все сообщения, которые еще ждут удаления
	FlushOnStop bool
	Clock       clockwork.Clock
}

// Task - отложенное удаление одного сообщения
type Task struct {
	ID        string
	ChatID    int64
	MessageID int
	FireAt    time.Time

	index int
}

// DeleteScheduler держит отложенные удаления в куче по времени срабатывания.
// Одна горутина ждет ближайшее срабатывание и отдает созревшие задачи
// в пул воркеров, так что число горутин не растет вместе с очередью.
type DeleteScheduler struct {
	deleter Deleter
	clock   clockwork.Clock
	pool    *worker.Pool
	cfg     Config

	mu      sync.Mutex
	queue   taskQueue
	byID    map[string]*Task
	stopped bool

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func NewDeleteScheduler(deleter Deleter, cfg Config) *DeleteScheduler {
	if cfg.DefaultDelay <= 0 {
		cfg.DefaultDelay = DefaultDelay
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultMaxPending
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	return &DeleteScheduler{
		deleter: deleter,
		clock:   cfg.Clock,
		pool:    worker.NewPool(cfg.Workers),
		cfg:     cfg,
		byID:    make(map[string]*Task),
		wake:    make(chan struct{}, 1),
	}
}

// Start запускает горутину планировщика и пул воркеров. Повторный вызов ничего не делает.
func (s *DeleteScheduler) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil || s.stopped {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.done = make(chan struct{})

	// Воркеры живут до Stop, даже если родительский контекст уже отменен
	s.pool.Start(context.WithoutCancel(parent))

	go s.loop(ctx)

	logrus.WithFields(logrus.Fields{
		"workers":       s.cfg.Workers,
		"default_delay": s.cfg.DefaultDelay.String(),
	}).Info("Delete scheduler started")
}

// DefaultDelay - задержка, которая используется, если в Schedule передан ноль
func (s *DeleteScheduler) DefaultDelay() time.Duration {
	return s.cfg.DefaultDelay
}

// Schedule планирует удаление сообщения через delay и сразу возвращает id задачи
func (s *DeleteScheduler) Schedule(chatID int64, messageID int, delay time.Duration) (string, error) {
	if delay <= 0 {
		delay = s.cfg.DefaultDelay
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return "", ErrStopped
	}
	if len(s.queue) >= s.cfg.MaxPending {
		s.mu.Unlock()
		metrics.IncDeletion("dropped")
		return "", ErrQueueFull
	}

	task := &Task{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		MessageID: messageID,
		FireAt:    s.clock.Now().Add(delay),
	}
	heap.Push(&s.queue, task)
	s.byID[task.ID] = task
	pending := len(s.queue)
	s.mu.Unlock()

	metrics.SetPendingDeletions(pending)
	s.notify()

	logrus.WithFields(logrus.Fields{
		"chat_id":    chatID,
		"message_id": messageID,
		"delay":      delay.String(),
	}).Debug("Message deletion scheduled")

	return task.ID, nil
}

// Cancel отменяет удаление, если оно еще не началось
func (s *DeleteScheduler) Cancel(id string) bool {
	s.mu.Lock()
	task, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	heap.Remove(&s.queue, task.index)
	delete(s.byID, id)
	pending := len(s.queue)
	s.mu.Unlock()

	metrics.SetPendingDeletions(pending)
	metrics.IncDeletion("cancelled")
	s.notify()

	return true
}

// Pending - сколько сообщений еще ждут удаления
func (s *DeleteScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.queue)
}

// Stop останавливает планировщик. При FlushOnStop все ожидающие сообщения удаляются сразу.
func (s *DeleteScheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	s.mu.Lock()
	rest := make([]*Task, 0, len(s.queue))
	for len(s.queue) > 0 {
		task := heap.Pop(&s.queue).(*Task)
		delete(s.byID, task.ID)
		rest = append(rest, task)
	}
	s.mu.Unlock()
	metrics.SetPendingDeletions(0)

	if s.cfg.FlushOnStop && len(rest) > 0 {
		logrus.WithField("count", len(rest)).Info("Deleting pending messages before shutdown")
		for _, task := range rest {
			if err := s.pool.Submit(ctx, s.deleteTask(task)); err != nil {
				logrus.WithError(err).WithField("message_id", task.MessageID).Warn("Failed to flush pending deletion")
				break
			}
		}
	} else if len(rest) > 0 {
		logrus.WithField("count", len(rest)).Warn("Pending deletions discarded on shutdown")
	}

	s.pool.Stop()
	logrus.Info("Delete scheduler stopped")
}

func (s *DeleteScheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *DeleteScheduler) loop(ctx context.Context) {
	defer close(s.done)

	for {
		due, wait, hasNext := s.popDue()

		for i, task := range due {
			if err := s.pool.Submit(ctx, s.deleteTask(task)); err != nil {
				// ctx отменен: неотправленные задачи возвращаются в очередь, их заберет Stop
				s.requeue(due[i:]...)
				return
			}
		}

		var timer clockwork.Timer
		var timerC <-chan time.Time
		if hasNext {
			timer = s.clock.NewTimer(wait)
			timerC = timer.Chan()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wake:
		case <-timerC:
		}

		if timer != nil {
			timer.Stop()
		}
	}
}

// popDue забирает из очереди все созревшие задачи и считает, сколько ждать до следующей
func (s *DeleteScheduler) popDue() (due []*Task, wait time.Duration, hasNext bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for len(s.queue) > 0 {
		next := s.queue[0]
		if next.FireAt.After(now) {
			wait = next.FireAt.Sub(now)
			hasNext = true
			break
		}
		heap.Pop(&s.queue)
		delete(s.byID, next.ID)
		due = append(due, next)
	}

	if len(due) > 0 {
		metrics.SetPendingDeletions(len(s.queue))
	}

	return due, wait, hasNext
}

func (s *DeleteScheduler) requeue(tasks ...*Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range tasks {
		heap.Push(&s.queue, task)
		s.byID[task.ID] = task
	}
}

// deleteTask делает ровно одну попытку удаления, ошибка только логируется
func (s *DeleteScheduler) deleteTask(task *Task) worker.Task {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, deleteTimeout)
		defer cancel()

		log := logrus.WithFields(logrus.Fields{
			"chat_id":    task.ChatID,
			"message_id": task.MessageID,
		})

		if err := s.deleter.DeleteMessage(ctx, task.ChatID, task.MessageID); err != nil {
			metrics.IncDeletion("failed")
			log.WithError(err).Warn("Failed to delete message")
			return nil
		}

		metrics.IncDeletion("deleted")
		log.Debug("Auto-deleted message")
		return nil
	}
}

// taskQueue - min-куча по FireAt для container/heap
type taskQueue []*Task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool { return q[i].FireAt.Before(q[j].FireAt) }

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	task := x.(*Task)
	task.index = len(*q)
	*q = append(*q, task)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*q = old[:n-1]
	return task
}
