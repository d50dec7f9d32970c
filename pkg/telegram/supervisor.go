package telegram

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
)

// RetryPolicy - перезапуск упавшего цикла: пауза BaseDelay*n, но не больше MaxDelay,
// всего MaxAttempts попыток.
type RetryPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:   60 * time.Second,
		MaxDelay:    300 * time.Second,
		MaxAttempts: 5,
	}
}

func (p RetryPolicy) backoff() retry.Backoff {
	var n time.Duration
	linear := retry.BackoffFunc(func() (time.Duration, bool) {
		n++
		return p.BaseDelay * n, false
	})

	retries := uint64(0)
	if p.MaxAttempts > 1 {
		retries = uint64(p.MaxAttempts - 1)
	}

	next := retry.WithMaxRetries(retries, retry.WithCappedDuration(p.MaxDelay, linear))

	return retry.BackoffFunc(func() (time.Duration, bool) {
		delay, stop := next.Next()
		if !stop {
			logrus.Infof("Restarting in %s...", delay)
		}
		return delay, stop
	})
}

// Supervise запускает fn и перезапускает его по RetryPolicy, пока fn возвращает ошибку
// или паникует. Отмена ctx не считается ошибкой. Возвращает последнюю ошибку,
// если попытки закончились.
func Supervise(ctx context.Context, policy RetryPolicy, name string, fn func(ctx context.Context) error) error {
	attempt := 0

	return retry.Do(ctx, policy.backoff(), func(ctx context.Context) error {
		attempt++
		logrus.WithField("attempt", attempt).Infof("Starting %s...", name)

		err := runSafe(ctx, fn)
		if err == nil || ctx.Err() != nil {
			return nil
		}

		logrus.WithError(err).Errorf("%s crashed (attempt %d/%d)", name, attempt, policy.MaxAttempts)
		return retry.RetryableError(err)
	})
}

func runSafe(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	return fn(ctx)
}
