package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UpdateSource - источник long polling обновлений. После StopReceivingUpdates
// *tgbotapi.BotAPI больше не отдает обновления, поэтому на каждую попытку нужен новый.
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

var _ UpdateSource = (*tgbotapi.BotAPI)(nil)

// Poller открывает свежий источник обновлений на каждый запуск Run и
// продолжает с offset после последнего обновления, отданного обработчику.
type Poller struct {
	open   func() (UpdateSource, error)
	config tgbotapi.UpdateConfig
}

func NewPoller(open func() (UpdateSource, error), config tgbotapi.UpdateConfig) *Poller {
	return &Poller{open: open, config: config}
}

// Run - одна попытка polling: handle получает канал нового источника.
// Источник останавливается, когда handle вернул управление.
func (p *Poller) Run(ctx context.Context, handle func(ctx context.Context, updates tgbotapi.UpdatesChannel) error) error {
	source, err := p.open()
	if err != nil {
		return fmt.Errorf("failed to open updates source: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	in := source.GetUpdatesChan(p.config)
	out := make(chan tgbotapi.Update)
	forwarded := make(chan struct{})

	go func() {
		defer close(forwarded)
		defer close(out)

		for {
			select {
			case <-runCtx.Done():
				return
			case update, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- update:
					if update.UpdateID >= p.config.Offset {
						p.config.Offset = update.UpdateID + 1
					}
				case <-runCtx.Done():
					return
				}
			}
		}
	}()

	defer func() {
		cancel()
		<-forwarded
		source.StopReceivingUpdates()
	}()

	return handle(runCtx, out)
}
