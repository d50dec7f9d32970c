package telegram

import (
	"context"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// API - методы бота, которыми пользуются обработчики. Реализуется *tgbotapi.BotAPI,
// в тестах подменяется фейком.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

var _ API = (*tgbotapi.BotAPI)(nil)

// Long polling держит запрос до 60 секунд, таймаут HTTP клиента должен быть больше
const (
	pollTimeout    = 60
	requestTimeout = 90 * time.Second
)

type Client struct {
	Bot          *tgbotapi.BotAPI
	UpdateConfig tgbotapi.UpdateConfig
}

func NewClient(token string, debug bool) (*Client, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: requestTimeout})
	if err != nil {
		return nil, err
	}

	bot.Debug = debug

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = pollTimeout

	return &Client{
		Bot:          bot,
		UpdateConfig: updateConfig,
	}, nil
}

// MessageDeleter удаляет сообщения через Bot API
type MessageDeleter struct {
	api API
}

func NewMessageDeleter(api API) *MessageDeleter {
	return &MessageDeleter{api: api}
}

// DeleteMessage идет через Request: deleteMessage возвращает true, а не Message,
// поэтому Send на нем падает при разборе ответа.
// Bot API клиент не принимает context, поэтому запрос идет в отдельной горутине,
// а по истечении ctx воркер освобождается сразу. Сам запрос ограничен таймаутом HTTP клиента.
func (d *MessageDeleter) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		_, err := d.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
