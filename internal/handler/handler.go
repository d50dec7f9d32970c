package handler

import (
	"context"
	"errors"
	"fmt"
	"invite-link-bot/internal/config"
	"invite-link-bot/internal/service"
	"invite-link-bot/pkg/telegram"
	"runtime/debug"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

var ErrUpdatesClosed = errors.New("updates channel closed")

// DeleteScheduler - планировщик автоудаления отправленных сообщений
type DeleteScheduler interface {
	Schedule(chatID int64, messageID int, delay time.Duration) (string, error)
	Pending() int
}

type Handler struct {
	bot         telegram.API
	linkService *service.LinkService
	scheduler   DeleteScheduler
	config      *config.BotConfig
	startedAt   time.Time
}

func NewHandler(
	bot telegram.API,
	linkService *service.LinkService,
	scheduler DeleteScheduler,
	cfg *config.BotConfig,
) *Handler {
	return &Handler{
		bot:         bot,
		linkService: linkService,
		scheduler:   scheduler,
		config:      cfg,
		startedAt:   time.Now(),
	}
}

// HandleUpdates обрабатывает обновления по одному, пока не отменят ctx или не закроется канал
func (h *Handler) HandleUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return ErrUpdatesClosed
			}
			h.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate обрабатывает одно обновление. Паника в обработчике логируется
// и не роняет цикл обновлений.
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"update_id": update.UpdateID,
				"panic":     fmt.Sprint(r),
			}).Errorf("Error in update handler\n%s", debug.Stack())
		}
	}()

	// Обработка callback query (для inline кнопок)
	if update.CallbackQuery != nil {
		h.handleCallbackQuery(ctx, update.CallbackQuery)
		return
	}

	if update.Message == nil {
		return
	}

	h.handleMessage(ctx, update.Message)
}

func (h *Handler) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil || message.Chat == nil {
		return
	}

	if !message.IsCommand() {
		return
	}

	logrus.WithFields(logrus.Fields{
		"user_id":  message.From.ID,
		"username": message.From.UserName,
	}).Infof("Command /%s", message.Command())

	h.handleCommand(ctx, message)
}

func (h *Handler) isAdmin(user *tgbotapi.User) bool {
	return user != nil && h.config.IsAdmin(user.ID)
}

// send отправляет сообщение; ошибка транспорта только логируется
func (h *Handler) send(c tgbotapi.Chattable) (tgbotapi.Message, bool) {
	sent, err := h.bot.Send(c)
	if err != nil {
		logrus.WithError(err).Error("Failed to send message")
		return tgbotapi.Message{}, false
	}
	return sent, true
}

// reply отправляет текст в HTML разметке
func (h *Handler) reply(chatID int64, text string) (tgbotapi.Message, bool) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	return h.send(msg)
}

// replyChunked отправляет длинный текст несколькими сообщениями по порядку
func (h *Handler) replyChunked(chatID int64, text string) {
	for _, chunk := range service.ChunkText(text, service.MaxMessageLength) {
		if _, ok := h.reply(chatID, chunk); !ok {
			return
		}
	}
}

// answer показывает всплывающее уведомление на нажатую кнопку
func (h *Handler) answer(callbackID, text string) {
	if _, err := h.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		logrus.WithError(err).Warn("Failed to answer callback query")
	}
}

// sendAndAutoDelete отправляет сообщение и планирует его удаление через заданную в конфиге задержку
func (h *Handler) sendAndAutoDelete(chatID int64, text string) bool {
	sent, ok := h.reply(chatID, text)
	if !ok {
		return false
	}

	if _, err := h.scheduler.Schedule(chatID, sent.MessageID, h.config.AutoDeleteDelay); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"chat_id":    chatID,
			"message_id": sent.MessageID,
		}).Warn("Failed to schedule message deletion")
	}

	return true
}

func (h *Handler) deleteDelaySeconds() int {
	return int(h.config.AutoDeleteDelay / time.Second)
}
