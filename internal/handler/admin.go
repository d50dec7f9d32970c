package handler

import (
	"context"
	"errors"
	"fmt"
	"html"
	"invite-link-bot/internal/models"
	"invite-link-bot/internal/service"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

const (
	addLinkUsage = `📝 Usage:
/addlink "Link Name" https://t.me/example
/addlink LinkName https://t.me/example`

	updateLinkUsage = `📝 Usage:
/updatelink "Link Name" https://t.me/example
/updatelink LinkName https://t.me/example`

	removeLinkUsage = `📝 Usage:
/removelink "Link Name"`
)

// handleAddLink добавляет ссылку: /addlink "Имя" url
func (h *Handler) handleAddLink(_ context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	name, url, err := service.ParseLinkArgs(message.CommandArguments())
	if err != nil {
		h.reply(chatID, addLinkUsage)
		return
	}

	if err := h.linkService.Add(name, url); err != nil {
		h.reply(chatID, linkErrorText(err, name, addLinkUsage))
		return
	}

	logrus.WithFields(logrus.Fields{
		"name": name,
		"url":  url,
	}).Info("Link added")

	h.reply(chatID, fmt.Sprintf("✅ Link <b>%s</b> added.\nTotal links: %d", html.EscapeString(name), h.linkService.Count()))
}

// handleUpdateLink меняет адрес у существующей ссылки: /updatelink "Имя" url
func (h *Handler) handleUpdateLink(_ context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	name, url, err := service.ParseLinkArgs(message.CommandArguments())
	if err != nil {
		h.reply(chatID, updateLinkUsage)
		return
	}

	if err := h.linkService.Update(name, url); err != nil {
		h.reply(chatID, linkErrorText(err, name, updateLinkUsage))
		return
	}

	logrus.WithFields(logrus.Fields{
		"name": name,
		"url":  url,
	}).Info("Link updated")

	h.reply(chatID, fmt.Sprintf("✅ Link <b>%s</b> updated.\n👉 %s", html.EscapeString(name), html.EscapeString(url)))
}

// handleRemoveLink удаляет ссылку: /removelink "Имя"
func (h *Handler) handleRemoveLink(_ context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	name, err := service.ParseRemoveArg(message.CommandArguments())
	if err != nil {
		h.reply(chatID, removeLinkUsage)
		return
	}

	removed, err := h.linkService.Remove(name)
	if err != nil {
		h.reply(chatID, linkErrorText(err, name, removeLinkUsage))
		return
	}

	logrus.WithField("name", removed.Name).Info("Link removed")

	h.reply(chatID, fmt.Sprintf("🗑 Link <b>%s</b> removed.\n%s\nTotal links: %d",
		html.EscapeString(removed.Name), html.EscapeString(removed.URL), h.linkService.Count()))
}

func (h *Handler) handleListLinks(_ context.Context, message *tgbotapi.Message) {
	h.replyChunked(message.Chat.ID, service.FormatLinkList(h.linkService.List()))
}

func (h *Handler) handleReloadLinks(_ context.Context, message *tgbotapi.Message) {
	oldCount, newCount := h.linkService.Reload()
	h.reply(message.Chat.ID, fmt.Sprintf("🔄 Links reloaded.\nBefore: %d\nNow: %d", oldCount, newCount))
}

// linkErrorText превращает ошибку реестра в готовый текст для пользователя
func linkErrorText(err error, name, usage string) string {
	escaped := html.EscapeString(name)

	switch {
	case errors.Is(err, models.ErrLinkExists):
		return fmt.Sprintf("❌ Link <b>%s</b> already exists. Use /updatelink to change it.", escaped)
	case errors.Is(err, models.ErrLinkNotFound):
		return fmt.Sprintf("❌ Link <b>%s</b> not found.", escaped)
	case errors.Is(err, models.ErrInvalidURL):
		return "❌ Invalid URL. It must start with " + strings.Join(models.AllowedURLPrefixes, ", ") + "\n\n" + usage
	case errors.Is(err, models.ErrInvalidName):
		return "❌ Invalid link name. It must not be empty and must fit into a button (59 bytes max).\n\n" + usage
	default:
		logrus.WithError(err).Error("Unexpected link registry error")
		return "❌ An error occurred. Please try again later."
	}
}
