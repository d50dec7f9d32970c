package handler

import (
	"context"
	"fmt"
	"html"
	"invite-link-bot/internal/metrics"
	"invite-link-bot/internal/service"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

type cbHandler func(ctx context.Context, query *tgbotapi.CallbackQuery)

type prefixCB struct {
	Prefix string
	Fn     cbHandler
}

// Точные совпадения callback_data
func (h *Handler) cbRoutes() map[string]cbHandler {
	return map[string]cbHandler{
		cbHelp:        h.helpCBRoute,
		cbAdminMenu:   h.adminOnlyCB(cbAdminMenu, h.adminMenuCBRoute),
		cbAdminStats:  h.adminOnlyCB(cbAdminStats, h.adminStatsCBRoute),
		cbAdminReload: h.adminOnlyCB(cbAdminReload, h.adminReloadCBRoute),
		cbBackToMenu:  h.backToMenuCBRoute,
	}
}

// Совпадения по префиксу
func (h *Handler) cbPrefixRoutes() []prefixCB {
	return []prefixCB{
		{
			Prefix: service.LinkCallbackPrefix,
			Fn:     h.linkPrefixCBRoute,
		},
	}
}

// handleCallbackQuery обрабатывает inline кнопки. Каждый маршрут сам отвечает на callback.
func (h *Handler) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.From == nil {
		return
	}

	data := query.Data

	if fn, ok := h.cbRoutes()[data]; ok {
		metrics.IncCallback(data)
		fn(ctx, query)
		return
	}

	for _, pr := range h.cbPrefixRoutes() {
		if strings.HasPrefix(data, pr.Prefix) {
			metrics.IncCallback(pr.Prefix)
			pr.Fn(ctx, query)
			return
		}
	}

	metrics.IncCallback("unknown")
	h.answer(query.ID, "❌ Unknown command!")
}

// callbackChatID - чат, из которого нажали кнопку; без сообщения пишем пользователю напрямую
func callbackChatID(query *tgbotapi.CallbackQuery) int64 {
	if query.Message != nil && query.Message.Chat != nil {
		return query.Message.Chat.ID
	}
	return query.From.ID
}

func (h *Handler) adminOnlyCB(route string, next cbHandler) cbHandler {
	return func(ctx context.Context, query *tgbotapi.CallbackQuery) {
		if !h.isAdmin(query.From) {
			metrics.IncAdminCommand(route, "unauthorized")
			logrus.WithFields(logrus.Fields{
				"user_id":  query.From.ID,
				"callback": route,
			}).Warn("Unauthorized access to admin callback")
			h.answer(query.ID, accessDeniedText)
			return
		}

		metrics.IncAdminCommand(route, "authorized")
		next(ctx, query)
	}
}

func (h *Handler) helpCBRoute(_ context.Context, query *tgbotapi.CallbackQuery) {
	h.sendHelp(callbackChatID(query), query.From)
	h.answer(query.ID, "Help information sent!")
}

func (h *Handler) linkPrefixCBRoute(_ context.Context, query *tgbotapi.CallbackQuery) {
	name := strings.TrimPrefix(query.Data, service.LinkCallbackPrefix)

	link, ok := h.linkService.Get(name)
	if !ok {
		metrics.IncLinkDelivery("not_found")
		h.answer(query.ID, "❌ Link not found!")
		return
	}

	text := fmt.Sprintf("🔗 <b>%s</b>\n\n👉 %s\n\n⏰ This message will be deleted in %d seconds",
		html.EscapeString(link.Name), html.EscapeString(link.URL), h.deleteDelaySeconds())

	if !h.sendAndAutoDelete(callbackChatID(query), text) {
		metrics.IncLinkDelivery("failed")
		h.answer(query.ID, "❌ An error occurred!")
		return
	}

	metrics.IncLinkDelivery("sent")
	h.answer(query.ID, fmt.Sprintf("✅ %s sent! Check your chat.", link.Name))

	logrus.WithFields(logrus.Fields{
		"user_id": query.From.ID,
		"link":    link.Name,
	}).Info("Link requested")
}

func (h *Handler) adminMenuCBRoute(_ context.Context, query *tgbotapi.CallbackQuery) {
	h.showPanel(query, "⚙️ <b>Admin panel</b>\n\nChoose an action:", adminKeyboard())
	h.answer(query.ID, "")
}

func (h *Handler) adminStatsCBRoute(_ context.Context, query *tgbotapi.CallbackQuery) {
	h.showPanel(query, h.statsText(false), adminKeyboard())
	h.answer(query.ID, "")
}

func (h *Handler) adminReloadCBRoute(_ context.Context, query *tgbotapi.CallbackQuery) {
	oldCount, newCount := h.linkService.Reload()
	h.answer(query.ID, fmt.Sprintf("🔄 Links reloaded: %d → %d", oldCount, newCount))
}

func (h *Handler) backToMenuCBRoute(_ context.Context, query *tgbotapi.CallbackQuery) {
	h.showPanel(query, welcomeText(query.From), linksKeyboard(h.linkService.List(), h.isAdmin(query.From)))
	h.answer(query.ID, "")
}

// showPanel заменяет сообщение с кнопками на новый текст и клавиатуру.
// Если исходного сообщения нет, отправляет новое.
func (h *Handler) showPanel(query *tgbotapi.CallbackQuery, text string, markup tgbotapi.InlineKeyboardMarkup) {
	if query.Message == nil || query.Message.Chat == nil {
		msg := tgbotapi.NewMessage(query.From.ID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.ReplyMarkup = markup
		h.send(msg)
		return
	}

	edit := tgbotapi.NewEditMessageTextAndMarkup(query.Message.Chat.ID, query.Message.MessageID, text, markup)
	edit.ParseMode = tgbotapi.ModeHTML
	h.send(edit)
}
