package handler

import (
	"context"
	"fmt"
	"html"
	"invite-link-bot/internal/metrics"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

type commandHandler func(ctx context.Context, message *tgbotapi.Message)

// commandRoutes - таблица команд; админские обернуты в adminOnly
func (h *Handler) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start": h.handleStart,
		"help":  h.handleHelp,

		"stats":       h.adminOnly(h.handleStats),
		"addlink":     h.adminOnly(h.handleAddLink),
		"updatelink":  h.adminOnly(h.handleUpdateLink),
		"removelink":  h.adminOnly(h.handleRemoveLink),
		"listlinks":   h.adminOnly(h.handleListLinks),
		"reloadlinks": h.adminOnly(h.handleReloadLinks),
	}
}

func (h *Handler) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	command := message.Command()

	route, ok := h.commandRoutes()[command]
	if !ok {
		metrics.IncCommand("unknown")
		h.sendUnknownCommand(message)
		return
	}

	metrics.IncCommand(command)
	route(ctx, message)
}

// adminOnly пропускает к обработчику только администратора из конфига
func (h *Handler) adminOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) {
		if !h.isAdmin(message.From) {
			metrics.IncAdminCommand(message.Command(), "unauthorized")
			logrus.WithFields(logrus.Fields{
				"user_id": message.From.ID,
				"command": message.Command(),
			}).Warn("Unauthorized access to admin command")
			h.reply(message.Chat.ID, accessDeniedText)
			return
		}

		metrics.IncAdminCommand(message.Command(), "authorized")
		next(ctx, message)
	}
}

const accessDeniedText = "❌ Access denied. Admin only."

func (h *Handler) sendUnknownCommand(message *tgbotapi.Message) {
	h.reply(message.Chat.ID, "❌ Unknown command. Use /help to see the list of commands.")
}

func (h *Handler) handleStart(_ context.Context, message *tgbotapi.Message) {
	user := message.From

	msg := tgbotapi.NewMessage(message.Chat.ID, welcomeText(user))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = linksKeyboard(h.linkService.List(), h.isAdmin(user))

	if _, ok := h.send(msg); !ok {
		h.reply(message.Chat.ID, "❌ An error occurred. Please try again later.")
		return
	}

	logrus.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"username": user.UserName,
	}).Info("User started the bot")
}

func welcomeText(user *tgbotapi.User) string {
	name := "there"
	if user != nil && user.FirstName != "" {
		name = user.FirstName
	}

	return fmt.Sprintf("👋 Welcome <b>%s</b>!\n\nChoose a link below to join the community:", html.EscapeString(name))
}

func (h *Handler) handleHelp(_ context.Context, message *tgbotapi.Message) {
	h.sendHelp(message.Chat.ID, message.From)
}

func (h *Handler) sendHelp(chatID int64, user *tgbotapi.User) {
	h.reply(chatID, h.helpText(h.isAdmin(user)))
}

func (h *Handler) helpText(isAdmin bool) string {
	text := fmt.Sprintf(`🤖 <b>Bot Help</b>

<b>Commands:</b>
• /start - Show main menu
• /help - Show this help message
• /stats - Show bot statistics (admin only)

<b>How to use:</b>
1. Click on any link button to receive the invite link
2. Links are automatically deleted after %d seconds for privacy
3. Join the community and enjoy!

<b>Need support?</b>
Contact the administrator if you encounter any issues.`, h.deleteDelaySeconds())

	if isAdmin {
		text += `

👑 <b>Admin commands:</b>
• /addlink "Name" url - Add a link
• /updatelink "Name" url - Change the URL of a link
• /removelink "Name" - Remove a link
• /listlinks - Show all links
• /reloadlinks - Reload links from file`
	}

	return text
}

func (h *Handler) handleStats(_ context.Context, message *tgbotapi.Message) {
	h.replyChunked(message.Chat.ID, h.statsText(true))
}

// statsText - статистика бота; withLinks добавляет список имен ссылок
func (h *Handler) statsText(withLinks bool) string {
	links := h.linkService.List()

	var lines []string
	lines = append(lines, "📊 <b>Bot Statistics</b>")
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("• Total links: %d", len(links)))
	lines = append(lines, fmt.Sprintf("• Auto-delete delay: %d seconds", h.deleteDelaySeconds()))
	lines = append(lines, fmt.Sprintf("• Pending deletions: %d", h.scheduler.Pending()))
	lines = append(lines, fmt.Sprintf("• Uptime: %s", time.Since(h.startedAt).Truncate(time.Second)))

	if withLinks && len(links) > 0 {
		lines = append(lines, "")
		lines = append(lines, "<b>Available links:</b>")
		for _, link := range links {
			lines = append(lines, "• "+html.EscapeString(link.Name))
		}
	}

	return strings.Join(lines, "\n")
}
