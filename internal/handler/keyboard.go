package handler

import (
	"invite-link-bot/internal/models"
	"invite-link-bot/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cbHelp        = "help"
	cbAdminMenu   = "admin_menu"
	cbAdminStats  = "admin_stats"
	cbAdminReload = "admin_reload"
	cbBackToMenu  = "back_to_menu"
)

// linksKeyboard - по две ссылки в ряд, внизу ряд с админкой (только для админа) и справкой
func linksKeyboard(links []models.Link, isAdmin bool) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	for i := 0; i < len(links); i += 2 {
		row := tgbotapi.NewInlineKeyboardRow(linkButton(links[i]))
		if i+1 < len(links) {
			row = append(row, linkButton(links[i+1]))
		}
		rows = append(rows, row)
	}

	var bottom []tgbotapi.InlineKeyboardButton
	if isAdmin {
		bottom = append(bottom, tgbotapi.NewInlineKeyboardButtonData("⚙️ Admin", cbAdminMenu))
	}
	bottom = append(bottom, tgbotapi.NewInlineKeyboardButtonData("ℹ️ Help", cbHelp))
	rows = append(rows, bottom)

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func linkButton(link models.Link) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(link.Name, service.LinkCallbackPrefix+link.Name)
}

func adminKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Stats", cbAdminStats),
			tgbotapi.NewInlineKeyboardButtonData("🔄 Reload links", cbAdminReload),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", cbBackToMenu),
		),
	)
}
