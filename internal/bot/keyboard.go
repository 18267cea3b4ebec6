package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tazhate/freebusy/internal/domain"
)

const eventsPerPage = 5

// Event list keyboard with delete buttons and pagination
func eventListKeyboard(events []domain.Event, page int) *tgbotapi.InlineKeyboardMarkup {
	if len(events) == 0 {
		return nil
	}

	totalPages := (len(events) + eventsPerPage - 1) / eventsPerPage
	if page < 0 {
		page = 0
	}
	if page >= totalPages {
		page = totalPages - 1
	}
	start := page * eventsPerPage
	end := start + eventsPerPage
	if end > len(events) {
		end = len(events)
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, e := range events[start:end] {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("🗑 #%d %s", e.ID, truncate(e.Name, 25)),
				fmt.Sprintf("del:%d", e.ID),
			),
		))
	}

	// Pagination
	var navRow []tgbotapi.InlineKeyboardButton
	if page > 0 {
		navRow = append(navRow, tgbotapi.NewInlineKeyboardButtonData("⬅️", fmt.Sprintf("page:%d", page-1)))
	}
	if page < totalPages-1 {
		navRow = append(navRow, tgbotapi.NewInlineKeyboardButtonData("➡️", fmt.Sprintf("page:%d", page+1)))
	}
	if len(navRow) > 0 {
		rows = append(rows, navRow)
	}

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🟢 Free today", "free:today"),
		tgbotapi.NewInlineKeyboardButtonData("🔄", "refresh:events"),
	))

	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &keyboard
}

// Confirm delete keyboard
func confirmDeleteKeyboard(eventID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Yes, delete", fmt.Sprintf("confirm_del:%d", eventID)),
			tgbotapi.NewInlineKeyboardButtonData("◀️ Cancel", "refresh:events"),
		),
	)
}

// Free time range keyboard
func freeRangeKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📅 Today", "free:today"),
			tgbotapi.NewInlineKeyboardButtonData("📅 Tomorrow", "free:tomorrow"),
			tgbotapi.NewInlineKeyboardButtonData("🗓 Week", "free:week"),
		),
	)
}
