package bot

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tazhate/freebusy/internal/domain"
)

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	if update.Message != nil {
		b.handleMessage(update.Message)
	} else if update.CallbackQuery != nil {
		b.handleCallback(update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	chatID := msg.Chat.ID

	user, err := b.users.UserByTelegram(msg.From.ID)
	if err != nil {
		b.log.Error().Err(err).Int64("telegram_id", msg.From.ID).Msg("get user")
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(msg, user)
		return
	}

	// Plain text is treated as /add arguments
	if user != nil {
		b.cmdAdd(chatID, user, text)
		return
	}
	b.cmdStart(chatID, nil)
}

func (b *Bot) handleCallback(callback *tgbotapi.CallbackQuery) {
	if callback.Message == nil {
		return
	}
	chatID := callback.Message.Chat.ID
	msgID := callback.Message.MessageID

	user, _ := b.users.UserByTelegram(callback.From.ID)
	if user == nil {
		b.api.Request(tgbotapi.NewCallback(callback.ID, "First /register or /link"))
		return
	}

	parts := strings.Split(callback.Data, ":")
	if len(parts) < 2 {
		return
	}

	switch parts[0] {
	case "del":
		eventID := atoi(parts[1])
		events, _ := b.calendar.ListEvents(user.Username)
		var target *domain.Event
		for i := range events {
			if events[i].ID == eventID {
				target = &events[i]
				break
			}
		}
		if target == nil {
			b.api.Request(tgbotapi.NewCallback(callback.ID, "Event not found"))
			return
		}

		b.api.Request(tgbotapi.NewCallback(callback.ID, ""))

		text := fmt.Sprintf("🗑 Delete event?\n\n<b>#%d</b> %s  %s", target.ID, target.FormatTime(), escape(target.Name))
		kb := confirmDeleteKeyboard(eventID)
		edit := tgbotapi.NewEditMessageText(chatID, msgID, text)
		edit.ParseMode = tgbotapi.ModeHTML
		edit.ReplyMarkup = &kb
		b.api.Send(edit)

	case "confirm_del":
		eventID := atoi(parts[1])
		if err := b.calendar.DeleteEvent(user.Username, eventID); err != nil {
			b.api.Request(tgbotapi.NewCallback(callback.ID, "❌ "+err.Error()))
			return
		}
		b.api.Request(tgbotapi.NewCallback(callback.ID, "🗑 Deleted!"))
		b.showEventPage(chatID, msgID, 0, user)

	case "page":
		b.api.Request(tgbotapi.NewCallback(callback.ID, ""))
		b.showEventPage(chatID, msgID, int(atoi(parts[1])), user)

	case "refresh":
		b.api.Request(tgbotapi.NewCallback(callback.ID, "🔄"))
		b.showEventPage(chatID, msgID, 0, user)

	case "free":
		start, end, err := freeRange(b.cfg, parts[1], b.now())
		if err != nil {
			b.api.Request(tgbotapi.NewCallback(callback.ID, "❌ "+err.Error()))
			return
		}
		text, err := b.freeText(user.Username, nil, start, end)
		if err != nil {
			b.api.Request(tgbotapi.NewCallback(callback.ID, "❌ "+err.Error()))
			return
		}
		b.api.Request(tgbotapi.NewCallback(callback.ID, ""))

		kb := freeRangeKeyboard()
		edit := tgbotapi.NewEditMessageText(chatID, msgID, text)
		edit.ParseMode = tgbotapi.ModeHTML
		edit.ReplyMarkup = &kb
		b.api.Send(edit)
	}
}

func (b *Bot) showEventPage(chatID int64, msgID int, page int, user *domain.User) {
	events, err := b.calendar.ListEvents(user.Username)
	if err != nil {
		b.log.Error().Err(err).Str("user", user.Username).Msg("list events")
		return
	}

	text := "📋 <b>Your events</b>\n\n" + escape(b.calendar.FormatEventList(events))

	edit := tgbotapi.NewEditMessageText(chatID, msgID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	if kb := eventListKeyboard(events, page); kb != nil {
		edit.ReplyMarkup = kb
	}
	b.api.Send(edit)
}

func atoi(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
