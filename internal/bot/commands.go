package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/tazhate/freebusy/config"
	"github.com/tazhate/freebusy/internal/domain"
	"github.com/tazhate/freebusy/internal/engine"
)

func (b *Bot) handleCommand(msg *tgbotapi.Message, user *domain.User) {
	chatID := msg.Chat.ID
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())

	switch cmd {
	case "start":
		b.cmdStart(chatID, user)
		return
	case "help":
		b.cmdHelp(chatID)
		return
	case "register":
		b.cmdRegister(msg, args)
		return
	case "link":
		b.cmdLink(msg, args)
		return
	}

	if user == nil {
		b.SendMessage(chatID, "First /register or /link your account")
		return
	}

	switch cmd {
	case "add":
		b.cmdAdd(chatID, user, args)
	case "events":
		b.cmdEvents(chatID, user)
	case "delete":
		b.cmdDelete(chatID, user, args)
	case "free":
		b.cmdFree(chatID, user, args)
	case "friends":
		b.cmdFriends(chatID, user)
	case "addfriend":
		b.cmdAddFriend(chatID, user, args)
	default:
		b.SendMessage(chatID, "Unknown command. /help for the list")
	}
}

func (b *Bot) cmdStart(chatID int64, user *domain.User) {
	if user != nil {
		b.SendMessage(chatID, fmt.Sprintf("👋 Welcome back, %s!", escape(user.Username)))
		return
	}
	b.SendMessage(chatID, "👋 Hi! I find time when you and your friends are all free.\n\n"+
		"/register name password — create an account\n"+
		"/link name password — use an existing account\n"+
		"/help — all commands")
}

func (b *Bot) cmdHelp(chatID int64) {
	text := `<b>Commands:</b>

<b>Account</b>
/register name password — create an account
/link name password — link an existing account

<b>Events</b>
/add 2025-03-03T09:00 10:00 Standup days=mon,wed — add event
/events — list events
/delete ID — delete event

<b>Free time</b>
/free — today with friends
/free 3d — next three days with friends
/free 2025-03-03T09:00 2025-03-03T18:00 bob carol — custom range and users

<b>Friends</b>
/friends — list friends
/addfriend name — add friend

Times are UTC.`

	b.SendMessage(chatID, text)
}

// credentials splits "name password".
func credentials(args string) (string, string, bool) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return "", "", false
	}
	return fields[0], fields[1], true
}

// forgetPassword removes a message carrying a password from the chat.
func (b *Bot) forgetPassword(msg *tgbotapi.Message) {
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(msg.Chat.ID, msg.MessageID)); err != nil {
		b.log.Debug().Err(err).Msg("could not delete credentials message")
	}
}

func (b *Bot) cmdRegister(msg *tgbotapi.Message, args string) {
	chatID := msg.Chat.ID
	name, password, ok := credentials(args)
	if !ok {
		b.SendMessage(chatID, "Usage: /register name password")
		return
	}
	b.forgetPassword(msg)

	if _, err := b.users.AddUser(name, password); err != nil {
		b.SendMessage(chatID, "❌ "+escape(err.Error()))
		return
	}
	if _, err := b.users.LinkTelegram(name, password, msg.From.ID); err != nil {
		b.SendMessage(chatID, "❌ "+escape(err.Error()))
		return
	}
	b.SendMessage(chatID, fmt.Sprintf("✅ Registered as <b>%s</b>", escape(name)))
}

func (b *Bot) cmdLink(msg *tgbotapi.Message, args string) {
	chatID := msg.Chat.ID
	name, password, ok := credentials(args)
	if !ok {
		b.SendMessage(chatID, "Usage: /link name password")
		return
	}
	b.forgetPassword(msg)

	if _, err := b.users.LinkTelegram(name, password, msg.From.ID); err != nil {
		b.SendMessage(chatID, "❌ "+escape(err.Error()))
		return
	}
	b.SendMessage(chatID, fmt.Sprintf("✅ Linked to <b>%s</b>", escape(name)))
}

// parseAddArgs parses "<start> <end> <name...> [days=mon,wed]". End may be
// a bare HH:MM on the start's day.
func parseAddArgs(args string) (domain.Event, error) {
	fields := strings.Fields(args)
	if len(fields) < 3 {
		return domain.Event{}, errors.New("usage: /add <start> <end> <name> [days=mon,wed]")
	}

	start, err := domain.ParseInstant(fields[0])
	if err != nil {
		return domain.Event{}, err
	}

	end, err := domain.ParseInstant(fields[1])
	if err != nil {
		clock, clockErr := config.ParseClock(fields[1])
		if clockErr != nil {
			return domain.Event{}, err
		}
		midnight := domain.MinutesFromTime(domain.TimeFromMinutes(start).Truncate(24 * time.Hour))
		end = midnight + clock
	}

	e := domain.Event{Start: start, End: end}
	var name []string
	for _, f := range fields[2:] {
		if days, ok := strings.CutPrefix(f, "days="); ok {
			mask, err := domain.ParseWeekdayMask(days)
			if err != nil {
				return domain.Event{}, err
			}
			e.Days = mask
			continue
		}
		name = append(name, f)
	}
	e.Name = strings.Join(name, " ")
	if e.Name == "" {
		return domain.Event{}, errors.New("event name is required")
	}
	return e, nil
}

func (b *Bot) cmdAdd(chatID int64, user *domain.User, args string) {
	e, err := parseAddArgs(args)
	if err != nil {
		b.SendMessage(chatID, "❌ "+escape(err.Error()))
		return
	}
	e.Owner = user.Username

	if err := b.calendar.AddEvent(&e); err != nil {
		b.SendMessage(chatID, rejectionText(err))
		return
	}

	text := fmt.Sprintf("✅ Event added\n\n<b>#%d</b> %s  %s", e.ID, e.FormatTime(), escape(e.Name))
	if !e.Days.Empty() {
		text += " (" + e.Days.String() + ")"
	}
	b.SendMessage(chatID, text)
}

// rejectionText explains why an event was not added.
func rejectionText(err error) string {
	var rej *engine.Rejection
	if errors.As(err, &rej) && rej.Conflict != nil {
		return fmt.Sprintf("⛔ Conflicts with <b>#%d</b> %s  %s",
			rej.Conflict.ID, rej.Conflict.FormatTime(), escape(rej.Conflict.Name))
	}
	if errors.Is(err, engine.ErrInvalidRange) {
		return "❌ Event ends before it starts"
	}
	return "❌ " + escape(err.Error())
}

func (b *Bot) cmdEvents(chatID int64, user *domain.User) {
	events, err := b.calendar.ListEvents(user.Username)
	if err != nil {
		b.SendMessage(chatID, "❌ "+escape(err.Error()))
		return
	}

	text := "📋 <b>Your events</b>\n\n" + escape(b.calendar.FormatEventList(events))
	if kb := eventListKeyboard(events, 0); kb != nil {
		b.SendMessageWithKeyboard(chatID, text, *kb)
		return
	}
	b.SendMessage(chatID, text)
}

func (b *Bot) cmdDelete(chatID int64, user *domain.User, args string) {
	id, err := strconv.ParseInt(strings.TrimPrefix(args, "#"), 10, 64)
	if err != nil {
		b.SendMessage(chatID, "Usage: /delete ID")
		return
	}
	if err := b.calendar.DeleteEvent(user.Username, id); err != nil {
		b.SendMessage(chatID, "❌ "+escape(err.Error()))
		return
	}
	b.SendMessage(chatID, fmt.Sprintf("🗑 Event #%d deleted", id))
}

// freeRange returns a named query range: today/tomorrow use the digest
// hours, week or a span such as "3d" run from now.
func freeRange(cfg *config.Config, kind string, now time.Time) (int64, int64, error) {
	from, err := config.ParseClock(cfg.DigestFrom)
	if err != nil {
		return 0, 0, err
	}
	to, err := config.ParseClock(cfg.DigestTo)
	if err != nil {
		return 0, 0, err
	}
	midnight := domain.MinutesFromTime(now.UTC().Truncate(24 * time.Hour))

	switch kind {
	case "", "today":
		return midnight + from, midnight + to, nil
	case "tomorrow":
		return midnight + 24*60 + from, midnight + 24*60 + to, nil
	case "week":
		start := domain.MinutesFromTime(now)
		return start, start + 7*24*60, nil
	}

	span, err := config.ParseSpan(kind)
	if err != nil || span <= 0 {
		return 0, 0, fmt.Errorf("unknown range %q: use today, tomorrow, week or a span like 3d", kind)
	}
	start := domain.MinutesFromTime(now)
	return start, start + span, nil
}

// parseFreeArgs parses "[<from> <to>] [user...]". No arguments means today.
func parseFreeArgs(cfg *config.Config, args string, now time.Time) (int64, int64, []string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		start, end, err := freeRange(cfg, "today", now)
		return start, end, nil, err
	}
	if len(fields) == 1 {
		start, end, err := freeRange(cfg, fields[0], now)
		return start, end, nil, err
	}

	start, err := domain.ParseInstant(fields[0])
	if err != nil {
		return 0, 0, nil, err
	}
	end, err := domain.ParseInstant(fields[1])
	if err != nil {
		return 0, 0, nil, err
	}
	return start, end, fields[2:], nil
}

func (b *Bot) cmdFree(chatID int64, user *domain.User, args string) {
	start, end, others, err := parseFreeArgs(b.cfg, args, b.now())
	if err != nil {
		b.SendMessage(chatID, "❌ "+escape(err.Error()))
		return
	}

	text, err := b.freeText(user.Username, others, start, end)
	if err != nil {
		b.SendMessage(chatID, "❌ "+escape(err.Error()))
		return
	}
	b.SendMessageWithKeyboard(chatID, text, freeRangeKeyboard())
}

// freeText computes and formats free time. Without explicit users it uses
// the friend list.
func (b *Bot) freeText(username string, others []string, start, end int64) (string, error) {
	var (
		free  []domain.FreeWindow
		users []string
		err   error
	)
	if len(others) == 0 {
		free, users, err = b.calendar.ComputeFreeTimeWithFriends(username, start, end)
	} else {
		users = append([]string{username}, others...)
		free, err = b.calendar.ComputeFreeTime(users, start, end)
	}
	if err != nil {
		return "", err
	}

	header := fmt.Sprintf("🟢 <b>Free %s</b>", domain.FormatRange(start, end))
	if len(users) > 1 {
		header += "\nwith " + escape(strings.Join(users[1:], ", "))
	}
	return header + "\n\n" + b.calendar.FormatFreeWindows(free), nil
}

func (b *Bot) cmdFriends(chatID int64, user *domain.User) {
	friends, err := b.users.ListFriends(user.Username)
	if err != nil {
		b.SendMessage(chatID, "❌ "+escape(err.Error()))
		return
	}
	if len(friends) == 0 {
		b.SendMessage(chatID, "No friends yet. /addfriend name")
		return
	}

	var sb strings.Builder
	sb.WriteString("👥 <b>Friends</b>\n\n")
	for _, f := range friends {
		sb.WriteString("• " + escape(f) + "\n")
	}
	b.SendMessage(chatID, sb.String())
}

func (b *Bot) cmdAddFriend(chatID int64, user *domain.User, args string) {
	if args == "" {
		b.SendMessage(chatID, "Usage: /addfriend name")
		return
	}
	if err := b.users.AddFriend(user.Username, args); err != nil {
		b.SendMessage(chatID, "❌ "+escape(err.Error()))
		return
	}
	b.SendMessage(chatID, fmt.Sprintf("✅ %s added to friends", escape(args)))
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}
