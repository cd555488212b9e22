package bot

import (
	"Scripter/core"
	"Scripter/form"
	"Scripter/holder"
	"Scripter/lib/sl"
	"Scripter/storage"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

const historySize = 5

// commands that edit or submit the form, mounting it when needed
var formCommands = map[string]bool{
	"topic":       true,
	"tone":        true,
	"format":      true,
	"temperature": true,
	"duration":    true,
	"generate":    true,
}

const helpText = "You can use the following commands:\n" +
	"/start - open the script form\n" +
	"/topic <text> - set the topic\n" +
	"/tone <conversational|formal|humorous> - set the tone\n" +
	"/format <linkedin|instagram|youtube_desc|monologue|interview> - set the format\n" +
	"/temperature <0.1-1.0> - set the variation level\n" +
	"/duration <1-60> - set the duration in minutes\n" +
	"/generate - generate the script\n" +
	"/history - show recent submissions\n" +
	"/close - close the form\n" +
	"/help - show this help"

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	AnswerCallbackQuery(config tgbotapi.CallbackConfig) (tgbotapi.APIResponse, error)
}

type TgBot struct {
	api         *tgbotapi.BotAPI
	out         sender
	sessions    *holder.SessionManager
	journal     storage.Journal
	botUsername string
	log         *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc

	typingMutex sync.Mutex
	typing      map[int64]chan struct{}
}

func NewTgBot(conf *core.Config, log *slog.Logger) (*TgBot, error) {
	api, err := tgbotapi.NewBotAPI(conf.TelegramApiKey)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	tgBot := newTgBot(api, log)
	tgBot.api = api
	tgBot.botUsername = conf.Username
	if tgBot.botUsername == "" {
		tgBot.botUsername = api.Self.UserName
	}
	return tgBot, nil
}

func newTgBot(out sender, log *slog.Logger) *TgBot {
	ctx, cancel := context.WithCancel(context.Background())
	return &TgBot{
		out:    out,
		log:    log.With(sl.Module("tgbot")),
		ctx:    ctx,
		cancel: cancel,
		typing: make(map[int64]chan struct{}),
	}
}

// SetSessions set the form session manager
func (t *TgBot) SetSessions(sessions *holder.SessionManager) {
	t.sessions = sessions
}

// SetJournal set the submission journal used by /history
func (t *TgBot) SetJournal(journal storage.Journal) {
	t.journal = journal
}

func (t *TgBot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates, err := t.api.GetUpdatesChan(u)
	if err != nil {
		return fmt.Errorf("getting updates: %w", err)
	}

	for update := range updates {
		if update.CallbackQuery != nil {
			t.onCallback(update.CallbackQuery)
			continue
		}
		if update.Message == nil {
			continue
		}

		incoming := update.Message
		chat := incoming.Chat

		if incoming.IsCommand() {
			t.log.With(
				sl.Chat(chat.ID),
				slog.String("command", incoming.Command()),
			).Debug("incoming command")
			t.handleCommand(chat.ID, incoming.Command(), incoming.CommandArguments())
			continue
		}
		if chat.IsPrivate() || t.isMentioned(incoming.Text) {
			t.handleText(chat.ID, strings.ReplaceAll(incoming.Text, "@"+t.botUsername, ""))
		}
	}
	return nil
}

func (t *TgBot) Stop() {
	t.cancel()
	if t.api != nil {
		t.api.StopReceivingUpdates()
	}
	t.typingMutex.Lock()
	defer t.typingMutex.Unlock()
	for chatId, stop := range t.typing {
		close(stop)
		delete(t.typing, chatId)
	}
}

func (t *TgBot) onCallback(query *tgbotapi.CallbackQuery) {
	if query.Message == nil || query.Message.Chat == nil {
		return
	}
	t.handleCallback(query.Message.Chat.ID, query.Message.MessageID, query.ID, query.Data)
}

func (t *TgBot) handleCommand(chatId int64, command, args string) {
	args = strings.TrimSpace(args)

	switch command {
	case "help":
		t.plainResponse(chatId, helpText)
		return
	case "start", "form":
		session, ok := t.sessions.Get(chatId)
		if !ok {
			session = t.mount(chatId)
		}
		t.sendForm(session)
		return
	case "close":
		t.stopTyping(chatId)
		if t.sessions.Unmount(chatId) {
			t.plainResponse(chatId, "Form closed. Send /start to open a new one.")
		}
		return
	case "history":
		t.sendHistory(chatId)
		return
	}

	if !formCommands[command] {
		t.plainResponse(chatId, "Unknown command, see /help")
		return
	}

	session, ok := t.sessions.Get(chatId)
	if !ok {
		session = t.mount(chatId)
		t.sendForm(session)
	}

	switch command {
	case "topic":
		if args == "" {
			t.plainResponse(chatId, "Usage: /topic <text>")
			return
		}
		session.State.SetTopic(args)
	case "tone":
		tone, ok := parseTone(args)
		if !ok {
			t.plainResponse(chatId, "Tone must be one of: conversational, formal, humorous")
			return
		}
		t.setTone(session, tone)
	case "format":
		format, ok := parseFormat(args)
		if !ok {
			t.plainResponse(chatId, "Format must be one of: linkedin, instagram, youtube_desc, monologue, interview")
			return
		}
		t.setFormat(session, format)
	case "temperature":
		value, err := strconv.ParseFloat(args, 64)
		if err != nil || value < minTemperature || value > maxTemperature {
			t.plainResponse(chatId, "Temperature must be a number between 0.1 and 1.0")
			return
		}
		session.State.SetTemperature(value)
	case "duration":
		value, err := strconv.Atoi(args)
		if err != nil || value < minDuration || value > maxDuration {
			t.plainResponse(chatId, "Duration must be a whole number of minutes between 1 and 60")
			return
		}
		session.State.SetDurationMinutes(value)
	case "generate":
		if !t.submit(session) {
			t.plainResponse(chatId, submitBusyLabel)
		}
	}
}

// handleText treats free text as the topic input of an open form.
func (t *TgBot) handleText(chatId int64, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	session, ok := t.sessions.Get(chatId)
	if !ok {
		t.plainResponse(chatId, "Send /start to open the script form.")
		return
	}
	session.State.SetTopic(text)
}

func (t *TgBot) handleCallback(chatId int64, messageId int, callbackId, data string) {
	session, ok := t.sessions.Get(chatId)
	if !ok || session.FormMessage() != messageId {
		t.answer(callbackId, "This form is closed, send /start")
		return
	}

	answer := ""
	switch {
	case data == dataGenerate:
		if !t.submit(session) {
			answer = submitBusyLabel
		}
	case strings.HasPrefix(data, prefixTone):
		t.setTone(session, form.Tone(strings.TrimPrefix(data, prefixTone)))
	case strings.HasPrefix(data, prefixFormat):
		t.setFormat(session, form.Format(strings.TrimPrefix(data, prefixFormat)))
	case data == dataTempDown:
		session.State.SetTemperature(stepTemperature(session.State.Temperature(), -1))
	case data == dataTempUp:
		session.State.SetTemperature(stepTemperature(session.State.Temperature(), 1))
	case data == dataDurDown:
		session.State.SetDurationMinutes(stepDuration(session.State.DurationMinutes(), -1))
	case data == dataDurUp:
		session.State.SetDurationMinutes(stepDuration(session.State.DurationMinutes(), 1))
	default:
		t.log.With(slog.String("data", data)).Warn("unknown callback")
	}
	t.answer(callbackId, answer)
}

// submit starts a request unless one is already running; the submit control
// is disabled while the form is busy.
func (t *TgBot) submit(session *holder.Session) bool {
	if session.State.Busy() {
		return false
	}
	task := session.Controller.Submit(t.ctx)
	t.log.With(
		sl.Chat(session.ChatId),
		sl.Task(task.ID()),
	).Info("script requested")

	go func() {
		t.deliverScript(session, task.Wait())
	}()
	return true
}

// deliverScript posts the generated script unless the form was closed or
// replaced meanwhile.
func (t *TgBot) deliverScript(session *holder.Session, outcome form.Outcome) {
	if outcome.Status != form.StatusSucceeded {
		return
	}
	current, ok := t.sessions.Get(session.ChatId)
	if !ok || current != session {
		t.log.With(sl.Chat(session.ChatId)).Debug("form closed, script dropped")
		return
	}
	t.sendScript(session.ChatId, session.State.Script())
}

func (t *TgBot) setTone(session *holder.Session, tone form.Tone) {
	if err := session.State.SetTone(tone); err != nil {
		t.log.With(slog.String("tone", string(tone))).Warn("rejected tone", sl.Err(err))
	}
}

func (t *TgBot) setFormat(session *holder.Session, format form.Format) {
	if err := session.State.SetFormat(format); err != nil {
		t.log.With(slog.String("format", string(format))).Warn("rejected format", sl.Err(err))
	}
}

func (t *TgBot) mount(chatId int64) *holder.Session {
	session := t.sessions.Mount(chatId)
	session.Subscribe(func(v form.Values) {
		t.renderForm(session, v)
		if v.Busy {
			t.startTyping(chatId)
		} else {
			t.stopTyping(chatId)
		}
	})
	return session
}

func (t *TgBot) sendForm(session *holder.Session) {
	v := session.State.Snapshot()
	msg := tgbotapi.NewMessage(session.ChatId, formText(v))
	msg.ReplyMarkup = formKeyboard(v)
	sent, err := t.out.Send(msg)
	if err != nil {
		t.log.With(sl.Chat(session.ChatId)).Error("sending form", sl.Err(err))
		return
	}
	session.SetFormMessage(sent.MessageID)
}

// renderForm edits the form message in place.
func (t *TgBot) renderForm(session *holder.Session, v form.Values) {
	messageId := session.FormMessage()
	if messageId == 0 {
		return
	}
	markup := formKeyboard(v)
	edit := tgbotapi.NewEditMessageText(session.ChatId, messageId, formText(v))
	edit.ReplyMarkup = &markup
	if _, err := t.out.Send(edit); err != nil {
		t.log.With(sl.Chat(session.ChatId)).Debug("editing form", sl.Err(err))
	}
}

func (t *TgBot) sendScript(chatId int64, script string) {
	for i, chunk := range splitText(script, maxMessageLength) {
		if i == 0 {
			chunk = scriptHeading + "\n\n" + chunk
		}
		t.plainResponse(chatId, chunk)
	}
}

func (t *TgBot) sendHistory(chatId int64) {
	if t.journal == nil {
		t.plainResponse(chatId, "History is not available.")
		return
	}
	entries, err := t.journal.Recent(chatId, historySize)
	if err != nil {
		t.log.With(sl.Chat(chatId)).Error("reading history", sl.Err(err))
		t.plainResponse(chatId, "History is not available.")
		return
	}
	if len(entries) == 0 {
		t.plainResponse(chatId, "No submissions yet.")
		return
	}
	var b strings.Builder
	b.WriteString("Recent submissions:")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n%s %s, %s, %s: %s",
			e.CreatedAt.Format(time.DateTime), e.Format, e.Tone, e.Outcome, e.Topic)
	}
	t.plainResponse(chatId, b.String())
}

// startTyping sends the typing action every 5 seconds until stopTyping.
func (t *TgBot) startTyping(chatId int64) {
	t.typingMutex.Lock()
	defer t.typingMutex.Unlock()
	if _, ok := t.typing[chatId]; ok {
		return
	}
	stop := make(chan struct{})
	t.typing[chatId] = stop

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		t.sendChatAction(chatId, tgbotapi.ChatTyping)
		for {
			select {
			case <-ticker.C:
				t.sendChatAction(chatId, tgbotapi.ChatTyping)
			case <-stop:
				return
			}
		}
	}()
}

func (t *TgBot) stopTyping(chatId int64) {
	t.typingMutex.Lock()
	defer t.typingMutex.Unlock()
	if stop, ok := t.typing[chatId]; ok {
		close(stop)
		delete(t.typing, chatId)
	}
}

func (t *TgBot) sendChatAction(chatId int64, action string) {
	if _, err := t.out.Send(tgbotapi.NewChatAction(chatId, action)); err != nil {
		t.log.With(sl.Chat(chatId)).Debug("sending chat action", sl.Err(err))
	}
}

func (t *TgBot) answer(callbackId, text string) {
	if callbackId == "" {
		return
	}
	if _, err := t.out.AnswerCallbackQuery(tgbotapi.NewCallback(callbackId, text)); err != nil {
		t.log.Debug("answering callback", sl.Err(err))
	}
}

func (t *TgBot) plainResponse(chatId int64, text string) {
	msg := tgbotapi.NewMessage(chatId, text)
	if _, err := t.out.Send(msg); err != nil {
		t.log.With(sl.Chat(chatId)).Error("sending message", sl.Err(err))
	}
}

// detect if we are mentioned in the message
func (t *TgBot) isMentioned(text string) bool {
	if t.botUsername != "" {
		return strings.Contains(text, "@"+t.botUsername)
	}
	return false
}
