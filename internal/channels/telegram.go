package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/basket/scriptbot/internal/bus"
	"github.com/basket/scriptbot/internal/dispatch"
	"github.com/basket/scriptbot/internal/otel"
	"github.com/basket/scriptbot/internal/shared"
	"github.com/basket/scriptbot/internal/telemetry"
)

// Telegram shows callback answers as a toast and truncates them at 200
// characters. Longer answers go out as messages.
const maxCallbackAnswer = 200

// Bot is the subset of *tgbotapi.BotAPI used to deliver replies.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Handler executes a decoded operator action.
type Handler interface {
	Dispatch(ctx context.Context, operator int64, action dispatch.Action) dispatch.Response
}

// TelegramOptions holds optional TelegramChannel dependencies.
type TelegramOptions struct {
	Logger *slog.Logger
	Bus    *bus.Bus
	Tracer trace.Tracer
	// Notify lists the chats that receive exit and script directory notices.
	Notify []int64
}

// TelegramChannel implements the Channel interface for Telegram.
type TelegramChannel struct {
	token    string
	handler  Handler
	notify   []int64
	logger   *slog.Logger
	eventBus *bus.Bus
	tracer   trace.Tracer

	api *tgbotapi.BotAPI
	bot Bot
}

// NewTelegramChannel creates a new Telegram channel.
func NewTelegramChannel(token string, handler Handler, opts TelegramOptions) *TelegramChannel {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = nooptrace.NewTracerProvider().Tracer(otel.TracerName)
	}
	return &TelegramChannel{
		token:    token,
		handler:  handler,
		notify:   append([]int64(nil), opts.Notify...),
		logger:   opts.Logger,
		eventBus: opts.Bus,
		tracer:   opts.Tracer,
	}
}

func (t *TelegramChannel) Name() string {
	return "telegram"
}

func (t *TelegramChannel) Start(ctx context.Context) error {
	var err error
	t.api, err = tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram init failed: %w", err)
	}
	t.bot = t.api

	t.logger.Info("telegram bot started", "user", t.api.Self.UserName)

	if t.eventBus != nil {
		go t.forwardEvents(ctx)
	}

	// Reconnection loop with exponential backoff.
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := t.api.GetUpdatesChan(u)

		pollErr := t.pollUpdates(ctx, updates)

		// Always clean up the old polling goroutine before reconnecting.
		t.api.StopReceivingUpdates()

		if pollErr != nil {
			t.logger.Warn("telegram poll disconnected, reconnecting", "error", pollErr, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		// pollUpdates returned nil means ctx was cancelled.
		return nil
	}
}

// pollUpdates reads from the update channel until ctx is done, the channel
// closes, or no updates arrive within 2x the long-poll timeout (stall detection).
// Returns nil on context cancellation, or an error to trigger reconnection.
// Updates are handled one at a time.
func (t *TelegramChannel) pollUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	// tgbotapi uses a 60s long-poll timeout. If we see nothing for 2.5 minutes,
	// the connection is likely dead (the library blocks rather than closing the channel).
	const stallTimeout = 150 * time.Second

	timer := time.NewTimer(stallTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("update channel closed")
			}

			// Reset stall timer on every received update (including empty long-poll returns).
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(stallTimeout)

			t.handleUpdate(ctx, update)

		case <-timer.C:
			return fmt.Errorf("no updates received for %v (possible disconnect)", stallTimeout)
		}
	}
}

// handleUpdate decodes one update into an action, dispatches it and renders
// the response. The allowlist is enforced by the handler, not here.
func (t *TelegramChannel) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	ctx = shared.WithTraceID(ctx, shared.NewTraceID())

	switch {
	case update.Message != nil && update.Message.From != nil:
		msg := update.Message
		if !msg.IsCommand() {
			return
		}
		action := dispatch.DecodeCommand(msg.Command())
		ctx, span := otel.StartServerSpan(ctx, t.tracer, "telegram.command",
			otel.AttrOperatorID.Int64(msg.From.ID),
			otel.AttrAction.String(action.Name()),
		)
		defer span.End()
		resp := t.handler.Dispatch(ctx, msg.From.ID, action)
		t.render(ctx, msg.Chat.ID, nil, resp)

	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		query := update.CallbackQuery
		action := dispatch.DecodeAction(query.Data)
		ctx, span := otel.StartServerSpan(ctx, t.tracer, "telegram.callback",
			otel.AttrOperatorID.Int64(query.From.ID),
			otel.AttrAction.String(action.Name()),
		)
		defer span.End()
		resp := t.handler.Dispatch(ctx, query.From.ID, action)
		chatID := query.From.ID
		if query.Message != nil && query.Message.Chat != nil {
			chatID = query.Message.Chat.ID
		}
		t.render(ctx, chatID, query, resp)
	}
}

// render delivers resp. query is the button press being answered, or nil for
// commands. Every button press is answered exactly once so the client stops
// showing a spinner.
func (t *TelegramChannel) render(ctx context.Context, chatID int64, query *tgbotapi.CallbackQuery, resp dispatch.Response) {
	logger := telemetry.WithTrace(ctx, t.logger)
	acked := false
	ack := func(text string) {
		if query == nil || acked {
			return
		}
		acked = true
		if _, err := t.bot.Request(tgbotapi.NewCallback(query.ID, text)); err != nil {
			logger.Warn("failed to answer telegram callback", "error", err)
		}
	}
	defer ack("")

	switch resp.Kind {
	case dispatch.ReplyNone:
	case dispatch.ReplyAnswer:
		if query != nil && utf8.RuneCountInString(resp.Text) <= maxCallbackAnswer {
			ack(resp.Text)
			return
		}
		ack("")
		t.send(ctx, logger, chatID, resp.Text, nil)
	case dispatch.ReplyMessage:
		ack("")
		t.send(ctx, logger, chatID, resp.Text, resp.Keyboard)
	case dispatch.ReplyKeyboard:
		ack("")
		if query == nil || query.Message == nil {
			t.send(ctx, logger, chatID, resp.Text, resp.Keyboard)
			return
		}
		edit := tgbotapi.NewEditMessageReplyMarkup(chatID, query.Message.MessageID, keyboardMarkup(resp.Keyboard))
		if err := t.deliver(ctx, "telegram.edit_keyboard", chatID, edit); err != nil {
			logger.Warn("failed to edit telegram keyboard", "error", err)
		}
	default:
		logger.Error("unknown reply kind", "kind", resp.Kind.String())
	}
}

func (t *TelegramChannel) send(ctx context.Context, logger *slog.Logger, chatID int64, text string, keyboard [][]dispatch.Button) {
	if strings.TrimSpace(text) == "" {
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if len(keyboard) > 0 {
		msg.ReplyMarkup = keyboardMarkup(keyboard)
	}
	if err := t.deliver(ctx, "telegram.send", chatID, msg); err != nil {
		logger.Error("failed to send telegram reply", "error", err)
	}
}

// deliver performs one Bot API call inside a client span.
func (t *TelegramChannel) deliver(ctx context.Context, name string, chatID int64, c tgbotapi.Chattable) error {
	_, span := otel.StartClientSpan(ctx, t.tracer, name, otel.AttrChatID.Int64(chatID))
	defer span.End()
	if _, err := t.bot.Send(c); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func keyboardMarkup(keyboard [][]dispatch.Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(keyboard))
	for _, row := range keyboard {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// forwardEvents relays process exits and script directory changes to the
// notify chats until ctx is done.
func (t *TelegramChannel) forwardEvents(ctx context.Context) {
	procSub := t.eventBus.Subscribe(bus.TopicProcessExited)
	scriptSub := t.eventBus.Subscribe(bus.TopicScriptsChanged)
	defer t.eventBus.Unsubscribe(procSub)
	defer t.eventBus.Unsubscribe(scriptSub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-procSub.Ch():
			if !ok {
				return
			}
			t.handleEvent(ctx, ev)
		case ev, ok := <-scriptSub.Ch():
			if !ok {
				return
			}
			t.handleEvent(ctx, ev)
		}
	}
}

func (t *TelegramChannel) handleEvent(ctx context.Context, ev bus.Event) {
	var text string
	switch p := ev.Payload.(type) {
	case bus.ProcessEvent:
		if ev.Topic != bus.TopicProcessExited {
			return
		}
		text = fmt.Sprintf("Script %s (PID %d) exited.", p.ScriptName, p.PID)
		if p.ExitCode > 0 {
			text = fmt.Sprintf("Script %s (PID %d) exited with code %d.", p.ScriptName, p.PID, p.ExitCode)
		}
	case bus.ScriptsChangedEvent:
		text = fmt.Sprintf("Script directory changed: %s %s.", p.Name, p.Op)
	default:
		t.logger.Warn("unexpected event payload", "topic", ev.Topic, "type", fmt.Sprintf("%T", ev.Payload))
		return
	}
	for _, chatID := range t.notify {
		t.send(ctx, t.logger, chatID, text, nil)
	}
}
