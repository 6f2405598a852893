package telegram

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Belogorec/marsu-bot2/internal/bot"
	"github.com/Belogorec/marsu-bot2/internal/model"
)

// retryDelay is the pause after a failed getUpdates call
const retryDelay = 3 * time.Second

// Handler answers inbound events
type Handler interface {
	Handle(ctx context.Context, ev bot.Event) *bot.Reply
}

// Transport is the part of the Bot API the gateway drives
type Transport interface {
	Updates(ctx context.Context, offset int) ([]tgbotapi.Update, error)
	Send(ctx context.Context, chatID int64, reply *bot.Reply) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// Gateway feeds updates to a handler one at a time and sends the replies
type Gateway struct {
	transport  Transport
	handler    Handler
	logger     *slog.Logger
	retryDelay time.Duration
}

// NewGateway creates a new Gateway
func NewGateway(transport Transport, handler Handler, logger *slog.Logger) *Gateway {
	return &Gateway{
		transport:  transport,
		handler:    handler,
		logger:     logger,
		retryDelay: retryDelay,
	}
}

// Run long-polls for updates until ctx is cancelled
func (g *Gateway) Run(ctx context.Context) error {
	g.logger.Info("polling for updates")
	offset := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := g.transport.Updates(ctx, offset)
		if err != nil {
			g.logger.Warn("failed to fetch updates", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(g.retryDelay):
			}
			continue
		}
		// The batch stays unacknowledged until the next getUpdates call,
		// so Telegram redelivers it after a restart.
		if ctx.Err() != nil {
			if len(updates) > 0 {
				g.logger.Info("stopping with unhandled updates",
					slog.Int("count", len(updates)),
					slog.Int("first_update_id", updates[0].UpdateID),
				)
			}
			return nil
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			g.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate processes one update. Panics are recovered and logged so a
// single bad update never stops the loop.
func (g *Gateway) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Error("panic handling update",
				slog.Int("update_id", update.UpdateID),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	if cb := update.CallbackQuery; cb != nil {
		if err := g.transport.AnswerCallback(ctx, cb.ID); err != nil {
			g.logger.Warn("failed to answer callback", slog.String("error", err.Error()))
		}
	}

	ev, chatID, ok := ToEvent(update)
	if !ok {
		return
	}

	start := time.Now()
	reply := g.handler.Handle(ctx, ev)
	g.logger.Debug("update handled",
		slog.Int("update_id", update.UpdateID),
		slog.String("kind", ev.Kind.String()),
		slog.Bool("direct", ev.Direct),
		slog.Duration("duration", time.Since(start)),
	)
	if reply == nil {
		return
	}

	if err := g.transport.Send(ctx, chatID, reply); err != nil {
		g.logger.Error("failed to send reply",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
	}
}

// ToEvent converts an update into a bot event and the chat to answer in.
// Updates the bot does not act on yield ok == false.
func ToEvent(update tgbotapi.Update) (bot.Event, int64, bool) {
	switch {
	case update.Message != nil:
		msg := update.Message
		if msg.From == nil || msg.Chat == nil {
			return bot.Event{}, 0, false
		}
		ev := bot.Event{
			Sender: toSender(msg.From),
			Direct: msg.Chat.IsPrivate(),
		}
		switch {
		case msg.IsCommand():
			ev.Kind = bot.EventCommand
			ev.Command = msg.Command()
			ev.Args = strings.TrimSpace(msg.CommandArguments())
		case msg.Text != "":
			ev.Kind = bot.EventText
			ev.Text = msg.Text
		default:
			return bot.Event{}, 0, false
		}
		return ev, msg.Chat.ID, true

	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		if cb.From == nil {
			return bot.Event{}, 0, false
		}
		ev := bot.Event{
			Kind:   bot.EventButton,
			Data:   cb.Data,
			Sender: toSender(cb.From),
		}
		chatID := cb.From.ID
		if cb.Message != nil && cb.Message.Chat != nil {
			chatID = cb.Message.Chat.ID
			ev.Direct = cb.Message.Chat.IsPrivate()
		}
		return ev, chatID, true

	default:
		return bot.Event{}, 0, false
	}
}

func toSender(u *tgbotapi.User) bot.Sender {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	return bot.Sender{
		ID:          model.ParticipantID(strconv.FormatInt(u.ID, 10)),
		Username:    u.UserName,
		DisplayName: name,
	}
}

