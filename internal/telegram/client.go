// Package telegram adapts the Telegram Bot API to the airdrop bot: it
// fetches channel membership, sends replies and feeds updates to a handler.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Belogorec/marsu-bot2/internal/bot"
	"github.com/Belogorec/marsu-bot2/internal/services/membership"
)

// Config holds configuration for the Bot API client
type Config struct {
	Token string
	// APIEndpoint is a format string taking the token and method;
	// empty means the public Bot API
	APIEndpoint string
	// PollTimeout is the long-polling timeout in seconds
	PollTimeout int
	// RequestTimeout bounds non-polling HTTP calls
	RequestTimeout time.Duration
}

// DefaultPollTimeout is the default long-poll length in seconds. Updates
// cannot be interrupted once sent, so shutdown in polling mode waits up to
// this long; it stays below a 10s termination grace period.
const DefaultPollTimeout = 8

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		APIEndpoint:    tgbotapi.APIEndpoint,
		PollTimeout:    DefaultPollTimeout,
		RequestTimeout: 10 * time.Second,
	}
}

// Client wraps the Bot API
type Client struct {
	api         *tgbotapi.BotAPI
	pollTimeout int
}

// Ensure Client can back the membership oracle
var _ membership.Fetcher = (*Client)(nil)

// Connect authenticates against the Bot API with getMe
func Connect(cfg Config) (*Client, error) {
	defaults := DefaultConfig()
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = defaults.APIEndpoint
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaults.PollTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}

	// Long polls hold the connection for PollTimeout seconds
	httpClient := &http.Client{
		Timeout: time.Duration(cfg.PollTimeout)*time.Second + cfg.RequestTimeout,
	}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.APIEndpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("connect to bot api: %w", err)
	}
	return &Client{api: api, pollTimeout: cfg.PollTimeout}, nil
}

// Username returns the bot's own username
func (c *Client) Username() string {
	return c.api.Self.UserName
}

// FetchChatMember reports whether userID belongs to channel.
// channel is either an @handle or a numeric chat id.
func (c *Client) FetchChatMember(ctx context.Context, channel string, userID int64) (membership.Status, error) {
	chat := tgbotapi.ChatConfigWithUser{UserID: userID}
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		chat.ChatID = id
	} else {
		chat.SuperGroupUsername = "@" + strings.TrimPrefix(channel, "@")
	}

	member, err := c.api.GetChatMember(tgbotapi.GetChatMemberConfig{ChatConfigWithUser: chat})
	if err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && isUserNotFound(apiErr) {
			return membership.StatusNotMember, nil
		}
		return membership.StatusUnknown, fmt.Errorf("get chat member: %w", err)
	}
	return memberStatus(member), nil
}

func memberStatus(member tgbotapi.ChatMember) membership.Status {
	switch member.Status {
	case "creator", "administrator", "member":
		return membership.StatusMember
	case "restricted":
		if member.IsMember {
			return membership.StatusMember
		}
		return membership.StatusNotMember
	case "left", "kicked":
		return membership.StatusNotMember
	default:
		return membership.StatusUnknown
	}
}

func isUserNotFound(err *tgbotapi.Error) bool {
	msg := strings.ToLower(err.Message)
	return err.Code == http.StatusBadRequest &&
		(strings.Contains(msg, "user not found") || strings.Contains(msg, "participant_id_invalid"))
}

// Send delivers a reply to a chat
func (c *Client) Send(ctx context.Context, chatID int64, reply *bot.Reply) error {
	msg := tgbotapi.NewMessage(chatID, reply.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup, ok := keyboard(reply.Buttons); ok {
		msg.ReplyMarkup = markup
	}
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func keyboard(rows [][]bot.Button) (tgbotapi.InlineKeyboardMarkup, bool) {
	var out [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		var buttons []tgbotapi.InlineKeyboardButton
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.URL))
			} else {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
			}
		}
		if len(buttons) > 0 {
			out = append(out, tgbotapi.NewInlineKeyboardRow(buttons...))
		}
	}
	if len(out) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...), true
}

// AnswerCallback acknowledges a button press so the client stops its spinner
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// Updates fetches the next batch of updates starting at offset
func (c *Client) Updates(ctx context.Context, offset int) ([]tgbotapi.Update, error) {
	cfg := tgbotapi.NewUpdate(offset)
	cfg.Timeout = c.pollTimeout
	updates, err := c.api.GetUpdates(cfg)
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}
	return updates, nil
}

// SetWebhook registers url as the update destination
func (c *Client) SetWebhook(ctx context.Context, url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("build webhook: %w", err)
	}
	if _, err := c.api.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

// DeleteWebhook switches the bot back to getUpdates delivery
func (c *Client) DeleteWebhook(ctx context.Context) error {
	if _, err := c.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}
