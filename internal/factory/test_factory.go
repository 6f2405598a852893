package factory

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Belogorec/marsu-bot2/internal/bot"
	"github.com/Belogorec/marsu-bot2/internal/config"
	"github.com/Belogorec/marsu-bot2/internal/dependencies/mocks"
	"github.com/Belogorec/marsu-bot2/internal/services/membership"
	"github.com/Belogorec/marsu-bot2/internal/storage/memory"
)

// TestChannel is the channel the test app requires membership of
const TestChannel = "@airdrop_test"

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock *mocks.MockClock
	MockIDs   *mocks.MockIDGenerator
	FakeBot   *FakeBot
}

// TestConfig returns a configuration suitable for in-process tests
func TestConfig() config.Config {
	return config.Config{
		BotToken:      "test-token",
		Channel:       TestChannel,
		Admins:        []string{"1", "@boss"},
		Storage:       config.StorageMemory,
		Mode:          config.ModePolling,
		HTTPPort:      8080,
		OracleTimeout: time.Second,
		StoreTimeout:  time.Second,
		LogLevel:      "info",
	}
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	app, err := NewTestAppWithConfig(TestConfig())
	if err != nil {
		panic(err)
	}
	return app
}

// NewTestAppWithConfig is NewTestApp with a caller supplied configuration.
// Storage is always in-memory.
func NewTestAppWithConfig(cfg config.Config) (*TestApp, error) {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockIDs := mocks.NewMockIDGenerator()
	fake := NewFakeBot("airdrop_test_bot")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	app, err := newWithDependencies(store, fake, mockClock, mockIDs, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &TestApp{
		App:       app,
		MockClock: mockClock,
		MockIDs:   mockIDs,
		FakeBot:   fake,
	}, nil
}

// SentMessage is a reply captured by FakeBot
type SentMessage struct {
	ChatID int64
	Reply  bot.Reply
}

// FakeBot is an in-memory stand-in for the Bot API
type FakeBot struct {
	username string

	mu        sync.Mutex
	statuses  map[int64]membership.Status
	fetchErr  error
	pending   []tgbotapi.Update
	notify    chan struct{}
	sent      []SentMessage
	callbacks []string
}

// NewFakeBot creates a FakeBot answering getMe with username
func NewFakeBot(username string) *FakeBot {
	return &FakeBot{
		username: username,
		statuses: make(map[int64]membership.Status),
		notify:   make(chan struct{}, 1),
	}
}

// Username implements BotAPI
func (f *FakeBot) Username() string {
	return f.username
}

// SetMember records a user's channel membership
func (f *FakeBot) SetMember(userID int64, status membership.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[userID] = status
}

// FailFetch makes every membership lookup fail with err
func (f *FakeBot) FailFetch(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

// FetchChatMember implements membership.Fetcher
func (f *FakeBot) FetchChatMember(_ context.Context, channel string, userID int64) (membership.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return membership.StatusUnknown, f.fetchErr
	}
	if !strings.EqualFold(channel, TestChannel) {
		return membership.StatusNotMember, nil
	}
	status, ok := f.statuses[userID]
	if !ok {
		return membership.StatusNotMember, nil
	}
	return status, nil
}

// Push queues updates for the next Updates call
func (f *FakeBot) Push(updates ...tgbotapi.Update) {
	f.mu.Lock()
	f.pending = append(f.pending, updates...)
	f.mu.Unlock()
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

// Updates implements telegram.Transport. It blocks until updates are
// pushed or ctx is done.
func (f *FakeBot) Updates(ctx context.Context, offset int) ([]tgbotapi.Update, error) {
	for {
		f.mu.Lock()
		var batch []tgbotapi.Update
		for _, u := range f.pending {
			if u.UpdateID >= offset {
				batch = append(batch, u)
			}
		}
		f.pending = nil
		f.mu.Unlock()

		if len(batch) > 0 {
			return batch, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-f.notify:
		}
	}
}

// Send implements telegram.Transport
func (f *FakeBot) Send(_ context.Context, chatID int64, reply *bot.Reply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, SentMessage{ChatID: chatID, Reply: *reply})
	return nil
}

// AnswerCallback implements telegram.Transport
func (f *FakeBot) AnswerCallback(_ context.Context, callbackID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, callbackID)
	return nil
}

// Sent returns every reply sent so far
func (f *FakeBot) Sent() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentMessage(nil), f.sent...)
}

// Callbacks returns the acknowledged callback query ids
func (f *FakeBot) Callbacks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.callbacks...)
}
