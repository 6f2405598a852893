package telegram

import (
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// slogAdapter routes the Bot API library's log output to slog
type slogAdapter struct {
	logger *slog.Logger
}

// Ensure slogAdapter satisfies the library logger
var _ tgbotapi.BotLogger = slogAdapter{}

func (a slogAdapter) Println(v ...interface{}) {
	a.logger.Info(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (a slogAdapter) Printf(format string, v ...interface{}) {
	a.logger.Info(strings.TrimSuffix(fmt.Sprintf(format, v...), "\n"))
}

// UseLogger installs logger as the Bot API library logger.
// The library logger is process-wide.
func UseLogger(logger *slog.Logger) error {
	return tgbotapi.SetLogger(slogAdapter{logger: logger.With(slog.String("component", "tgbotapi"))})
}
