package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/Belogorec/marsu-bot2/internal/middleware"
)

// redacted replaces path secrets in log lines
const redacted = "[redacted]"

// Logging creates request logging middleware for the API. The path segment
// following secretPrefix is never logged.
func Logging(logger *slog.Logger, secretPrefix string) func(http.Handler) http.Handler {
	return middleware.Logging(logger, secretRedactor(secretPrefix))
}

func secretRedactor(secretPrefix string) middleware.PathRedactor {
	if secretPrefix == "" {
		return nil
	}
	return func(path string) string {
		if rest, ok := strings.CutPrefix(path, secretPrefix); ok && rest != "" {
			return secretPrefix + redacted
		}
		return path
	}
}
