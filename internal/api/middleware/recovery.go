package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Belogorec/marsu-bot2/internal/api/apierr"
	"github.com/Belogorec/marsu-bot2/internal/middleware"
)

// Recovery creates panic recovery middleware for the API.
// Panics are answered with the JSON internal error envelope.
func Recovery(logger *slog.Logger, secretPrefix string) func(http.Handler) http.Handler {
	return middleware.Recovery(logger, apiPanicHandler, secretRedactor(secretPrefix))
}

func apiPanicHandler(w http.ResponseWriter, _ *http.Request, _ any) {
	apierr.WriteError(w, apierr.NewInternalError())
}
