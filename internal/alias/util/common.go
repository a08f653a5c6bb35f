package util

import (
	"io"
	"log/slog"
)

// CloseLogged closes c and logs a failure instead of returning it, for
// deferred closes of files and stores.
func CloseLogged(log *slog.Logger, what string, c io.Closer) {
	if err := c.Close(); err != nil {
		log.Error("close failed", "what", what, "err", err)
	}
}
