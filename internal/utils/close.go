package utils

import (
	"io"

	"github.com/MrSnakeDoc/hometab/internal/logger"
)

// Close closes c and ignores any error.
// Use for best-effort cleanup in defer where error handling is not critical.
func Close(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

// MustClose closes c and logs a failure under what.
func MustClose(c io.Closer, what string, log logger.Logger) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		log.Warn("failed to close", logger.String("resource", what), logger.Error(err))
	}
}
