package gateway

import (
	"log/slog"
	"os"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func init() {
	backoffUnit = time.Millisecond
}
