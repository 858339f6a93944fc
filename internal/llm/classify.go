package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/parley-go/internal/chat"
)

// classify maps raw provider errors onto the orchestration taxonomy:
// timeouts, unknown models and everything else as unreachable. Providers do
// not expose typed errors, so this matches on message text the same way the
// services report it.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", chat.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timeout"):
		return fmt.Errorf("%w: %v", chat.ErrTimeout, err)
	case strings.Contains(msg, "not found") || strings.Contains(msg, "404"):
		return fmt.Errorf("%w: %v", chat.ErrModelNotFound, err)
	default:
		return fmt.Errorf("%w: %v", chat.ErrUnreachable, err)
	}
}
