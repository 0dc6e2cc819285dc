package observability

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/zap"
)

// FlushTelemetry syncs buffered log output before process exit. Prometheus is pull-based,
// so logs are the only buffered telemetry. Sync errors from stdout/stderr attached to a
// terminal or pipe (EINVAL, ENOTTY) are ignored; those descriptors cannot be fsynced.
func FlushTelemetry(ctx context.Context, logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- logger.Sync() }()

	select {
	case err := <-done:
		if err != nil && !isUnsyncableSink(err) {
			return fmt.Errorf("flush logs: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush logs: %w", ctx.Err())
	}
}

func isUnsyncableSink(err error) bool {
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)
}
