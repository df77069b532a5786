package txmanager

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/ignite/internal/ledger"
)

// retry runs op until it succeeds, fails with a non-transient error, or
// MaxTransportRetries retries have been spent. The delay between attempts
// doubles from RetryDelay up to MaxRetryDelay.
func (m *Manager) retry(ctx context.Context, name string, op func(context.Context) error) error {
	var lastErr error
	delay := m.cfg.RetryDelay

	for attempt := 0; attempt <= m.cfg.MaxTransportRetries; attempt++ {
		if err := m.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		err := op(ctx)
		if err == nil {
			if attempt > 0 {
				m.logger.Info("ledger request succeeded after retry", "op", name, "attempt", attempt+1)
			}
			return nil
		}
		lastErr = err

		if !ledger.IsTransient(err) {
			return err
		}
		if attempt >= m.cfg.MaxTransportRetries {
			break
		}

		transportRetries.WithLabelValues(name).Inc()
		m.logger.Warn("ledger request failed, retrying with exponential backoff",
			"op", name,
			"attempt", attempt+1,
			"max_attempts", m.cfg.MaxTransportRetries+1,
			"retry_in", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: context cancelled during retry: %w", name, ctx.Err())
		case <-time.After(delay):
			delay *= 2
			if delay > m.cfg.MaxRetryDelay {
				delay = m.cfg.MaxRetryDelay
			}
		}
	}
	return &ExhaustedError{Op: name, Err: fmt.Errorf("failed after %d attempts: %w", m.cfg.MaxTransportRetries+1, lastErr)}
}
