package registry

import (
	"context"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/errors"
	"github.com/InstituteforDiseaseModeling/modelops-bundle/pkg/registry/status"
)

const defaultRetries = 3

// WithRetry runs op, retrying transient network errors a small bounded
// number of times with exponential backoff and jitter. Every other error
// kind surfaces immediately: in particular a digest mismatch is an
// integrity event and is never retried here.
func WithRetry(ctx context.Context, l *zap.Logger, op func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(200*time.Millisecond),
			backoff.WithMaxInterval(2*time.Second),
		), defaultRetries),
		ctx,
	)
	attempt := 0
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !errors.Is(err, status.ErrNetwork) {
			return backoff.Permanent(err)
		}
		attempt++
		l.Debug("transient registry error, backing off",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return err
	}, policy)
}
