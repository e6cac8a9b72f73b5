package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lokeshpanthangi/lecturechat/internal/model"
)

// Policy is the retry discipline shared by every external call: a fixed
// attempt cap with exponential backoff between attempts. Only errors marked
// transient (model.Transient) are retried; everything else fails immediately.
type Policy struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	Multiplier      float64
}

// Default matches the embedding/indexing discipline: 3 attempts, delay
// doubling from 1s.
func Default() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		Multiplier:      2.0,
	}
}

// Do runs op under the policy. The returned error is the last error from op.
func (p Policy) Do(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.Multiplier = p.Multiplier
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if model.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	return backoff.Retry(wrapped, backoff.WithContext(backoff.WithMaxRetries(bo, attempts-1), ctx))
}
