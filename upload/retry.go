package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
)

// RetryPolicy controls Retry. The zero value disables retries.
type RetryPolicy struct {
	// Retries is the number of additional attempts after the first one.
	Retries uint
	// Wait is the pause between attempts.
	Wait time.Duration
}

// DefaultRetryPolicy retries a failed upload 3 times, 5 seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Retries: 3, Wait: 5 * time.Second}
}

type temporary interface {
	Temporary() bool
}

// IsRetryable reports whether err is worth another attempt: a network failure or a
// server error the transport marks as temporary. Invalid input and cancellation never are.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrCancelled) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var t temporary
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return false
}

// Retry calls fn until it succeeds, fails permanently or the policy is exhausted.
// The first call gets a nil ResumePoint; after a retryable *UploadError every later call
// gets the point it stopped at, so only the failed chunk and the ones after it are sent again.
func Retry(ctx context.Context, policy RetryPolicy, logger log.Logger, fn func(resume *ResumePoint) (Result, error)) (Result, error) {
	var result Result
	var resume *ResumePoint

	err := retry.Times(policy.Retries).Wait(policy.Wait).TryWithAbort(func(attempt uint) (error, bool) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrCancelled, err), true
		}
		if attempt > 0 {
			if resume != nil {
				logger.Warnf("Retrying upload of %s from chunk %d (attempt %d/%d)", resume.ResourceID, resume.ChunkIndex+1, attempt+1, policy.Retries+1)
			} else {
				logger.Warnf("Retrying upload (attempt %d/%d)", attempt+1, policy.Retries+1)
			}
		}

		res, err := fn(resume)
		if err == nil {
			result = res
			return nil, true
		}

		if uploadErr, ok := AsUploadError(err); ok {
			// Without a server-assigned id there is nothing to resume, start over.
			if p := uploadErr.ResumePoint(); p.ChunkIndex > 0 {
				resume = &p
			}
		}

		return err, !IsRetryable(err)
	})

	return result, err
}
