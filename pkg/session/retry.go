package session

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/codeready-toolchain/roundtable/pkg/llm"
	"github.com/codeready-toolchain/roundtable/pkg/rterrors"
)

// defaultIsRetryable classifies errors for the session driver's retry loop.
// A malformed review is never retried here — review.Agent already spent its
// one salvage attempt internally, and retrying the whole call would just
// burn another LLM round-trip on the same unparseable model behavior.
// Everything else defers to llm.IsRetryable's HTTP-status classification.
func defaultIsRetryable(ctx context.Context, err error) bool {
	if errors.Is(err, rterrors.ErrMalformedReview) {
		return false
	}
	return llm.IsRetryable(ctx, err)
}

// RetryPolicy governs the exponential-backoff-with-jitter retry applied to
// every reviewer and moderator LLM call (spec §7: "recommended: up to 3
// attempts, exponential backoff with jitter"). The meta-planner call is
// made once, without this retry.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy mirrors the spec's recommended defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second}
}

// withRetry runs fn, retrying while isRetryable(err) reports true and
// attempts remain. The final attempt's error (retryable or not) is
// returned unwrapped, except that ctx.Err() is returned if ctx is done
// during a backoff wait; callers that need to distinguish transient-exhausted
// from fatal should consult isRetryable themselves on the returned error.
func withRetry(ctx context.Context, policy RetryPolicy, isRetryable func(context.Context, error) bool, fn func() error) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	var err error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if attempt == policy.MaxAttempts-1 || !isRetryable(ctx, err) {
			return err
		}

		select {
		case <-time.After(backoffDelay(policy, attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func backoffDelay(policy RetryPolicy, attempt int) time.Duration {
	d := policy.BaseDelay << attempt
	if d > policy.MaxDelay || d <= 0 {
		d = policy.MaxDelay
	}
	// Full jitter: a random delay in [0, d), so concurrent reviewer retries
	// don't all wake up in lockstep against a rate-limited backend.
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(d)))
}
