// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package retry runs collaborator calls under a bounded, randomized
// exponential backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var (
	// ErrInvalidPolicy indicates a policy that cannot be executed.
	ErrInvalidPolicy = errors.New("invalid retry policy")

	// ErrExhausted indicates that every attempt failed.
	ErrExhausted = errors.New("retries exhausted")
)

// Policy describes how an operation is retried.
type Policy struct {
	MaxAttempts int           // Total attempts, including the first
	BaseDelay   time.Duration // Wait before the second attempt
	MaxDelay    time.Duration // Upper bound on any single wait
	Multiplier  float64       // Growth factor between waits
	Jitter      float64       // Randomization factor in [0,1); 0 disables jitter

	// OnRetry is called before each wait. Optional.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultPolicy returns the policy used for extraction and embedding calls:
// 6 attempts, waits of about 5s growing by 1.5x to at most about 90s, each
// randomized by half its length.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 6,
		BaseDelay:   5 * time.Second,
		MaxDelay:    90 * time.Second,
		Multiplier:  1.5,
		Jitter:      0.5,
	}
}

// Validate checks the policy.
func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max attempts must be positive, got %d", ErrInvalidPolicy, p.MaxAttempts)
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidPolicy)
	}
	if p.MaxDelay > 0 && p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("%w: max delay %s is below base delay %s", ErrInvalidPolicy, p.MaxDelay, p.BaseDelay)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("%w: multiplier must be at least 1, got %v", ErrInvalidPolicy, p.Multiplier)
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		return fmt.Errorf("%w: jitter must be in [0,1), got %v", ErrInvalidPolicy, p.Jitter)
	}
	return nil
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns it unwrapped
// without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOffContext {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.Multiplier = p.Multiplier
	exp.RandomizationFactor = p.Jitter
	if p.MaxDelay > 0 {
		exp.MaxInterval = p.MaxDelay
	}
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1)), ctx)
}

// Do calls op until it succeeds, returns a Permanent error, the context is
// done, or the policy's attempts are used up. In the last case the returned
// error wraps both ErrExhausted and the final failure.
func Do(ctx context.Context, op func(context.Context) error, policy Policy) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	attempt := 0
	var permanent *permanentError
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if errors.As(err, &permanent) {
			return backoff.Permanent(permanent.err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		slog.Debug("operation failed, will retry",
			"attempt", attempt, "maxAttempts", policy.MaxAttempts, "wait", wait, "error", err)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err, wait)
		}
	}

	err := backoff.RetryNotify(operation, policy.backOff(ctx), notify)
	if err == nil {
		return nil
	}
	if permanent != nil {
		return err
	}
	if cerr := ctx.Err(); cerr != nil {
		if errors.Is(err, cerr) {
			return err
		}
		return fmt.Errorf("%w: last error: %w", cerr, err)
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, err)
}
